package exchange

import (
	"context"
	"time"
)

// distribute implements the distribute step: send the decided
// full-message to every server (over transport, or via the discovery ring
// when centralizedAff is set), then replay any single-messages that
// arrived from late senders while this node was not yet the coordinator.
func (e *Exchange) distribute(ctx context.Context, msg *FullMessage) {
	start := time.Now()
	defer emitDistributeTiming(start)

	e.mu.Lock()
	centralized := e.centralizedAff
	srvNodes := append([]NodeID(nil), e.srvNodes...)
	local := e.localNode
	pending := e.pendingSingleMsgs
	e.pendingSingleMsgs = nil
	mergedWaiting := make([]NodeID, 0, len(e.mergedJoinExchMsgs))
	for n := range e.mergedJoinExchMsgs {
		mergedWaiting = append(mergedWaiting, n)
	}
	e.mu.Unlock()

	if centralized {
		e.distributeCentralized(msg)
	} else {
		e.distributeTransport(ctx, msg, srvNodes, local, mergedWaiting)
	}

	e.replayPending(ctx, pending, msg)
}

// distributeCentralized publishes the full-message over the discovery
// ring as a custom message, relying on the ring's total order to
// guarantee every survivor applies it at the same logical position.
func (e *Exchange) distributeCentralized(msg *FullMessage) {
	if e.deps == nil || e.deps.Discovery == nil {
		return
	}
	payload, err := EncodeFullMessage(msg)
	if err != nil {
		e.log.Printf("[ERR] exchange %s: encode full-message for ring publish: %v", e.id, err)
		return
	}
	cm := &CustomMessage{Kind: EventAffinityChange, Payload: payload}
	if err := e.deps.Discovery.SendCustomEvent(cm); err != nil {
		e.log.Printf("[ERR] exchange %s: publish full-message to ring: %v", e.id, err)
	}
}

// distributeTransport sends the full-message directly to each
// non-local server and to each merged-in node that was awaiting it.
func (e *Exchange) distributeTransport(ctx context.Context, msg *FullMessage, srvNodes []NodeID, local NodeID, mergedWaiting []NodeID) {
	if e.deps == nil || e.deps.Transport == nil {
		return
	}
	enc, err := EncodeFullMessage(msg)
	if err != nil {
		e.log.Printf("[ERR] exchange %s: encode full-message: %v", e.id, err)
		return
	}

	send := func(n NodeID) {
		if err := e.deps.Transport.Send(ctx, n, enc); err != nil && !IsPeerGone(err) {
			e.log.Printf("[ERR] exchange %s: send full-message to %s: %v", e.id, n, err)
		}
	}

	for _, n := range srvNodes {
		if n == local {
			continue
		}
		send(n)
	}
	for _, n := range mergedWaiting {
		send(n)
	}
}

// replayPending answers every single-message buffered before this node
// became coordinator with a copy of the full-message re-stamped with the
// late sender's own exchange id.
func (e *Exchange) replayPending(ctx context.Context, pending map[NodeID]*SingleMessage, msg *FullMessage) {
	if e.deps == nil || e.deps.Transport == nil {
		return
	}
	for n, sm := range pending {
		reply := msg.withExchID(sm.ExchID)
		if len(sm.CacheGroupsAffinityRequest) > 0 && msg.IdealAffinityDiff != nil {
			// Copy-on-customize: clients that asked for affinity-on-join
			// get a variant carrying it; others share the plain message.
			reply.JoinedNodeAffinity = msg.IdealAffinityDiff
		}
		enc, err := EncodeFullMessage(reply)
		if err != nil {
			e.log.Printf("[ERR] exchange %s: encode replay for %s: %v", e.id, n, err)
			continue
		}
		if err := e.deps.Transport.Send(ctx, n, enc); err != nil && !IsPeerGone(err) {
			e.log.Printf("[ERR] exchange %s: replay full-message to %s: %v", e.id, n, err)
		}
	}
}
