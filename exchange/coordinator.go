package exchange

import (
	"context"
	"errors"
	"time"
)

// becomeCoordinator installs the local node as coordinator with the given
// remaining server set.
func (e *Exchange) becomeCoordinator(servers []NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.becomeCoordinatorLocked(servers)
}

func (e *Exchange) becomeCoordinatorLocked(servers []NodeID) {
	e.crd = e.localNode
	e.state = StateCRD
	e.collectStart = time.Now()
	e.remaining = make(map[NodeID]struct{}, len(servers))
	for _, n := range servers {
		if n != e.localNode {
			e.remaining[n] = struct{}{}
		}
	}
	emitRemainingSize(len(e.remaining))
}

// allReceivedLocked reports whether the coordinator has everything it is
// waiting on: no outstanding remaining servers, no awaited merge slots,
// and no in-flight per-message heavy work.
func (e *Exchange) allReceivedLocked() bool {
	return len(e.remaining) == 0 && e.awaitMergedMsgs == 0 && e.pendingSingleUpdates == 0
}

// OnSingleMessage handles an inbound single-message from node n on the
// coordinator path. It returns a full-message to reply with immediately
// when the exchange has already finished (late sender, replayed from
// finishState).
func (e *Exchange) OnSingleMessage(ctx context.Context, n NodeID, msg *SingleMessage) (*FullMessage, bool) {
	e.mu.Lock()

	switch e.state {
	case StateDone:
		fs := e.finishState
		e.mu.Unlock()
		if fs == nil || fs.FullMsg == nil {
			return nil, false
		}
		return fs.FullMsg.withExchID(msg.ExchID), true

	case StateSRV, StateBecomeCRD:
		e.pendingSingleMsgs[n] = msg
		e.mu.Unlock()
		return nil, false

	case StateMerged:
		target := e.mergedWith
		e.mu.Unlock()
		if target != nil {
			return target.processMergedMessage(ctx, n, msg)
		}
		return nil, false

	case StateCRD:
		return e.onSingleMessageAsCoordinator(ctx, n, msg)

	default:
		e.mu.Unlock()
		return nil, false
	}
}

func (e *Exchange) onSingleMessageAsCoordinator(ctx context.Context, n NodeID, msg *SingleMessage) (*FullMessage, bool) {
	if _, dup := e.msgs[n]; dup {
		// Invariant: msgs[n] set at most once. A node cannot legally be
		// re-added under the discovery contract; reject the duplicate.
		e.mu.Unlock()
		return nil, false
	}

	if _, waiting := e.remaining[n]; !waiting {
		// Not an outstanding server reply. It may be a message for a
		// merged-in exchange awaiting this node.
		if slot, isMergeSlot := e.mergedJoinExchMsgs[n]; isMergeSlot && slot == nil {
			e.mergedJoinExchMsgs[n] = msg
			e.awaitMergedMsgs--
			ready := e.allReceivedLocked()
			e.mu.Unlock()
			if ready {
				e.runDecide(ctx)
			}
			return nil, false
		}
		e.mu.Unlock()
		return nil, false
	}

	delete(e.remaining, n)
	e.msgs[n] = msg
	if msg.Error != "" {
		if e.changeGlobalStateExceptions == nil {
			e.changeGlobalStateExceptions = make(map[NodeID]error)
		}
		e.changeGlobalStateExceptions[n] = errors.New(msg.Error)
	}
	if msg.LastVersion > e.lastVer {
		e.lastVer = msg.LastVersion
	}
	e.pendingSingleUpdates++
	emitRemainingSize(len(e.remaining))
	e.mu.Unlock()

	// Heavy per-message partition-map merging happens outside the monitor.
	e.mergeIntoLocalTopology(n, msg)

	e.mu.Lock()
	e.pendingSingleUpdates--
	ready := e.allReceivedLocked()
	e.mu.Unlock()

	if ready {
		e.runDecide(ctx)
	}
	return nil, false
}

// mergeIntoLocalTopology applies a reported peer's counters into the
// local per-group topology so the decide step can read local state
// directly, without holding the exchange monitor.
func (e *Exchange) mergeIntoLocalTopology(n NodeID, msg *SingleMessage) {
	if e.deps == nil || e.deps.Groups == nil {
		return
	}
	for _, g := range e.deps.Groups() {
		gid := g.Group()
		counters, ok := msg.PartitionUpdateCounters[gid]
		if !ok {
			continue
		}
		applied := make(map[int]uint64, len(counters))
		for p, c := range counters {
			applied[p] = c.Applied
		}
		_ = g.ApplyUpdateCounters(applied)
	}
}

// snapshotMsgs returns a stable copy of the messages collected so far,
// used by the decide step after allReceivedLocked fires.
func (e *Exchange) snapshotMsgs() map[NodeID]*SingleMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[NodeID]*SingleMessage, len(e.msgs)+len(e.mergedJoinExchMsgs))
	for n, m := range e.msgs {
		out[n] = m
	}
	for n, m := range e.mergedJoinExchMsgs {
		if m != nil {
			out[n] = m
		}
	}
	return out
}
