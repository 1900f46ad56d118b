package exchange

import (
	"context"
	"fmt"
	"log"
	"os"
)

// New constructs an Exchange for one topology-version event. It does not
// send anything; call Run to drive the state machine forward.
func New(id ExchangeID, initial InitialEvent, snap *DiscoSnapshot, local NodeID, prevTopVer TopologyVersion, deps *Dependencies, cfg *Config, logger *log.Logger) *Exchange {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	srv := append([]NodeID(nil), snap.ServerNodes...)
	return &Exchange{
		id:                 id,
		initialEvent:       initial,
		discoSnap:          snap,
		srvNodes:           srv,
		localNode:          local,
		prevTopVer:         prevTopVer,
		remaining:          make(map[NodeID]struct{}),
		msgs:               make(map[NodeID]*SingleMessage),
		pendingSingleMsgs:  make(map[NodeID]*SingleMessage),
		fullMsgs:           make(map[NodeID]*FullMessage),
		mergedJoinExchMsgs: make(map[NodeID]*SingleMessage),
		deps:               withDefaults(deps),
		log:                logger,
		cfg:                cfg,
		doneCh:             make(chan struct{}),
		initGate:           make(chan struct{}),
	}
}

// Run drives the exchange from classification through to the point where
// completion becomes someone else's responsibility: the coordinator waits
// asynchronously on inbound single-messages (delivered via Deliver), a
// server waits on the coordinator's full-message, and a client never waits
// at all. Run itself returns once the local node's outbound leg of the
// round has been kicked off.
func (e *Exchange) Run(ctx context.Context) error {
	defer e.closeInitGate()

	exchType, centralized, err := classify(e.initialEvent, e.deps.Affinity, e.discoSnap)
	if err != nil {
		return wrapFatal(e.id, err)
	}
	if exchType == ExchangeAll && e.initialEvent.Kind.IsCustom() && !e.discoSnap.Contains(e.localNode) {
		// A custom message runs as CLIENT on a node outside the server set.
		exchType = ExchangeClient
	}

	e.mu.Lock()
	e.exchType = exchType
	e.centralizedAff = centralized
	e.mu.Unlock()

	switch exchType {
	case ExchangeNone:
		e.mu.Lock()
		e.markDone(FinishState{CoordinatorID: e.localNode, ResultTopVer: e.id.TopVer})
		e.mu.Unlock()
		return nil

	case ExchangeClient:
		// Clients never wait on quiesce.
		return e.runClientPath(ctx)
	}

	if err := e.preExchangeTopologyUpdate(); err != nil {
		return err
	}
	if err := e.quiesce(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	coordinator := e.pickCoordinatorLocked()
	e.crd = coordinator
	isLocal := coordinator == e.localNode
	servers := append([]NodeID(nil), e.srvNodes...)
	e.mu.Unlock()

	if isLocal {
		e.becomeCoordinator(servers)
		e.mu.Lock()
		ready := e.allReceivedLocked()
		e.mu.Unlock()
		if ready {
			e.runDecide(ctx)
		}
		return nil
	}

	return e.runServerPath(ctx)
}

// pickCoordinatorLocked returns the lowest-ordered surviving server: by
// convention srvNodes is kept in seniority order with failed nodes removed
//, so the coordinator is always the head of the slice.
// Caller must hold e.mu.
func (e *Exchange) pickCoordinatorLocked() NodeID {
	if len(e.srvNodes) == 0 {
		return e.localNode
	}
	return e.srvNodes[0]
}

// closeInitGate releases any message deliveries that arrived and queued
// while Run was still classifying/quiescing.
func (e *Exchange) closeInitGate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initClosed {
		close(e.initGate)
		e.initClosed = true
	}
}

func (e *Exchange) awaitInit(ctx context.Context) error {
	e.mu.Lock()
	if e.initClosed {
		e.mu.Unlock()
		return nil
	}
	gate := e.initGate
	e.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver is the single demultiplexing entry point the transport layer
// calls for every inbound wire message addressed to this exchange,
// mirroring serf's one-dispatcher-per-message design. It blocks until Init
// has released the initGate, decodes the leading type byte, and routes to
// the matching handler. The returned FullMessage, if any, is the reply the
// caller's transport should send back immediately (used for late
// single-messages answered from finishState).
func (e *Exchange) Deliver(ctx context.Context, from NodeID, buf []byte) (*FullMessage, error) {
	if err := e.awaitInit(ctx); err != nil {
		return nil, err
	}
	if len(buf) < 1 {
		return nil, fmt.Errorf("exchange: empty message from %s", from)
	}

	switch wireType(buf[0]) {
	case wireSingleMessage:
		msg, err := DecodeSingleMessage(buf)
		if err != nil {
			return nil, err
		}
		if msg.Client {
			return e.OnClientSingleMessage(ctx, from, msg), nil
		}
		full, _ := e.OnSingleMessage(ctx, from, msg)
		return full, nil

	case wireFullMessage:
		msg, err := DecodeFullMessage(buf)
		if err != nil {
			return nil, err
		}
		e.OnFullMessage(ctx, from, msg)
		return nil, nil

	case wireSingleRequest:
		req, err := DecodeSingleRequest(buf)
		if err != nil {
			return nil, err
		}
		e.OnSingleRequest(ctx, from, req)
		return nil, nil

	case wireRestoreReply:
		reply, err := DecodeRestoreReply(buf)
		if err != nil {
			return nil, err
		}
		e.OnRestoreReply(from, reply)
		return nil, nil

	default:
		return nil, fmt.Errorf("exchange: unknown wire type %d from %s", buf[0], from)
	}
}
