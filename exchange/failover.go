package exchange

import (
	"context"
	"sync"
)

// becomeCoordinatorState tracks an in-flight InitNewCoordinator round: the
// set of survivors whose restore-state reply is still outstanding, and the
// replies collected so far.
type becomeCoordinatorState struct {
	mu       sync.Mutex
	expect   map[NodeID]struct{}
	replies  map[NodeID]*RestoreReply
	done     chan struct{}
	doneOnce sync.Once
}

func newBecomeCoordinatorState(expect []NodeID) *becomeCoordinatorState {
	st := &becomeCoordinatorState{
		expect:  make(map[NodeID]struct{}, len(expect)),
		replies: make(map[NodeID]*RestoreReply, len(expect)),
		done:    make(chan struct{}),
	}
	for _, n := range expect {
		st.expect[n] = struct{}{}
	}
	return st
}

func (s *becomeCoordinatorState) record(from NodeID, reply *RestoreReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expect[from]; !ok {
		return
	}
	delete(s.expect, from)
	s.replies[from] = reply
	if len(s.expect) == 0 {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// noteUnreachable marks n answered-absent: a send failure during failover
// must not block the round forever, since an unreachable survivor may
// simply be the next node to fail. The round keeps waiting on the rest
// rather than aborting outright.
func (s *becomeCoordinatorState) noteUnreachable(n NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expect[n]; ok {
		delete(s.expect, n)
		if len(s.expect) == 0 {
			s.doneOnce.Do(func() { close(s.done) })
		}
	}
}

// InitNewCoordinator runs the coordinator-failover subroutine:
// the local node, having determined it is now the lowest-ordered surviving
// server, asks every other survivor to restore its view of this exchange.
// If any survivor reports the exchange already finished, that result is
// adopted and redistributed; otherwise the local node becomes coordinator
// with every reply folded in as an already-collected single-message.
func (e *Exchange) InitNewCoordinator(ctx context.Context, survivors []NodeID) error {
	emitFailoverCount()

	e.mu.Lock()
	e.state = StateBecomeCRD
	local := e.localNode
	id := e.id
	expect := make([]NodeID, 0, len(survivors))
	for _, n := range survivors {
		if n != local {
			expect = append(expect, n)
		}
	}
	st := newBecomeCoordinatorState(expect)
	e.newCrd = st
	e.mu.Unlock()

	if len(expect) == 0 {
		return e.finishBecomeCoordinator(ctx, st, survivors)
	}

	req := &SingleRequest{ExchID: id, RestoreState: true}
	if e.deps != nil && e.deps.Transport != nil {
		enc, err := EncodeSingleRequest(req)
		if err != nil {
			return wrapFatal(id, err)
		}
		for _, n := range expect {
			if err := e.deps.Transport.Send(ctx, n, enc); err != nil {
				e.log.Printf("[WARN] exchange %s: restore-state request to %s: %v", id, n, err)
				st.noteUnreachable(n)
			}
		}
	} else {
		for _, n := range expect {
			st.noteUnreachable(n)
		}
	}

	select {
	case <-st.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return e.finishBecomeCoordinator(ctx, st, survivors)
}

// OnRestoreReply records an inbound restore-state reply against the
// in-flight failover round, if one is active.
func (e *Exchange) OnRestoreReply(from NodeID, reply *RestoreReply) {
	e.mu.Lock()
	st := e.newCrd
	e.mu.Unlock()
	if st == nil {
		return
	}
	st.record(from, reply)
}

// finishBecomeCoordinator concludes an InitNewCoordinator round: it adopts
// a finished peer's result if one surfaced, otherwise becomes coordinator
// proper with every collected reply pre-seeded as a received single-message.
func (e *Exchange) finishBecomeCoordinator(ctx context.Context, st *becomeCoordinatorState, survivors []NodeID) error {
	st.mu.Lock()
	replies := st.replies
	st.mu.Unlock()

	for _, reply := range replies {
		if reply.Full == nil {
			continue
		}
		full := reply.Full.withExchID(e.id)
		e.mu.Lock()
		if e.state == StateDone {
			e.mu.Unlock()
			return nil
		}
		resultVer := e.id.TopVer
		if full.ResultTopVer != nil {
			resultVer = *full.ResultTopVer
		}
		e.markDone(FinishState{CoordinatorID: e.crd, ResultTopVer: resultVer, FullMsg: full})
		e.newCrd = nil
		e.mu.Unlock()
		e.distribute(ctx, full)
		return nil
	}

	e.mu.Lock()
	e.becomeCoordinatorLocked(survivors)
	for n, reply := range replies {
		if reply.Single == nil {
			continue
		}
		if _, dup := e.msgs[n]; dup {
			continue
		}
		e.msgs[n] = reply.Single
		delete(e.remaining, n)
	}
	e.newCrd = nil
	ready := e.allReceivedLocked()
	e.mu.Unlock()

	if ready {
		e.runDecide(ctx)
	}
	return nil
}

// OnSingleRequest answers an inbound restore-state request. A
// node whose exchange already finished hands back its full-message; a node
// still mid-exchange adopts the requester as its new coordinator view and
// answers with its own local single-message instead of re-running collect.
func (e *Exchange) OnSingleRequest(ctx context.Context, from NodeID, req *SingleRequest) {
	if !req.RestoreState {
		return
	}

	e.mu.Lock()
	if e.state == StateDone {
		fs := e.finishState
		e.mu.Unlock()
		reply := &RestoreReply{ExchID: req.ExchID}
		if fs != nil {
			reply.Full = fs.FullMsg.withExchID(req.ExchID)
		}
		e.sendRestoreReply(ctx, from, reply)
		return
	}

	e.crd = from
	if e.state == StateCRD || e.state == StateBecomeCRD {
		e.state = StateSRV
	}
	e.mu.Unlock()

	sm := e.buildLocalSingleMessage()
	e.sendRestoreReply(ctx, from, &RestoreReply{ExchID: req.ExchID, Single: sm})
}

func (e *Exchange) sendRestoreReply(ctx context.Context, to NodeID, reply *RestoreReply) {
	if e.deps == nil || e.deps.Transport == nil {
		return
	}
	enc, err := EncodeRestoreReply(reply)
	if err != nil {
		e.log.Printf("[ERR] exchange %s: encode restore-reply for %s: %v", e.id, to, err)
		return
	}
	if err := e.deps.Transport.Send(ctx, to, enc); err != nil && !IsPeerGone(err) {
		e.log.Printf("[WARN] exchange %s: send restore-reply to %s: %v", e.id, to, err)
	}
}
