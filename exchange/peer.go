package exchange

import "context"

// runServerPath implements the non-coordinator server path:
// after topology update and quiesce, send a single-message to the
// coordinator and wait for the matching full-message.
func (e *Exchange) runServerPath(ctx context.Context) error {
	e.mu.Lock()
	e.state = StateSRV
	crd := e.crd
	e.mu.Unlock()

	sm := e.buildLocalSingleMessage()
	if e.deps != nil && e.deps.Transport != nil {
		enc, err := EncodeSingleMessage(sm)
		if err != nil {
			return wrapFatal(e.id, err)
		}
		if err := e.deps.Transport.Send(ctx, crd, enc); err != nil && !IsPeerGone(err) {
			e.log.Printf("[WARN] exchange %s: send single-message to %s: %v", e.id, crd, err)
		}
	}
	return nil
}

// buildLocalSingleMessage snapshots the local node's partition view into
// a SingleMessage for the collect phase.
func (e *Exchange) buildLocalSingleMessage() *SingleMessage {
	e.mu.Lock()
	id := e.id
	e.mu.Unlock()

	sm := &SingleMessage{
		ExchID:                  id,
		Partitions:              make(map[GroupID]GroupPartitions),
		PartitionUpdateCounters: make(map[GroupID]map[int]PartitionCounter),
		PartitionHistory:        make(map[GroupID]map[int]uint64),
	}

	if e.deps == nil || e.deps.Groups == nil {
		return sm
	}
	for _, g := range e.deps.Groups() {
		gid := g.Group()
		parts := g.CurrentLocalPartitions()
		states := make(map[int]PartitionState, len(parts))
		counters := make(map[int]PartitionCounter, len(parts))
		for _, p := range parts {
			states[p] = g.PartitionState(e.localNode, p)
		}
		sm.Partitions[gid] = GroupPartitions{States: states}
		sm.PartitionUpdateCounters[gid] = counters
	}
	if e.deps.Persistence != nil {
		if hist, err := e.deps.Persistence.ReserveHistoryForExchange(); err == nil {
			sm.PartitionHistory = hist
		}
	}
	return sm
}

// nodeOrderLocked returns n's position in srvNodes (lower is
// lower-ordered / more senior), or -1 if n is not a known server.
// Caller must hold e.mu.
func (e *Exchange) nodeOrderLocked(n NodeID) int {
	for i, s := range e.srvNodes {
		if s == n {
			return i
		}
	}
	return -1
}

// OnFullMessage handles an inbound full-message. A message
// from the current coordinator is applied and completes the exchange. A
// message from a non-coordinator node with a higher order than the
// current coordinator is buffered: it may become valid later if the
// current coordinator dies and that node takes over.
func (e *Exchange) OnFullMessage(ctx context.Context, from NodeID, msg *FullMessage) {
	e.mu.Lock()
	if from != e.crd {
		crdOrder := e.nodeOrderLocked(e.crd)
		fromOrder := e.nodeOrderLocked(from)
		if fromOrder >= 0 && (crdOrder < 0 || fromOrder > crdOrder) {
			e.fullMsgs[from] = msg
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.applyFullMessage(ctx, msg)
}

// applyFullMessage installs the decided full-message locally and
// completes the exchange.
func (e *Exchange) applyFullMessage(ctx context.Context, msg *FullMessage) {
	if err := e.postExchangeTopologyUpdate(msg); err != nil {
		e.log.Printf("[ERR] exchange %s: apply full-message: %v", e.id, err)
	}
	if e.deps != nil && e.deps.Persistence != nil {
		e.deps.Persistence.ReleaseHistoryForExchange()
	}

	resultVer := e.id.TopVer
	if msg.ResultTopVer != nil {
		resultVer = *msg.ResultTopVer
	}

	e.mu.Lock()
	if e.state == StateDone {
		e.mu.Unlock()
		return
	}
	e.markDone(FinishState{
		CoordinatorID: e.crd,
		ResultTopVer:  resultVer,
		FullMsg:       msg,
	})
	e.mu.Unlock()
}
