package exchange

import "context"

// runClientPath implements the client-only exchange: send a
// trivial single-message to the coordinator and wait for the full-message.
// Clients never wait on quiesce and never appear in remaining.
func (e *Exchange) runClientPath(ctx context.Context) error {
	e.mu.Lock()
	e.state = StateClient
	crd := e.pickCoordinatorLocked()
	e.crd = crd
	e.mu.Unlock()

	sm := &SingleMessage{ExchID: e.id, Client: true}
	if e.deps != nil && e.deps.Transport != nil {
		enc, err := EncodeSingleMessage(sm)
		if err != nil {
			return wrapFatal(e.id, err)
		}
		if err := e.deps.Transport.Send(ctx, crd, enc); err != nil && !IsPeerGone(err) {
			e.log.Printf("[WARN] exchange %s: send client single-message to %s: %v", e.id, crd, err)
		}
	}
	return nil
}

// OnClientSingleMessage answers a client's single-message on the receiving
// (coordinator-side, or believed-coordinator) node. A client must never
// be blocked behind peer quiesce: the reply is
// synthesized from finishState if the exchange has completed, or from a
// freshly-built, non-compressed snapshot of current partition state
// otherwise.
func (e *Exchange) OnClientSingleMessage(ctx context.Context, from NodeID, msg *SingleMessage) *FullMessage {
	e.mu.Lock()
	if e.finishState != nil && e.finishState.FullMsg != nil {
		fs := e.finishState
		e.mu.Unlock()
		return fs.FullMsg.withExchID(msg.ExchID)
	}
	id := e.id
	local := e.localNode
	groupsFn := func() []GroupTopology { return nil }
	if e.deps != nil && e.deps.Groups != nil {
		groupsFn = e.deps.Groups
	}
	e.mu.Unlock()

	return snapshotFullMessage(id, local, groupsFn)
}

// snapshotFullMessage builds a live (not-yet-finished) view of current
// partition ownership for a client that cannot wait for decide to run.
func snapshotFullMessage(id ExchangeID, local NodeID, groupsFn func() []GroupTopology) *FullMessage {
	msg := &FullMessage{ExchID: id, Partitions: make(map[GroupID]FullPartitionMap)}
	for _, g := range groupsFn() {
		gid := g.Group()
		fpm := FullPartitionMap{Owners: make(map[int][]NodeID), States: make(map[int]PartitionState)}
		for _, p := range g.CurrentLocalPartitions() {
			fpm.States[p] = g.PartitionState(local, p)
		}
		msg.Partitions[gid] = fpm
	}
	return msg
}
