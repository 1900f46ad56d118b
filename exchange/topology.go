package exchange

// preExchangeTopologyUpdate implements the topology updater's pre-exchange
// pass: for every non-local cache group, adopt any pending
// client-side partition view, bump the group's topology version, and
// invoke beforeExchange(centralized). Done under the persistence layer's
// checkpoint read lock so no checkpoint boundary is crossed mid-update.
func (e *Exchange) preExchangeTopologyUpdate() error {
	if e.deps == nil || e.deps.Groups == nil {
		return nil
	}
	if e.deps.Persistence != nil {
		e.deps.Persistence.CheckpointReadLock()
		defer e.deps.Persistence.CheckpointReadUnlock()
	}

	for _, g := range e.deps.Groups() {
		if err := g.BeforeExchange(e, e.centralizedAff); err != nil {
			return wrapFatal(e.id, err)
		}
	}
	return nil
}

// postExchangeTopologyUpdate applies the decided full-message to every
// group's topology. ownerSet, counters and
// reload sets are all keyed by group.
func (e *Exchange) postExchangeTopologyUpdate(msg *FullMessage) error {
	if e.deps == nil || e.deps.Groups == nil {
		return nil
	}
	for _, g := range e.deps.Groups() {
		gid := g.Group()
		fpm, ok := msg.Partitions[gid]
		if !ok {
			continue
		}
		counters := msg.UpdateCounters[gid]
		var needReload []int
		if localReload, ok := msg.PartsToReload[e.localNode]; ok {
			needReload = localReload[gid]
		}
		resultVer := e.id.TopVer
		if msg.ResultTopVer != nil {
			resultVer = *msg.ResultTopVer
		}
		if err := g.Update(resultVer, fpm.Owners, counters, needReload, len(needReload) > 0); err != nil {
			return wrapFatal(e.id, err)
		}
	}
	return nil
}
