package exchange

// counterReport is one node's reported counter/state for a single
// partition, gathered while reconciling.
type counterReport struct {
	node    NodeID
	state   PartitionState
	applied uint64
	history uint64
	hasHist bool
}

// reconcileResult is the outcome of reconciling one partition's counters.
type reconcileResult struct {
	owners      []NodeID
	maxCntr     uint64
	haveHistory bool
	supplier    *HistorySupplier
}

// reconcileGroup reconciles every partition of one cache group across the
// collected single-messages plus the local node's own contribution.
//
// localFirst gives the local node id priority when multiple nodes qualify
// as history supplier.
func reconcileGroup(gid GroupID, msgsByNode map[NodeID]*SingleMessage, localFirst NodeID) map[int]reconcileResult {
	// Gather reports per partition across all senders.
	byPart := make(map[int][]counterReport)
	for node, msg := range msgsByNode {
		gp, ok := msg.Partitions[gid]
		if !ok {
			continue
		}
		counters := msg.PartitionUpdateCounters[gid]
		hist := msg.PartitionHistory[gid]
		for part, state := range gp.States {
			rep := counterReport{node: node, state: state}
			if c, ok := counters[part]; ok {
				rep.applied = c.Applied
			}
			if h, ok := hist[part]; ok {
				rep.hasHist = true
				rep.history = h
			}
			byPart[part] = append(byPart[part], rep)
		}
	}

	results := make(map[int]reconcileResult, len(byPart))
	for part, reports := range byPart {
		results[part] = reconcilePartition(reports, localFirst)
	}
	return results
}

// reconcilePartition reconciles a single partition: min/max counters,
// owner determination, and history-supplier selection.
func reconcilePartition(reports []counterReport, localFirst NodeID) reconcileResult {
	var (
		haveMin    bool
		minCntr    uint64
		haveMax    bool
		maxCntr    uint64
		maxNodes   []NodeID
		owningOnly []NodeID // nodes reporting OWNING, for the maxCntr==0 tie-break
	)

	for _, r := range reports {
		if r.state != StateOwning && r.state != StateMoving {
			continue
		}
		if !haveMin || r.applied < minCntr {
			minCntr = r.applied
			haveMin = true
		}
		if r.state != StateOwning {
			continue
		}
		owningOnly = append(owningOnly, r.node)
		switch {
		case !haveMax || r.applied > maxCntr:
			maxCntr = r.applied
			maxNodes = []NodeID{r.node}
			haveMax = true
		case r.applied == maxCntr:
			maxNodes = append(maxNodes, r.node)
		}
	}

	// Tie-break for the fresh-cluster case: everyone reports counter 0.
	owners := maxNodes
	if haveMax && maxCntr == 0 && len(owningOnly) > 0 {
		owners = owningOnly
	}

	result := reconcileResult{owners: owners, maxCntr: maxCntr}

	if !haveMin || len(owners) == 0 {
		return result
	}

	ownerSet := make(map[NodeID]bool, len(owners))
	for _, o := range owners {
		ownerSet[o] = true
	}

	var supplier *HistorySupplier
	for _, r := range reports {
		if !r.hasHist || r.history > minCntr || !ownerSet[r.node] {
			continue
		}
		hs := HistorySupplier{Node: r.node, From: r.history, To: minCntr}
		if supplier == nil {
			supplier = &hs
		} else if r.node == localFirst {
			supplier = &hs
		}
	}

	if supplier != nil {
		result.haveHistory = true
		result.supplier = supplier
	}
	return result
}
