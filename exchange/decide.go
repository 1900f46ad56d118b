package exchange

import (
	"context"
	"time"
)

// runDecide implements the coordinator's decide step: called
// once on the last single-message, after allReceivedLocked fires. It
// reconciles counters per group, assigns ownership, detects lost
// partitions, advances the data-version clock, builds the full-message,
// and atomically finishes the exchange before handing off to distribute.
func (e *Exchange) runDecide(ctx context.Context) {
	start := time.Now()
	defer emitDecideTiming(start)

	msgsByNode := e.snapshotMsgs()

	e.mu.Lock()
	collectStart := e.collectStart
	localFirst := e.localNode
	groupsFn := e.deps.Groups
	e.mu.Unlock()
	emitCollectTiming(collectStart)

	partitions := make(map[GroupID]FullPartitionMap)
	updateCounters := make(map[GroupID]map[int]uint64)
	histSuppliers := make(map[GroupID]map[int]HistorySupplier)
	partsToReload := make(map[NodeID]map[GroupID][]int)
	anyLost := false

	var groups []GroupTopology
	if groupsFn != nil {
		groups = groupsFn()
	}

	for _, g := range groups {
		gid := g.Group()
		results := reconcileGroup(gid, msgsByNode, localFirst)

		fpm := FullPartitionMap{Owners: make(map[int][]NodeID), States: make(map[int]PartitionState)}
		counters := make(map[int]uint64)
		suppliers := make(map[int]HistorySupplier)

		parts := orderedPartitionIDs(results)
		for i, part := range parts {
			res := results[part]
			isLast := i == len(parts)-1

			reload := g.SetOwners(part, res.owners, res.haveHistory, isLast)
			fpm.Owners[part] = res.owners
			if len(res.owners) == 0 {
				fpm.States[part] = StateLost
			} else {
				fpm.States[part] = StateOwning
			}
			counters[part] = res.maxCntr
			if res.supplier != nil {
				suppliers[part] = *res.supplier
			}
			for _, n := range reload {
				if partsToReload[n] == nil {
					partsToReload[n] = make(map[GroupID][]int)
				}
				partsToReload[n][gid] = append(partsToReload[n][gid], part)
			}
		}

		if detectLostPartitions(g, results, e.id.TopVer) {
			anyLost = true
		}

		partitions[gid] = fpm
		updateCounters[gid] = counters
		histSuppliers[gid] = suppliers
	}

	if e.deps != nil && e.deps.Versions != nil {
		e.mu.Lock()
		order := e.lastVer
		e.mu.Unlock()
		e.deps.Versions.OnExchange(order)
	}

	e.mu.Lock()
	resultVer := e.id.TopVer
	msg := &FullMessage{
		ExchID:         e.id,
		Partitions:     partitions,
		UpdateCounters: updateCounters,
		PartHistSupply: histSuppliers,
		PartsToReload:  partsToReload,
		LastVersion:    e.lastVer,
		ResultTopVer:   &resultVer,
	}
	if len(e.mergedJoinExchMsgs) > 0 && e.deps != nil && e.deps.Affinity != nil {
		msg.IdealAffinityDiff = e.deps.Affinity.IdealAssignment()
	}
	if e.changeGlobalStateExceptions != nil {
		perr := newPeerErrors()
		for n, err := range e.changeGlobalStateExceptions {
			perr.Add(n, err)
		}
		msg.ErrorsMap = perr.ErrorsMap()
	}
	e.partHistSuppliers = flattenSuppliers(histSuppliers)
	e.partsToReload = partsToReload

	e.markDone(FinishState{
		CoordinatorID: e.localNode,
		ResultTopVer:  resultVer,
		FullMsg:       msg,
	})
	e.mu.Unlock()

	if anyLost {
		emitLostPartitions(1)
	}

	e.distribute(ctx, msg)
}

func orderedPartitionIDs(results map[int]reconcileResult) []int {
	ids := make([]int, 0, len(results))
	for p := range results {
		ids = append(ids, p)
	}
	// Simple insertion sort: partition counts per exchange are small and
	// this keeps the "last entry" signal deterministic across runs.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

func flattenSuppliers(byGroup map[GroupID]map[int]HistorySupplier) map[groupPart]HistorySupplier {
	out := make(map[groupPart]HistorySupplier)
	for gid, byPart := range byGroup {
		for part, hs := range byPart {
			out[groupPart{Group: gid, Part: part}] = hs
		}
	}
	return out
}
