package exchange

import "context"

// mergeJoinExchange folds a newly-created exchange for a compatible join
// event into this already in-flight exchange instead of running a second,
// overlapping round. The joining node gets an awaited merge
// slot on the target; the new exchange itself is parked in StateMerged and
// will inherit the target's outcome once it finishes.
func (target *Exchange) mergeJoinExchange(joining *Exchange, joiningNode NodeID) {
	emitMergeCount()

	target.mu.Lock()
	if target.mergedJoinExchMsgs == nil {
		target.mergedJoinExchMsgs = make(map[NodeID]*SingleMessage)
	}
	if _, already := target.mergedJoinExchMsgs[joiningNode]; !already {
		target.mergedJoinExchMsgs[joiningNode] = nil
		target.awaitMergedMsgs++
	}
	target.mu.Unlock()

	joining.mu.Lock()
	joining.state = StateMerged
	joining.mergedWith = target
	joining.mu.Unlock()
}

// awaitMerge blocks a merged-away exchange until its target finishes, then
// copies the target's result in under its own exchange id.
// Called by the worker loop in place of runServerPath/becomeCoordinator
// once an exchange has been merged.
func (e *Exchange) awaitMerge(ctx context.Context) error {
	e.mu.Lock()
	target := e.mergedWith
	e.mu.Unlock()
	if target == nil {
		return nil
	}

	select {
	case <-target.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	fs := target.FinishState()
	e.mu.Lock()
	if e.state != StateDone && fs != nil {
		var full *FullMessage
		if fs.FullMsg != nil {
			full = fs.FullMsg.withExchID(e.id)
		}
		e.markDone(FinishState{CoordinatorID: fs.CoordinatorID, ResultTopVer: fs.ResultTopVer, FullMsg: full})
	}
	e.mu.Unlock()
	return nil
}

// processMergedMessage routes a single-message addressed to a merged-away
// exchange through to its target's ordinary coordinator path:
// once the target notices the sender in its awaited merge slots it folds
// the message in exactly like any other collected reply.
func (target *Exchange) processMergedMessage(ctx context.Context, n NodeID, msg *SingleMessage) (*FullMessage, bool) {
	return target.OnSingleMessage(ctx, n, msg)
}
