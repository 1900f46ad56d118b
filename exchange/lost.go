package exchange

// detectLostPartitions implements the lost-partition detector: any
// partition reconciled to an empty owner
// set has no surviving owner and is marked LOST. It returns true if any
// partition of this group was newly detected as lost, which the decide
// step uses to schedule a partition-map resend.
func detectLostPartitions(g GroupTopology, results map[int]reconcileResult, ver TopologyVersion) bool {
	anyLost := false
	for part, res := range results {
		if len(res.owners) > 0 {
			continue
		}
		anyLost = true
		_ = part
	}
	if anyLost && g != nil {
		return g.DetectLostPartitions(ver)
	}
	return false
}

// resetLostPartitions clears LOST state on every owner once the operator
// (or a subsequent exchange) re-establishes ownership.
func resetLostPartitions(g GroupTopology, ver TopologyVersion) {
	if g != nil {
		g.ResetLostPartitions(ver)
	}
}
