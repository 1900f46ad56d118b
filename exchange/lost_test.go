package exchange

import (
	"context"
	"testing"

	"github.com/nodecluster/partex/testutil"
)

// TestLostPartitionDetectedWhenNoOwnerReports: reconcile produces an
// empty owner set for a partition (every reporting
// node had it in a non-owning state), and the decide step must mark the
// group's lost-partition detector rather than silently leaving the
// partition unassigned.
func TestLostPartitionDetectedWhenNoOwnerReports(t *testing.T) {
	h := newHub()
	srv := []NodeID{"n1", "n2"}
	id := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n2", EventKind: EventNodeFailed}

	// n2's own fakeGroup has no owner for the partition, so it reports
	// StateNA, which reconcilePartition never counts toward owning/moving;
	// the coordinator sees no surviving owner for it.
	g2 := newFakeGroup("accounts", 1, "")
	g2.owners[0] = nil

	g1 := newFakeGroup("accounts", 1, "n1")

	deps2 := &Dependencies{
		Transport: &hubTransport{h: h, local: "n2"},
		Groups:    func() []GroupTopology { return []GroupTopology{g2} },
	}
	deps1 := &Dependencies{
		Transport: &hubTransport{h: h, local: "n1"},
		Groups:    func() []GroupTopology { return []GroupTopology{g1} },
	}

	snap := &DiscoSnapshot{ServerNodes: srv}
	evt := InitialEvent{NodeID: "n3", Kind: EventNodeFailed}

	e1 := New(id, evt, snap, "n1", TopologyVersion{}, deps1, nil, testutil.TestLogger(t))
	e2 := New(id, evt, snap, "n2", TopologyVersion{}, deps2, nil, testutil.TestLogger(t))
	h.register("n1", e1)
	h.register("n2", e2)

	ctx := context.Background()
	if err := e1.Run(ctx); err != nil {
		t.Fatalf("e1 Run: %v", err)
	}
	if err := e2.Run(ctx); err != nil {
		t.Fatalf("e2 Run: %v", err)
	}

	waitDone(t, e1)
	waitDone(t, e2)

	// n2's StateNA report (fakeGroup.PartitionState returns StateNA for a
	// partition with no owners) never enters reconcilePartition's
	// owning/moving tally, so the coordinator (n1) must have flagged the
	// partition lost on its own group topology.
	if g1.lostCalls == 0 {
		t.Fatalf("expected DetectLostPartitions to be called on the coordinator's group topology")
	}

	fs := e1.FinishState()
	if fs == nil || fs.FullMsg == nil {
		t.Fatalf("coordinator never finished")
	}
	fpm := fs.FullMsg.Partitions["accounts"]
	if fpm.States[0] != StateLost {
		t.Fatalf("partition 0 state = %s, want LOST", fpm.States[0])
	}
	if len(fpm.Owners[0]) != 0 {
		t.Fatalf("partition 0 owners = %v, want none", fpm.Owners[0])
	}
}
