package exchange

import (
	"context"
	"testing"

	"github.com/nodecluster/partex/testutil"
)

// TestCoordinatorFailoverRestoresState covers coordinator takeover: n2 is
// already mid-round as a server (its single-message buffered on the dead
// coordinator never arrived anywhere new), the original coordinator n1 is
// gone, and n2 becomes the new coordinator via InitNewCoordinator. n3
// answers the restore-state request with a freshly built local
// single-message, which n2 must fold in as an already-collected reply rather than asking
// again.
func TestCoordinatorFailoverRestoresState(t *testing.T) {
	h := newHub()
	// n1 is intentionally never registered on the hub: sends to it
	// resolve to ErrPeerGone, standing in for "n1 has already failed".
	srv := []NodeID{"n1", "n2", "n3"}
	id := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n3", EventKind: EventNodeFailed}

	g2 := newFakeGroup("accounts", 1, "n2")
	g3 := newFakeGroup("accounts", 1, "n3")

	snap := &DiscoSnapshot{ServerNodes: srv}
	deps2 := &Dependencies{
		Transport: &hubTransport{h: h, local: "n2"},
		Groups:    func() []GroupTopology { return []GroupTopology{g2} },
	}
	deps3 := &Dependencies{
		Transport: &hubTransport{h: h, local: "n3"},
		Groups:    func() []GroupTopology { return []GroupTopology{g3} },
	}

	evt := InitialEvent{NodeID: "n1", Kind: EventNodeFailed}
	e2 := New(id, evt, snap, "n2", TopologyVersion{}, deps2, nil, testutil.TestLogger(t))
	e3 := New(id, evt, snap, "n3", TopologyVersion{}, deps3, nil, testutil.TestLogger(t))
	h.register("n2", e2)
	h.register("n3", e3)

	ctx := context.Background()

	// Both nodes believe n1 (srvNodes[0]) is still coordinator and run the
	// ordinary server path first, exactly as they would have before
	// detecting the failure.
	if err := e2.Run(ctx); err != nil {
		t.Fatalf("e2 Run: %v", err)
	}
	if err := e3.Run(ctx); err != nil {
		t.Fatalf("e3 Run: %v", err)
	}
	if e2.State() != StateSRV || e3.State() != StateSRV {
		t.Fatalf("expected both servers waiting on the (unreachable) coordinator, got e2=%s e3=%s", e2.State(), e3.State())
	}

	// n2 is the lowest-ordered survivor once n1 is excluded; it takes
	// over as coordinator.
	if err := e2.InitNewCoordinator(ctx, []NodeID{"n2", "n3"}); err != nil {
		t.Fatalf("InitNewCoordinator: %v", err)
	}

	waitDone(t, e2)

	fs := e2.FinishState()
	if fs == nil || fs.FullMsg == nil {
		t.Fatalf("e2 never reached a finish state after taking over")
	}
	if e2.Coordinator() != "n2" {
		t.Fatalf("coordinator = %s, want n2", e2.Coordinator())
	}
	fpm, ok := fs.FullMsg.Partitions["accounts"]
	if !ok {
		t.Fatalf("full message missing accounts group")
	}
	owners := fpm.Owners[0]
	if len(owners) != 1 || owners[0] != "n3" {
		t.Fatalf("partition 0 owners = %v, want [n3] (n3's restore-reply single-message)", owners)
	}
}
