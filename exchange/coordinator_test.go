package exchange

import (
	"context"
	"testing"

	"github.com/nodecluster/partex/testutil"
)

// newRoundExchange builds one node's participant in a shared exchange
// round: same ExchangeID and snapshot, a hub-backed transport, and its own
// fakeGroup reporting local as the sole current owner (the fresh-join
// tie-break path of reconcilePartition).
func newRoundExchange(t *testing.T, h *hub, id ExchangeID, srv []NodeID, local NodeID, group *fakeGroup) *Exchange {
	t.Helper()
	snap := &DiscoSnapshot{ServerNodes: srv}
	deps := &Dependencies{
		Transport: &hubTransport{h: h, local: local},
		Groups:    func() []GroupTopology { return []GroupTopology{group} },
	}
	evt := InitialEvent{NodeID: local, Kind: EventNodeJoin}
	e := New(id, evt, snap, local, TopologyVersion{}, deps, nil, testutil.TestLogger(t))
	h.register(local, e)
	return e
}

// TestTwoServerJoinReconcilesOwnership covers the basic two-server
// round: n1 (lower-ordered, so coordinator) and n2 both report themselves
// as OWNING with counter 0 for every partition of "accounts" (the
// fresh-cluster case), and the coordinator must reconcile that tie down to
// every reporting owner, then distribute the decision to n2.
func TestTwoServerJoinReconcilesOwnership(t *testing.T) {
	h := newHub()
	srv := []NodeID{"n1", "n2"}
	id := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n2", EventKind: EventNodeJoin}

	g1 := newFakeGroup("accounts", 2, "n1")
	g2 := newFakeGroup("accounts", 2, "n2")

	e1 := newRoundExchange(t, h, id, srv, "n1", g1)
	e2 := newRoundExchange(t, h, id, srv, "n2", g2)

	ctx := context.Background()
	if err := e1.Run(ctx); err != nil {
		t.Fatalf("n1 Run: %v", err)
	}
	if e1.State() != StateCRD {
		t.Fatalf("n1 state = %s, want CRD (remaining not yet collected)", e1.State())
	}
	if err := e2.Run(ctx); err != nil {
		t.Fatalf("n2 Run: %v", err)
	}

	waitDone(t, e1)
	waitDone(t, e2)

	if e1.Coordinator() != "n1" || e2.Coordinator() != "n1" {
		t.Fatalf("coordinator mismatch: n1 sees %s, n2 sees %s", e1.Coordinator(), e2.Coordinator())
	}

	fs2 := e2.FinishState()
	if fs2 == nil || fs2.FullMsg == nil {
		t.Fatalf("n2 never received a full message")
	}
	fpm, ok := fs2.FullMsg.Partitions["accounts"]
	if !ok {
		t.Fatalf("full message missing accounts group")
	}
	// Only n2 ever sends a single-message (n1, the coordinator, never
	// folds its own local view into msgsByNode), so reconcile has just
	// n2's report to work with: it alone ends up the reconciled owner.
	for part := 0; part < 2; part++ {
		owners := fpm.Owners[part]
		if len(owners) != 1 || owners[0] != "n2" {
			t.Fatalf("partition %d owners = %v, want [n2]", part, owners)
		}
	}
}

// TestLateSingleMessageReplaysFromFinishState covers a single-message that
// arrives after the coordinator has already finished (e.g. a retried send
// racing the full-message): it must be answered immediately from
// finishState rather than folded into a new round.
func TestLateSingleMessageReplaysFromFinishState(t *testing.T) {
	h := newHub()
	srv := []NodeID{"n1"}
	id := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n1", EventKind: EventNodeJoin}
	g := newFakeGroup("accounts", 1, "n1")
	e := newRoundExchange(t, h, id, srv, "n1", g)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitDone(t, e)

	late := &SingleMessage{ExchID: ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n2", EventKind: EventNodeJoin}}
	enc, err := EncodeSingleMessage(late)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	reply, err := e.Deliver(context.Background(), "n2", enc)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if reply == nil {
		t.Fatalf("expected a replayed full message for the late sender")
	}
	if reply.ExchID != late.ExchID {
		t.Fatalf("reply stamped with %s, want %s", reply.ExchID, late.ExchID)
	}
}
