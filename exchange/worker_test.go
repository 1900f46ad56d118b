package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/nodecluster/partex/testutil"
)

func waitDone(t *testing.T, e *Exchange) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("exchange %s never finished, state=%s", e.ID(), e.State())
	}
}

// TestExchangeNoneFinishesImmediately covers a non-local client event: the
// classifier assigns ExchangeNone and Run must reach StateDone without any
// messaging at all.
func TestExchangeNoneFinishesImmediately(t *testing.T) {
	id := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n2", EventKind: EventClientLeave}
	evt := InitialEvent{NodeID: "n2", Kind: EventClientLeave, LocalNodeJoin: false}
	snap := &DiscoSnapshot{ServerNodes: []NodeID{"n1"}}

	e := New(id, evt, snap, "n1", TopologyVersion{}, nil, nil, testutil.TestLogger(t))
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitDone(t, e)
	if e.State() != StateDone {
		t.Fatalf("state = %s, want DONE", e.State())
	}
}

// TestExchangeClientPath covers a local client join: Run must pick the
// coordinator, send a client single-message to it over the transport, and
// return without waiting (clients never wait on quiesce). The coordinator's
// reply must round-trip back and carry the client exchange to StateDone.
func TestExchangeClientPath(t *testing.T) {
	h := newHub()
	snap := &DiscoSnapshot{ServerNodes: []NodeID{"n1"}}
	group := newFakeGroup("accounts", 2, "n1")

	srvID := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n1", EventKind: EventNodeJoin}
	srvEvt := InitialEvent{NodeID: "n1", Kind: EventNodeJoin, LocalNodeJoin: true}
	srvDeps := &Dependencies{
		Groups:    func() []GroupTopology { return []GroupTopology{group} },
		Transport: &hubTransport{h: h, local: "n1"},
	}
	srv := New(srvID, srvEvt, snap, "n1", TopologyVersion{}, srvDeps, nil, testutil.TestLogger(t))
	h.register("n1", srv)
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("server Run: %v", err)
	}
	waitDone(t, srv)

	clientID := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "client1", EventKind: EventClientJoin}
	clientEvt := InitialEvent{NodeID: "client1", Kind: EventClientJoin, LocalNodeJoin: true}
	clientDeps := &Dependencies{Transport: &hubTransport{h: h, local: "client1"}}
	client := New(clientID, clientEvt, snap, "client1", TopologyVersion{}, clientDeps, nil, testutil.TestLogger(t))
	h.register("client1", client)

	if err := client.Run(context.Background()); err != nil {
		t.Fatalf("client Run: %v", err)
	}
	if client.State() != StateClient {
		t.Fatalf("state = %s, want CLIENT", client.State())
	}

	waitDone(t, client)
	if client.Coordinator() != "n1" {
		t.Fatalf("coordinator = %s, want n1", client.Coordinator())
	}
	fs := client.FinishState()
	if fs == nil || fs.FullMsg == nil {
		t.Fatalf("client exchange finished without a full message")
	}
	if _, ok := fs.FullMsg.Partitions[group.Group()]; !ok {
		t.Fatalf("full message missing partitions for group %s", group.Group())
	}
}

// TestSingleServerJoinCompletesLocally covers the degenerate one-server
// cluster: the local node is both the only server and therefore its own
// coordinator with an empty remaining set, so Run must decide and finish
// without any network round trip.
func TestSingleServerJoinCompletesLocally(t *testing.T) {
	id := ExchangeID{TopVer: TopologyVersion{Major: 1}, InitiatorNodeID: "n1", EventKind: EventNodeJoin}
	evt := InitialEvent{NodeID: "n1", Kind: EventNodeJoin, LocalNodeJoin: true}
	snap := &DiscoSnapshot{ServerNodes: []NodeID{"n1"}}

	group := newFakeGroup("accounts", 4, "n1")
	deps := &Dependencies{Groups: func() []GroupTopology { return []GroupTopology{group} }}

	e := New(id, evt, snap, "n1", TopologyVersion{}, deps, nil, testutil.TestLogger(t))
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitDone(t, e)

	if e.Coordinator() != "n1" {
		t.Fatalf("coordinator = %s, want n1", e.Coordinator())
	}
	fs := e.FinishState()
	if fs == nil || fs.FullMsg == nil {
		t.Fatalf("expected a finish state with a full message")
	}
	if _, ok := fs.FullMsg.Partitions[group.Group()]; !ok {
		t.Fatalf("full message missing partitions for group %s", group.Group())
	}
}
