package discovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/nodecluster/partex/exchange"
	"github.com/nodecluster/partex/testutil"
)

// testConfig builds a Config bound to a throwaway loopback IP, the way
// serf_test.go's testConfig helper builds a memberlist config per node.
func testConfig(t *testing.T, name string) (*Config, func()) {
	t.Helper()
	ip, returnFn := testutil.TakeIP()

	mlCfg := memberlist.DefaultLANConfig()
	mlCfg.BindAddr = ip.String()
	mlCfg.Name = name
	// Keep gossip/probe intervals tight so coalescing settles quickly
	// inside a test timeout.
	mlCfg.GossipInterval = 10 * time.Millisecond
	mlCfg.ProbeInterval = 20 * time.Millisecond

	cfg := DefaultConfig()
	cfg.NodeName = name
	cfg.MemberlistConfig = mlCfg
	cfg.CoalescePeriod = 50 * time.Millisecond
	cfg.QuiescentPeriod = 20 * time.Millisecond

	return cfg, returnFn
}

func awaitEvent(t *testing.T, ch <-chan exchange.InitialEvent, want exchange.NodeID, kind exchange.EventKind) exchange.InitialEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.NodeID == want && e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event on %s", kind, want)
		}
	}
}

func TestRingJoinDeliversCoalescedEvents(t *testing.T) {
	cfg1, done1 := testConfig(t, "n1")
	defer done1()
	cfg2, done2 := testConfig(t, "n2")
	defer done2()

	r1, err := NewRing(cfg1, testutil.TestLogger(t), nil)
	if err != nil {
		t.Fatalf("NewRing n1: %v", err)
	}
	defer r1.Shutdown()

	r2, err := NewRing(cfg2, testutil.TestLogger(t), nil)
	if err != nil {
		t.Fatalf("NewRing n2: %v", err)
	}
	defer r2.Shutdown()

	addr := fmt.Sprintf("%s:%d", cfg1.MemberlistConfig.BindAddr, cfg1.MemberlistConfig.BindPort)
	if _, err := r2.Join([]string{addr}); err != nil {
		t.Fatalf("r2.Join: %v", err)
	}

	// Both sides should see a settled join event for n2: n1 sees a
	// remote join, n2 sees its own join flagged local.
	e1 := awaitEvent(t, r1.Events(), "n2", exchange.EventNodeJoin)
	if e1.LocalNodeJoin {
		t.Fatalf("n1's view of n2's join should not be flagged local")
	}

	e2 := awaitEvent(t, r2.Events(), "n2", exchange.EventNodeJoin)
	if !e2.LocalNodeJoin {
		t.Fatalf("n2's view of its own join should be flagged local")
	}

	if !r1.Alive("n2") {
		t.Fatalf("r1 should see n2 as alive after join")
	}
	if !r2.Alive("n1") {
		t.Fatalf("r2 should see n1 as alive after join")
	}

	snap := r1.Snapshot()
	if len(snap.ServerNodes) != 2 {
		t.Fatalf("snapshot has %d nodes, want 2", len(snap.ServerNodes))
	}

	host, port, ok := r1.MemberAddr("n2")
	if !ok {
		t.Fatalf("MemberAddr(n2) not found on r1")
	}
	if host == "" || port == 0 {
		t.Fatalf("MemberAddr(n2) = %q:%d, want non-zero", host, port)
	}
}

func TestRingSendCustomEventRoundTrips(t *testing.T) {
	cfg1, done1 := testConfig(t, "n1")
	defer done1()
	cfg2, done2 := testConfig(t, "n2")
	defer done2()

	received := make(chan *exchange.CustomMessage, 1)
	var fromNode exchange.NodeID

	r1, err := NewRing(cfg1, testutil.TestLogger(t), nil)
	if err != nil {
		t.Fatalf("NewRing n1: %v", err)
	}
	defer r1.Shutdown()

	r2, err := NewRing(cfg2, testutil.TestLogger(t), func(from exchange.NodeID, msg *exchange.CustomMessage) {
		fromNode = from
		received <- msg
	})
	if err != nil {
		t.Fatalf("NewRing n2: %v", err)
	}
	defer r2.Shutdown()

	addr := fmt.Sprintf("%s:%d", cfg1.MemberlistConfig.BindAddr, cfg1.MemberlistConfig.BindPort)
	if _, err := r2.Join([]string{addr}); err != nil {
		t.Fatalf("r2.Join: %v", err)
	}
	awaitEvent(t, r1.Events(), "n2", exchange.EventNodeJoin)
	awaitEvent(t, r2.Events(), "n2", exchange.EventNodeJoin)

	msg := &exchange.CustomMessage{Kind: exchange.EventNodeJoin, Payload: []byte("full-message-placeholder")}
	if err := r1.SendCustomEvent(msg); err != nil {
		t.Fatalf("SendCustomEvent: %v", err)
	}

	select {
	case got := <-received:
		if string(got.Payload) != string(msg.Payload) {
			t.Fatalf("payload = %q, want %q", got.Payload, msg.Payload)
		}
		if fromNode != "n1" {
			t.Fatalf("from = %s, want n1", fromNode)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for custom event broadcast")
	}
}
