package exchange

import (
	"context"
	"sync"
)

// hub is a test stand-in for a real peer transport (see transport.Transport):
// it wires every node's Exchange.Deliver directly to every other node's
// Transport.Send, the way a real cluster's nodes all dial into the same
// physical network. Delivery always runs on its own goroutine so a
// coordinator's Run and a server's Run never block waiting on each other,
// mirroring how Deliver's awaitInit gate behaves against a real async
// transport.
type hub struct {
	mu    sync.Mutex
	nodes map[NodeID]*Exchange
}

func newHub() *hub {
	return &hub{nodes: make(map[NodeID]*Exchange)}
}

func (h *hub) register(n NodeID, e *Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[n] = e
}

func (h *hub) get(n NodeID) *Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nodes[n]
}

// deliver hands buf to to's Deliver and, if that call produces an
// immediate reply (the late single-message / client-query case), loops
// it back to from on its own goroutine.
func (h *hub) deliver(from, to NodeID, buf []byte) {
	dst := h.get(to)
	if dst == nil {
		return
	}
	full, err := dst.Deliver(context.Background(), from, buf)
	if err != nil || full == nil {
		return
	}
	enc, err := EncodeFullMessage(full)
	if err != nil {
		return
	}
	go h.deliver(to, from, enc)
}

// hubTransport is one node's Transport view into a shared hub.
type hubTransport struct {
	h     *hub
	local NodeID
}

func (t *hubTransport) Send(ctx context.Context, node NodeID, msg []byte) error {
	if t.h.get(node) == nil {
		return ErrPeerGone
	}
	buf := append([]byte(nil), msg...)
	go t.h.deliver(t.local, node, buf)
	return nil
}

// fakeGroup is a minimal in-memory GroupTopology, standing in for a real
// cache's partition map the way the coordinator/decide tests only need to
// observe SetOwners/DetectLostPartitions calls, not a full cache engine.
type fakeGroup struct {
	mu         sync.Mutex
	id         GroupID
	partitions int
	owners     map[int][]NodeID
	lostCalls  int
	resetCalls int
}

func newFakeGroup(id GroupID, partitions int, initialOwner NodeID) *fakeGroup {
	g := &fakeGroup{
		id:         id,
		partitions: partitions,
		owners:     make(map[int][]NodeID, partitions),
	}
	for p := 0; p < partitions; p++ {
		if initialOwner != "" {
			g.owners[p] = []NodeID{initialOwner}
		}
	}
	return g
}

func (g *fakeGroup) Group() GroupID { return g.id }

func (g *fakeGroup) BeforeExchange(e *Exchange, updateAffinity bool) error { return nil }

func (g *fakeGroup) Update(ver TopologyVersion, owners map[int][]NodeID, counters map[int]uint64, needReload []int, reloaded bool) error {
	return nil
}

func (g *fakeGroup) ApplyUpdateCounters(counters map[int]uint64) error { return nil }

func (g *fakeGroup) PartitionState(node NodeID, part int) PartitionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, o := range g.owners[part] {
		if o == node {
			return StateOwning
		}
	}
	return StateNA
}

func (g *fakeGroup) CurrentLocalPartitions() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int, g.partitions)
	for i := range out {
		out[i] = i
	}
	return out
}

func (g *fakeGroup) SetOwners(part int, owners []NodeID, haveHistory bool, lastEntry bool) []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.owners[part] = append([]NodeID(nil), owners...)
	return nil
}

func (g *fakeGroup) DetectLostPartitions(ver TopologyVersion) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lostCalls++
	return true
}

func (g *fakeGroup) ResetLostPartitions(ver TopologyVersion) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetCalls++
}

func (g *fakeGroup) OnExchangeDone(aff map[int][]NodeID, shouldReset bool) {}

func (g *fakeGroup) ownersOf(part int) []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]NodeID(nil), g.owners[part]...)
}
