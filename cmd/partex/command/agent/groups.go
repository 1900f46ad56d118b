package agent

import (
	"sync"

	"github.com/nodecluster/partex/exchange"
)

// memGroup is a minimal in-memory exchange.GroupTopology, standing in for
// a real cache-group's partition map. It exists so an agent process can
// actually drive an exchange end to end without a storage engine behind
// it; production deployments would replace this with a topology backed by
// the real cache/storage layer.
type memGroup struct {
	mu sync.Mutex

	id GroupID
	// owners maps partition -> ordered owner list, primary first.
	owners map[int][]exchange.NodeID
	// lost marks partitions with no surviving owner as of the last
	// detection pass.
	lost map[int]bool
	// local lists the partitions this process currently serves.
	local []int
}

// GroupID is re-exported for callers constructing a memGroup without
// importing the exchange package directly.
type GroupID = exchange.GroupID

// NewMemGroup constructs an empty in-memory group topology for gid.
func NewMemGroup(gid GroupID, partitions int) *memGroup {
	g := &memGroup{
		id:     gid,
		owners: make(map[int][]exchange.NodeID, partitions),
		lost:   make(map[int]bool),
	}
	for i := 0; i < partitions; i++ {
		g.owners[i] = nil
	}
	return g
}

func (g *memGroup) Group() exchange.GroupID { return g.id }

func (g *memGroup) BeforeExchange(e *exchange.Exchange, updateAffinity bool) error {
	return nil
}

func (g *memGroup) Update(ver exchange.TopologyVersion, owners map[int][]exchange.NodeID, counters map[int]uint64, needReload []int, reloaded bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for part, nodes := range owners {
		g.owners[part] = nodes
	}
	return nil
}

func (g *memGroup) ApplyUpdateCounters(counters map[int]uint64) error {
	return nil
}

func (g *memGroup) PartitionState(node exchange.NodeID, part int) exchange.PartitionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.owners[part] {
		if n == node {
			return exchange.StateOwning
		}
	}
	if g.lost[part] {
		return exchange.StateLost
	}
	return exchange.StateNA
}

func (g *memGroup) CurrentLocalPartitions() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.local...)
}

func (g *memGroup) SetOwners(part int, owners []exchange.NodeID, haveHistory bool, lastEntry bool) []exchange.NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.owners[part] = owners
	if !haveHistory {
		// every incoming owner must reload from scratch
		return owners
	}
	return nil
}

func (g *memGroup) DetectLostPartitions(ver exchange.TopologyVersion) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	any := false
	for part, owners := range g.owners {
		if len(owners) == 0 && !g.lost[part] {
			g.lost[part] = true
			any = true
		}
	}
	return any
}

func (g *memGroup) ResetLostPartitions(ver exchange.TopologyVersion) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for part := range g.lost {
		g.lost[part] = false
	}
}

func (g *memGroup) OnExchangeDone(aff map[int][]exchange.NodeID, shouldReset bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if shouldReset {
		for part := range g.lost {
			g.lost[part] = false
		}
	}
	for part, owners := range aff {
		g.owners[part] = owners
	}
}
