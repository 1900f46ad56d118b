package discovery

import (
	"sync"
	"time"

	"github.com/nodecluster/partex/exchange"
)

// coalesceLoop folds a burst of raw membership notifications into settled
// exchange.InitialEvent values, the way serf's coalesceLoop in
// coalesce.go folds member events before they reach the public event
// channel: a node flapping join/leave/join within coalescePeriod produces
// one event, not three, and a quiescentPeriod of silence flushes early.
func coalesceLoop(inCh <-chan rawEvent, outCh chan<- exchange.InitialEvent, shutdownCh <-chan struct{},
	coalescePeriod, quiescentPeriod time.Duration, c *memberEventCoalescer) {

	var quantum <-chan time.Time
	var quiescent <-chan time.Time
	shutdown := false

INGEST:
	quantum = nil
	quiescent = nil

	for {
		select {
		case e := <-inCh:
			c.coalesce(e)
			if quantum == nil {
				quantum = time.After(coalescePeriod)
			}
			quiescent = time.After(quiescentPeriod)

		case <-quantum:
			c.flush(outCh)
			goto INGEST

		case <-quiescent:
			c.flush(outCh)
			goto INGEST

		case <-shutdownCh:
			shutdown = true
			goto FLUSH
		}
	}

FLUSH:
	c.flush(outCh)
	if !shutdown {
		goto INGEST
	}
}

// memberEventCoalescer tracks the most recent raw event per node name
// within a quantum, grounded on serf's memberEventCoalescer in
// coalesce_member.go, and the known-members set a freshly joined node
// must be distinguished against to decide LocalNodeJoin.
type memberEventCoalescer struct {
	local   string
	known   map[string]bool
	mu      *sync.Mutex
	pending map[string]rawEvent
}

func (c *memberEventCoalescer) coalesce(e rawEvent) {
	if c.pending == nil {
		c.pending = make(map[string]rawEvent)
	}
	c.pending[e.name] = e
}

func (c *memberEventCoalescer) flush(outCh chan<- exchange.InitialEvent) {
	if len(c.pending) == 0 {
		return
	}
	for name, e := range c.pending {
		kind := exchange.EventNodeJoin
		c.mu.Lock()
		switch e.kind {
		case rawJoin:
			kind = exchange.EventNodeJoin
			c.known[name] = true
		case rawLeave:
			kind = exchange.EventNodeLeave
			delete(c.known, name)
		case rawUpdate:
			// Attribute changes alone never drive a partition exchange;
			// drop them here rather than forwarding a spurious event.
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()

		outCh <- exchange.InitialEvent{
			NodeID:        exchange.NodeID(name),
			Kind:          kind,
			LocalNodeJoin: name == c.local && kind == exchange.EventNodeJoin,
		}
	}
	c.pending = nil
}
