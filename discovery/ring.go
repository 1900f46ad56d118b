package discovery

import (
	"fmt"
	"log"
	"sync"

	"github.com/hashicorp/memberlist"

	"github.com/nodecluster/partex/exchange"
)

// rawEventKind classifies a raw memberlist notification before it has
// been folded by the coalescer.
type rawEventKind uint8

const (
	rawJoin rawEventKind = iota
	rawLeave
	rawUpdate
)

// rawEvent is what eventDelegate pushes onto the coalescer's input
// channel; it carries just enough to build an exchange.InitialEvent once
// settled.
type rawEvent struct {
	kind rawEventKind
	name string
}

// Ring wraps a memberlist.Memberlist cluster, translating its gossip
// membership events into exchange.InitialEvent values and exposing the
// ring as both an exchange.Discovery and a broadcast-based distribution
// channel for centralized-affinity full-messages.
type Ring struct {
	cfg *Config
	log *log.Logger

	ml *memberlist.Memberlist
	bc *memberlist.TransmitLimitedQueue

	mu      sync.Mutex
	known   map[string]bool // node name -> member, as of the last settled event

	eventCh  chan rawEvent
	outCh    chan exchange.InitialEvent
	onCustom func(from exchange.NodeID, msg *exchange.CustomMessage)
	shutdown chan struct{}
}

// NewRing creates the memberlist cluster and starts the event coalescer.
// onCustom is invoked for every inbound user message (the custom
// intra-version events: activate/deactivate/cache-batch/snapshot/affinity
// change) once decoded; it is typically wired to the exchange manager's
// dispatch so a ring-delivered full-message reaches Exchange.OnFullMessage.
func NewRing(cfg *Config, logger *log.Logger, onCustom func(exchange.NodeID, *exchange.CustomMessage)) (*Ring, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}

	r := &Ring{
		cfg:      cfg,
		log:      logger,
		known:    make(map[string]bool),
		eventCh:  make(chan rawEvent, cfg.EventChBufferSize),
		outCh:    make(chan exchange.InitialEvent, cfg.EventChBufferSize),
		onCustom: onCustom,
		shutdown: make(chan struct{}),
	}

	r.bc = &memberlist.TransmitLimitedQueue{
		NumNodes: func() int {
			r.mu.Lock()
			defer r.mu.Unlock()
			return len(r.known)
		},
		RetransmitMult: 3,
	}

	mlCfg := cfg.MemberlistConfig
	if mlCfg == nil {
		mlCfg = memberlist.DefaultLANConfig()
	}
	mlCfg.Name = cfg.NodeName
	mlCfg.Events = &eventDelegate{ch: r.eventCh}
	mlCfg.Delegate = &messageDelegate{ring: r}

	ml, err := memberlist.Create(mlCfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: create memberlist: %w", err)
	}
	r.ml = ml

	go coalesceLoop(r.eventCh, r.outCh, r.shutdown, cfg.CoalescePeriod, cfg.QuiescentPeriod, &memberEventCoalescer{
		known: r.known,
		mu:    &r.mu,
		local: cfg.NodeName,
	})

	return r, nil
}

// Join contacts existing cluster members by address, the way serf.Join
// wraps memberlist.Join.
func (r *Ring) Join(addrs []string) (int, error) {
	return r.ml.Join(addrs)
}

// Events returns the channel of coalesced InitialEvent values the
// exchange manager should consume to spawn one Exchange per settled
// membership change.
func (r *Ring) Events() <-chan exchange.InitialEvent {
	return r.outCh
}

// LocalNode returns this process's stable node identifier.
func (r *Ring) LocalNode() exchange.NodeID {
	return exchange.NodeID(r.ml.LocalNode().Name)
}

// Snapshot returns the current server set as an exchange.DiscoSnapshot,
// ordered the way memberlist returns Members(), insertion/gossip order,
// stable enough across a quiescent period to serve as seniority order for
// coordinator election.
func (r *Ring) Snapshot() *exchange.DiscoSnapshot {
	members := r.ml.Members()
	nodes := make([]exchange.NodeID, 0, len(members))
	for _, m := range members {
		nodes = append(nodes, exchange.NodeID(m.Name))
	}
	return &exchange.DiscoSnapshot{ServerNodes: nodes}
}

// MemberAddr returns the gossip address and port memberlist currently has
// on file for n, for address books that derive a peer's transport address
// from its gossip address by a fixed port offset.
func (r *Ring) MemberAddr(n exchange.NodeID) (host string, port uint16, ok bool) {
	for _, m := range r.ml.Members() {
		if m.Name == string(n) {
			return m.Addr.String(), m.Port, true
		}
	}
	return "", 0, false
}

// Alive implements exchange.Discovery.
func (r *Ring) Alive(n exchange.NodeID) bool {
	for _, m := range r.ml.Members() {
		if m.Name == string(n) {
			return true
		}
	}
	return false
}

// SendCustomEvent implements exchange.Discovery by queuing msg on the
// ring's broadcast queue. Delivery is gossip retransmission through
// memberlist's TransmitLimitedQueue: it imposes no total order, so
// survivors are not guaranteed to apply the message at the same logical
// position relative to other events.
func (r *Ring) SendCustomEvent(msg *exchange.CustomMessage) error {
	local := r.ml.LocalNode().Name
	payload := make([]byte, 0, len(msg.Payload)+len(local)+3)
	payload = append(payload, byte(msg.Kind))
	payload = append(payload, byte(len(local)>>8), byte(len(local)))
	payload = append(payload, local...)
	payload = append(payload, msg.Payload...)
	r.bc.QueueBroadcast(&broadcast{msg: payload})
	return nil
}

// Shutdown leaves the ring and stops the coalescer.
func (r *Ring) Shutdown() error {
	close(r.shutdown)
	return r.ml.Shutdown()
}

// deliverCustom decodes a ring-broadcast payload, produced by
// SendCustomEvent's [kind][name-len][name][payload] framing, and hands it
// to onCustom. memberlist's NotifyMsg carries no sender, so the sender is
// embedded in the payload itself, the way serf's own message types carry
// their origin explicitly.
func (r *Ring) deliverCustom(raw []byte) {
	if r.onCustom == nil || len(raw) < 3 {
		return
	}
	kind := exchange.EventKind(raw[0])
	nameLen := int(raw[1])<<8 | int(raw[2])
	if len(raw) < 3+nameLen {
		return
	}
	from := string(raw[3 : 3+nameLen])
	payload := raw[3+nameLen:]
	r.onCustom(exchange.NodeID(from), &exchange.CustomMessage{Kind: kind, Payload: payload})
}

// eventDelegate forwards raw memberlist notifications onto a channel for
// the coalescer to fold, mirroring serf's EventDelegate wiring in
// delegate.go.
type eventDelegate struct {
	ch chan<- rawEvent
}

func (d *eventDelegate) NotifyJoin(n *memberlist.Node) {
	d.ch <- rawEvent{kind: rawJoin, name: n.Name}
}
func (d *eventDelegate) NotifyLeave(n *memberlist.Node) {
	d.ch <- rawEvent{kind: rawLeave, name: n.Name}
}
func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) {
	d.ch <- rawEvent{kind: rawUpdate, name: n.Name}
}
