// Package exchange implements the partition exchange protocol: the
// per-topology-version coordination state machine that every server node
// runs whenever cluster membership or logical schema changes. One Exchange
// is created per exchange event and drives the cluster to agreement on a
// new partition-to-node assignment before client traffic resumes.
package exchange

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// NodeID identifies a node in the cluster. It is stable across the node's
// lifetime and unique within the cluster.
type NodeID string

// TopologyVersion is a (major, minor) pair. Major increments once per
// discovery event; minor increments once per intra-version custom message
// (e.g. a second affinity change folded into the same major version).
type TopologyVersion struct {
	Major uint64
	Minor uint64
}

// Compare returns -1, 0 or 1 the way bytes.Compare does, ordering first by
// Major then by Minor.
func (v TopologyVersion) Compare(o TopologyVersion) int {
	switch {
	case v.Major < o.Major:
		return -1
	case v.Major > o.Major:
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	default:
		return 0
	}
}

func (v TopologyVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// EventKind classifies the discovery event that initiated an exchange.
type EventKind uint8

const (
	EventNodeJoin EventKind = iota
	EventNodeLeave
	EventNodeFailed
	EventClientJoin
	EventClientLeave
	EventActivate
	EventDeactivate
	EventCacheBatch
	EventSnapshot
	EventAffinityChange
)

func (k EventKind) String() string {
	switch k {
	case EventNodeJoin:
		return "node-join"
	case EventNodeLeave:
		return "node-leave"
	case EventNodeFailed:
		return "node-failed"
	case EventClientJoin:
		return "client-join"
	case EventClientLeave:
		return "client-leave"
	case EventActivate:
		return "activate"
	case EventDeactivate:
		return "deactivate"
	case EventCacheBatch:
		return "cache-batch"
	case EventSnapshot:
		return "snapshot"
	case EventAffinityChange:
		return "affinity-change"
	default:
		return "unknown"
	}
}

// IsServerEvent reports whether the event kind is a server (non-client)
// topology change.
func (k EventKind) IsServerEvent() bool {
	switch k {
	case EventNodeJoin, EventNodeLeave, EventNodeFailed:
		return true
	default:
		return false
	}
}

// IsClientEvent reports whether the event kind concerns client node
// membership only.
func (k EventKind) IsClientEvent() bool {
	return k == EventClientJoin || k == EventClientLeave
}

// IsCustom reports whether the event kind is a custom intra-version
// message rather than a raw membership change.
func (k EventKind) IsCustom() bool {
	switch k {
	case EventActivate, EventDeactivate, EventCacheBatch, EventSnapshot, EventAffinityChange:
		return true
	default:
		return false
	}
}

// ExchangeID totally orders exchanges. Ordering derives lexicographically
// from TopologyVersion; equality is by identity of the triple.
type ExchangeID struct {
	TopVer          TopologyVersion
	InitiatorNodeID NodeID
	EventKind       EventKind
}

// Compare orders two exchange ids by topology version only.
func (id ExchangeID) Compare(o ExchangeID) int {
	return id.TopVer.Compare(o.TopVer)
}

// Equal reports identity of the (topVer, initiator, kind) triple.
func (id ExchangeID) Equal(o ExchangeID) bool {
	return id.TopVer == o.TopVer && id.InitiatorNodeID == o.InitiatorNodeID && id.EventKind == o.EventKind
}

func (id ExchangeID) String() string {
	return fmt.Sprintf("%s/%s/%s", id.TopVer, id.InitiatorNodeID, id.EventKind)
}

// ExchangeType is decided by the event classifier and determines whether
// the exchange runs the full two-phase round, a client-only notification,
// or nothing at all.
type ExchangeType uint8

const (
	// ExchangeAll runs the full single/full message round with every server.
	ExchangeAll ExchangeType = iota
	// ExchangeClient only requires telling the coordinator; no quiesce.
	ExchangeClient
	// ExchangeNone requires no messaging at all.
	ExchangeNone
)

func (t ExchangeType) String() string {
	switch t {
	case ExchangeAll:
		return "ALL"
	case ExchangeClient:
		return "CLIENT"
	case ExchangeNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// State is the node-role state machine position of one Exchange instance.
type State int

const (
	StateCRD State = iota
	StateSRV
	StateClient
	StateBecomeCRD
	StateMerged
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCRD:
		return "CRD"
	case StateSRV:
		return "SRV"
	case StateClient:
		return "CLIENT"
	case StateBecomeCRD:
		return "BECOME_CRD"
	case StateMerged:
		return "MERGED"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// PartitionState is the per-node, per-partition ownership state reported in
// single-messages.
type PartitionState uint8

const (
	StateNA PartitionState = iota
	StateOwning
	StateMoving
	StateRenting
	StateLost
	StateEvicted
)

func (s PartitionState) String() string {
	switch s {
	case StateOwning:
		return "OWNING"
	case StateMoving:
		return "MOVING"
	case StateRenting:
		return "RENTING"
	case StateLost:
		return "LOST"
	case StateEvicted:
		return "EVICTED"
	default:
		return "N/A"
	}
}

// GroupID identifies a cache group whose partitions are being reconciled.
type GroupID string

// groupPart is a (group, partition) key used for maps keyed by both.
type groupPart struct {
	Group GroupID
	Part  int
}

// HistorySupplier names a node able to serve the WAL range [lo, hi] for a
// partition during rebalance.
type HistorySupplier struct {
	Node NodeID
	From uint64
	To   uint64
}

// DiscoSnapshot is an immutable view of cluster membership taken at
// Exchange init time.
type DiscoSnapshot struct {
	ServerNodes []NodeID
	ClientNodes []NodeID
	Version     uint64
}

// Contains reports whether n is a server node in the snapshot.
func (s *DiscoSnapshot) Contains(n NodeID) bool {
	for _, id := range s.ServerNodes {
		if id == n {
			return true
		}
	}
	return false
}

// CustomMessage carries the payload for a custom intra-version event
// (activate/deactivate/cache-batch/snapshot/affinity-change).
type CustomMessage struct {
	Kind    EventKind
	Payload []byte
}

// InitialEvent is the triggering discovery event delivered by the
// discovery layer (see Discovery in external.go).
type InitialEvent struct {
	NodeID        NodeID
	Kind          EventKind
	Custom        *CustomMessage
	Snapshot      *DiscoSnapshot
	LocalNodeJoin bool // true if NodeID is the local node and Kind is a join
}

// FinishState is the terminal, immutable result of a completed Exchange.
// Once set it is never rewritten; late requesters receive a copy of
// FullMsg re-stamped with their own ExchangeID.
type FinishState struct {
	CoordinatorID   NodeID
	ResultTopVer    TopologyVersion
	FullMsg         *FullMessage
}

// Exchange is the per-exchange coordination instance: one is created per
// exchange event on every server node and runs to completion on that
// version.
type Exchange struct {
	// mu is the per-exchange monitor guarding the fields below it.
	mu sync.Mutex

	id           ExchangeID
	initialEvent InitialEvent
	discoSnap    *DiscoSnapshot
	srvNodes     []NodeID // ordered; mutated only to drop failed nodes
	localNode    NodeID
	crd          NodeID

	exchType       ExchangeType
	centralizedAff bool

	// prevTopVer is the topology version in effect immediately before this
	// exchange; the quiesce waiter drains transactions/locks begun at or
	// before it.
	prevTopVer TopologyVersion

	remaining map[NodeID]struct{}
	msgs      map[NodeID]*SingleMessage

	pendingSingleMsgs map[NodeID]*SingleMessage
	fullMsgs          map[NodeID]*FullMessage

	mergedJoinExchMsgs map[NodeID]*SingleMessage // nil value == awaited
	awaitMergedMsgs    int
	mergedWith         *Exchange
	pendingJoinMsg     *SingleMessage

	state       State
	finishState *FinishState

	lastVer uint64

	partHistSuppliers map[groupPart]HistorySupplier
	partsToReload     map[NodeID]map[GroupID][]int

	changeGlobalStateExceptions map[NodeID]error

	exchActions  *ExchActions
	affChangeMsg *AffinityChangeMessage

	pendingSingleUpdates int
	newCrd               *becomeCoordinatorState

	// collectStart marks when this node became coordinator and started
	// collecting single-messages; read by runDecide to time the collect
	// step.
	collectStart time.Time

	doneCh   chan struct{}
	doneOnce sync.Once

	deps *Dependencies
	log  *log.Logger
	cfg  *Config

	// initGate queues externally delivered messages that race with Init
	// until Init has finished.
	initGate   chan struct{}
	initClosed bool
}

// ExchActions captures optional derived payloads from the initial event
// (e.g. which cache groups to start/stop), passed through to the
// cache-lifecycle collaborator.
type ExchActions struct {
	StartCaches []GroupID
	StopCaches  []GroupID
}

// AffinityChangeMessage carries an explicit affinity-change payload when
// the initiating event is a custom affinity-change message.
type AffinityChangeMessage struct {
	Changes map[GroupID][]NodeID
}

// ID returns the exchange's identity.
func (e *Exchange) ID() ExchangeID { return e.id }

// State returns the current node-role state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Coordinator returns the exchange's current view of the coordinator.
func (e *Exchange) Coordinator() NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.crd
}

// Done returns a channel closed once the exchange reaches DONE. A MERGED
// exchange's channel closes only when awaitMerge has copied in its
// target's result and marked it DONE.
func (e *Exchange) Done() <-chan struct{} {
	return e.doneCh
}

// FinishState returns a copy of the finish state, or nil if not yet set.
func (e *Exchange) FinishState() *FinishState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finishState == nil {
		return nil
	}
	fs := *e.finishState
	return &fs
}

func (e *Exchange) markDone(fs FinishState) {
	e.finishState = &fs
	e.state = StateDone
	e.doneOnce.Do(func() { close(e.doneCh) })
}
