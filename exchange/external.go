package exchange

import "context"

// This file names the external collaborators the core state machine
// consumes. They are deliberately out of scope for this
// package's implementation; concrete adapters live in sibling packages
// (discovery/, transport/) and in the cache/affinity/persistence stand-ins
// used by tests.

// Discovery is the ordered membership/event delivery layer. A concrete
// adapter lives in package discovery.
type Discovery interface {
	Alive(n NodeID) bool
	SendCustomEvent(msg *CustomMessage) error
}

// Transport sends wire messages to a peer. A concrete adapter lives in
// package transport.
type Transport interface {
	// Send delivers msg to node. ErrPeerGone must be returned (or wrapped)
	// when the peer is known to have left.
	Send(ctx context.Context, node NodeID, msg []byte) error
}

// CacheLifecycle is consulted on join/activation paths.
type CacheLifecycle interface {
	StartReceivedCaches(ctx context.Context, groups []GroupID) error
	CachesToStartOnLocalJoin() []GroupID
	StartCachesOnLocalJoin(ctx context.Context, groups []GroupID) error
}

// Affinity computes partition-to-node candidate assignments.
type Affinity interface {
	OnServerJoin(n NodeID, snapshot *DiscoSnapshot) error
	// OnServerLeft reports whether the leaver held unique affinity, which
	// forces centralizedAff distribution.
	OnServerLeft(n NodeID, snapshot *DiscoSnapshot) (centralized bool, err error)
	OnClientEvent(n NodeID, join bool) error
	OnCacheChangeRequest(groups []GroupID) error
	OnChangeAffinityMessage(msg *AffinityChangeMessage) error
	OnLocalJoin() error
	InitAffinityOnNodeLeft(ctx context.Context, n NodeID) (map[GroupID]map[int][]NodeID, error)
	ReadyAffinity(ver TopologyVersion) bool
	IdealAssignment() map[GroupID]map[int][]NodeID
}

// Persistence is the write-ahead-log / checkpoint collaborator.
type Persistence interface {
	CheckpointReadLock()
	CheckpointReadUnlock()
	BeforeExchange(e *Exchange) error
	ReserveHistoryForExchange() (map[GroupID]map[int]uint64, error)
	ReleaseHistoryForExchange()
	ReserveHistoryForPreloading(group GroupID, part int, cntr uint64) bool
}

// GroupTopology is the per-cache-group partition topology collaborator.
type GroupTopology interface {
	Group() GroupID
	BeforeExchange(e *Exchange, updateAffinity bool) error
	Update(ver TopologyVersion, owners map[int][]NodeID, counters map[int]uint64, needReload []int, reloaded bool) error
	ApplyUpdateCounters(counters map[int]uint64) error
	PartitionState(node NodeID, part int) PartitionState
	CurrentLocalPartitions() []int
	// SetOwners installs the decided owner set for part and returns the
	// subset of owners that must reload data.
	SetOwners(part int, owners []NodeID, haveHistory bool, lastEntry bool) []NodeID
	DetectLostPartitions(ver TopologyVersion) bool
	ResetLostPartitions(ver TopologyVersion)
	OnExchangeDone(aff map[int][]NodeID, shouldReset bool)
}

// VersionIssuer advances the monotonic data-version clock past every
// observed peer version.
type VersionIssuer interface {
	OnExchange(order uint64)
}

// TxLockQuiesce exposes the two composite futures the quiesce waiter
// blocks on.
type TxLockQuiesce interface {
	// PartitionReleaseFuture completes when every transaction, atomic
	// update and explicit lock begun at a version strictly lower than
	// initial has finished or been aborted.
	PartitionReleaseFuture(ctx context.Context, initial TopologyVersion) <-chan struct{}
	// FinishLocks completes when MVCC lock candidates started before the
	// exchange are resolved.
	FinishLocks(ctx context.Context, topVer TopologyVersion) <-chan struct{}
	// Dump returns diagnostic text describing pending transactions/locks,
	// for the quiesce waiter's timeout dumps.
	Dump() string
}

// WriteBehindStore is flushed once partition-release completes, so
// durable state matches visible state before the decide step runs.
type WriteBehindStore interface {
	Flush(ctx context.Context) error
}

// Dependencies bundles every external collaborator an Exchange needs.
// Nil fields are tolerated by using noop defaults (see deps.go) so tests
// can exercise a subset of the state machine.
type Dependencies struct {
	Discovery      Discovery
	Transport      Transport
	Caches         CacheLifecycle
	Affinity       Affinity
	Persistence    Persistence
	Groups         func() []GroupTopology
	Versions       VersionIssuer
	Quiesce        TxLockQuiesce
	WriteBehind    WriteBehindStore
}
