package exchange

import "context"

// Noop default collaborators let New() accept a partially populated
// Dependencies (e.g. in tests exercising only the coordinator path)
// without a nil check scattered through every call site.

type noopDiscovery struct{}

func (noopDiscovery) Alive(NodeID) bool                  { return true }
func (noopDiscovery) SendCustomEvent(*CustomMessage) error { return nil }

type noopTransport struct{}

func (noopTransport) Send(context.Context, NodeID, []byte) error { return nil }

type noopCaches struct{}

func (noopCaches) StartReceivedCaches(context.Context, []GroupID) error      { return nil }
func (noopCaches) CachesToStartOnLocalJoin() []GroupID                      { return nil }
func (noopCaches) StartCachesOnLocalJoin(context.Context, []GroupID) error  { return nil }

type noopAffinity struct{}

func (noopAffinity) OnServerJoin(NodeID, *DiscoSnapshot) error { return nil }
func (noopAffinity) OnServerLeft(NodeID, *DiscoSnapshot) (bool, error) {
	return false, nil
}
func (noopAffinity) OnClientEvent(NodeID, bool) error               { return nil }
func (noopAffinity) OnCacheChangeRequest([]GroupID) error           { return nil }
func (noopAffinity) OnChangeAffinityMessage(*AffinityChangeMessage) error { return nil }
func (noopAffinity) OnLocalJoin() error                             { return nil }
func (noopAffinity) InitAffinityOnNodeLeft(context.Context, NodeID) (map[GroupID]map[int][]NodeID, error) {
	return nil, nil
}
func (noopAffinity) ReadyAffinity(TopologyVersion) bool                { return true }
func (noopAffinity) IdealAssignment() map[GroupID]map[int][]NodeID     { return nil }

type noopPersistence struct{}

func (noopPersistence) CheckpointReadLock()              {}
func (noopPersistence) CheckpointReadUnlock()            {}
func (noopPersistence) BeforeExchange(*Exchange) error   { return nil }
func (noopPersistence) ReserveHistoryForExchange() (map[GroupID]map[int]uint64, error) {
	return nil, nil
}
func (noopPersistence) ReleaseHistoryForExchange() {}
func (noopPersistence) ReserveHistoryForPreloading(GroupID, int, uint64) bool {
	return false
}

type noopVersions struct{}

func (noopVersions) OnExchange(uint64) {}

type noopQuiesce struct{}

func (noopQuiesce) PartitionReleaseFuture(ctx context.Context, _ TopologyVersion) <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (noopQuiesce) FinishLocks(ctx context.Context, _ TopologyVersion) <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (noopQuiesce) Dump() string { return "" }

type noopWriteBehind struct{}

func (noopWriteBehind) Flush(context.Context) error { return nil }

// withDefaults fills every nil field of deps (or a fresh Dependencies, if
// deps itself is nil) with a noop collaborator.
func withDefaults(deps *Dependencies) *Dependencies {
	if deps == nil {
		deps = &Dependencies{}
	}
	out := *deps
	if out.Discovery == nil {
		out.Discovery = noopDiscovery{}
	}
	if out.Transport == nil {
		out.Transport = noopTransport{}
	}
	if out.Caches == nil {
		out.Caches = noopCaches{}
	}
	if out.Affinity == nil {
		out.Affinity = noopAffinity{}
	}
	if out.Persistence == nil {
		out.Persistence = noopPersistence{}
	}
	if out.Groups == nil {
		out.Groups = func() []GroupTopology { return nil }
	}
	if out.Versions == nil {
		out.Versions = noopVersions{}
	}
	if out.Quiesce == nil {
		out.Quiesce = noopQuiesce{}
	}
	if out.WriteBehind == nil {
		out.WriteBehind = noopWriteBehind{}
	}
	return &out
}
