// Package discovery adapts hashicorp/memberlist into the exchange
// package's Discovery collaborator: ordered membership event delivery and
// ring-based distribution of full-messages under centralized affinity.
package discovery

import (
	"time"

	"github.com/hashicorp/memberlist"
)

// Config carries the tunables for a Ring, mirroring the way serf.Config
// wraps a memberlist.Config with protocol-level additions.
type Config struct {
	// NodeName is this process's memberlist node name; it also seeds the
	// exchange.NodeID used throughout the partition exchange protocol.
	NodeName string

	// MemberlistConfig is passed through to memberlist.Create. Callers
	// should start from memberlist.DefaultLANConfig() or
	// DefaultWANConfig() and override as needed, the way
	// command/agent.go's agent setup does for Serf.
	MemberlistConfig *memberlist.Config

	// EventChBufferSize bounds the channel memberlist delivers raw
	// NodeJoin/NodeLeave/NodeUpdate notifications on before the coalescer
	// drains it.
	EventChBufferSize int

	// CoalescePeriod and QuiescentPeriod bound how long bursts of
	// membership events are folded into a single discovery event before
	// a decide round is triggered, the way serf's memberEventCoalescer
	// folds a flapping node's join/leave/join into one settled event.
	CoalescePeriod  time.Duration
	QuiescentPeriod time.Duration

	// GossipEventsCapacity bounds the TransmitLimitedQueue used for
	// centralized-affinity full-message distribution.
	GossipEventsCapacity int
}

// DefaultConfig returns sane defaults, the rough equivalent of
// serf.DefaultConfig() for this adapter.
func DefaultConfig() *Config {
	return &Config{
		MemberlistConfig:     memberlist.DefaultLANConfig(),
		EventChBufferSize:    1024,
		CoalescePeriod:       200 * time.Millisecond,
		QuiescentPeriod:      50 * time.Millisecond,
		GossipEventsCapacity: 512,
	}
}
