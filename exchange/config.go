package exchange

import "time"

// Config carries the exchange worker's tunables. Field tags match the
// mapstructure convention the agent config (cmd/partex/command/agent)
// decodes JSON into.
type Config struct {
	// LocalNodeID is this process's stable node identifier.
	LocalNodeID NodeID `mapstructure:"node_id"`

	// NetworkTimeout is the base network timeout; the quiesce waiter's
	// first diagnostic dump fires after 2x this value.
	NetworkTimeout time.Duration `mapstructure:"network_timeout"`

	// LongOpDumpTimeoutLimit caps the exponential backoff between
	// successive quiesce diagnostic dumps (default 30m).
	LongOpDumpTimeoutLimit time.Duration `mapstructure:"long_op_dump_timeout_limit"`

	// ReleaseFutureDumpThreshold is the wait duration above which the
	// release-future contents are dumped; 0 disables the dump entirely.
	ReleaseFutureDumpThreshold time.Duration `mapstructure:"release_future_dump_threshold"`

	// ThreadDumpOnExchangeTimeout additionally captures goroutine stacks
	// on a quiesce timeout.
	ThreadDumpOnExchangeTimeout bool `mapstructure:"thread_dump_on_exchange_timeout"`

	// DiagnosticBufSize bounds the diagnostic dump buffer (armon/circbuf),
	// preventing a stuck quiesce from accumulating unbounded dump text.
	DiagnosticBufSize int64 `mapstructure:"diagnostic_buf_size"`
}

// DefaultConfig returns the configuration defaults, mirroring the
// magnitude of serf.DefaultConfig()'s role as a sane-default constructor.
func DefaultConfig() *Config {
	return &Config{
		NetworkTimeout:              5 * time.Second,
		LongOpDumpTimeoutLimit:      30 * time.Minute,
		ReleaseFutureDumpThreshold:  10 * time.Second,
		ThreadDumpOnExchangeTimeout: false,
		DiagnosticBufSize:           64 * 1024,
	}
}

func (c *Config) firstDumpTimeout() time.Duration {
	return 2 * c.NetworkTimeout
}
