package agent

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/nodecluster/partex/discovery"
	"github.com/nodecluster/partex/exchange"
	"github.com/nodecluster/partex/transport"
)

// Config is the agent's full configuration, decoded from a config file and
// overlaid with command-line flags.
type Config struct {
	// NodeName is this node's stable identifier, used as both the
	// discovery ring name and the exchange.NodeID.
	NodeName string `mapstructure:"node_name"`

	// Role is "server" or "client".
	Role string `mapstructure:"role"`

	// BindAddr is the discovery (gossip) bind address.
	BindAddr string `mapstructure:"bind_addr"`

	// TransportAddr is the peer-to-peer exchange transport bind address.
	TransportAddr string `mapstructure:"transport_addr"`

	// RPCAddr is the admin net/rpc listener address.
	RPCAddr string `mapstructure:"rpc_addr"`

	// StartJoin lists addresses to contact at startup, the way
	// command/agent.Config.StartJoin seeds serf.Join.
	StartJoin []string `mapstructure:"start_join"`

	// BootstrapMDNS enables LAN discovery of a seed address via mDNS when
	// StartJoin is empty.
	BootstrapMDNS bool `mapstructure:"bootstrap_mdns"`

	// LogLevel is one of DEBUG, INFO, WARN, ERR.
	LogLevel string `mapstructure:"log_level"`

	// Syslog facility to additionally log to, empty disables it.
	SyslogFacility string `mapstructure:"syslog_facility"`

	Exchange *exchange.Config   `mapstructure:"-"`
	Disco    *discovery.Config  `mapstructure:"-"`
	Xport    *transport.Config  `mapstructure:"-"`

	// NetworkTimeout mirrors exchange.Config.NetworkTimeout for decode
	// convenience; applied onto Exchange in DefaultConfig/Merge.
	NetworkTimeout time.Duration `mapstructure:"network_timeout"`
}

// DefaultConfig returns the agent defaults, mirroring
// command/agent.DefaultConfig's role of filling in a runnable baseline.
func DefaultConfig() *Config {
	return &Config{
		Role:           "server",
		BindAddr:       "0.0.0.0:7946",
		TransportAddr:  "0.0.0.0:8046",
		RPCAddr:        "127.0.0.1:7473",
		LogLevel:       "INFO",
		NetworkTimeout: 5 * time.Second,
		Exchange:       exchange.DefaultConfig(),
		Disco:          discovery.DefaultConfig(),
		Xport:          transport.DefaultConfig(),
	}
}

// DecodeConfig reads a JSON config file, grounded on command/agent's own
// JSON-plus-mapstructure config decode (see command/agent/agent.go's tag
// file handling for the same json.Unmarshal-then-mapstructure shape).
func DecodeConfig(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("agent: parse config %s: %w", path, err)
	}

	result := DefaultConfig()
	if err := mapstructure.Decode(generic, result); err != nil {
		return nil, fmt.Errorf("agent: decode config %s: %w", path, err)
	}
	return result, nil
}

// MergeConfig applies non-zero fields of b on top of a, the way
// command/agent.MergeConfig overlays a later config file's values.
func MergeConfig(a, b *Config) *Config {
	result := *a
	if b.NodeName != "" {
		result.NodeName = b.NodeName
	}
	if b.Role != "" {
		result.Role = b.Role
	}
	if b.BindAddr != "" {
		result.BindAddr = b.BindAddr
	}
	if b.TransportAddr != "" {
		result.TransportAddr = b.TransportAddr
	}
	if b.RPCAddr != "" {
		result.RPCAddr = b.RPCAddr
	}
	if len(b.StartJoin) > 0 {
		result.StartJoin = b.StartJoin
	}
	if b.BootstrapMDNS {
		result.BootstrapMDNS = true
	}
	if b.LogLevel != "" {
		result.LogLevel = b.LogLevel
	}
	if b.SyslogFacility != "" {
		result.SyslogFacility = b.SyslogFacility
	}
	if b.NetworkTimeout != 0 {
		result.NetworkTimeout = b.NetworkTimeout
	}
	if result.Exchange != nil {
		result.Exchange.NetworkTimeout = result.NetworkTimeout
	}
	return &result
}
