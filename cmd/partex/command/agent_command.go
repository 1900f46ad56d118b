package command

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/cli"

	"github.com/nodecluster/partex/cmd/partex/command/agent"
	"github.com/nodecluster/partex/exchange"
)

// gracefulTimeout bounds how long Shutdown is given before the process
// exits anyway, mirroring command/agent.Command's gracefulTimeout.
var gracefulTimeout = 3 * time.Second

// AgentCommand runs a partex agent until interrupted, grounded on
// command/agent.Command's flag-parse-then-run-forever shape.
type AgentCommand struct {
	Ui         cli.Ui
	ShutdownCh <-chan struct{}
}

func (c *AgentCommand) Help() string {
	helpText := `
Usage: partex agent [options]

  Starts a partex agent that participates in partition exchanges.

Options:

  -node=<name>              node name, defaults to hostname
  -bind=0.0.0.0:7946        gossip bind address
  -transport=0.0.0.0:8046   exchange transport bind address
  -rpc-addr=127.0.0.1:7473  admin RPC bind address
  -join=<addr>              address of an existing agent to join (repeatable)
  -bootstrap-mdns           discover a seed peer and advertise via mDNS
  -log-level=INFO           log level: DEBUG, INFO, WARN, ERR
  -syslog-facility=<name>   additionally log to syslog under this facility
  -config-file=<path>       JSON config file to read (repeatable)
`
	return strings.TrimSpace(helpText)
}

func (c *AgentCommand) Synopsis() string {
	return "Runs a partex agent"
}

func (c *AgentCommand) Run(args []string) int {
	var joinAddrs AppendSliceValue
	var configFiles AppendSliceValue
	cfg := agent.DefaultConfig()

	cmdFlags := flag.NewFlagSet("agent", flag.ContinueOnError)
	cmdFlags.Usage = func() { c.Ui.Output(c.Help()) }
	cmdFlags.StringVar(&cfg.NodeName, "node", cfg.NodeName, "node name")
	cmdFlags.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "gossip bind address")
	cmdFlags.StringVar(&cfg.TransportAddr, "transport", cfg.TransportAddr, "transport bind address")
	cmdFlags.StringVar(&cfg.RPCAddr, "rpc-addr", cfg.RPCAddr, "RPC bind address")
	cmdFlags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	cmdFlags.StringVar(&cfg.SyslogFacility, "syslog-facility", "", "syslog facility")
	cmdFlags.BoolVar(&cfg.BootstrapMDNS, "bootstrap-mdns", false, "bootstrap via mDNS")
	cmdFlags.Var(&joinAddrs, "join", "address to join on startup")
	cmdFlags.Var(&configFiles, "config-file", "JSON config file to read")
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}

	for _, path := range configFiles {
		fileCfg, err := agent.DecodeConfig(path)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error reading config file %s: %s", path, err))
			return 1
		}
		cfg = agent.MergeConfig(cfg, fileCfg)
	}
	if len(joinAddrs) > 0 {
		cfg.StartJoin = joinAddrs
	}

	if cfg.NodeName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error determining hostname: %s", err))
			return 1
		}
		cfg.NodeName = hostname
	}

	deps := &exchange.Dependencies{
		Groups: func() []exchange.GroupTopology { return nil },
	}

	a, err := agent.Create(cfg, deps, nil)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error creating agent: %s", err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting agent: %s", err))
		return 1
	}
	c.Ui.Output(fmt.Sprintf("Agent started: node=%s bind=%s rpc=%s", cfg.NodeName, cfg.BindAddr, cfg.RPCAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-c.ShutdownCh:
	}

	c.Ui.Output("Gracefully shutting down agent...")
	gracefulCh := make(chan struct{})
	go func() {
		a.Shutdown()
		close(gracefulCh)
	}()

	select {
	case <-gracefulCh:
	case <-sigCh:
		c.Ui.Output("Force shutdown")
	case <-time.After(gracefulTimeout):
		c.Ui.Output("Graceful shutdown timed out, exiting")
	}
	return 0
}
