package command

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/cli"
)

// MonitorCommand polls a running agent's exchange status at a fixed
// interval and prints changes; see DESIGN.md for why this is polling
// rather than a streaming log tail.
type MonitorCommand struct {
	Ui         cli.Ui
	ShutdownCh <-chan struct{}
}

func (c *MonitorCommand) Help() string {
	helpText := `
Usage: partex monitor [options]

  Polls a partex agent's exchange status and prints it whenever it
  changes.

Options:

  -interval=1s              poll interval
  -rpc-addr=127.0.0.1:7473  RPC address of the partex agent.
`
	return strings.TrimSpace(helpText)
}

func (c *MonitorCommand) Run(args []string) int {
	var interval time.Duration
	cmdFlags := flag.NewFlagSet("monitor", flag.ContinueOnError)
	cmdFlags.Usage = func() { c.Ui.Output(c.Help()) }
	cmdFlags.DurationVar(&interval, "interval", time.Second, "poll interval")
	rpcAddr := RPCAddrFlag(cmdFlags)
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}

	client, err := RPCClient(*rpcAddr)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error connecting to partex agent: %s", err))
		return 1
	}
	defer client.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ticker.C:
			status, err := client.Status()
			if err != nil {
				c.Ui.Error(fmt.Sprintf("Error querying status: %s", err))
				continue
			}
			line := fmt.Sprintf("%s state=%s coordinator=%s", status.ExchangeID, status.State, status.Coordinator)
			if line != last {
				c.Ui.Info(line)
				last = line
			}
		case <-c.ShutdownCh:
			return 0
		}
	}
}

func (c *MonitorCommand) Synopsis() string {
	return "Polls and streams exchange status changes from a partex agent"
}
