package command

import (
	"flag"
	"fmt"
	"strings"

	"github.com/mitchellh/cli"
)

// StatusCommand queries a running agent for its current exchange state,
// grounded loosely on command/getconfig.go's single-shot RPC query shape.
type StatusCommand struct {
	Ui cli.Ui
}

func (c *StatusCommand) Help() string {
	helpText := `
Usage: partex exchange-status [options]

  Reports the currently running (or last completed) exchange's state on
  the target agent.

Options:

  -rpc-addr=127.0.0.1:7473  RPC address of the partex agent.
`
	return strings.TrimSpace(helpText)
}

func (c *StatusCommand) Run(args []string) int {
	cmdFlags := flag.NewFlagSet("exchange-status", flag.ContinueOnError)
	cmdFlags.Usage = func() { c.Ui.Output(c.Help()) }
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

	status, err := client.Status()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error querying status: %s", err))
		return 1
	}

	c.Ui.Output(fmt.Sprintf("exchange:    %s", status.ExchangeID))
	c.Ui.Output(fmt.Sprintf("state:       %s", status.State))
	c.Ui.Output(fmt.Sprintf("coordinator: %s", status.Coordinator))
	c.Ui.Output(fmt.Sprintf("topology:    %s", status.TopologyVer))
	if status.LastFinished != "" {
		c.Ui.Output(fmt.Sprintf("last done:   %s", status.LastFinished))
	}
	return 0
}

func (c *StatusCommand) Synopsis() string {
	return "Reports the current exchange status of a partex agent"
}
