package command

import (
	"flag"
	"fmt"
	"strings"

	"github.com/mitchellh/cli"
)

// ForceDumpCommand requests a diagnostic dump of the agent's currently
// running exchange: a one-line summary of its id, state and coordinator.
type ForceDumpCommand struct {
	Ui cli.Ui
}

func (c *ForceDumpCommand) Help() string {
	helpText := `
Usage: partex force-dump [options]

  Requests a diagnostic dump of the agent's currently running exchange.

Options:

  -rpc-addr=127.0.0.1:7473  RPC address of the partex agent.
`
	return strings.TrimSpace(helpText)
}

func (c *ForceDumpCommand) Run(args []string) int {
	cmdFlags := flag.NewFlagSet("force-dump", flag.ContinueOnError)
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

	dump, err := client.ForceDump()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error requesting dump: %s", err))
		return 1
	}

	c.Ui.Output(dump)
	return 0
}

func (c *ForceDumpCommand) Synopsis() string {
	return "Dumps diagnostic state of the agent's current exchange"
}
