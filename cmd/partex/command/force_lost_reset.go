package command

import (
	"flag"
	"fmt"
	"strings"

	"github.com/mitchellh/cli"
)

// ForceLostResetCommand clears LOST marks on a cache group's partitions,
// a manual recovery escape hatch for an operator who has re-established
// ownership out of band.
type ForceLostResetCommand struct {
	Ui cli.Ui
}

func (c *ForceLostResetCommand) Help() string {
	helpText := `
Usage: partex force-lost-reset [options] <group>

  Clears LOST partition marks for the named cache group.

Options:

  -rpc-addr=127.0.0.1:7473  RPC address of the partex agent.
`
	return strings.TrimSpace(helpText)
}

func (c *ForceLostResetCommand) Run(args []string) int {
	cmdFlags := flag.NewFlagSet("force-lost-reset", flag.ContinueOnError)
	cmdFlags.Usage = func() { c.Ui.Output(c.Help()) }
	rpcAddr := RPCAddrFlag(cmdFlags)
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}
	if cmdFlags.NArg() != 1 {
		c.Ui.Error("Exactly one cache group name is required")
		return 1
	}
	group := cmdFlags.Arg(0)

	client, err := RPCClient(*rpcAddr)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error connecting to partex agent: %s", err))
		return 1
	}
	defer client.Close()

	if err := client.ForceLostReset(group); err != nil {
		c.Ui.Error(fmt.Sprintf("Error resetting lost partitions: %s", err))
		return 1
	}

	c.Ui.Output(fmt.Sprintf("Reset lost partitions for group %s", group))
	return 0
}

func (c *ForceLostResetCommand) Synopsis() string {
	return "Clears LOST partition marks for a cache group"
}
