package command

import (
	"flag"
	"fmt"
	"strings"

	"github.com/mitchellh/cli"
	"github.com/ryanuber/columnize"
)

// MembersCommand queries a running agent for its current server set,
// grounded on command/members.go.
type MembersCommand struct {
	Ui cli.Ui
}

func (c *MembersCommand) Help() string {
	helpText := `
Usage: partex members [options]

  Outputs the members of a running partex agent.

Options:

  -rpc-addr=127.0.0.1:7473  RPC address of the partex agent.
`
	return strings.TrimSpace(helpText)
}

func (c *MembersCommand) Run(args []string) int {
	cmdFlags := flag.NewFlagSet("members", flag.ContinueOnError)
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

	members, err := client.Members()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error retrieving members: %s", err))
		return 1
	}

	lines := make([]string, 0, len(members))
	for _, m := range members {
		role := "client"
		if m.Server {
			role = "server"
		}
		lines = append(lines, fmt.Sprintf("%s | %s", m.Name, role))
	}
	out, _ := columnize.SimpleFormat(lines)
	c.Ui.Output(out)
	return 0
}

func (c *MembersCommand) Synopsis() string {
	return "Lists the members of a partex cluster"
}
