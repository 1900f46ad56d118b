package command

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"flag"
	"fmt"
	"strings"

	"github.com/bgentry/speakeasy"
	"github.com/mitchellh/cli"
)

// KeygenCommand prints a new gossip encryption key, grounded on
// command/keygen.go. With -passphrase it derives the key from an
// interactively (hidden) entered passphrase instead of reading entropy
// directly, so the same key can be reproduced on every node without
// writing it to disk. The agent configuration has no option that reads
// this key; gossip traffic is not encrypted with it.
type KeygenCommand struct {
	Ui cli.Ui
}

func (c *KeygenCommand) Run(args []string) int {
	var usePassphrase bool
	cmdFlags := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmdFlags.Usage = func() { c.Ui.Output(c.Help()) }
	cmdFlags.BoolVar(&usePassphrase, "passphrase", false, "derive the key from a hidden passphrase prompt")
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}

	if usePassphrase {
		pass, err := speakeasy.Ask("Passphrase: ")
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error reading passphrase: %s", err))
			return 1
		}
		sum := sha256.Sum256([]byte(pass))
		c.Ui.Output(base64.StdEncoding.EncodeToString(sum[:16]))
		return 0
	}

	key := make([]byte, 16)
	n, err := rand.Reader.Read(key)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error reading random data: %s", err))
		return 1
	}
	if n != 16 {
		c.Ui.Error("Couldn't read enough entropy. Generate more entropy!")
		return 1
	}

	c.Ui.Output(base64.StdEncoding.EncodeToString(key))
	return 0
}

func (c *KeygenCommand) Synopsis() string {
	return "Generates a new gossip encryption key"
}

func (c *KeygenCommand) Help() string {
	helpText := `
Usage: partex keygen [options]

  Generates a new 16-byte key, printed base64-encoded. The agent
  configuration has no option that reads this key; the agent does not
  encrypt gossip traffic.

Options:

  -passphrase  derive the key from a hidden passphrase prompt instead of
               random entropy
`
	return strings.TrimSpace(helpText)
}
