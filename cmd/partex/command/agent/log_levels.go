package agent

import (
	"io/ioutil"

	"github.com/hashicorp/logutils"
)

// levelFilter returns a LevelFilter configured with the levels this agent
// emits.
func levelFilter() *logutils.LevelFilter {
	return &logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERR"},
		MinLevel: "INFO",
		Writer:   ioutil.Discard,
	}
}
