package agent

import (
	"fmt"
	"io"
	"os"
	"strings"

	gsyslog "github.com/hashicorp/go-syslog"
	"github.com/hashicorp/logutils"
)

// setupLogOutput builds the filtered, optionally syslog-tee'd writer every
// log.Logger in the agent is built against, grounded on
// command/agent.Command.setupLoggers.
func setupLogOutput(conf *Config) (io.Writer, error) {
	filter := levelFilter()
	filter.MinLevel = logutils.LogLevel(strings.ToUpper(conf.LogLevel))
	filter.Writer = os.Stderr
	if !validLevel(filter.MinLevel, filter) {
		return nil, fmt.Errorf("agent: invalid log level %q, valid levels are %v", conf.LogLevel, filter.Levels)
	}

	if conf.SyslogFacility == "" {
		return filter, nil
	}

	sink, err := gsyslog.NewLogger(gsyslog.LOG_NOTICE, conf.SyslogFacility, "partex")
	if err != nil {
		return nil, fmt.Errorf("agent: syslog setup: %w", err)
	}
	wrapper := &SyslogWrapper{Logger: sink, Filter: filter}
	return io.MultiWriter(filter, wrapper), nil
}

// validLevel reports whether level is one of the filter's known levels.
func validLevel(level logutils.LogLevel, filter *logutils.LevelFilter) bool {
	for _, l := range filter.Levels {
		if l == level {
			return true
		}
	}
	return false
}
