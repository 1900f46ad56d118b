package agent

import (
	"bytes"

	gsyslog "github.com/hashicorp/go-syslog"
	"github.com/hashicorp/logutils"
)

// SyslogWrapper bridges a filtered log.Logger into syslog, using go-syslog
// rather than stdlib log/syslog so facility selection and platform
// portability carry over across targets.
type SyslogWrapper struct {
	Logger gsyslog.Syslogger
	Filter *logutils.LevelFilter
}

// Write extracts the bracketed log level prefix the standard logger emits
// and maps it onto a syslog priority, dropping anything the filter would
// have discarded.
func (s *SyslogWrapper) Write(p []byte) (int, error) {
	var level logutils.LogLevel
	x := bytes.IndexByte(p, '[')
	if x >= 0 {
		y := bytes.IndexByte(p[x:], ']')
		if y >= 0 {
			level = logutils.LogLevel(p[x+1 : x+y])
		}
	}

	if !s.Filter.Check(p) {
		return 0, nil
	}

	priority := gsyslog.LOG_NOTICE
	switch level {
	case "DEBUG":
		priority = gsyslog.LOG_DEBUG
	case "INFO":
		priority = gsyslog.LOG_INFO
	case "WARN":
		priority = gsyslog.LOG_WARNING
	case "ERR":
		priority = gsyslog.LOG_ERR
	}

	err := s.Logger.WriteLevel(priority, p)
	return len(p), err
}
