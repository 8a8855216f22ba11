package main

import (
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// newLogger builds the root go-logger for the daemon. The result is also the
// provider the runtime asks for per-component loggers.
func newLogger(w io.Writer, level, format, name string) *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithWriter(w),
		glog.WithLevel(logLevelName(level)),
		glog.WithName(name),
		loggerType(format),
	)
}

func logLevelName(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "WARNING" {
		return glog.Warn
	}
	return level
}

// loggerType maps --log-format onto a go-logger handler. Unknown formats
// fall back to JSON.
func loggerType(format string) glog.Option {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "console":
		return glog.WithLoggerTypeConsole()
	case "pretty":
		return glog.WithLoggerTypePretty()
	default:
		return glog.WithLoggerTypeJSON()
	}
}
