// Package gologger binds the ingest components to go-logger. Each component
// logs under "ingest.<component>" when a provider is configured.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultLoggerName = "ingest"

// Component names used by the runtime.
const (
	ComponentService   = "service"
	ComponentInbound   = "inbound"
	ComponentOutbox    = "outbox"
	ComponentScheduler = "scheduler"
)

// Resolve picks provider, then logger, then a nop logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if strings.TrimSpace(name) == "" {
		name = DefaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// Loggers hands out component loggers from one resolved provider.
type Loggers struct {
	Provider glog.LoggerProvider
	Root     glog.Logger
}

func NewLoggers(provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, root := Resolve(DefaultLoggerName, provider, logger)
	return Loggers{Provider: resolvedProvider, Root: glog.Ensure(root)}
}

// For returns the logger for component, falling back to Root when the
// provider has nothing under that name.
func (l Loggers) For(component string) glog.Logger {
	component = strings.TrimSpace(component)
	if l.Provider == nil || component == "" {
		return glog.Ensure(l.Root)
	}
	if named := l.Provider.GetLogger(DefaultLoggerName + "." + component); named != nil {
		return named
	}
	return glog.Ensure(l.Root)
}

// ForJob returns go-job views of the same provider and root logger.
func (l Loggers) ForJob() (job.LoggerProvider, job.Logger) {
	var provider job.LoggerProvider
	if l.Provider != nil {
		provider = job.GoLoggerProvider(l.Provider)
	}
	return provider, job.GoLogger(glog.Ensure(l.Root))
}
