package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// LoggerName is the root name handed to logger providers.
const LoggerName = "hooks"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(LoggerName, provider, logger)
}

// Component returns the logger for one part of the webhook stack, named
// "hooks.<component>" when a provider is available.
func Component(provider glog.LoggerProvider, logger glog.Logger, component string) glog.Logger {
	name := LoggerName
	if component = strings.TrimSpace(component); component != "" {
		name += "." + component
	}
	_, resolved := glog.Resolve(name, provider, logger)
	return resolved
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the queue worker logger and returns go-job adapters
// for it.
func ResolveForJob(
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, _ := Resolve(provider, logger)
	jobs := Component(provider, logger, "jobs")
	return jobs, ToJobProvider(resolvedProvider), ToJobLogger(jobs)
}
