package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger names used across the daemon.
const (
	ComponentDaemon    = "webhooksd"
	ComponentService   = "webhooks.service"
	ComponentTransport = "webhooks.transport"
	ComponentInbound   = "webhooks.inbound"
	ComponentDrain     = "webhooks.drain"
	ComponentBurst     = "webhooks.burst"
	ComponentKafka     = "webhooks.kafka"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Component returns the logger for one part of the pipeline. It never
// returns nil.
func Component(provider glog.LoggerProvider, name string) glog.Logger {
	_, logger := Resolve(name, provider, nil)
	return glog.Ensure(logger)
}

// DrainJobLoggers resolves the drain logger once and bridges it to go-job,
// so queue workers and the drain worker log under the same name.
func DrainJobLoggers(provider glog.LoggerProvider, logger glog.Logger) (glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolved := Resolve(ComponentDrain, provider, logger)
	var jobProvider job.LoggerProvider
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	var jobLogger job.Logger
	if resolved != nil {
		jobLogger = job.GoLogger(resolved)
	}
	return resolved, jobProvider, jobLogger
}
