// Package endpoint provides the probe, metrics and version handlers.
package endpoint

// Default paths.
const (
	PathHealth  = "/healthz"
	PathLive    = "/livez"
	PathReady   = "/readyz"
	PathMetrics = "/metrics"
	PathVersion = "/version"
)
