// Package metrics holds the service's metric instruments: OpenTelemetry
// instruments for the HTTP layer, prometheus instruments for billing.
package metrics

// Config carries the identity labels stamped on every instrument.
type Config struct {
	ServiceName string
	Environment string
}
