// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Each component gets its own struct of collectors, registered on a
// caller-supplied Registerer so tests can use a private registry.
package metrics
