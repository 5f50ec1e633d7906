// Package provider implements ledger node endpoints.
//
// This package contains:
//   - Provider interface: core abstraction for a node endpoint
//   - HTTPProvider: REST over HTTP, or a custom call per endpoint
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"time"
)

// Operation represents a call to execute against a node.
// It abstracts the wire style so routing and retry stay transport-agnostic.
type Operation struct {
	// Name identifies the operation: a REST path ("wallet/gettransactioninfobyid")
	// or a method name for custom calls ("eth_getTransactionReceipt").
	Name string

	// Params is the REST body.
	Params any

	// IsREST selects a REST call against the provider endpoint.
	IsREST bool

	// RESTMethod is the HTTP method for REST calls. Defaults to POST.
	RESTMethod string

	// Invoke, when set, replaces the HTTP exchange entirely. It receives the
	// provider selected by the router so callers can pick a per-endpoint client.
	Invoke func(ctx context.Context, p Provider) (any, error)
}

// Provider defines the interface for any node endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "trongrid", "nile")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Execute performs the operation with monitoring and error handling
	Execute(ctx context.Context, op Operation) (any, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
