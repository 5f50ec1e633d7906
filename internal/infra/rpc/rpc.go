// Package rpc provides a resilient client for ledger node APIs.
//
// This package offers:
//   - Multiple provider support (TronGrid, self-hosted full nodes, EVM RPC endpoints)
//   - Round-robin selection with automatic failover
//   - Retry with exponential backoff
//   - Health monitoring and throttle detection
//
// # Quick Start
//
//	router := rpc.NewRouter()
//	router.AddProvider("tron", rpc.NewHTTPProvider("trongrid", "https://api.trongrid.io", 10*time.Second))
//	router.AddProvider("tron", rpc.NewHTTPProvider("backup", backupURL, 10*time.Second))
//
//	client := rpc.NewClient("tron", router)
//	result, err := client.Execute(ctx, rpc.WalletCall("getnowblock", nil))
//
// # Package Structure
//
//   - provider/ - Provider implementations (HTTPProvider, monitoring)
//   - routing/  - Provider selection, retry and failover
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"context"
	"time"

	"github.com/vietddude/paywatch/internal/infra/rpc/provider"
	"github.com/vietddude/paywatch/internal/infra/rpc/routing"
)

// RPCClient is what chain adapters depend on.
type RPCClient interface {
	Execute(ctx context.Context, op Operation) (any, error)
}

// Provider is the core interface for node endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for REST over HTTP and custom calls.
type HTTPProvider = provider.HTTPProvider

// ProviderStatus represents the health state of a provider.
type ProviderStatus = provider.ProviderStatus

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats = provider.MonitorStats

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// Operation represents a call to execute (transport-agnostic).
type Operation = provider.Operation

// Provider status constants
const (
	StatusHealthy   = provider.StatusHealthy
	StatusDegraded  = provider.StatusDegraded
	StatusThrottled = provider.StatusThrottled
	StatusBlocked   = provider.StatusBlocked
)

// NewHTTPProvider creates a new HTTP provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// Router handles provider selection and health tracking.
type Router = routing.Router

// DefaultRouter implements round-robin selection with circuit breaker.
type DefaultRouter = routing.DefaultRouter

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides request-path retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return routing.NewRouter()
}
