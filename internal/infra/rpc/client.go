package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/paywatch/internal/infra/rpc/provider"
	"github.com/vietddude/paywatch/internal/infra/rpc/routing"
	"github.com/vietddude/paywatch/internal/metrics"
)

// Client is the high-level interface for node calls.
// This is what chain adapters should use.
type Client struct {
	network string
	router  routing.Router
	retry   routing.RetryConfig
	log     *slog.Logger
}

// NewClient creates a new client for one network.
func NewClient(network string, router routing.Router) *Client {
	return &Client{
		network: network,
		router:  router,
		retry:   routing.DefaultRetryConfig,
		log:     slog.Default().With("component", "rpc", "network", network),
	}
}

// WithRetry overrides the retry policy.
func (c *Client) WithRetry(cfg routing.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Execute runs op with retry on each provider and failover across providers.
func (c *Client) Execute(ctx context.Context, op Operation) (any, error) {
	opName := operationLabel(op)

	result, err := routing.ExecuteWithFailover(ctx, c.router, c.network, op, c.retry,
		func(providerName string, latency time.Duration, err error) {
			metrics.RPCCallsTotal.WithLabelValues(c.network, providerName, opName).Inc()
			metrics.RPCLatency.WithLabelValues(c.network, providerName, opName).Observe(latency.Seconds())
			if err != nil {
				action := routing.ClassifyError(err)
				metrics.RPCErrorsTotal.WithLabelValues(c.network, providerName, action.String()).Inc()
				c.log.Warn("node call failed",
					"provider", providerName,
					"operation", opName,
					"action", action.String(),
					"error", err,
				)
			}
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	return result, nil
}

// GetProviderStats returns monitoring stats for all HTTP providers.
func (c *Client) GetProviderStats() map[string]provider.MonitorStats {
	stats := make(map[string]provider.MonitorStats)
	for _, p := range c.router.GetAllProviders(c.network) {
		if h := p.GetHealth(); h.MonitorStats != nil {
			stats[p.GetName()] = *h.MonitorStats
		}
	}
	return stats
}

// Dashboard returns a formatted provider summary for the status command.
func (c *Client) Dashboard() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Node providers (%s) ===\n", c.network)

	for name, stats := range c.GetProviderStats() {
		fmt.Fprintf(&sb, "Provider: %s\n", name)
		fmt.Fprintf(&sb, "  Status: %s\n", stats.Status)
		fmt.Fprintf(&sb, "  Avg Latency: %v\n", stats.AverageLatency)
		fmt.Fprintf(&sb, "  Requests (1h): %d\n", stats.RequestsLast1Hour)
		fmt.Fprintf(&sb, "  429/403: %d/%d\n", stats.ThrottleCount429, stats.ThrottleCount403)
		if stats.RetryAfter > 0 {
			fmt.Fprintf(&sb, "  Retry After: %v\n", stats.RetryAfter.Round(time.Second))
		}
	}
	return sb.String()
}

// Close releases every provider.
func (c *Client) Close() error {
	for _, p := range c.router.GetAllProviders(c.network) {
		_ = p.Close()
	}
	return nil
}

// operationLabel keeps metric cardinality bounded: REST paths and method names only.
func operationLabel(op Operation) string {
	if op.Name == "" {
		return "custom"
	}
	return strings.TrimLeft(op.Name, "/")
}
