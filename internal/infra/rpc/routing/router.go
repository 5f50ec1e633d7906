// Package routing handles provider selection and failover.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: round-robin selection with a per-provider circuit breaker
//   - Retry: exponential backoff and failover across providers
package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/paywatch/internal/infra/rpc/provider"
)

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider for a network
	AddProvider(network string, p provider.Provider)

	// GetProvider returns the next usable provider for a network
	GetProvider(network string) (provider.Provider, error)

	// GetAllProviders returns the network's providers in failover order,
	// starting with the next round-robin pick and ending with open circuits
	GetAllProviders(network string) []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

const (
	circuitThreshold = 5
	circuitCooldown  = 30 * time.Second
)

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpen      bool
}

// usable reports whether calls may go to the provider; an open circuit
// lets one trial call through after the cooldown.
func (m *providerMetrics) usable(now time.Time) bool {
	return !m.circuitOpen || now.Sub(m.lastFailureAt) >= circuitCooldown
}

// DefaultRouter implements round-robin provider selection with a circuit breaker.
type DefaultRouter struct {
	mu             sync.Mutex
	chainProviders map[string][]provider.Provider
	providerHealth map[string]*providerMetrics
	next           map[string]int
	now            func() time.Time
}

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		chainProviders: make(map[string][]provider.Provider),
		providerHealth: make(map[string]*providerMetrics),
		next:           make(map[string]int),
		now:            time.Now,
	}
}

// AddProvider registers a provider for a network.
func (r *DefaultRouter) AddProvider(network string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chainProviders[network] = append(r.chainProviders[network], p)
	r.providerHealth[p.GetName()] = &providerMetrics{}
}

// GetProvider returns the next usable provider for a network.
func (r *DefaultRouter) GetProvider(network string) (provider.Provider, error) {
	ordered := r.GetAllProviders(network)
	if len(ordered) == 0 {
		return nil, fmt.Errorf("no providers for network %s", network)
	}
	if !r.isUsable(ordered[0]) {
		return nil, fmt.Errorf("no available providers for network %s", network)
	}
	return ordered[0], nil
}

// GetAllProviders returns providers in failover order and advances the round-robin cursor.
func (r *DefaultRouter) GetAllProviders(network string) []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	providers := r.chainProviders[network]
	n := len(providers)
	if n == 0 {
		return nil
	}

	start := r.next[network] % n
	r.next[network] = (start + 1) % n

	now := r.now()
	usable := make([]provider.Provider, 0, n)
	var deferred []provider.Provider
	for i := 0; i < n; i++ {
		p := providers[(start+i)%n]
		if r.usableLocked(p, now) {
			usable = append(usable, p)
		} else {
			deferred = append(deferred, p)
		}
	}
	return append(usable, deferred...)
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}
	m.successCount++
	m.totalLatency += latency
	m.consecutiveFails = 0
	m.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}
	m.failureCount++
	m.lastFailureAt = r.now()
	m.consecutiveFails++
	if m.consecutiveFails >= circuitThreshold {
		m.circuitOpen = true
	}
}

// CircuitOpen reports whether the provider's circuit is currently open.
func (r *DefaultRouter) CircuitOpen(providerName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.providerHealth[providerName]
	return ok && m.circuitOpen
}

func (r *DefaultRouter) isUsable(p provider.Provider) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usableLocked(p, r.now())
}

func (r *DefaultRouter) usableLocked(p provider.Provider, now time.Time) bool {
	if !p.IsAvailable() {
		return false
	}
	m, ok := r.providerHealth[p.GetName()]
	return !ok || m.usable(now)
}
