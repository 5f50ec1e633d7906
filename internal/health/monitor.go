package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/paywatch/internal/infra/rpc/provider"
	"github.com/vietddude/paywatch/internal/metrics"
)

// Pinger is a backend that can report its own health.
type Pinger interface {
	Health(ctx context.Context) error
}

// HeadFetcher reads the chain head.
type HeadFetcher interface {
	GetLatestBlock(ctx context.Context) (uint64, error)
	Network() string
}

// ProviderStatsSource exposes per-provider monitor stats.
type ProviderStatsSource interface {
	GetProviderStats() map[string]provider.MonitorStats
}

// Monitor aggregates health status from the store, the ledger and its providers.
type Monitor struct {
	store     Pinger
	ledger    HeadFetcher
	providers ProviderStatsSource
	ttl       time.Duration
	now       func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor. providers may be nil.
func NewMonitor(store Pinger, ledger HeadFetcher, providers ProviderStatsSource) *Monitor {
	return &Monitor{
		store:     store,
		ledger:    ledger,
		providers: providers,
		ttl:       10 * time.Second,
		now:       time.Now,
	}
}

// CheckHealth checks every dependency. Results are reused for a few seconds
// so health polling does not turn into node traffic.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < m.ttl {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Network:      m.ledger.Network(),
		Components:   make(map[string]ComponentHealth),
	}

	// 1. Store
	start := m.now()
	store := ComponentHealth{Status: StatusHealthy}
	if err := m.store.Health(ctx); err != nil {
		store.Status = StatusCritical
		store.Error = err.Error()
	}
	store.Latency = m.now().Sub(start)
	report.Components["store"] = store

	// 2. Ledger head
	start = m.now()
	ledger := ComponentHealth{Status: StatusHealthy}
	if head, err := m.ledger.GetLatestBlock(ctx); err != nil {
		ledger.Status = StatusDegraded
		ledger.Error = err.Error()
	} else {
		report.LatestBlock = head
		metrics.ChainLatestBlock.WithLabelValues(report.Network).Set(float64(head))
	}
	ledger.Latency = m.now().Sub(start)

	// 3. Providers: all of them throttled or blocked degrades the ledger
	if m.providers != nil {
		stats := m.providers.GetProviderStats()
		report.Providers = make(map[string]string, len(stats))
		usable := 0
		for name, s := range stats {
			report.Providers[name] = s.Status.String()
			if s.Status == provider.StatusHealthy || s.Status == provider.StatusDegraded {
				usable++
			}
		}
		if len(stats) > 0 && usable == 0 {
			ledger.Status = StatusDegraded
			if ledger.Error == "" {
				ledger.Error = "no usable provider"
			}
		}
	}
	report.Components["ledger"] = ledger

	// Worst component wins
	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if c.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = m.now()
	m.lastReport = report
	return report
}
