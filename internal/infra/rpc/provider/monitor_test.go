package provider

import (
	"testing"
	"time"
)

func newTestMonitor(now *time.Time) *ProviderMonitor {
	m := NewProviderMonitor()
	m.now = func() time.Time { return *now }
	return m
}

func TestMonitor_RequestWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	m.RecordRequest(100 * time.Millisecond)
	for i := 0; i < 9; i++ {
		m.RecordRequest(50 * time.Millisecond)
	}

	stats := m.GetStats()
	if stats.RequestsLast1Hour != 10 {
		t.Errorf("Expected 10 requests, got %d", stats.RequestsLast1Hour)
	}
	if stats.AverageLatency != 55*time.Millisecond {
		t.Errorf("Expected 55ms average, got %v", stats.AverageLatency)
	}

	now = now.Add(2 * time.Hour)
	m.RecordRequest(10 * time.Millisecond)
	if got := m.GetStats().RequestsLast1Hour; got != 1 {
		t.Errorf("Expected old requests pruned, got %d", got)
	}
}

func TestMonitor_Throttle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	m.RecordThrottle(429, "30")
	if s := m.CheckProviderStatus(); s != StatusThrottled {
		t.Fatalf("Expected throttled, got %s", s)
	}
	if d := m.GetRetryAfter(); d != 30*time.Second {
		t.Errorf("Expected 30s retry-after, got %v", d)
	}

	now = now.Add(31 * time.Second)
	if s := m.CheckProviderStatus(); s != StatusHealthy {
		t.Errorf("Expected healthy after retry-after, got %s", s)
	}

	m.RecordThrottle(403, "")
	if s := m.CheckProviderStatus(); s != StatusBlocked {
		t.Errorf("Expected blocked, got %s", s)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	now := time.Now()
	m := newTestMonitor(&now)
	for i := 0; i < 10; i++ {
		m.RecordRequest(5 * time.Second)
	}
	if s := m.CheckProviderStatus(); s != StatusDegraded {
		t.Errorf("Expected degraded, got %s", s)
	}
}

func TestMonitor_DetectThrottlePattern(t *testing.T) {
	m := NewProviderMonitor()
	if !m.DetectThrottlePattern("Error: Too Many Requests") {
		t.Error("expected throttle pattern match")
	}
	if m.DetectThrottlePattern("contract validate error") {
		t.Error("unexpected throttle pattern match")
	}
}
