package provider

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting
	StatusBlocked                         // Provider has blocked this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	}
	return "unknown"
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status            ProviderStatus `json:"status"`
	AverageLatency    time.Duration  `json:"average_latency"`
	ThrottleCount429  int            `json:"throttle_count_429"`
	ThrottleCount403  int            `json:"throttle_count_403"`
	RequestsLast1Hour int            `json:"requests_last_1h"`
	RetryAfter        time.Duration  `json:"retry_after"`
}

const (
	latencyWindow         = 50
	slowResponseThreshold = 3 * time.Second
	defaultThrottleWait   = time.Minute
	blockWait             = 10 * time.Minute
)

// throttlePatterns are substrings node operators put in 200/500 bodies when rate limiting.
var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"daily request count exceeded",
	"exceeds the frequency limit",
	"apikey",
	"monthly quota exceeded",
}

// ProviderMonitor tracks provider latency and rate limiting.
type ProviderMonitor struct {
	mu sync.RWMutex

	latencies [latencyWindow]time.Duration
	latencyN  int
	latencyAt int

	status429Count int
	status403Count int
	throttledUntil time.Time
	blockedUntil   time.Time

	requests []time.Time

	now func() time.Time
}

// NewProviderMonitor creates a new monitor.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{now: time.Now}
}

// RecordRequest records a successful request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.latencies[pm.latencyAt] = latency
	pm.latencyAt = (pm.latencyAt + 1) % latencyWindow
	if pm.latencyN < latencyWindow {
		pm.latencyN++
	}

	now := pm.now()
	pm.requests = append(pm.requests, now)
	pm.pruneLocked(now)
}

// RecordThrottle records a 429 or 403 response. retryAfter is the raw
// Retry-After header value (seconds); empty means the default wait.
func (pm *ProviderMonitor) RecordThrottle(statusCode int, retryAfter string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := pm.now()
	switch statusCode {
	case 429:
		pm.status429Count++
		wait := defaultThrottleWait
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		pm.throttledUntil = now.Add(wait)
	case 403:
		pm.status403Count++
		pm.blockedUntil = now.Add(blockWait)
	}
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range throttlePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked(pm.now())
}

// GetRetryAfter returns remaining time before the provider should be used again.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.retryAfterLocked(pm.now())
}

// GetAverageLatency returns the average latency of recent requests.
func (pm *ProviderMonitor) GetAverageLatency() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.avgLatencyLocked()
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	now := pm.now()
	cutoff := now.Add(-time.Hour)
	recent := 0
	for _, t := range pm.requests {
		if t.After(cutoff) {
			recent++
		}
	}

	return MonitorStats{
		Status:            pm.statusLocked(now),
		AverageLatency:    pm.avgLatencyLocked(),
		ThrottleCount429:  pm.status429Count,
		ThrottleCount403:  pm.status403Count,
		RequestsLast1Hour: recent,
		RetryAfter:        pm.retryAfterLocked(now),
	}
}

func (pm *ProviderMonitor) statusLocked(now time.Time) ProviderStatus {
	if now.Before(pm.blockedUntil) {
		return StatusBlocked
	}
	if now.Before(pm.throttledUntil) {
		return StatusThrottled
	}
	if pm.latencyN >= 10 && pm.avgLatencyLocked() > slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (pm *ProviderMonitor) retryAfterLocked(now time.Time) time.Duration {
	until := pm.throttledUntil
	if pm.blockedUntil.After(until) {
		until = pm.blockedUntil
	}
	if d := until.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (pm *ProviderMonitor) avgLatencyLocked() time.Duration {
	if pm.latencyN == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < pm.latencyN; i++ {
		total += pm.latencies[i]
	}
	return total / time.Duration(pm.latencyN)
}

func (pm *ProviderMonitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(pm.requests) && !pm.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		pm.requests = append(pm.requests[:0], pm.requests[i:]...)
	}
}
