// Package cache wraps a Ledger with caching for reads that rarely change:
// token decimals and the chain head.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/chain"
	"github.com/vietddude/paywatch/internal/metrics"
)

// DecimalsStore persists token precisions.
type DecimalsStore interface {
	GetDecimals(ctx context.Context, key string) (int32, bool, error)
	SetDecimals(ctx context.Context, key string, decimals int32, ttl time.Duration) error
}

// CachedLedger caches ReadTokenDecimals and GetLatestBlock of a Ledger.
// Receipts pass through untouched: an absent receipt may appear at any moment.
type CachedLedger struct {
	chain.Ledger

	store       DecimalsStore
	backend     string
	decimalsTTL time.Duration
	group       singleflight.Group
	log         *slog.Logger

	headTTL  time.Duration
	mu       sync.RWMutex
	head     uint64
	cachedAt time.Time
}

// NewCachedLedger wraps ledger. backend labels cache metrics ("memory", "redis").
func NewCachedLedger(ledger chain.Ledger, store DecimalsStore, backend string, decimalsTTL, headTTL time.Duration) *CachedLedger {
	return &CachedLedger{
		Ledger:      ledger,
		store:       store,
		backend:     backend,
		decimalsTTL: decimalsTTL,
		headTTL:     headTTL,
		log:         slog.Default().With("component", "cache", "backend", backend),
	}
}

// ReadTokenDecimals serves from the store, falling back to the ledger.
// Concurrent misses for one token share a single ledger read.
func (c *CachedLedger) ReadTokenDecimals(ctx context.Context, token string) (int32, error) {
	key := c.Network() + ":" + token

	if d, ok, err := c.store.GetDecimals(ctx, key); err != nil {
		// A broken cache must not block confirmations.
		c.log.Warn("decimals cache read failed", "token", token, "error", err)
	} else if ok {
		metrics.DecimalsCacheTotal.WithLabelValues(c.backend, "hit").Inc()
		return d, nil
	}
	metrics.DecimalsCacheTotal.WithLabelValues(c.backend, "miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		d, err := c.Ledger.ReadTokenDecimals(ctx, token)
		if err != nil {
			return int32(0), err
		}
		if err := c.store.SetDecimals(ctx, key, d, c.decimalsTTL); err != nil {
			c.log.Warn("decimals cache write failed", "token", token, "error", err)
		}
		return d, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int32), nil
}

// GetLatestBlock returns the cached chain head if within TTL, otherwise fetches fresh.
func (c *CachedLedger) GetLatestBlock(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.headTTL && c.head > 0 {
		head := c.head
		c.mu.RUnlock()
		return head, nil
	}
	c.mu.RUnlock()

	head, err := c.Ledger.GetLatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	metrics.ChainLatestBlock.WithLabelValues(c.Network()).Set(float64(head))

	c.mu.Lock()
	c.head = head
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return head, nil
}

// GetTransactionReceipt is never cached.
func (c *CachedLedger) GetTransactionReceipt(ctx context.Context, txID string) (*domain.Receipt, error) {
	return c.Ledger.GetTransactionReceipt(ctx, txID)
}

// MemoryStore is an in-process DecimalsStore with per-entry expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	decimals  int32
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetDecimals(_ context.Context, key string) (int32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return 0, false, nil
	}
	return e.decimals, true, nil
}

func (s *MemoryStore) SetDecimals(_ context.Context, key string, decimals int32, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{decimals: decimals, expiresAt: s.now().Add(ttl)}
	return nil
}
