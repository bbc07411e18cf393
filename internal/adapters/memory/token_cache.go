package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	tokenCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_engine_memory_token_cache_size",
		Help: "Current number of token lists held in the in-process cache",
	})

	tokenCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_engine_memory_token_cache_evictions_total",
		Help: "Total number of cache evictions due to size limit",
	})
)

// TokenCache is an in-process TTL cache of token lists.
//
// Eviction is approximate LRU: when maxSize is exceeded the least recently
// read entries are dropped until the cache is 10% under the limit.
type TokenCache struct {
	entries sync.Map // map[string]*cachedTokens
	logger  *zap.Logger
	maxSize int
	now     func() time.Time
	mu      sync.Mutex
}

type cachedTokens struct {
	tokens     []*domain.PaymentToken
	expiresAt  time.Time
	accessedAt time.Time
	mu         sync.RWMutex
}

// NewTokenCache creates a new in-process token cache
func NewTokenCache(logger *zap.Logger, maxSize int) *TokenCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &TokenCache{
		logger:  logger,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns a copy of the cached list when present and unexpired.
func (c *TokenCache) Get(_ context.Context, key string) ([]*domain.PaymentToken, bool, error) {
	val, ok := c.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	cached := val.(*cachedTokens)
	now := c.now()

	cached.mu.RLock()
	valid := now.Before(cached.expiresAt)
	var tokens []*domain.PaymentToken
	if valid {
		tokens = cloneTokens(cached.tokens)
	}
	cached.mu.RUnlock()

	if !valid {
		c.entries.CompareAndDelete(key, cached)
		c.updateSize()
		return nil, false, nil
	}

	cached.mu.Lock()
	cached.accessedAt = now
	cached.mu.Unlock()

	return tokens, true, nil
}

// Set stores a copy of tokens for ttl.
func (c *TokenCache) Set(_ context.Context, key string, tokens []*domain.PaymentToken, ttl time.Duration) error {
	now := c.now()
	c.entries.Store(key, &cachedTokens{
		tokens:     cloneTokens(tokens),
		expiresAt:  now.Add(ttl),
		accessedAt: now,
	})
	c.evictIfNeeded()
	return nil
}

// Delete invalidates key.
func (c *TokenCache) Delete(_ context.Context, key string) error {
	c.entries.Delete(key)
	c.updateSize()
	return nil
}

// evictIfNeeded drops the least recently read entries once maxSize is exceeded
func (c *TokenCache) evictIfNeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	type entry struct {
		key        string
		accessedAt time.Time
	}

	var entries []entry
	c.entries.Range(func(key, value interface{}) bool {
		cached := value.(*cachedTokens)
		cached.mu.RLock()
		entries = append(entries, entry{key: key.(string), accessedAt: cached.accessedAt})
		cached.mu.RUnlock()
		return true
	})

	if len(entries) <= c.maxSize {
		tokenCacheSize.Set(float64(len(entries)))
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].accessedAt.Before(entries[j].accessedAt)
	})

	evictCount := (len(entries) - c.maxSize) + (c.maxSize / 10)
	for i := 0; i < evictCount && i < len(entries); i++ {
		c.entries.Delete(entries[i].key)
		tokenCacheEvictions.Inc()
	}

	c.logger.Debug("Evicted token cache entries",
		zap.Int("evicted", evictCount),
		zap.Int("max_size", c.maxSize),
	)
	c.updateSize()
}

func (c *TokenCache) updateSize() {
	size := 0
	c.entries.Range(func(key, value interface{}) bool {
		size++
		return true
	})
	tokenCacheSize.Set(float64(size))
}

func cloneTokens(tokens []*domain.PaymentToken) []*domain.PaymentToken {
	out := make([]*domain.PaymentToken, len(tokens))
	for i, t := range tokens {
		out[i] = t.Clone()
	}
	return out
}
