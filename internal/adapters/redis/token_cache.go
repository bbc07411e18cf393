package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewClient creates a go-redis client from cfg.
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// TokenCache implements ports.TokenCache on Redis, so every instance of
// the service shares one cache.
type TokenCache struct {
	client *goredis.Client
	prefix string
	logger *zap.Logger
}

var _ ports.TokenCache = (*TokenCache)(nil)

// NewTokenCache creates a new Redis token cache
func NewTokenCache(client *goredis.Client, prefix string, logger *zap.Logger) *TokenCache {
	return &TokenCache{client: client, prefix: prefix, logger: logger}
}

// Get implements ports.TokenCache
func (c *TokenCache) Get(ctx context.Context, key string) ([]*domain.PaymentToken, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var tokens []*domain.PaymentToken
	if err := json.Unmarshal(raw, &tokens); err != nil {
		// A corrupt entry behaves as a miss and is dropped.
		c.logger.Warn("Discarding unreadable token cache entry",
			zap.String("key", key),
			zap.Error(err))
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return nil, false, nil
	}
	return tokens, true, nil
}

// Set implements ports.TokenCache
func (c *TokenCache) Set(ctx context.Context, key string, tokens []*domain.PaymentToken, ttl time.Duration) error {
	if tokens == nil {
		tokens = []*domain.PaymentToken{}
	}
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements ports.TokenCache
func (c *TokenCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *TokenCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}
