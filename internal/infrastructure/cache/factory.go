package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreFactory builds the payment idempotency store and the generation locker.
// With Redis enabled both share one client; otherwise both live in process memory.
type StoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	client *redis.Client
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when
// Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cfg config.RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect opens the Redis client when Redis is enabled. A connection failure
// is returned only when in-memory fallback is disabled.
func (f *StoreFactory) Connect(ctx context.Context) error {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory idempotency store and locks")
		return nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.client = client
		f.logger.Info("Using Redis idempotency store and locks", zap.String("addr", f.redisConfig.Addr()))
		return nil
	}

	if !f.allowInMemoryFallback {
		return fmt.Errorf("redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store and locks. "+
		"Payments may be applied twice and bills generated concurrently across instances.",
		zap.Error(err),
	)
	return nil
}

// UsesRedis reports whether the stores are backed by Redis
func (f *StoreFactory) UsesRedis() bool {
	return f.client != nil
}

// IdempotencyStore returns the payment idempotency store
func (f *StoreFactory) IdempotencyStore() shared.IdempotencyStore {
	if f.client != nil {
		return NewRedisIdempotencyStore(f.client, defaultIdempotencyKeyPrefix)
	}
	return NewInMemoryIdempotencyStore()
}

// Locker returns the bill generation locker
func (f *StoreFactory) Locker() Locker {
	if f.client != nil {
		return NewRedisLocker(f.client, defaultLockKeyPrefix)
	}
	return NewInMemoryLocker()
}

// Ping checks the Redis connection; always nil without Redis
func (f *StoreFactory) Ping(ctx context.Context) error {
	if f.client == nil {
		return nil
	}
	return f.client.Ping(ctx).Err()
}

// Close closes the shared Redis client
func (f *StoreFactory) Close() error {
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
