package cache

import (
	"fmt"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RenewalLockerFactory creates renewal lockers based on configuration
type RenewalLockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	connect               func(config.RedisConfig) (*redis.Client, error)
}

// RenewalLockerFactoryOption is a functional option for configuring the factory
type RenewalLockerFactoryOption func(*RenewalLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RenewalLockerFactoryOption {
	return func(f *RenewalLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory locker
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) RenewalLockerFactoryOption {
	return func(f *RenewalLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRenewalLockerFactory creates a new factory
func NewRenewalLockerFactory(cfg config.RedisConfig, opts ...RenewalLockerFactoryOption) *RenewalLockerFactory {
	f := &RenewalLockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		connect:               NewRedisClient,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create returns a Redis locker when Redis is enabled and reachable, and the
// in-memory locker otherwise. The returned close func releases the client.
func (f *RenewalLockerFactory) Create() (integration.RenewalLocker, func() error, error) {
	noop := func() error { return nil }

	if !f.redisConfig.Enabled {
		f.logger.Info("Using in-memory renewal locker")
		return NewInMemoryRenewalLocker(), noop, nil
	}

	client, err := f.connect(f.redisConfig)
	if err == nil {
		f.logger.Info("Using Redis renewal locker", zap.String("addr", f.redisConfig.Addr()))
		locker := NewRedisRenewalLocker(client,
			WithLockTTL(f.redisConfig.LockTTL),
			WithLockLogger(f.logger),
		)
		return locker, client.Close, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("Redis required for renewal locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory renewal locker. "+
		"Concurrent processes may renew the same store twice.",
		zap.Error(err),
	)
	return NewInMemoryRenewalLocker(), noop, nil
}
