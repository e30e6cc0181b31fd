package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockUnavailable is returned when the lock backend cannot be reached
var ErrLockUnavailable = errors.New("cache: renewal lock unavailable")

const defaultLockKeyPrefix = "marketsync:renewal:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another process is never released by us
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// lockClient is the subset of *redis.Client the locker uses
type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisRenewalLocker implements RenewalLocker with SET NX PX, so renewals
// are serialized across processes. The TTL bounds how long a crashed holder
// can block others.
type RedisRenewalLocker struct {
	client        lockClient
	keyPrefix     string
	ttl           time.Duration
	retryInterval time.Duration
	clock         integration.Clock
	logger        *zap.Logger
}

// RedisLockerOption configures a RedisRenewalLocker
type RedisLockerOption func(*RedisRenewalLocker)

// WithLockTTL sets the lock expiry
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisRenewalLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets how often a blocked caller polls
func WithRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisRenewalLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithLockClock sets the clock used between polls
func WithLockClock(c integration.Clock) RedisLockerOption {
	return func(l *RedisRenewalLocker) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLockLogger sets the logger
func WithLockLogger(logger *zap.Logger) RedisLockerOption {
	return func(l *RedisRenewalLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisRenewalLocker creates a locker on an existing client
func NewRedisRenewalLocker(client *redis.Client, opts ...RedisLockerOption) *RedisRenewalLocker {
	return newRedisRenewalLocker(client, opts...)
}

func newRedisRenewalLocker(client lockClient, opts ...RedisLockerOption) *RedisRenewalLocker {
	l := &RedisRenewalLocker{
		client:        client,
		keyPrefix:     defaultLockKeyPrefix,
		ttl:           30 * time.Second,
		retryInterval: 200 * time.Millisecond,
		clock:         timerClock{},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls until the key is acquired or ctx is done
func (l *RedisRenewalLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if acquired {
			break
		}
		if err := l.clock.Sleep(ctx, l.retryInterval); err != nil {
			return nil, err
		}
	}

	return func() {
		// The caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("Failed to release renewal lock",
				zap.String("key", redisKey),
				zap.Error(err),
			)
		}
	}, nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// timerClock sleeps on the wall clock
type timerClock struct{}

func (timerClock) Now() time.Time {
	return time.Now().UTC()
}

func (timerClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ensure RedisRenewalLocker implements RenewalLocker
var _ integration.RenewalLocker = (*RedisRenewalLocker)(nil)
