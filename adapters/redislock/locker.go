// Package redislock serializes drain sweeps across processes with a redis
// SET NX lease that the holder renews while it sweeps.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "go-webhooks:drain:"

// releaseScript deletes the key only while it still holds our token, so a
// lease that expired and was taken by another process is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// renewScript extends the key only while it still holds our token.
const renewScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

// Client is the subset of redis commands the locker uses. *redis.Client,
// *redis.ClusterClient and redis.UniversalClient all satisfy it.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Locker struct {
	client    Client
	keyPrefix string
	newToken  func() string
}

type Option func(*Locker)

func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			l.keyPrefix = trimmed
		}
	}
}

func New(client Client, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("redislock: client is required")
	}
	locker := &Locker{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		newToken:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(locker)
		}
	}
	return locker, nil
}

// Dial connects to redis and checks the connection before returning.
func Dial(ctx context.Context, cfg Config) (*Locker, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redislock: redis connection failed: %w", err)
	}
	locker, err := New(client, WithKeyPrefix(cfg.KeyPrefix))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return locker, client, nil
}

func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (core.DrainLease, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, fmt.Errorf("redislock: locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, fmt.Errorf("redislock: lock key is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	fullKey := l.keyPrefix + key
	token := l.newToken()

	acquired, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redislock: acquire %q: %w", fullKey, err)
	}
	if !acquired {
		return nil, false, nil
	}
	return &lease{client: l.client, key: fullKey, token: token}, true, nil
}

type lease struct {
	client Client
	key    string
	token  string
}

func (s *lease) Renew(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	renewed, err := s.client.Eval(ctx, renewScript, []string{s.key}, s.token, ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redislock: renew %q: %w", s.key, err)
	}
	if renewed == 0 {
		return core.ErrDrainLeaseLost
	}
	return nil
}

func (s *lease) Release(ctx context.Context) error {
	if err := s.client.Eval(ctx, releaseScript, []string{s.key}, s.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redislock: release %q: %w", s.key, err)
	}
	return nil
}

var _ core.DrainLocker = (*Locker)(nil)
