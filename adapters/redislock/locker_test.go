package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-webhooks/core"
	"github.com/redis/go-redis/v9"
)

type stubClient struct {
	values   map[string]any
	ttl      time.Duration
	evalKeys []string
	evalArgs []any
	setErr   error
}

func newStubClient() *stubClient {
	return &stubClient{values: map[string]any{}}
}

func (c *stubClient) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if c.setErr != nil {
		return redis.NewBoolResult(false, c.setErr)
	}
	if _, exists := c.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	c.values[key] = value
	c.ttl = expiration
	return redis.NewBoolResult(true, nil)
}

func (c *stubClient) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	c.evalKeys = keys
	c.evalArgs = args
	if len(keys) != 1 || len(args) == 0 || c.values[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	if script == renewScript {
		c.ttl = time.Duration(args[1].(int64)) * time.Millisecond
		return redis.NewCmdResult(int64(1), nil)
	}
	delete(c.values, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestLocker_SingleHolderUntilRelease(t *testing.T) {
	client := newStubClient()
	locker, err := New(client, WithKeyPrefix("test:"))
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	ctx := context.Background()

	lease, acquired, err := locker.TryAcquire(ctx, "queue", 30*time.Second)
	if err != nil || !acquired {
		t.Fatalf("expected first acquire to succeed, got acquired=%v err=%v", acquired, err)
	}
	if client.ttl != 30*time.Second {
		t.Fatalf("expected ttl to be forwarded, got %s", client.ttl)
	}
	if _, ok := client.values["test:queue"]; !ok {
		t.Fatalf("expected prefixed key, got %#v", client.values)
	}

	_, acquired, err = locker.TryAcquire(ctx, "queue", time.Second)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if acquired {
		t.Fatalf("expected second acquire to be refused while held")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(client.evalArgs) != 1 || client.evalKeys[0] != "test:queue" {
		t.Fatalf("expected token-checked release, got keys=%v args=%v", client.evalKeys, client.evalArgs)
	}
	if _, acquired, _ := locker.TryAcquire(ctx, "queue", time.Second); !acquired {
		t.Fatalf("expected acquire after release to succeed")
	}
}

func TestLocker_RenewExtendsOnlyOwnLease(t *testing.T) {
	client := newStubClient()
	locker, err := New(client, WithKeyPrefix("test:"))
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	ctx := context.Background()

	lease, acquired, err := locker.TryAcquire(ctx, "queue", time.Second)
	if err != nil || !acquired {
		t.Fatalf("expected acquire, got acquired=%v err=%v", acquired, err)
	}
	if err := lease.Renew(ctx, 45*time.Second); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if client.ttl != 45*time.Second {
		t.Fatalf("expected renewed ttl 45s, got %s", client.ttl)
	}

	client.values["test:queue"] = "someone-else"
	if err := lease.Renew(ctx, time.Second); !errors.Is(err, core.ErrDrainLeaseLost) {
		t.Fatalf("expected lease lost once another holder owns the key, got %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if client.values["test:queue"] != "someone-else" {
		t.Fatalf("expected release to leave the other holder alone")
	}
}

func TestLocker_PropagatesRedisErrors(t *testing.T) {
	client := newStubClient()
	client.setErr = errors.New("connection refused")
	locker, err := New(client)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	if _, _, err := locker.TryAcquire(context.Background(), "queue", time.Second); err == nil {
		t.Fatalf("expected redis error to propagate")
	}
}

func TestLocker_Validation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected nil client to fail")
	}
	locker, _ := New(newStubClient())
	if _, _, err := locker.TryAcquire(context.Background(), " ", time.Second); err == nil {
		t.Fatalf("expected empty key to fail")
	}
}
