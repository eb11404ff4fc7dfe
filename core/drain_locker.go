package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryDrainLocker serializes sweeps inside one process. Leases expire after
// their ttl unless renewed, so a sweep that never released does not block
// forever.
type MemoryDrainLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	next   uint64
	now    func() time.Time
}

type memoryLease struct {
	token     uint64
	expiresAt time.Time
}

func NewMemoryDrainLocker() *MemoryDrainLocker {
	return &MemoryDrainLocker{
		leases: map[string]memoryLease{},
		now:    time.Now,
	}
}

func (l *MemoryDrainLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (DrainLease, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("core: drain locker is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, fmt.Errorf("core: drain lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultDrainLockTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if lease, held := l.leases[key]; held && now.Before(lease.expiresAt) {
		return nil, false, nil
	}
	l.next++
	l.leases[key] = memoryLease{token: l.next, expiresAt: now.Add(ttl)}
	return &memoryDrainLease{locker: l, key: key, token: l.next}, true, nil
}

type memoryDrainLease struct {
	locker *MemoryDrainLocker
	key    string
	token  uint64
}

// Renew keeps working after expiry as long as nobody else took the key.
func (m *memoryDrainLease) Renew(_ context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultDrainLockTTL
	}
	l := m.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	lease, held := l.leases[m.key]
	if !held || lease.token != m.token {
		return ErrDrainLeaseLost
	}
	lease.expiresAt = l.now().Add(ttl)
	l.leases[m.key] = lease
	return nil
}

func (m *memoryDrainLease) Release(context.Context) error {
	l := m.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if lease, held := l.leases[m.key]; held && lease.token == m.token {
		delete(l.leases, m.key)
	}
	return nil
}

// leaseKeeper renews a drain lease every third of its ttl until stopped.
// The first failed renewal is kept and reported by lost.
type leaseKeeper struct {
	mu   sync.Mutex
	err  error
	stop chan struct{}
	done chan struct{}
}

func keepLease(ctx context.Context, lease DrainLease, ttl time.Duration, onLost func(error)) *leaseKeeper {
	k := &leaseKeeper{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	go func() {
		defer close(k.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-k.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := lease.Renew(ctx, ttl); err != nil {
				k.mu.Lock()
				k.err = err
				k.mu.Unlock()
				if onLost != nil {
					onLost(err)
				}
				return
			}
		}
	}()
	return k
}

func (k *leaseKeeper) lost() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// halt stops renewing and waits for the renew loop to exit.
func (k *leaseKeeper) halt() {
	close(k.stop)
	<-k.done
}

var _ DrainLocker = (*MemoryDrainLocker)(nil)
