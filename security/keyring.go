package security

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// KeyRing seals with its primary key and opens envelopes written by any key
// it holds, so old header secrets keep working across a rotation.
type KeyRing struct {
	mu      sync.RWMutex
	primary *AppKeySealer
	keys    map[string]ringKey
	now     func() time.Time
}

type ringKey struct {
	sealer *AppKeySealer
	window KeyRotationWindow
}

type KeyRingOption func(*KeyRing)

// WithRetiredKey adds a key that may still open values inside window.
func WithRetiredKey(sealer *AppKeySealer, window KeyRotationWindow) KeyRingOption {
	return func(r *KeyRing) {
		if sealer != nil {
			r.keys[ringKeyName(sealer.KeyID(), sealer.Version())] = ringKey{sealer: sealer, window: window}
		}
	}
}

func WithClock(now func() time.Time) KeyRingOption {
	return func(r *KeyRing) {
		if now != nil {
			r.now = now
		}
	}
}

func NewKeyRing(primary *AppKeySealer, opts ...KeyRingOption) (*KeyRing, error) {
	if primary == nil {
		return nil, fmt.Errorf("security: primary key is required")
	}
	ring := &KeyRing{
		primary: primary,
		keys:    map[string]ringKey{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ring)
		}
	}
	ring.keys[ringKeyName(primary.KeyID(), primary.Version())] = ringKey{sealer: primary}
	return ring, nil
}

func (r *KeyRing) Seal(ctx context.Context, plaintext string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("security: key ring is nil")
	}
	r.mu.RLock()
	primary := r.primary
	r.mu.RUnlock()
	return primary.Seal(ctx, plaintext)
}

func (r *KeyRing) Open(_ context.Context, value string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("security: key ring is nil")
	}
	env, err := decodeEnvelope(value)
	if err != nil {
		return "", err
	}
	r.mu.RLock()
	key, ok := r.keys[ringKeyName(env.KeyID, env.Version)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("security: no key for %q version %d", env.KeyID, env.Version)
	}
	if !key.window.Allows(r.now()) {
		return "", fmt.Errorf("security: key %q version %d is outside its rotation window", env.KeyID, env.Version)
	}
	return key.sealer.open(env)
}

// Unseal opens sealed values and returns any other value unchanged.
func (r *KeyRing) Unseal(ctx context.Context, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	return r.Open(ctx, value)
}

// Rotate promotes next to primary. The previous primary stays available for
// opening inside window.
func (r *KeyRing) Rotate(next *AppKeySealer, window KeyRotationWindow) error {
	if r == nil || next == nil {
		return fmt.Errorf("security: rotation requires a key ring and a key")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.primary
	r.keys[ringKeyName(previous.KeyID(), previous.Version())] = ringKey{sealer: previous, window: window}
	r.keys[ringKeyName(next.KeyID(), next.Version())] = ringKey{sealer: next}
	r.primary = next
	return nil
}

// Keys lists the kid:version pairs the ring can open.
func (r *KeyRing) Keys() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.keys))
	for name := range r.keys {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func ringKeyName(keyID string, version int) string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(keyID), version)
}
