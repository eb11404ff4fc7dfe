package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

const DefaultIdempotencyTTL = 10 * time.Minute

var ErrIdempotencyConflict = errors.New("inbound: request with this idempotency key is in flight")

// Claim is the outcome of reserving an idempotency key. When Accepted is
// false either Output holds the result of a completed call or InFlight is set.
type Claim struct {
	ID       string
	Accepted bool
	InFlight bool
	Output   map[string]any
}

type IdempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, claimID string, output map[string]any) error
	Fail(ctx context.Context, claimID string, cause error) error
}

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusComplete   claimStatus = "complete"
)

type claimEntry struct {
	Status    claimStatus
	ClaimID   string
	Attempts  int
	TTL       time.Duration
	ExpiresAt time.Time
	Output    map[string]any
}

// InMemoryIdempotencyStore keeps claims per process. A processing claim
// whose lease ran out can be taken over by the next caller.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]claimEntry
	claims  map[string]string
	nextID  int
	Now     func() time.Time
}

func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		entries: map[string]claimEntry{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (Claim, error) {
	if s == nil {
		return Claim{}, idempotencyInternal("inbound: idempotency store is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Claim{}, idempotencyBadInput("inbound: idempotency key is required")
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)

	entry, exists := s.entries[key]
	if exists {
		switch entry.Status {
		case claimStatusComplete:
			return Claim{Output: cloneOutput(entry.Output)}, nil
		case claimStatusProcessing:
			if now.Before(entry.ExpiresAt) {
				return Claim{InFlight: true}, nil
			}
		}
		if entry.ClaimID != "" {
			delete(s.claims, entry.ClaimID)
		}
	}

	claimID := s.nextClaimID()
	entry.Status = claimStatusProcessing
	entry.ClaimID = claimID
	entry.Attempts++
	entry.TTL = ttl
	entry.ExpiresAt = now.Add(ttl)
	entry.Output = nil
	s.entries[key] = entry
	s.claims[claimID] = key
	return Claim{ID: claimID, Accepted: true}, nil
}

func (s *InMemoryIdempotencyStore) Complete(_ context.Context, claimID string, output map[string]any) error {
	if s == nil {
		return idempotencyInternal("inbound: idempotency store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key, entry, ok := s.activeLocked(strings.TrimSpace(claimID))
	if !ok {
		return nil
	}
	entry.Status = claimStatusComplete
	entry.ExpiresAt = s.now().Add(entry.TTL)
	entry.Output = cloneOutput(output)
	s.entries[key] = entry
	delete(s.claims, entry.ClaimID)
	return nil
}

// Fail releases the key so the next request with it runs again.
func (s *InMemoryIdempotencyStore) Fail(_ context.Context, claimID string, _ error) error {
	if s == nil {
		return idempotencyInternal("inbound: idempotency store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key, entry, ok := s.activeLocked(strings.TrimSpace(claimID))
	if !ok {
		return nil
	}
	entry.Status = claimStatusRetryReady
	entry.ExpiresAt = s.now().Add(entry.TTL)
	s.entries[key] = entry
	delete(s.claims, entry.ClaimID)
	return nil
}

func (s *InMemoryIdempotencyStore) activeLocked(claimID string) (string, claimEntry, bool) {
	key, ok := s.claims[claimID]
	if !ok {
		return "", claimEntry{}, false
	}
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusProcessing {
		delete(s.claims, claimID)
		return "", claimEntry{}, false
	}
	return key, entry, true
}

func (s *InMemoryIdempotencyStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryIdempotencyStore) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *InMemoryIdempotencyStore) evictExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.Status == claimStatusProcessing {
			continue
		}
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, key)
		}
	}
}

func idempotencyKey(action core.ActionDefinition, actor core.ActorContext, key string) string {
	caller := strings.TrimSpace(actor.TokenID)
	if caller == "" {
		caller = strings.TrimSpace(actor.UserID)
	}
	return action.ID + ":" + caller + ":" + strings.TrimSpace(key)
}

func idempotencyConflictError(action core.ActionDefinition, key string) error {
	return core.WrapError(
		ErrIdempotencyConflict,
		goerrors.CategoryConflict,
		core.ErrorIdempotencyConflict,
		fmt.Sprintf("inbound: request %q for action %q is still running", key, action.Name),
		map[string]any{"action": action.Name, "idempotency_key": key},
	).WithCode(http.StatusConflict)
}

func idempotencyInternal(message string) error {
	return core.NewError(message, goerrors.CategoryInternal, core.ErrorInternal, nil)
}

func idempotencyBadInput(message string) error {
	return core.NewError(message, goerrors.CategoryBadInput, core.ErrorBadInput, nil)
}

func cloneOutput(output map[string]any) map[string]any {
	if output == nil {
		return nil
	}
	cloned := make(map[string]any, len(output))
	for key, value := range output {
		cloned[key] = value
	}
	return cloned
}
