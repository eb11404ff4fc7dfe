// Package ratelimit tracks receiver rate limit hints per destination host and
// refuses calls while a host has asked us to back off.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

type State struct {
	Host           string
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, host string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	Host       string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: host %q throttled for %s", strings.TrimSpace(e.Host), e.RetryAfter)
}

// ToError maps the throttle to a go-errors envelope.
func (e ThrottledError) ToError() *goerrors.Error {
	metadata := map[string]any{"host": strings.TrimSpace(e.Host)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.Wrap(e, goerrors.CategoryRateLimit, e.Error()).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

// HostPolicy reads X-RateLimit-* and Retry-After from receiver responses.
// A 429, or an exhausted quota, opens a throttle window for the host; calls
// made inside the window fail before reaching the network.
type HostPolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewHostPolicy(store StateStore) *HostPolicy {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &HostPolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 5 * time.Second,
	}
}

func (p *HostPolicy) BeforeCall(ctx context.Context, host string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeHost(host))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Host: state.Host, RetryAfter: until.Sub(now)}.ToError()
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{Host: state.Host, RetryAfter: state.ResetAt.Sub(now)}.ToError()
	}
	return nil
}

// AfterCall records what the receiver said about its limits. A 429, or an
// exhausted remaining count, parks the host until Retry-After or, without
// one, an exponential backoff. Server errors never throttle.
func (p *HostPolicy) AfterCall(ctx context.Context, host string, statusCode int, headers map[string]string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	host = normalizeHost(host)
	now := p.now()
	state, err := p.Store.Get(ctx, host)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{Host: host}
	case err != nil:
		return err
	}

	hints := readHints(headers, now)
	state.LastStatus = statusCode
	state.UpdatedAt = now
	state.RetryAfter = nil
	if hints.limit != nil {
		state.Limit = *hints.limit
	}
	if hints.remaining != nil {
		state.Remaining = *hints.remaining
	}
	if hints.resetAt != nil {
		state.ResetAt = hints.resetAt
	}
	if hints.retryAfter != nil {
		state.RetryAfter = hints.retryAfter
	}

	if !hints.throttles(statusCode, state.Remaining) {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}
	state.Attempts++
	delay := p.backoff(state.Attempts)
	if hints.retryAfter != nil {
		delay = *hints.retryAfter
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *HostPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// backoff doubles from InitialBackoff per consecutive throttle, capped at
// MaxBackoff.
func (p *HostPolicy) backoff(attempt int) time.Duration {
	delay, ceiling := p.InitialBackoff, p.MaxBackoff
	if delay <= 0 {
		delay = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	for ; attempt > 1 && delay < ceiling; attempt-- {
		delay *= 2
	}
	if delay > ceiling {
		delay = ceiling
	}
	if delay <= 0 {
		return p.defaultRetryHint()
	}
	return delay
}

func (p *HostPolicy) defaultRetryHint() time.Duration {
	if p != nil && p.DefaultRetryHint > 0 {
		return p.DefaultRetryHint
	}
	return 5 * time.Second
}

// rateHints are the rate limit headers present on one response.
type rateHints struct {
	limit      *int
	remaining  *int
	resetAt    *time.Time
	retryAfter *time.Duration
}

func (h rateHints) any() bool {
	return h.limit != nil || h.remaining != nil || h.resetAt != nil || h.retryAfter != nil
}

func (h rateHints) throttles(statusCode int, remaining int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= http.StatusInternalServerError {
		return false
	}
	return remaining == 0 && h.any()
}

func readHints(headers map[string]string, now time.Time) rateHints {
	lookup := make(map[string]string, len(headers))
	for key, value := range headers {
		lookup[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	hints := rateHints{}
	if n, err := strconv.Atoi(lookup["x-ratelimit-limit"]); err == nil {
		hints.limit = &n
	}
	if n, err := strconv.Atoi(lookup["x-ratelimit-remaining"]); err == nil {
		hints.remaining = &n
	}
	if unix, err := strconv.ParseInt(lookup["x-ratelimit-reset"], 10, 64); err == nil && unix > 0 {
		resetAt := time.Unix(unix, 0).UTC()
		hints.resetAt = &resetAt
	}
	if delay, ok := parseRetryAfter(lookup["retry-after"], now); ok {
		hints.retryAfter = &delay
	}
	return hints
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(raw string, now time.Time) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now), true
	}
	return 0, false
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, host string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeHost(host)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Host = normalizeHost(state.Host)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Host] = state
	return nil
}
