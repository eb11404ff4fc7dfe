package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/ratelimit"
	"github.com/uptrace/bun"
)

// HostThrottleStore keeps per host throttle state in webhook_host_throttles
// so every daemon sharing the database backs off together.
type HostThrottleStore struct {
	db *bun.DB
}

func NewHostThrottleStore(db *bun.DB) (*HostThrottleStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &HostThrottleStore{db: db}, nil
}

func (s *HostThrottleStore) Get(ctx context.Context, host string) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: host throttle store is not configured")
	}
	host = normalizeHost(host)
	if host == "" {
		return ratelimit.State{}, fmt.Errorf("sqlstore: throttle host is required")
	}
	record := &hostThrottleRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.host = ?", host).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	if err != nil {
		return ratelimit.State{}, err
	}
	return record.toDomain(), nil
}

// Upsert replaces the whole row for the host.
func (s *HostThrottleStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: host throttle store is not configured")
	}
	state.Host = normalizeHost(state.Host)
	if state.Host == "" {
		return fmt.Errorf("sqlstore: throttle host is required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	record := newHostThrottleRecord(state)
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (host) DO UPDATE").
		Set("limit_value = EXCLUDED.limit_value").
		Set("remaining = EXCLUDED.remaining").
		Set("reset_at = EXCLUDED.reset_at").
		Set("retry_after_ms = EXCLUDED.retry_after_ms").
		Set("throttled_until = EXCLUDED.throttled_until").
		Set("last_status = EXCLUDED.last_status").
		Set("attempts = EXCLUDED.attempts").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func newHostThrottleRecord(state ratelimit.State) *hostThrottleRecord {
	record := &hostThrottleRecord{
		Host:           state.Host,
		Limit:          state.Limit,
		Remaining:      state.Remaining,
		ResetAt:        copyTimePtr(state.ResetAt),
		ThrottledUntil: copyTimePtr(state.ThrottledUntil),
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		UpdatedAt:      state.UpdatedAt.UTC(),
	}
	if state.RetryAfter != nil && *state.RetryAfter > 0 {
		ms := state.RetryAfter.Milliseconds()
		record.RetryAfterMS = &ms
	}
	return record
}

func (r *hostThrottleRecord) toDomain() ratelimit.State {
	state := ratelimit.State{
		Host:           r.Host,
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        copyTimePtr(r.ResetAt),
		ThrottledUntil: copyTimePtr(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.RetryAfterMS != nil && *r.RetryAfterMS > 0 {
		value := time.Duration(*r.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &value
	}
	return state
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
