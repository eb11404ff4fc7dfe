package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DispatchQueue drains pending queue entries: it reloads each entry's record,
// sends it to every active webhook bound to the entry's event and deletes the
// entry once all sends complete.
//
// Sweeps are serialized through a DrainLocker. Failing entries stay in the
// queue; with MaxAttempts > 0 they are dead-lettered after that many
// failures.
type DispatchQueue struct {
	observer
	definitions DefinitionReader
	queue       QueueStore
	loader      RecordLoader
	sender      Sender
	rowFilter   *RowFilter
	locker      DrainLocker
	config      QueueConfig
	lockKey     string
}

type DispatchQueueDependencies struct {
	Definitions DefinitionReader
	Queue       QueueStore
	Loader      RecordLoader
	Sender      Sender
	RowFilter   *RowFilter
	Locker      DrainLocker
	Config      QueueConfig
	Logger      Logger
	Metrics     MetricsRecorder
}

func NewDispatchQueue(deps DispatchQueueDependencies) (*DispatchQueue, error) {
	if deps.Definitions == nil {
		return nil, fmt.Errorf("core: definition reader is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("core: queue store is required")
	}
	if deps.Loader == nil {
		return nil, fmt.Errorf("core: record loader is required")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("core: sender is required")
	}
	config := deps.Config
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.FlushEvery <= 0 {
		config.FlushEvery = defaultFlushEvery
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaultDrainLockTTL
	}
	if deps.RowFilter == nil {
		deps.RowFilter = NewRowFilter()
	}
	if deps.Locker == nil {
		deps.Locker = NewMemoryDrainLocker()
	}
	return &DispatchQueue{
		observer:    newObserver(deps.Logger, deps.Metrics),
		definitions: deps.Definitions,
		queue:       deps.Queue,
		loader:      deps.Loader,
		sender:      deps.Sender,
		rowFilter:   deps.RowFilter,
		locker:      deps.Locker,
		config:      config,
		lockKey:     defaultDrainLockKey,
	}, nil
}

type entryOutcome int

const (
	outcomeDelivered entryOutcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeDeadLettered
)

// sweepCache is the working set of one sweep. It is cleared every
// FlushEvery entries.
type sweepCache struct {
	events   map[string]*EventDefinition
	webhooks map[string][]WebhookDefinition
}

func newSweepCache() *sweepCache {
	return &sweepCache{
		events:   map[string]*EventDefinition{},
		webhooks: map[string][]WebhookDefinition{},
	}
}

func (c *sweepCache) size() int {
	return len(c.events) + len(c.webhooks)
}

func (c *sweepCache) clear() {
	clear(c.events)
	clear(c.webhooks)
}

// Drain runs one sweep over the pending entries in insertion order. Entry
// failures are isolated: the sweep continues and the joined failures are
// returned alongside the stats.
func (q *DispatchQueue) Drain(ctx context.Context) (stats DrainStats, err error) {
	if q == nil {
		return DrainStats{}, fmt.Errorf("core: dispatch queue is nil")
	}
	lease, acquired, err := q.locker.TryAcquire(ctx, q.lockKey, q.config.LockTTL)
	if err != nil {
		return DrainStats{}, fmt.Errorf("core: acquire drain lock: %w", err)
	}
	if !acquired {
		return DrainStats{}, drainInProgressError()
	}
	keeper := keepLease(ctx, lease, q.config.LockTTL, func(lostErr error) {
		q.logWarn(ctx, "drain lease renewal failed, stopping sweep", map[string]any{"error": lostErr.Error()})
	})
	defer func() {
		keeper.halt()
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			q.logWarn(ctx, "release drain lock failed", map[string]any{"error": releaseErr.Error()})
		}
	}()

	startedAt := time.Now()
	defer func() {
		q.observeOperation(ctx, startedAt, "drain", err, map[string]any{
			"scanned":       stats.Scanned,
			"delivered":     stats.Delivered,
			"failed":        stats.Failed,
			"dead_lettered": stats.DeadLettered,
			"skipped":       stats.Skipped,
		})
	}()

	cache := newSweepCache()
	afterID := ""
	var drainErr error
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, errors.Join(drainErr, ctxErr)
		}
		entries, listErr := q.queue.ListPending(ctx, afterID, q.config.BatchSize)
		if listErr != nil {
			return stats, errors.Join(drainErr, fmt.Errorf("core: list pending queue entries: %w", listErr))
		}
		for _, entry := range entries {
			if lostErr := keeper.lost(); lostErr != nil {
				return stats, errors.Join(drainErr, leaseLostError(lostErr))
			}
			afterID = entry.ID
			stats.Scanned++

			outcome, entryErr := q.process(ctx, cache, entry)
			switch outcome {
			case outcomeDelivered:
				stats.Delivered++
			case outcomeSkipped:
				stats.Skipped++
			case outcomeFailed:
				stats.Failed++
			case outcomeDeadLettered:
				stats.DeadLettered++
			}
			if entryErr != nil {
				drainErr = errors.Join(drainErr, entryErr)
			}

			if stats.Scanned%q.config.FlushEvery == 0 {
				q.logDebug(ctx, "flushing drain working set", map[string]any{
					"scanned": stats.Scanned,
					"cached":  cache.size(),
				})
				cache.clear()
				stats.Flushes++
			}
		}
		if len(entries) < q.config.BatchSize {
			break
		}
	}
	return stats, drainErr
}

func (q *DispatchQueue) process(ctx context.Context, cache *sweepCache, entry QueueEntry) (entryOutcome, error) {
	fields := map[string]any{
		"entry_id":  entry.ID,
		"table":     entry.Table,
		"record_id": entry.RecordID,
		"event_id":  entry.EventID,
	}

	event, err := q.event(ctx, cache, entry.EventID)
	if errors.Is(err, ErrDefinitionNotFound) {
		q.logWarn(ctx, "queue entry references a missing event, discarding", fields)
		return outcomeSkipped, q.discard(ctx, entry)
	}
	if err != nil {
		return q.fail(ctx, entry, err, fields)
	}
	if !event.Active {
		q.logDebug(ctx, "queue entry event is inactive, discarding", fields)
		return outcomeSkipped, q.discard(ctx, entry)
	}

	record, err := q.loader.Load(ctx, entry.Table, entry.RecordID)
	if errors.Is(err, ErrRecordNotFound) {
		if len(entry.Snapshot) == 0 {
			q.logWarn(ctx, "queued record no longer exists, discarding", fields)
			return outcomeSkipped, q.discard(ctx, entry)
		}
		record = Record{Table: entry.Table, ID: entry.RecordID, Values: entry.Snapshot}
		err = nil
	}
	if err != nil {
		return q.fail(ctx, entry, fmt.Errorf("core: load %s#%s: %w", entry.Table, entry.RecordID, err), fields)
	}

	visible, err := q.rowFilter.Match(event.RowFilter, record)
	if err != nil {
		return q.fail(ctx, entry, err, fields)
	}
	if !visible {
		q.logDebug(ctx, "record filtered out by event row filter, discarding", fields)
		return outcomeSkipped, q.discard(ctx, entry)
	}

	webhooks, err := q.webhooks(ctx, cache, event.ID)
	if err != nil {
		return q.fail(ctx, entry, err, fields)
	}
	for _, webhook := range webhooks {
		result, sendErr := q.sender.Send(ctx, webhook, record)
		if sendErr != nil {
			fields["webhook_id"] = webhook.ID
			return q.fail(ctx, entry, fmt.Errorf("core: webhook %q for %s: %w", webhook.Name, record.DisplayID(), sendErr), fields)
		}
		q.logDebug(ctx, "webhook delivered", map[string]any{
			"entry_id":    entry.ID,
			"webhook_id":  webhook.ID,
			"status_code": result.StatusCode,
			"duration_ms": result.Duration.Milliseconds(),
		})
	}

	if err := q.queue.Delete(ctx, entry.ID); err != nil {
		return outcomeFailed, fmt.Errorf("core: delete delivered queue entry %q: %w", entry.ID, err)
	}
	return outcomeDelivered, nil
}

func (q *DispatchQueue) fail(ctx context.Context, entry QueueEntry, cause error, fields map[string]any) (entryOutcome, error) {
	attempts := entry.Attempts + 1
	dead := q.config.MaxAttempts > 0 && attempts >= q.config.MaxAttempts

	logFields := cloneFields(fields)
	logFields["attempts"] = attempts
	logFields["dead"] = dead
	logFields["error"] = cause.Error()
	q.logError(ctx, "queue entry dispatch failed", logFields)

	if err := q.queue.MarkFailed(ctx, entry.ID, cause, dead); err != nil {
		cause = errors.Join(cause, fmt.Errorf("core: record failure for queue entry %q: %w", entry.ID, err))
	}
	if dead {
		return outcomeDeadLettered, cause
	}
	return outcomeFailed, cause
}

func (q *DispatchQueue) discard(ctx context.Context, entry QueueEntry) error {
	if err := q.queue.Delete(ctx, entry.ID); err != nil {
		return fmt.Errorf("core: discard queue entry %q: %w", entry.ID, err)
	}
	return nil
}

func (q *DispatchQueue) event(ctx context.Context, cache *sweepCache, id string) (EventDefinition, error) {
	id = strings.TrimSpace(id)
	if cached, ok := cache.events[id]; ok {
		if cached == nil {
			return EventDefinition{}, ErrDefinitionNotFound
		}
		return *cached, nil
	}
	event, err := q.definitions.GetEvent(ctx, id)
	if errors.Is(err, ErrDefinitionNotFound) {
		cache.events[id] = nil
		return EventDefinition{}, err
	}
	if err != nil {
		return EventDefinition{}, err
	}
	cache.events[id] = &event
	return event, nil
}

func (q *DispatchQueue) webhooks(ctx context.Context, cache *sweepCache, eventID string) ([]WebhookDefinition, error) {
	if cached, ok := cache.webhooks[eventID]; ok {
		return cached, nil
	}
	webhooks, err := q.definitions.ListWebhooksForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	active := make([]WebhookDefinition, 0, len(webhooks))
	for _, webhook := range webhooks {
		if webhook.Active {
			active = append(active, webhook)
		}
	}
	cache.webhooks[eventID] = active
	return active, nil
}

// leaseLostError keeps ErrDrainLeaseLost in the chain whatever the renewal
// failure was.
func leaseLostError(cause error) error {
	if errors.Is(cause, ErrDrainLeaseLost) {
		return fmt.Errorf("core: drain sweep stopped: %w", cause)
	}
	return fmt.Errorf("core: drain sweep stopped: %w: %w", ErrDrainLeaseLost, cause)
}
