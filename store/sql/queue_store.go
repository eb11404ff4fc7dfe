package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/uptrace/bun"
)

const maxLastErrorLength = 2000

type QueueStore struct {
	db   *bun.DB
	repo repository.Repository[*queueEntryRecord]
}

func NewQueueStore(db *bun.DB) (*QueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*queueEntryRecord](db, queueEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid queue repository wiring: %w", err)
		}
	}
	return &QueueStore{db: db, repo: repo}, nil
}

// Enqueue always assigns a fresh time ordered id.
func (s *QueueStore) Enqueue(ctx context.Context, entry core.QueueEntry) (core.QueueEntry, error) {
	if s == nil || s.repo == nil {
		return core.QueueEntry{}, fmt.Errorf("sqlstore: queue store is not configured")
	}
	if strings.TrimSpace(entry.Table) == "" || strings.TrimSpace(entry.RecordID) == "" {
		return core.QueueEntry{}, fmt.Errorf("sqlstore: queue entry table and record id are required")
	}
	now := time.Now().UTC()
	record := newQueueEntryRecord(entry)
	record.ID = newID()
	if record.EnqueuedAt.IsZero() {
		record.EnqueuedAt = now
	}
	record.UpdatedAt = now

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.QueueEntry{}, err
	}
	return created.toDomain(), nil
}

func (s *QueueStore) ListPending(ctx context.Context, afterID string, limit int) ([]core.QueueEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: queue store is not configured")
	}
	afterID = strings.TrimSpace(afterID)
	selectors := []repository.SelectCriteria{
		repository.SelectBy("status", "=", string(core.QueueEntryPending)),
		repository.OrderBy("id ASC"),
	}
	if afterID != "" {
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.id > ?", afterID)
		}))
	}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.QueueEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *QueueStore) List(ctx context.Context, filter core.QueueFilter) (core.QueuePage, error) {
	if s == nil || s.repo == nil {
		return core.QueuePage{}, fmt.Errorf("sqlstore: queue store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("id ASC"),
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if table := strings.TrimSpace(filter.Table); table != "" {
		selectors = append(selectors, repository.SelectBy("table_name", "=", table))
	}
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, offset))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.QueuePage{}, err
	}
	page := core.QueuePage{Total: total, Items: make([]core.QueueEntry, 0, len(records))}
	for _, record := range records {
		page.Items = append(page.Items, record.toDomain())
	}
	return page, nil
}

func (s *QueueStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*queueEntryRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

// MarkFailed increments attempts and records the cause. A dead entry stays
// in the table with status dead until requeued.
func (s *QueueStore) MarkFailed(ctx context.Context, id string, cause error, dead bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	id = strings.TrimSpace(id)
	lastError := ""
	if cause != nil {
		lastError = truncate(cause.Error(), maxLastErrorLength)
	}
	query := s.db.NewUpdate().
		Model((*queueEntryRecord)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if dead {
		query = query.Set("status = ?", string(core.QueueEntryDead))
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: queue entry %q", core.ErrRecordNotFound, id)
	}
	return nil
}

func (s *QueueStore) RequeueDead(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: queue store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*queueEntryRecord)(nil)).
		Set("status = ?", string(core.QueueEntryPending)).
		Set("attempts = 0").
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", string(core.QueueEntryDead)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit]
}
