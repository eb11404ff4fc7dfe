package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

type QueueReader interface {
	ListQueueEntries(ctx context.Context, filter core.QueueFilter) (core.QueuePage, error)
}

type ActionReader interface {
	ListActions(ctx context.Context) ([]core.ActionDefinition, error)
}

type ListQueueEntriesQuery struct {
	reader QueueReader
}

func NewListQueueEntriesQuery(reader QueueReader) *ListQueueEntriesQuery {
	return &ListQueueEntriesQuery{reader: reader}
}

func (q *ListQueueEntriesQuery) Query(ctx context.Context, msg ListQueueEntriesMessage) (core.QueuePage, error) {
	if q == nil || q.reader == nil {
		return core.QueuePage{}, queryDependencyError("query: queue reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.QueuePage{}, err
	}
	return q.reader.ListQueueEntries(ctx, msg.Filter)
}

type DescribeActionsQuery struct {
	reader ActionReader
}

func NewDescribeActionsQuery(reader ActionReader) *DescribeActionsQuery {
	return &DescribeActionsQuery{reader: reader}
}

func (q *DescribeActionsQuery) Query(ctx context.Context, msg DescribeActionsMessage) ([]core.ActionDefinition, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: action reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	actions, err := q.reader.ListActions(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(msg.Name)
	out := make([]core.ActionDefinition, 0, len(actions))
	for _, action := range actions {
		if msg.ActiveOnly && !action.Active {
			continue
		}
		if name != "" && !strings.EqualFold(action.Name, name) {
			continue
		}
		out = append(out, action)
	}
	return out, nil
}
