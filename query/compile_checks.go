package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

var (
	_ gocmd.Querier[ListQueueEntriesMessage, core.QueuePage]          = (*ListQueueEntriesQuery)(nil)
	_ gocmd.Querier[DescribeActionsMessage, []core.ActionDefinition] = (*DescribeActionsQuery)(nil)
)
