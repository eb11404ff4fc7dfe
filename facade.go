package webhooks

import (
	"fmt"

	webhookscommand "github.com/goliatone/go-webhooks/command"
	webhooksquery "github.com/goliatone/go-webhooks/query"
)

type CommandQueryService interface {
	webhookscommand.QueueService
	webhooksquery.QueueReader
}

type Commands struct {
	DrainQueue      *webhookscommand.DrainQueueCommand
	EnqueueMutation *webhookscommand.EnqueueMutationCommand
	RequeueDead     *webhookscommand.RequeueDeadCommand
}

type Queries struct {
	ListQueueEntries *webhooksquery.ListQueueEntriesQuery
	DescribeActions  *webhooksquery.DescribeActionsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	actionReader webhooksquery.ActionReader
}

// WithActionReader overrides the reader behind DescribeActions. Without it
// the service itself is used when it can list actions.
func WithActionReader(reader webhooksquery.ActionReader) FacadeOption {
	return func(options *facadeOptions) {
		options.actionReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.actionReader
	if reader == nil {
		if candidate, ok := service.(webhooksquery.ActionReader); ok {
			reader = candidate
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		DrainQueue:      webhookscommand.NewDrainQueueCommand(service),
		EnqueueMutation: webhookscommand.NewEnqueueMutationCommand(service),
		RequeueDead:     webhookscommand.NewRequeueDeadCommand(service),
	}
	facade.queries = Queries{
		ListQueueEntries: webhooksquery.NewListQueueEntriesQuery(service),
		DescribeActions:  webhooksquery.NewDescribeActionsQuery(reader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
