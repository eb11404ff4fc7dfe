package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[DrainQueueMessage]      = (*DrainQueueCommand)(nil)
	_ gocmd.Commander[EnqueueMutationMessage] = (*EnqueueMutationCommand)(nil)
	_ gocmd.Commander[RequeueDeadMessage]     = (*RequeueDeadCommand)(nil)
)
