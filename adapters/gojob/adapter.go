package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
)

const (
	JobIDDrain       = "webhooks.queue.drain"
	JobIDRequeueDead = "webhooks.queue.requeue_dead"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	Delay           time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Drainer is the part of the webhook service a drain job drives.
type Drainer interface {
	Drain(ctx context.Context) (core.DrainStats, error)
	RequeueDead(ctx context.Context) (int, error)
}

// DrainEnqueuer publishes drain requests so any worker process can run the
// sweep.
type DrainEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewDrainEnqueuer(enqueuer queue.Enqueuer) *DrainEnqueuer {
	return &DrainEnqueuer{enqueuer: enqueuer}
}

func (e *DrainEnqueuer) RequestDrain(ctx context.Context, reason string) error {
	return e.enqueue(ctx, JobIDDrain, reason)
}

func (e *DrainEnqueuer) RequestRequeueDead(ctx context.Context, reason string) error {
	return e.enqueue(ctx, JobIDRequeueDead, reason)
}

// Trigger lets the enqueuer stand in for an in-process scheduler trigger.
func (e *DrainEnqueuer) Trigger(ctx context.Context) error {
	return e.RequestDrain(ctx, "trigger")
}

func (e *DrainEnqueuer) enqueue(ctx context.Context, jobID string, reason string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return e.enqueuer.Enqueue(ctx, &job.ExecutionMessage{
		JobID:      jobID,
		ScriptPath: jobID,
		Parameters: map[string]any{
			"reason":       strings.TrimSpace(reason),
			"requested_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
}

// DrainWorker executes drain jobs pulled from a go-job queue. A drain that
// finds another sweep running is acked, since that sweep covers the request.
type DrainWorker struct {
	dequeuer queue.Dequeuer
	drainer  Drainer
	policy   RetryPolicy
	hook     worker.Hook
	logger   glog.Logger
}

type WorkerOption func(*DrainWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *DrainWorker) {
		w.policy = policy
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *DrainWorker) {
		w.hook = hook
	}
}

func WithLogger(logger glog.Logger) WorkerOption {
	return func(w *DrainWorker) {
		w.logger = glog.Ensure(logger)
	}
}

func NewDrainWorker(dequeuer queue.Dequeuer, drainer Drainer, opts ...WorkerOption) (*DrainWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if drainer == nil {
		return nil, fmt.Errorf("gojob: drainer is required")
	}
	w := &DrainWorker{dequeuer: dequeuer, drainer: drainer, logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// ProcessNext dequeues and handles one delivery.
func (w *DrainWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	return w.Handle(ctx, delivery, 1)
}

// Run processes deliveries until ctx is cancelled. Dequeue errors back off by
// the retry delay.
func (w *DrainWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := w.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("drain worker iteration failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.backoff()):
			}
		}
	}
}

func (w *DrainWorker) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if w == nil || w.drainer == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: time.Now()}
	w.onStart(ctx, event)

	err := w.execute(ctx, msg)
	event.Duration = time.Since(event.StartedAt)
	if err == nil {
		w.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = err
	opts := w.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   w.policy.Delay,
		Requeue: true,
		Reason:  err.Error(),
	}, attempt)
	if msg == nil || !knownJob(msg.JobID) {
		opts = queue.NackOptions{DeadLetter: true, Reason: err.Error()}
	}
	if opts.Requeue {
		event.Delay = opts.Delay
		w.onRetry(ctx, event)
	} else {
		w.onFailure(ctx, event)
	}
	return delivery.Nack(ctx, opts)
}

func (w *DrainWorker) execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: delivery has no message")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDDrain:
		stats, err := w.drainer.Drain(ctx)
		if core.IsErrorKind(err, core.ErrorDrainInProgress) {
			w.logger.Debug("drain job skipped, sweep already running")
			return nil
		}
		if err != nil {
			return err
		}
		w.logger.Info("drain job finished",
			"scanned", stats.Scanned,
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dead_lettered", stats.DeadLettered,
		)
		return nil
	case JobIDRequeueDead:
		count, err := w.drainer.RequeueDead(ctx)
		if err != nil {
			return err
		}
		w.logger.Info("requeue dead job finished", "requeued", count)
		return nil
	default:
		return fmt.Errorf("gojob: unknown job %q", msg.JobID)
	}
}

func (w *DrainWorker) backoff() time.Duration {
	if w.policy.Delay > 0 {
		return w.policy.Delay
	}
	return time.Second
}

func (w *DrainWorker) onStart(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *DrainWorker) onSuccess(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *DrainWorker) onFailure(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *DrainWorker) onRetry(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

func knownJob(jobID string) bool {
	switch strings.TrimSpace(jobID) {
	case JobIDDrain, JobIDRequeueDead:
		return true
	default:
		return false
	}
}

// LoggingHook reports worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("webhook job started", eventArgs(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Debug("webhook job succeeded", eventArgs(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("webhook job failed", eventArgs(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("webhook job retrying", eventArgs(event)...)
}

func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	jobID := ""
	if message != nil {
		jobID = message.JobID
	}
	args := []any{"job_id", jobID, "attempt", event.Attempt, "duration", event.Duration}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay)
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ Drainer     = (core.WebhookService)(nil)
)
