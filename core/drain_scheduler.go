package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Drainer interface {
	Drain(ctx context.Context) (DrainStats, error)
}

// DrainScheduler runs one drain per tick and on demand. Runs never overlap
// because the loop is a single goroutine.
type DrainScheduler struct {
	observer
	drainer  Drainer
	interval time.Duration

	mu      sync.Mutex
	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewDrainScheduler(drainer Drainer, interval time.Duration, logger Logger, metrics MetricsRecorder) (*DrainScheduler, error) {
	if drainer == nil {
		return nil, fmt.Errorf("core: drainer is required")
	}
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	return &DrainScheduler{
		observer: newObserver(logger, metrics),
		drainer:  drainer,
		interval: interval,
	}, nil
}

func (s *DrainScheduler) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: drain scheduler is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("core: drain scheduler already running")
	}
	s.trigger = make(chan struct{}, 1)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.loop(context.WithoutCancel(ctx), s.trigger, s.stop, s.done)
	s.logInfo(ctx, "drain scheduler started", map[string]any{"interval": s.interval.String()})
	return nil
}

// Stop waits for an in-flight drain to finish or for ctx to end.
func (s *DrainScheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logInfo(ctx, "drain scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a drain outside the ticker. Requests made while one is
// already pending are coalesced; the return value reports whether the request
// was queued.
func (s *DrainScheduler) Trigger() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *DrainScheduler) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *DrainScheduler) loop(ctx context.Context, trigger <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runOnce(ctx, "tick")
		case <-trigger:
			s.runOnce(ctx, "trigger")
		}
	}
}

func (s *DrainScheduler) runOnce(ctx context.Context, reason string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logError(ctx, "drain panicked", map[string]any{"reason": reason, "panic": fmt.Sprint(recovered)})
		}
	}()
	stats, err := s.drainer.Drain(ctx)
	fields := map[string]any{
		"reason":        reason,
		"scanned":       stats.Scanned,
		"delivered":     stats.Delivered,
		"failed":        stats.Failed,
		"dead_lettered": stats.DeadLettered,
		"skipped":       stats.Skipped,
	}
	switch {
	case IsErrorKind(err, ErrorDrainInProgress):
		s.logDebug(ctx, "drain skipped, another sweep is running", fields)
	case err != nil:
		fields["error"] = err.Error()
		s.logWarn(ctx, "drain finished with failures", fields)
	case stats.Scanned > 0:
		s.logInfo(ctx, "drain finished", fields)
	}
}
