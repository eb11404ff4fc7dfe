package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingDrainer struct {
	calls atomic.Int32
	ran   chan struct{}
}

func (d *countingDrainer) Drain(context.Context) (DrainStats, error) {
	d.calls.Add(1)
	select {
	case d.ran <- struct{}{}:
	default:
	}
	return DrainStats{}, nil
}

func TestDrainScheduler_TriggerRunsDrain(t *testing.T) {
	drainer := &countingDrainer{ran: make(chan struct{}, 1)}
	scheduler, err := NewDrainScheduler(drainer, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if scheduler.Trigger() {
		t.Fatalf("expected trigger before start to be ignored")
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if !scheduler.Trigger() {
		t.Fatalf("expected trigger accepted")
	}
	select {
	case <-drainer.ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected drain to run after trigger")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if scheduler.Running() {
		t.Fatalf("expected scheduler stopped")
	}
}

func TestDrainScheduler_TicksAtInterval(t *testing.T) {
	drainer := &countingDrainer{ran: make(chan struct{}, 1)}
	scheduler, _ := NewDrainScheduler(drainer, 10*time.Millisecond, nil, nil)
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = scheduler.Stop(context.Background()) }()

	select {
	case <-drainer.ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected ticker driven drain")
	}
}
