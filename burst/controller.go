// Package burst collapses repeated mutation notifications for the same record
// that arrive inside a short window.
package burst

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
)

type Mode string

const (
	ModeNone     Mode = "none"
	ModeCoalesce Mode = "coalesce"
	ModeDebounce Mode = "debounce"
)

type Decision struct {
	Allow    bool
	Metadata map[string]any
}

type KeyExtractor func(event core.MutationEvent) (string, bool)

type Options struct {
	Mode       Mode
	Window     time.Duration
	MaxEntries int
	ExtractKey KeyExtractor
	Now        func() time.Time
}

// Controller remembers when each key was last seen. In coalesce mode the
// window is measured from the first allowed event; in debounce mode every
// suppressed event extends it.
type Controller struct {
	mode       Mode
	window     time.Duration
	maxEntries int
	extractKey KeyExtractor
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewController(opts Options) *Controller {
	window := opts.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	extractKey := opts.ExtractKey
	if extractKey == nil {
		extractKey = DefaultKeyExtractor
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Controller{
		mode:       ParseMode(string(opts.Mode)),
		window:     window,
		maxEntries: maxEntries,
		extractKey: extractKey,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

func (c *Controller) Allow(event core.MutationEvent) Decision {
	if c == nil || c.mode == ModeNone {
		return Decision{Allow: true}
	}
	key, ok := c.extractKey(event)
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return Decision{Allow: true}
	}

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, exists := c.entries[key]
	if !exists || now.Sub(lastSeen) >= c.window {
		c.entries[key] = now
		c.cleanup(now)
		return Decision{Allow: true}
	}

	metadata := map[string]any{
		"burst_mode":      string(c.mode),
		"burst_key":       key,
		"burst_window_ms": c.window.Milliseconds(),
	}
	switch c.mode {
	case ModeCoalesce:
		metadata["coalesced"] = true
	case ModeDebounce:
		c.entries[key] = now
		metadata["debounced"] = true
	}
	return Decision{Allow: false, Metadata: metadata}
}

func (c *Controller) cleanup(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		for key, seenAt := range c.entries {
			if now.Sub(seenAt) > c.window*4 {
				delete(c.entries, key)
			}
		}
		return
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > c.window {
			delete(c.entries, key)
		}
		if len(c.entries) <= c.maxEntries {
			break
		}
	}
}

// DefaultKeyExtractor keys on table, record id and action, so an update
// following a create is never collapsed into it.
func DefaultKeyExtractor(event core.MutationEvent) (string, bool) {
	table := strings.ToLower(strings.TrimSpace(event.Table))
	recordID := strings.TrimSpace(event.RecordID)
	if table == "" || recordID == "" {
		return "", false
	}
	return fmt.Sprintf("%s:%s:%s", table, recordID, event.Action), true
}

func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeCoalesce):
		return ModeCoalesce
	case string(ModeDebounce):
		return ModeDebounce
	default:
		return ModeNone
	}
}

type Notifier interface {
	NotifyMutation(ctx context.Context, mutation core.MutationEvent) error
}

// FilteredNotifier forwards only the mutations the controller allows.
type FilteredNotifier struct {
	next       Notifier
	controller *Controller
	logger     glog.Logger
}

func NewFilteredNotifier(next Notifier, controller *Controller, logger glog.Logger) (*FilteredNotifier, error) {
	if next == nil {
		return nil, fmt.Errorf("burst: notifier is required")
	}
	return &FilteredNotifier{next: next, controller: controller, logger: glog.Ensure(logger)}, nil
}

func (n *FilteredNotifier) NotifyMutation(ctx context.Context, mutation core.MutationEvent) error {
	decision := n.controller.Allow(mutation)
	if !decision.Allow {
		n.logger.Debug("mutation suppressed by burst control",
			"table", mutation.Table,
			"record_id", mutation.RecordID,
			"action", string(mutation.Action),
			"burst_mode", decision.Metadata["burst_mode"],
		)
		return nil
	}
	return n.next.NotifyMutation(ctx, mutation)
}
