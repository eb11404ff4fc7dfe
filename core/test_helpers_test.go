package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryDefinitionStore struct {
	mu       sync.Mutex
	seq      int
	events   map[string]EventDefinition
	webhooks map[string]WebhookDefinition
	nodes    []TemplateNode
	params   []PathParam
	getCalls int
}

func newMemoryDefinitionStore() *memoryDefinitionStore {
	return &memoryDefinitionStore{
		events:   map[string]EventDefinition{},
		webhooks: map[string]WebhookDefinition{},
	}
}

func (s *memoryDefinitionStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func (s *memoryDefinitionStore) ListActiveEvents(_ context.Context, table string, action LifecycleAction) ([]EventDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventDefinition, 0)
	for _, event := range s.events {
		if event.Active && strings.EqualFold(event.Table, table) && event.Action == action {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryDefinitionStore) GetEvent(_ context.Context, id string) (EventDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	event, ok := s.events[id]
	if !ok {
		return EventDefinition{}, ErrDefinitionNotFound
	}
	return event, nil
}

func (s *memoryDefinitionStore) GetWebhook(_ context.Context, id string) (WebhookDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	webhook, ok := s.webhooks[id]
	if !ok {
		return WebhookDefinition{}, ErrDefinitionNotFound
	}
	return webhook, nil
}

func (s *memoryDefinitionStore) ListWebhooksForEvent(_ context.Context, eventID string) ([]WebhookDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WebhookDefinition, 0)
	for _, webhook := range s.webhooks {
		if webhook.EventID == eventID {
			out = append(out, webhook)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryDefinitionStore) SaveEvent(_ context.Context, event EventDefinition) (EventDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = s.nextID("evt")
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *memoryDefinitionStore) SaveWebhook(_ context.Context, webhook WebhookDefinition) (WebhookDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if webhook.ID == "" {
		webhook.ID = s.nextID("wh")
	}
	s.webhooks[webhook.ID] = webhook
	return webhook, nil
}

func (s *memoryDefinitionStore) SaveTemplateNode(_ context.Context, node TemplateNode) (TemplateNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node.ID == "" {
		node.ID = s.nextID("node")
	}
	s.nodes = append(s.nodes, node)
	return node, nil
}

func (s *memoryDefinitionStore) SavePathParam(_ context.Context, param PathParam) (PathParam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if param.ID == "" {
		param.ID = s.nextID("param")
	}
	s.params = append(s.params, param)
	return param, nil
}

type memoryQueueStore struct {
	mu        sync.Mutex
	seq       int
	entries   map[string]QueueEntry
	listCalls int
}

func newMemoryQueueStore() *memoryQueueStore {
	return &memoryQueueStore{entries: map[string]QueueEntry{}}
}

func (s *memoryQueueStore) Enqueue(_ context.Context, entry QueueEntry) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entry.ID = fmt.Sprintf("q%06d", s.seq)
	if entry.Status == "" {
		entry.Status = QueueEntryPending
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *memoryQueueStore) ListPending(_ context.Context, afterID string, limit int) ([]QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]QueueEntry, 0)
	for _, entry := range s.sorted() {
		if entry.Status != QueueEntryPending || entry.ID <= afterID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryQueueStore) List(_ context.Context, filter QueueFilter) (QueuePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]QueueEntry, 0)
	for _, entry := range s.sorted() {
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if filter.Table != "" && entry.Table != filter.Table {
			continue
		}
		matched = append(matched, entry)
	}
	page := QueuePage{Total: len(matched)}
	if filter.Offset < len(matched) {
		end := len(matched)
		if filter.Limit > 0 && filter.Offset+filter.Limit < end {
			end = filter.Offset + filter.Limit
		}
		page.Items = matched[filter.Offset:end]
	}
	return page, nil
}

func (s *memoryQueueStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *memoryQueueStore) MarkFailed(_ context.Context, id string, cause error, dead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrDefinitionNotFound
	}
	entry.Attempts++
	if cause != nil {
		entry.LastError = cause.Error()
	}
	if dead {
		entry.Status = QueueEntryDead
	}
	s.entries[id] = entry
	return nil
}

func (s *memoryQueueStore) RequeueDead(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, entry := range s.entries {
		if entry.Status == QueueEntryDead {
			entry.Status = QueueEntryPending
			entry.Attempts = 0
			s.entries[id] = entry
			count++
		}
	}
	return count, nil
}

func (s *memoryQueueStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memoryQueueStore) get(id string) (QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	return entry, ok
}

func (s *memoryQueueStore) sorted() []QueueEntry {
	out := make([]QueueEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryRecordLoader struct {
	records map[string]Record
}

func newMemoryRecordLoader(records ...Record) *memoryRecordLoader {
	loader := &memoryRecordLoader{records: map[string]Record{}}
	for _, record := range records {
		loader.records[record.Table+"#"+record.ID] = record
	}
	return loader
}

func (l *memoryRecordLoader) Load(_ context.Context, table string, id string) (Record, error) {
	record, ok := l.records[table+"#"+id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

type senderCall struct {
	webhookID string
	recordID  string
}

type stubSender struct {
	mu    sync.Mutex
	calls []senderCall
	fail  func(webhook WebhookDefinition, record Record) error
}

func (s *stubSender) Send(_ context.Context, webhook WebhookDefinition, record Record) (DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, senderCall{webhookID: webhook.ID, recordID: record.ID})
	if s.fail != nil {
		if err := s.fail(webhook, record); err != nil {
			return DeliveryResult{}, err
		}
	}
	return DeliveryResult{WebhookID: webhook.ID, StatusCode: 200, Duration: time.Millisecond}, nil
}

func (s *stubSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type computeFunc func(ctx context.Context, args []string) (string, error)

func (f computeFunc) Compute(ctx context.Context, args []string) (string, error) {
	return f(ctx, args)
}

type nodeFunc func(ctx context.Context, args []string) (any, error)

func (f nodeFunc) BuildNode(ctx context.Context, args []string) (any, error) {
	return f(ctx, args)
}

type enqueueFilterFunc func(ctx context.Context, mutation MutationEvent, event EventDefinition) (bool, error)

func (f enqueueFilterFunc) AllowEnqueue(ctx context.Context, mutation MutationEvent, event EventDefinition) (bool, error) {
	return f(ctx, mutation, event)
}

type noopAction struct{}

func (noopAction) Get(context.Context, ActionCall) error  { return nil }
func (noopAction) Post(context.Context, ActionCall) error { return nil }

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// orderFixture wires the orders update scenario: one event, one webhook
// posting {"id", "note"} to https://x/{orderId}.
func orderFixture() (*memoryDefinitionStore, EventDefinition, WebhookDefinition) {
	store := newMemoryDefinitionStore()
	event := EventDefinition{ID: "evt_orders", Table: "orders", Action: ActionUpdate, Active: true}
	store.events[event.ID] = event
	webhook := WebhookDefinition{
		ID:          "wh_orders",
		EventID:     event.ID,
		Name:        "order-updated",
		URL:         "https://x/{orderId}",
		Method:      "POST",
		PayloadKind: PayloadJSON,
		Active:      true,
		Nodes: []TemplateNode{
			{Name: "id", Position: 1, ValueSource: ValueSource{Kind: ValuePropertyPath, Expression: "id"}},
			{Name: "note", Position: 2, ValueSource: ValueSource{Kind: ValueLiteral, Expression: "status is @status"}},
		},
		Params: []PathParam{
			{Name: "orderId", Placement: PlacementURLPath, Active: true, ValueSource: ValueSource{Kind: ValuePropertyPath, Expression: "id"}},
		},
	}
	store.webhooks[webhook.ID] = webhook
	return store, event, webhook
}

func orderRecord() Record {
	return Record{Table: "orders", ID: "42", Values: map[string]any{"id": 42, "status": "shipped"}}
}
