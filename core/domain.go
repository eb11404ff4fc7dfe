package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrRecordNotFound     = errors.New("core: record not found")
	ErrDefinitionNotFound = errors.New("core: definition not found")
	ErrInvalidAction      = errors.New("core: invalid lifecycle action")
	ErrInvalidPayloadKind = errors.New("core: invalid payload kind")
	ErrInvalidValueKind   = errors.New("core: invalid value kind")
	ErrInvalidPlacement   = errors.New("core: invalid param placement")
)

type LifecycleAction string

const (
	ActionCreate LifecycleAction = "create"
	ActionUpdate LifecycleAction = "update"
	ActionDelete LifecycleAction = "delete"
)

func ParseLifecycleAction(value string) (LifecycleAction, error) {
	switch LifecycleAction(strings.TrimSpace(strings.ToLower(value))) {
	case ActionCreate:
		return ActionCreate, nil
	case ActionUpdate:
		return ActionUpdate, nil
	case ActionDelete:
		return ActionDelete, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, value)
}

type PayloadKind string

const (
	PayloadJSON PayloadKind = "json"
	PayloadXML  PayloadKind = "xml"
)

func ParsePayloadKind(value string) (PayloadKind, error) {
	switch PayloadKind(strings.TrimSpace(strings.ToLower(value))) {
	case "", PayloadJSON:
		return PayloadJSON, nil
	case PayloadXML:
		return PayloadXML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPayloadKind, value)
}

// ValueKind selects the resolution strategy for a template leaf or path param.
type ValueKind string

const (
	ValueLiteral      ValueKind = "literal"
	ValuePropertyPath ValueKind = "property_path"
	ValueComputed     ValueKind = "computed"
	ValueDynamicNode  ValueKind = "dynamic_node"
)

func (k ValueKind) Valid() bool {
	switch k {
	case ValueLiteral, ValuePropertyPath, ValueComputed, ValueDynamicNode:
		return true
	}
	return false
}

type ParamPlacement string

const (
	PlacementURLPath ParamPlacement = "url_path"
	PlacementHeader  ParamPlacement = "header"
)

func (p ParamPlacement) Valid() bool {
	return p == PlacementURLPath || p == PlacementHeader
}

// EventDefinition identifies which mutations of a table are observed.
type EventDefinition struct {
	ID             string
	Table          string
	Action         LifecycleAction
	EventClass     string
	RowFilter      string
	DynamicHandler string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type WebhookDefinition struct {
	ID          string
	EventID     string
	Name        string
	URL         string
	Method      string
	PayloadKind PayloadKind
	RootElement string
	Active      bool
	Nodes       []TemplateNode
	Params      []PathParam
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type HandlerArgument struct {
	Value  string
	Active bool
}

// ValueSource is the resolvable part shared by template leaves and path params.
// Expression holds the literal text, the property path or the handler name
// depending on Kind.
type ValueSource struct {
	Kind             ValueKind
	Expression       string
	Arguments        []HandlerArgument
	DynamicArguments []HandlerArgument
}

type TemplateNode struct {
	ID        string
	WebhookID string
	ParentID  string
	Position  int
	Name      string
	IsGroup   bool
	IsArray   bool
	ValueSource
	Children []TemplateNode
}

type PathParam struct {
	ID        string
	WebhookID string
	Name      string
	Placement ParamPlacement
	Position  int
	Active    bool
	ValueSource
}

type QueueEntryStatus string

const (
	QueueEntryPending QueueEntryStatus = "pending"
	QueueEntryDead    QueueEntryStatus = "dead"
)

type QueueEntry struct {
	ID         string
	Table      string
	RecordID   string
	EventID    string
	Status     QueueEntryStatus
	Attempts   int
	LastError  string
	Snapshot   map[string]any
	EnqueuedAt time.Time
	UpdatedAt  time.Time
}

type QueueFilter struct {
	Status QueueEntryStatus
	Table  string
	Limit  int
	Offset int
}

type QueuePage struct {
	Items []QueueEntry
	Total int
}

// Record is a loaded entity row. Values are keyed by column name; nested maps
// are navigated by dot paths.
type Record struct {
	Table  string
	ID     string
	Values map[string]any
}

// DisplayID identifies the record in operator facing errors.
func (r Record) DisplayID() string {
	id := strings.TrimSpace(r.ID)
	for _, key := range []string{"display_name", "name", "document_no"} {
		if value, ok := r.Values[key]; ok && value != nil {
			if label := strings.TrimSpace(Stringify(value)); label != "" {
				return fmt.Sprintf("%s#%s (%s)", r.Table, id, label)
			}
		}
	}
	return fmt.Sprintf("%s#%s", r.Table, id)
}

// MutationEvent is what the mutation bus hands to the subscriber.
type MutationEvent struct {
	Table      string
	TableID    string
	Action     LifecycleAction
	RecordID   string
	EventClass string
	Values     map[string]any
	OccurredAt time.Time
}

func (e MutationEvent) Validate() error {
	if strings.TrimSpace(e.Table) == "" {
		return fmt.Errorf("core: mutation table is required")
	}
	if strings.TrimSpace(e.RecordID) == "" {
		return fmt.Errorf("core: mutation record id is required")
	}
	if _, err := ParseLifecycleAction(string(e.Action)); err != nil {
		return err
	}
	return nil
}

type DeliveryResult struct {
	WebhookID    string
	Method       string
	URL          string
	StatusCode   int
	ResponseBody string
	Duration     time.Duration
}

type DrainStats struct {
	Scanned      int
	Delivered    int
	Failed       int
	DeadLettered int
	Skipped      int
	Flushes      int
}

type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodBearer AuthMethod = "bearer"
)

// ActorContext is the identity an inbound action executes under.
type ActorContext struct {
	Method      AuthMethod
	TokenID     string
	UserID      string
	RoleID      string
	ClientID    string
	OrgID       string
	WarehouseID string
}

type Credentials struct {
	APIKey      string
	BearerToken string
}

type APIKey struct {
	ID          string
	SecretHash  string
	Description string
	UserID      string
	RoleID      string
	ClientID    string
	OrgID       string
	WarehouseID string
	Active      bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.IsZero() && !now.Before(*k.ExpiresAt)
}

type ActionParameter struct {
	Name        string
	Required    bool
	Description string
}

type ActionDefinition struct {
	ID              string
	Name            string
	Handler         string
	Description     string
	Parameters      []ActionParameter
	GroupAccessible bool
	Active          bool
}

// AccessGrant authorizes either a token identity or a role identity.
type AccessGrant struct {
	ID       string
	ActionID string
	TokenID  string
	RoleID   string
}

// ActionCall is handed to action handlers. Handlers write their response
// into Output.
type ActionCall struct {
	Action ActionDefinition
	Actor  ActorContext
	Method string
	Params map[string]string
	Output map[string]any
}
