package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type eventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID             string    `bun:"id,pk"`
	TableName      string    `bun:"table_name,notnull"`
	Action         string    `bun:"action,notnull"`
	EventClass     string    `bun:"event_class,notnull"`
	RowFilter      string    `bun:"row_filter,notnull"`
	DynamicHandler string    `bun:"dynamic_handler,notnull"`
	Active         bool      `bun:"active,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookRecord struct {
	bun.BaseModel `bun:"table:webhook_definitions,alias:wd"`

	ID          string    `bun:"id,pk"`
	EventID     string    `bun:"event_id,notnull"`
	Name        string    `bun:"name,notnull"`
	URL         string    `bun:"url,notnull"`
	Method      string    `bun:"method,notnull"`
	PayloadKind string    `bun:"payload_kind,notnull"`
	RootElement string    `bun:"root_element,notnull"`
	Active      bool      `bun:"active,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type argumentValue struct {
	Value  string `json:"value"`
	Active bool   `json:"active"`
}

type templateNodeRecord struct {
	bun.BaseModel `bun:"table:webhook_template_nodes,alias:wtn"`

	ID               string          `bun:"id,pk"`
	WebhookID        string          `bun:"webhook_id,notnull"`
	ParentID         *string         `bun:"parent_id"`
	Position         int             `bun:"position,notnull"`
	Name             string          `bun:"name,notnull"`
	IsGroup          bool            `bun:"is_group,notnull"`
	IsArray          bool            `bun:"is_array,notnull"`
	Kind             string          `bun:"kind,notnull"`
	Expression       string          `bun:"expression,notnull"`
	Arguments        []argumentValue `bun:"arguments,type:jsonb,notnull"`
	DynamicArguments []argumentValue `bun:"dynamic_arguments,type:jsonb,notnull"`
}

type pathParamRecord struct {
	bun.BaseModel `bun:"table:webhook_path_params,alias:wpp"`

	ID               string          `bun:"id,pk"`
	WebhookID        string          `bun:"webhook_id,notnull"`
	Name             string          `bun:"name,notnull"`
	Placement        string          `bun:"placement,notnull"`
	Position         int             `bun:"position,notnull"`
	Active           bool            `bun:"active,notnull"`
	Kind             string          `bun:"kind,notnull"`
	Expression       string          `bun:"expression,notnull"`
	Arguments        []argumentValue `bun:"arguments,type:jsonb,notnull"`
	DynamicArguments []argumentValue `bun:"dynamic_arguments,type:jsonb,notnull"`
}

type queueEntryRecord struct {
	bun.BaseModel `bun:"table:webhook_queue_entries,alias:wqe"`

	ID         string         `bun:"id,pk"`
	TableName  string         `bun:"table_name,notnull"`
	RecordID   string         `bun:"record_id,notnull"`
	EventID    string         `bun:"event_id,notnull"`
	Status     string         `bun:"status,notnull"`
	Attempts   int            `bun:"attempts,notnull"`
	LastError  string         `bun:"last_error,notnull"`
	Snapshot   map[string]any `bun:"snapshot,type:jsonb,notnull"`
	EnqueuedAt time.Time      `bun:"enqueued_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type actionParameterValue struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

type actionRecord struct {
	bun.BaseModel `bun:"table:webhook_actions,alias:wa"`

	ID              string                 `bun:"id,pk"`
	Name            string                 `bun:"name,notnull"`
	Handler         string                 `bun:"handler,notnull"`
	Description     string                 `bun:"description,notnull"`
	Parameters      []actionParameterValue `bun:"parameters,type:jsonb,notnull"`
	GroupAccessible bool                   `bun:"group_accessible,notnull"`
	Active          bool                   `bun:"active,notnull"`
	CreatedAt       time.Time              `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time              `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type accessGrantRecord struct {
	bun.BaseModel `bun:"table:webhook_access_grants,alias:wag"`

	ID        string    `bun:"id,pk"`
	ActionID  string    `bun:"action_id,notnull"`
	TokenID   string    `bun:"token_id,notnull"`
	RoleID    string    `bun:"role_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type apiKeyRecord struct {
	bun.BaseModel `bun:"table:webhook_api_keys,alias:wak"`

	ID          string     `bun:"id,pk"`
	SecretHash  string     `bun:"secret_hash,notnull"`
	Description string     `bun:"description,notnull"`
	UserID      string     `bun:"user_id,notnull"`
	RoleID      string     `bun:"role_id,notnull"`
	ClientID    string     `bun:"client_id,notnull"`
	OrgID       string     `bun:"org_id,notnull"`
	WarehouseID string     `bun:"warehouse_id,notnull"`
	Active      bool       `bun:"active,notnull"`
	ExpiresAt   *time.Time `bun:"expires_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type hostThrottleRecord struct {
	bun.BaseModel `bun:"table:webhook_host_throttles,alias:wht"`

	Host           string     `bun:"host,pk"`
	Limit          int        `bun:"limit_value,notnull"`
	Remaining      int        `bun:"remaining,notnull"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfterMS   *int64     `bun:"retry_after_ms"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
