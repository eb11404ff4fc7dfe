package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

func newEventRecord(event core.EventDefinition) *eventRecord {
	return &eventRecord{
		ID:             strings.TrimSpace(event.ID),
		TableName:      strings.TrimSpace(event.Table),
		Action:         string(event.Action),
		EventClass:     strings.TrimSpace(event.EventClass),
		RowFilter:      event.RowFilter,
		DynamicHandler: strings.TrimSpace(event.DynamicHandler),
		Active:         event.Active,
		CreatedAt:      event.CreatedAt,
		UpdatedAt:      event.UpdatedAt,
	}
}

func (r *eventRecord) toDomain() core.EventDefinition {
	if r == nil {
		return core.EventDefinition{}
	}
	return core.EventDefinition{
		ID:             r.ID,
		Table:          r.TableName,
		Action:         core.LifecycleAction(r.Action),
		EventClass:     r.EventClass,
		RowFilter:      r.RowFilter,
		DynamicHandler: r.DynamicHandler,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newWebhookRecord(webhook core.WebhookDefinition) *webhookRecord {
	return &webhookRecord{
		ID:          strings.TrimSpace(webhook.ID),
		EventID:     strings.TrimSpace(webhook.EventID),
		Name:        strings.TrimSpace(webhook.Name),
		URL:         strings.TrimSpace(webhook.URL),
		Method:      strings.ToUpper(strings.TrimSpace(webhook.Method)),
		PayloadKind: string(webhook.PayloadKind),
		RootElement: strings.TrimSpace(webhook.RootElement),
		Active:      webhook.Active,
		CreatedAt:   webhook.CreatedAt,
		UpdatedAt:   webhook.UpdatedAt,
	}
}

func (r *webhookRecord) toDomain() core.WebhookDefinition {
	if r == nil {
		return core.WebhookDefinition{}
	}
	return core.WebhookDefinition{
		ID:          r.ID,
		EventID:     r.EventID,
		Name:        r.Name,
		URL:         r.URL,
		Method:      r.Method,
		PayloadKind: core.PayloadKind(r.PayloadKind),
		RootElement: r.RootElement,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newTemplateNodeRecord(node core.TemplateNode) *templateNodeRecord {
	record := &templateNodeRecord{
		ID:               strings.TrimSpace(node.ID),
		WebhookID:        strings.TrimSpace(node.WebhookID),
		Position:         node.Position,
		Name:             strings.TrimSpace(node.Name),
		IsGroup:          node.IsGroup,
		IsArray:          node.IsArray,
		Kind:             string(node.Kind),
		Expression:       node.Expression,
		Arguments:        newArgumentValues(node.Arguments),
		DynamicArguments: newArgumentValues(node.DynamicArguments),
	}
	if parent := strings.TrimSpace(node.ParentID); parent != "" {
		record.ParentID = &parent
	}
	return record
}

func (r *templateNodeRecord) toDomain() core.TemplateNode {
	if r == nil {
		return core.TemplateNode{}
	}
	node := core.TemplateNode{
		ID:        r.ID,
		WebhookID: r.WebhookID,
		Position:  r.Position,
		Name:      r.Name,
		IsGroup:   r.IsGroup,
		IsArray:   r.IsArray,
		ValueSource: core.ValueSource{
			Kind:             core.ValueKind(r.Kind),
			Expression:       r.Expression,
			Arguments:        argumentsToDomain(r.Arguments),
			DynamicArguments: argumentsToDomain(r.DynamicArguments),
		},
	}
	if r.ParentID != nil {
		node.ParentID = *r.ParentID
	}
	return node
}

func newPathParamRecord(param core.PathParam) *pathParamRecord {
	return &pathParamRecord{
		ID:               strings.TrimSpace(param.ID),
		WebhookID:        strings.TrimSpace(param.WebhookID),
		Name:             strings.TrimSpace(param.Name),
		Placement:        string(param.Placement),
		Position:         param.Position,
		Active:           param.Active,
		Kind:             string(param.Kind),
		Expression:       param.Expression,
		Arguments:        newArgumentValues(param.Arguments),
		DynamicArguments: newArgumentValues(param.DynamicArguments),
	}
}

func (r *pathParamRecord) toDomain() core.PathParam {
	if r == nil {
		return core.PathParam{}
	}
	return core.PathParam{
		ID:        r.ID,
		WebhookID: r.WebhookID,
		Name:      r.Name,
		Placement: core.ParamPlacement(r.Placement),
		Position:  r.Position,
		Active:    r.Active,
		ValueSource: core.ValueSource{
			Kind:             core.ValueKind(r.Kind),
			Expression:       r.Expression,
			Arguments:        argumentsToDomain(r.Arguments),
			DynamicArguments: argumentsToDomain(r.DynamicArguments),
		},
	}
}

func newArgumentValues(arguments []core.HandlerArgument) []argumentValue {
	out := make([]argumentValue, 0, len(arguments))
	for _, argument := range arguments {
		out = append(out, argumentValue{Value: argument.Value, Active: argument.Active})
	}
	return out
}

func argumentsToDomain(values []argumentValue) []core.HandlerArgument {
	if len(values) == 0 {
		return nil
	}
	out := make([]core.HandlerArgument, 0, len(values))
	for _, value := range values {
		out = append(out, core.HandlerArgument{Value: value.Value, Active: value.Active})
	}
	return out
}

func newQueueEntryRecord(entry core.QueueEntry) *queueEntryRecord {
	status := entry.Status
	if status == "" {
		status = core.QueueEntryPending
	}
	return &queueEntryRecord{
		ID:         strings.TrimSpace(entry.ID),
		TableName:  strings.TrimSpace(entry.Table),
		RecordID:   strings.TrimSpace(entry.RecordID),
		EventID:    strings.TrimSpace(entry.EventID),
		Status:     string(status),
		Attempts:   entry.Attempts,
		LastError:  entry.LastError,
		Snapshot:   copyAnyMap(entry.Snapshot),
		EnqueuedAt: entry.EnqueuedAt,
		UpdatedAt:  entry.UpdatedAt,
	}
}

func (r *queueEntryRecord) toDomain() core.QueueEntry {
	if r == nil {
		return core.QueueEntry{}
	}
	return core.QueueEntry{
		ID:         r.ID,
		Table:      r.TableName,
		RecordID:   r.RecordID,
		EventID:    r.EventID,
		Status:     core.QueueEntryStatus(r.Status),
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		Snapshot:   copyAnyMap(r.Snapshot),
		EnqueuedAt: r.EnqueuedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func newActionRecord(action core.ActionDefinition) *actionRecord {
	parameters := make([]actionParameterValue, 0, len(action.Parameters))
	for _, parameter := range action.Parameters {
		parameters = append(parameters, actionParameterValue{
			Name:        strings.TrimSpace(parameter.Name),
			Required:    parameter.Required,
			Description: parameter.Description,
		})
	}
	return &actionRecord{
		ID:              strings.TrimSpace(action.ID),
		Name:            strings.TrimSpace(action.Name),
		Handler:         strings.TrimSpace(action.Handler),
		Description:     action.Description,
		Parameters:      parameters,
		GroupAccessible: action.GroupAccessible,
		Active:          action.Active,
	}
}

func (r *actionRecord) toDomain() core.ActionDefinition {
	if r == nil {
		return core.ActionDefinition{}
	}
	var parameters []core.ActionParameter
	for _, parameter := range r.Parameters {
		parameters = append(parameters, core.ActionParameter{
			Name:        parameter.Name,
			Required:    parameter.Required,
			Description: parameter.Description,
		})
	}
	return core.ActionDefinition{
		ID:              r.ID,
		Name:            r.Name,
		Handler:         r.Handler,
		Description:     r.Description,
		Parameters:      parameters,
		GroupAccessible: r.GroupAccessible,
		Active:          r.Active,
	}
}

func (r *accessGrantRecord) toDomain() core.AccessGrant {
	if r == nil {
		return core.AccessGrant{}
	}
	return core.AccessGrant{
		ID:       r.ID,
		ActionID: r.ActionID,
		TokenID:  r.TokenID,
		RoleID:   r.RoleID,
	}
}

func newAPIKeyRecord(key core.APIKey) *apiKeyRecord {
	return &apiKeyRecord{
		ID:          strings.TrimSpace(key.ID),
		SecretHash:  key.SecretHash,
		Description: key.Description,
		UserID:      strings.TrimSpace(key.UserID),
		RoleID:      strings.TrimSpace(key.RoleID),
		ClientID:    strings.TrimSpace(key.ClientID),
		OrgID:       strings.TrimSpace(key.OrgID),
		WarehouseID: strings.TrimSpace(key.WarehouseID),
		Active:      key.Active,
		ExpiresAt:   copyTimePtr(key.ExpiresAt),
		CreatedAt:   key.CreatedAt,
	}
}

func (r *apiKeyRecord) toDomain() core.APIKey {
	if r == nil {
		return core.APIKey{}
	}
	return core.APIKey{
		ID:          r.ID,
		SecretHash:  r.SecretHash,
		Description: r.Description,
		UserID:      r.UserID,
		RoleID:      r.RoleID,
		ClientID:    r.ClientID,
		OrgID:       r.OrgID,
		WarehouseID: r.WarehouseID,
		Active:      r.Active,
		ExpiresAt:   copyTimePtr(r.ExpiresAt),
		CreatedAt:   r.CreatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyTimePtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	copied := value.UTC()
	return &copied
}
