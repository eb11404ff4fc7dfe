package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhooks/core"
)

const definitionCacheKeyPrefix = "go-webhooks::definitions::v1"

// CachedDefinitionStore fronts a DefinitionStore with a read-through cache.
// Every save goes to the base store first and then evicts the keys it can
// have changed.
type CachedDefinitionStore struct {
	base  core.DefinitionStore
	cache repositorycache.CacheService
}

func NewCachedDefinitionStore(
	base core.DefinitionStore,
	cacheService repositorycache.CacheService,
) (*CachedDefinitionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base definition store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: definition cache service is required")
	}
	return &CachedDefinitionStore{base: base, cache: cacheService}, nil
}

// DefinitionCacheKey joins escaped segments under the definitions prefix:
// go-webhooks::definitions::v1::<kind>::<segment>...
func DefinitionCacheKey(kind string, segments ...string) string {
	parts := []string{definitionCacheKeyPrefix, url.PathEscape(kind)}
	for _, segment := range segments {
		parts = append(parts, url.PathEscape(strings.ToLower(strings.TrimSpace(segment))))
	}
	return strings.Join(parts, "::")
}

func (s *CachedDefinitionStore) ListActiveEvents(
	ctx context.Context,
	table string,
	action core.LifecycleAction,
) ([]core.EventDefinition, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	key := DefinitionCacheKey("active_events", table, string(action))
	events, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) ([]core.EventDefinition, error) {
		return s.base.ListActiveEvents(ctx, table, action)
	})
	if err != nil {
		return nil, err
	}
	return append([]core.EventDefinition(nil), events...), nil
}

func (s *CachedDefinitionStore) GetEvent(ctx context.Context, id string) (core.EventDefinition, error) {
	if err := s.ready(); err != nil {
		return core.EventDefinition{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, DefinitionCacheKey("event", id), func(ctx context.Context) (core.EventDefinition, error) {
		return s.base.GetEvent(ctx, id)
	})
}

func (s *CachedDefinitionStore) GetWebhook(ctx context.Context, id string) (core.WebhookDefinition, error) {
	if err := s.ready(); err != nil {
		return core.WebhookDefinition{}, err
	}
	webhook, err := repositorycache.GetOrFetch(ctx, s.cache, DefinitionCacheKey("webhook", id), func(ctx context.Context) (core.WebhookDefinition, error) {
		return s.base.GetWebhook(ctx, id)
	})
	if err != nil {
		return core.WebhookDefinition{}, err
	}
	return cloneWebhook(webhook), nil
}

func (s *CachedDefinitionStore) ListWebhooksForEvent(ctx context.Context, eventID string) ([]core.WebhookDefinition, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	key := DefinitionCacheKey("event_webhooks", eventID)
	webhooks, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) ([]core.WebhookDefinition, error) {
		return s.base.ListWebhooksForEvent(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookDefinition, 0, len(webhooks))
	for _, webhook := range webhooks {
		out = append(out, cloneWebhook(webhook))
	}
	return out, nil
}

func (s *CachedDefinitionStore) SaveEvent(ctx context.Context, event core.EventDefinition) (core.EventDefinition, error) {
	if err := s.ready(); err != nil {
		return core.EventDefinition{}, err
	}
	keys := []string{}
	if id := strings.TrimSpace(event.ID); id != "" {
		if previous, err := s.base.GetEvent(ctx, id); err == nil {
			keys = append(keys, DefinitionCacheKey("active_events", previous.Table, string(previous.Action)))
		}
	}
	saved, err := s.base.SaveEvent(ctx, event)
	if err != nil {
		return core.EventDefinition{}, err
	}
	keys = append(keys,
		DefinitionCacheKey("event", saved.ID),
		DefinitionCacheKey("active_events", saved.Table, string(saved.Action)),
	)
	return saved, s.evict(ctx, keys...)
}

func (s *CachedDefinitionStore) SaveWebhook(ctx context.Context, webhook core.WebhookDefinition) (core.WebhookDefinition, error) {
	if err := s.ready(); err != nil {
		return core.WebhookDefinition{}, err
	}
	keys := []string{}
	if id := strings.TrimSpace(webhook.ID); id != "" {
		if previous, err := s.base.GetWebhook(ctx, id); err == nil {
			keys = append(keys, DefinitionCacheKey("event_webhooks", previous.EventID))
		}
	}
	saved, err := s.base.SaveWebhook(ctx, webhook)
	if err != nil {
		return core.WebhookDefinition{}, err
	}
	keys = append(keys,
		DefinitionCacheKey("webhook", saved.ID),
		DefinitionCacheKey("event_webhooks", saved.EventID),
	)
	return saved, s.evict(ctx, keys...)
}

func (s *CachedDefinitionStore) SaveTemplateNode(ctx context.Context, node core.TemplateNode) (core.TemplateNode, error) {
	if err := s.ready(); err != nil {
		return core.TemplateNode{}, err
	}
	saved, err := s.base.SaveTemplateNode(ctx, node)
	if err != nil {
		return core.TemplateNode{}, err
	}
	return saved, s.evictWebhook(ctx, saved.WebhookID)
}

func (s *CachedDefinitionStore) SavePathParam(ctx context.Context, param core.PathParam) (core.PathParam, error) {
	if err := s.ready(); err != nil {
		return core.PathParam{}, err
	}
	saved, err := s.base.SavePathParam(ctx, param)
	if err != nil {
		return core.PathParam{}, err
	}
	return saved, s.evictWebhook(ctx, saved.WebhookID)
}

func (s *CachedDefinitionStore) evictWebhook(ctx context.Context, webhookID string) error {
	keys := []string{DefinitionCacheKey("webhook", webhookID)}
	if webhook, err := s.base.GetWebhook(ctx, webhookID); err == nil {
		keys = append(keys, DefinitionCacheKey("event_webhooks", webhook.EventID))
	}
	return s.evict(ctx, keys...)
}

func (s *CachedDefinitionStore) evict(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *CachedDefinitionStore) ready() error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached definition store is not configured")
	}
	return nil
}

func cloneWebhook(webhook core.WebhookDefinition) core.WebhookDefinition {
	cloned := webhook
	cloned.Nodes = append([]core.TemplateNode(nil), webhook.Nodes...)
	cloned.Params = append([]core.PathParam(nil), webhook.Params...)
	return cloned
}
