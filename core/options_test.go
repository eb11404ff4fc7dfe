package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	definitions, _, _ := orderFixture()
	base := []Option{
		WithDefinitionStore(definitions),
		WithQueueStore(newMemoryQueueStore()),
		WithRecordLoader(newMemoryRecordLoader(orderRecord())),
		WithSender(&stubSender{}),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc := newTestService(t)
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorFactory == nil {
		t.Fatalf("expected default error factory")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.Registry == nil || deps.PayloadHooks == nil || deps.DrainLocker == nil {
		t.Fatalf("expected default registry, hooks and locker")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "webhooks" {
		t.Fatalf("expected default service_name=webhooks, got %q", cfg.ServiceName)
	}
	if cfg.Template.Marker != "@" || cfg.Queue.BatchSize != 1000 || cfg.Queue.FlushEvery != 100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Transport.Timeout != 30*time.Second {
		t.Fatalf("expected 30s transport timeout, got %s", cfg.Transport.Timeout)
	}
}

func TestNewService_RequiresStores(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Fatalf("expected missing stores error")
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	customFactory := func(message string, category ...goerrors.Category) *goerrors.Error {
		return goerrors.New("custom:"+message, category...)
	}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	persistenceClient := &struct{ Name string }{Name: "persistence"}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved", Template: TemplateConfig{Marker: "$"}}}

	svc := newTestService(t,
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorFactory(customFactory),
		WithErrorMapper(customMapper),
		WithPersistenceClient(persistenceClient),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
	)

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("webhooks.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.PersistenceClient != persistenceClient {
		t.Fatalf("expected custom persistence client override")
	}
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver override")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if svc.Resolver().Marker() != "$" {
		t.Fatalf("expected resolver to use configured marker")
	}
	if svc.Config().Queue.BatchSize != 1000 {
		t.Fatalf("expected zero values to fall back to defaults")
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"queue": map[string]any{
			"batch_size":   25,
			"max_attempts": 5,
		},
	}})

	svc := newTestService(t, WithConfigProvider(provider))
	cfg := svc.Config()
	if cfg.ServiceName != "from-config" {
		t.Fatalf("expected config layer service name, got %q", cfg.ServiceName)
	}
	if cfg.Queue.BatchSize != 25 || cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("expected config layer queue values, got %+v", cfg.Queue)
	}

	runtime, err := NewService(Config{ServiceName: "from-runtime"},
		WithConfigProvider(provider),
		WithDefinitionStore(newMemoryDefinitionStore()),
		WithQueueStore(newMemoryQueueStore()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if runtime.Config().ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to win, got %q", runtime.Config().ServiceName)
	}
	if runtime.Config().Queue.BatchSize != 25 {
		t.Fatalf("expected config layer value kept under runtime, got %d", runtime.Config().Queue.BatchSize)
	}
}

func TestNewService_SenderFactoryReceivesResolver(t *testing.T) {
	var received SenderDependencies
	svc, err := NewService(Config{},
		WithDefinitionStore(newMemoryDefinitionStore()),
		WithQueueStore(newMemoryQueueStore()),
		WithRecordLoader(newMemoryRecordLoader()),
		WithSenderFactory(func(deps SenderDependencies) (Sender, error) {
			received = deps
			return &stubSender{}, nil
		}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if received.Resolver == nil || received.Hooks == nil || received.Logger == nil {
		t.Fatalf("expected sender dependencies populated, got %+v", received)
	}
	if svc.Dependencies().Sender == nil {
		t.Fatalf("expected sender from factory")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults valid, got %v", err)
	}
	cfg.Template.Marker = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected empty marker rejected")
	}
	cfg = DefaultConfig()
	cfg.Queue.BatchSize = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative batch size rejected")
	}
}
