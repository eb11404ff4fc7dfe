// Command webhooksd serves the inbound action endpoint and drains the
// outbound webhook queue on a schedule.
//
//	webhooksd                 serve
//	webhooksd seal <value>    print a sealed header secret
//	webhooksd drain           run one drain sweep and exit
//	webhooksd requeue-dead    move dead entries back to pending and exit
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	webhooks "github.com/goliatone/go-webhooks"
	"github.com/goliatone/go-webhooks/adapters/fiberhttp"
	"github.com/goliatone/go-webhooks/adapters/gologger"
	"github.com/goliatone/go-webhooks/adapters/kafkabus"
	"github.com/goliatone/go-webhooks/adapters/redislock"
	"github.com/goliatone/go-webhooks/auth"
	"github.com/goliatone/go-webhooks/burst"
	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/inbound"
	webhookmigrations "github.com/goliatone/go-webhooks/migrations"
	"github.com/goliatone/go-webhooks/ratelimit"
	"github.com/goliatone/go-webhooks/security"
	sqlstore "github.com/goliatone/go-webhooks/store/sql"
	"github.com/goliatone/go-webhooks/transport"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "webhooksd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	if len(os.Args) > 2 && os.Args[1] == "seal" {
		return sealValue(cfg, os.Args[2])
	}

	root, err := gologger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = root.Sync() }()
	provider := gologger.NewZapProvider(root)
	logger := gologger.Component(provider, gologger.ComponentDaemon)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := openPersistence(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	factoryOpts := []sqlstore.FactoryOption{}
	if cfg.CacheTTL > 0 {
		cacheCfg := repositorycache.DefaultConfig()
		cacheCfg.TTL = cfg.CacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheCfg)
		if err != nil {
			return fmt.Errorf("definition cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithDefinitionCache(cacheService))
	}
	factory, err := webhooks.SQLRepositoryFactory(client, factoryOpts...)
	if err != nil {
		return err
	}

	senderOpts := []transport.DispatcherOption{
		transport.WithLogger(gologger.Component(provider, gologger.ComponentTransport)),
		transport.WithThrottlePolicy(ratelimit.NewHostPolicy(factory.ThrottleStore())),
	}
	if cfg.SecretKey != "" {
		ring, err := headerKeyRing(cfg)
		if err != nil {
			return err
		}
		senderOpts = append(senderOpts, transport.WithHeaderUnsealer(ring))
	}
	if cfg.SigningSecret != "" {
		senderOpts = append(senderOpts, transport.WithSigner(transport.NewHMACSigner(cfg.SigningSecret)))
	}
	if cfg.HostRate > 0 {
		senderOpts = append(senderOpts, transport.WithHostLimiter(transport.NewHostLimiter(cfg.HostRate, cfg.HostBurst)))
	}
	serviceOpts := []webhooks.Option{
		webhooks.WithLoggerProvider(provider),
		webhooks.WithLogger(gologger.Component(provider, gologger.ComponentService)),
		webhooks.WithPersistenceClient(client),
		webhooks.WithRepositoryFactory(factory),
		webhooks.WithSenderFactory(webhooks.HTTPSenderFactory(nil, senderOpts...)),
	}

	if cfg.RedisAddr != "" {
		locker, redisClient, err := redislock.Dial(ctx, redislock.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		serviceOpts = append(serviceOpts, webhooks.WithDrainLocker(locker))
		logger.Info("drain lock backed by redis", "addr", cfg.RedisAddr)
	}

	var publisher *kafkabus.Publisher
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaPublishTopic != "" {
		writer, err := kafkabus.NewWriter(cfg.KafkaBrokers, cfg.KafkaPublishTopic)
		if err != nil {
			return err
		}
		defer func() { _ = writer.Close() }()
		publisher, err = kafkabus.NewPublisher(writer)
		if err != nil {
			return err
		}
	}

	service, err := webhooks.NewService(cfg.serviceConfig(), serviceOpts...)
	if err != nil {
		return err
	}
	if publisher != nil {
		service.Mutations().Register(publisher)
	}
	if len(os.Args) > 1 && isAdminCommand(os.Args[1]) {
		return runAdminCommand(ctx, service, os.Args[1], logger)
	}

	router, err := newInboundRouter(service, provider, cfg.IdempotencyTTL)
	if err != nil {
		return err
	}
	handler, err := fiberhttp.NewHandler(router,
		fiberhttp.WithBasePath(cfg.BasePath),
		fiberhttp.WithTitle(cfg.DocsTitle),
	)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	handler.Register(app)

	scheduler, err := service.NewDrainScheduler()
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr, "base_path", cfg.BasePath)
		return app.Listen(cfg.ListenAddr)
	})
	if cfg.kafkaEnabled() {
		reader, err := kafkabus.NewReader(kafkabus.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		if err != nil {
			return err
		}
		notifier, err := burst.NewFilteredNotifier(service, burst.NewController(burst.Options{
			Mode:   burst.ParseMode(cfg.BurstMode),
			Window: cfg.BurstWindow,
		}), gologger.Component(provider, gologger.ComponentBurst))
		if err != nil {
			return err
		}
		consumer, err := kafkabus.NewConsumer(reader, notifier, gologger.Component(provider, gologger.ComponentKafka))
		if err != nil {
			return err
		}
		group.Go(func() error {
			logger.Info("consuming mutations", "topic", cfg.KafkaTopic)
			return consumer.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", "error", err)
		}
		return scheduler.Stop(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

func openPersistence(ctx context.Context, cfg settings) (*persistence.Client, error) {
	sqlDB, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	target, err := webhookmigrations.DialectForDriver(cfg.DBDriver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	var dialect schema.Dialect = pgdialect.New()
	if target == webhookmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	}
	client, err := persistence.New(persistenceConfig{
		driver: cfg.DBDriver,
		server: cfg.DBDSN,
		debug:  cfg.DBDebug,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	_, err = webhookmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != target {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, webhookmigrations.WithValidationTargets(target))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := client.Migrate(migrateCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

// newInboundRouter accepts API keys from the action store and, when a JWT
// secret is configured, bearer tokens signed with it. POST calls carrying an
// Idempotency-Key header are deduplicated in process.
func newInboundRouter(
	service *webhooks.Service,
	provider *gologger.ZapProvider,
	idempotencyTTL time.Duration,
) (*inbound.Router, error) {
	deps := service.Dependencies()
	apiKeys, err := auth.NewAPIKeyAuthenticator(deps.APIKeyStore)
	if err != nil {
		return nil, err
	}
	var bearer core.Authenticator
	if secret := service.Config().Inbound.JWTSecret; secret != "" {
		bearerAuth, err := auth.NewBearerAuthenticator(secret, service.Config().Inbound.JWTIssuer)
		if err != nil {
			return nil, err
		}
		bearer = bearerAuth
	}
	return inbound.NewRouter(inbound.RouterDependencies{
		Actions:        deps.ActionStore,
		Authenticator:  auth.NewChain(apiKeys, bearer),
		Registry:       deps.Registry,
		Config:         service.Config().Inbound,
		Logger:         gologger.Component(provider, gologger.ComponentInbound),
		Metrics:        deps.MetricsRecorder,
		Idempotency:    inbound.NewInMemoryIdempotencyStore(),
		IdempotencyTTL: idempotencyTTL,
	})
}

func headerKeyRing(cfg settings) (*security.KeyRing, error) {
	primary, err := security.NewAppKeySealerFromString(cfg.SecretKey,
		security.WithKeyID(cfg.SecretKeyID),
		security.WithVersion(cfg.SecretKeyVersion),
	)
	if err != nil {
		return nil, err
	}
	opts := []security.KeyRingOption{}
	if cfg.PreviousSecretKey != "" {
		previous, err := security.NewAppKeySealerFromString(cfg.PreviousSecretKey,
			security.WithKeyID(cfg.PreviousSecretKeyID),
			security.WithVersion(cfg.PreviousSecretKeyVersion),
		)
		if err != nil {
			return nil, fmt.Errorf("previous secret key: %w", err)
		}
		opts = append(opts, security.WithRetiredKey(previous, security.KeyRotationWindow{NotAfter: cfg.PreviousKeyUntil}))
	}
	return security.NewKeyRing(primary, opts...)
}

// sealValue prints a sealed header value suitable for storing in a webhook
// definition.
func sealValue(cfg settings, plaintext string) error {
	if cfg.SecretKey == "" {
		return fmt.Errorf("WEBHOOKS_SECRET_KEY is required to seal values")
	}
	ring, err := headerKeyRing(cfg)
	if err != nil {
		return err
	}
	sealed, err := ring.Seal(context.Background(), plaintext)
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}
