package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-webhooks/core"
)

type settings struct {
	ListenAddr string `env:"WEBHOOKS_LISTEN_ADDR" envDefault:":8080"`
	BasePath   string `env:"WEBHOOKS_BASE_PATH" envDefault:"/webhooks"`
	DocsTitle  string `env:"WEBHOOKS_DOCS_TITLE" envDefault:"Webhooks"`
	LogLevel   string `env:"WEBHOOKS_LOG_LEVEL" envDefault:"info"`

	DBDriver string `env:"WEBHOOKS_DB_DRIVER" envDefault:"sqlite3"`
	DBDSN    string `env:"WEBHOOKS_DB_DSN" envDefault:"file:webhooks.db?_foreign_keys=on"`
	DBDebug  bool   `env:"WEBHOOKS_DB_DEBUG"`

	BatchSize     int           `env:"WEBHOOKS_BATCH_SIZE" envDefault:"100"`
	FlushEvery    int           `env:"WEBHOOKS_FLUSH_EVERY" envDefault:"50"`
	MaxAttempts   int           `env:"WEBHOOKS_MAX_ATTEMPTS" envDefault:"0"`
	DrainInterval time.Duration `env:"WEBHOOKS_DRAIN_INTERVAL" envDefault:"30s"`
	LockTTL       time.Duration `env:"WEBHOOKS_LOCK_TTL" envDefault:"5m"`
	CacheTTL      time.Duration `env:"WEBHOOKS_DEFINITION_CACHE_TTL" envDefault:"0s"`

	HTTPTimeout    time.Duration `env:"WEBHOOKS_HTTP_TIMEOUT" envDefault:"30s"`
	HostRate       float64       `env:"WEBHOOKS_HOST_RATE" envDefault:"0"`
	HostBurst      int           `env:"WEBHOOKS_HOST_BURST" envDefault:"1"`
	JWTSecret      string        `env:"WEBHOOKS_JWT_SECRET"`
	JWTIssuer      string        `env:"WEBHOOKS_JWT_ISSUER" envDefault:"go-webhooks"`
	IdempotencyTTL time.Duration `env:"WEBHOOKS_IDEMPOTENCY_TTL" envDefault:"10m"`
	ShutdownWait   time.Duration `env:"WEBHOOKS_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	SigningSecret    string `env:"WEBHOOKS_SIGNING_SECRET"`
	SecretKey        string `env:"WEBHOOKS_SECRET_KEY"`
	SecretKeyID      string `env:"WEBHOOKS_SECRET_KEY_ID" envDefault:"app-key"`
	SecretKeyVersion int    `env:"WEBHOOKS_SECRET_KEY_VERSION" envDefault:"1"`

	// A previous key keeps opening values sealed before a rotation until
	// PreviousKeyUntil. A zero time never expires it.
	PreviousSecretKey        string    `env:"WEBHOOKS_PREVIOUS_SECRET_KEY"`
	PreviousSecretKeyID      string    `env:"WEBHOOKS_PREVIOUS_SECRET_KEY_ID" envDefault:"app-key"`
	PreviousSecretKeyVersion int       `env:"WEBHOOKS_PREVIOUS_SECRET_KEY_VERSION" envDefault:"1"`
	PreviousKeyUntil         time.Time `env:"WEBHOOKS_PREVIOUS_SECRET_KEY_UNTIL"`

	RedisAddr     string `env:"WEBHOOKS_REDIS_ADDR"`
	RedisPassword string `env:"WEBHOOKS_REDIS_PASSWORD"`
	RedisDB       int    `env:"WEBHOOKS_REDIS_DB" envDefault:"0"`

	KafkaBrokers      []string `env:"WEBHOOKS_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic        string   `env:"WEBHOOKS_KAFKA_TOPIC"`
	KafkaGroupID      string   `env:"WEBHOOKS_KAFKA_GROUP_ID" envDefault:"go-webhooks"`
	KafkaPublishTopic string   `env:"WEBHOOKS_KAFKA_PUBLISH_TOPIC"`

	BurstMode   string        `env:"WEBHOOKS_BURST_MODE" envDefault:"none"`
	BurstWindow time.Duration `env:"WEBHOOKS_BURST_WINDOW" envDefault:"2s"`
}

func loadSettings() (settings, error) {
	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		return settings{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case "sqlite3", "postgres":
	default:
		return settings{}, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return settings{}, fmt.Errorf("WEBHOOKS_DB_DSN is required")
	}
	if cfg.KafkaTopic != "" && cfg.KafkaTopic == cfg.KafkaPublishTopic {
		return settings{}, fmt.Errorf("kafka consume and publish topics must differ")
	}
	return cfg, nil
}

func (s settings) serviceConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.Queue.BatchSize = s.BatchSize
	cfg.Queue.FlushEvery = s.FlushEvery
	cfg.Queue.MaxAttempts = s.MaxAttempts
	cfg.Queue.DrainInterval = s.DrainInterval
	cfg.Queue.LockTTL = s.LockTTL
	cfg.Transport.Timeout = s.HTTPTimeout
	cfg.Inbound.JWTSecret = s.JWTSecret
	cfg.Inbound.JWTIssuer = s.JWTIssuer
	cfg.Cache.TTL = s.CacheTTL
	return cfg
}

func (s settings) kafkaEnabled() bool {
	return len(s.KafkaBrokers) > 0 && strings.TrimSpace(s.KafkaTopic) != ""
}

// persistenceConfig satisfies the config contract of go-persistence-bun.
type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-webhooks" }
