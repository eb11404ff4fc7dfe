package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultBatchSize            = 1000
	defaultFlushEvery           = 100
	defaultDrainInterval        = 30 * time.Second
	defaultTransportTimeout     = 30 * time.Second
	defaultResponseBodyLimit    = int64(10 << 20)
	defaultDefinitionCacheTTL   = time.Minute
	defaultTemplateMarker       = "@"
	defaultAPIKeyParam          = "apikey"
	defaultActionParam          = "name"
	defaultXMLRootElement       = "payload"
	defaultDrainLockKey         = "webhooks.drain"
	defaultDrainLockTTL         = 10 * time.Minute
	defaultResponseLogByteLimit = 2048
)

type TemplateConfig struct {
	Marker string `koanf:"marker" mapstructure:"marker"`
}

type QueueConfig struct {
	BatchSize     int           `koanf:"batch_size" mapstructure:"batch_size"`
	FlushEvery    int           `koanf:"flush_every" mapstructure:"flush_every"`
	MaxAttempts   int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	DrainInterval time.Duration `koanf:"drain_interval" mapstructure:"drain_interval"`
	LockTTL       time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
}

type TransportConfig struct {
	Timeout              time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
	RatePerSecond        float64       `koanf:"rate_per_second" mapstructure:"rate_per_second"`
	Burst                int           `koanf:"burst" mapstructure:"burst"`
	XMLRootElement       string        `koanf:"xml_root_element" mapstructure:"xml_root_element"`
	// ResponseLogBytes caps the response body copy written to debug logs.
	ResponseLogBytes     int           `koanf:"response_log_bytes" mapstructure:"response_log_bytes"`
}

type InboundConfig struct {
	JWTSecret   string `koanf:"jwt_secret" mapstructure:"jwt_secret"`
	JWTIssuer   string `koanf:"jwt_issuer" mapstructure:"jwt_issuer"`
	APIKeyParam string `koanf:"api_key_param" mapstructure:"api_key_param"`
	ActionParam string `koanf:"action_param" mapstructure:"action_param"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Template    TemplateConfig  `koanf:"template" mapstructure:"template"`
	Queue       QueueConfig     `koanf:"queue" mapstructure:"queue"`
	Transport   TransportConfig `koanf:"transport" mapstructure:"transport"`
	Inbound     InboundConfig   `koanf:"inbound" mapstructure:"inbound"`
	Cache       CacheConfig     `koanf:"cache" mapstructure:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhooks",
		Template:    TemplateConfig{Marker: defaultTemplateMarker},
		Queue: QueueConfig{
			BatchSize:     defaultBatchSize,
			FlushEvery:    defaultFlushEvery,
			MaxAttempts:   0,
			DrainInterval: defaultDrainInterval,
			LockTTL:       defaultDrainLockTTL,
		},
		Transport: TransportConfig{
			Timeout:              defaultTransportTimeout,
			MaxResponseBodyBytes: defaultResponseBodyLimit,
			XMLRootElement:       defaultXMLRootElement,
			ResponseLogBytes:     defaultResponseLogByteLimit,
		},
		Inbound: InboundConfig{
			APIKeyParam: defaultAPIKeyParam,
			ActionParam: defaultActionParam,
		},
		Cache: CacheConfig{TTL: defaultDefinitionCacheTTL},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Template.Marker) == "" {
		return fmt.Errorf("core: template.marker is required")
	}
	if c.Queue.BatchSize < 0 || c.Queue.FlushEvery < 0 || c.Queue.MaxAttempts < 0 {
		return fmt.Errorf("core: queue sizes must not be negative")
	}
	if c.Queue.DrainInterval < 0 || c.Queue.LockTTL < 0 {
		return fmt.Errorf("core: queue durations must not be negative")
	}
	if c.Transport.Timeout < 0 || c.Transport.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("core: transport limits must not be negative")
	}
	if c.Transport.RatePerSecond < 0 || c.Transport.Burst < 0 || c.Transport.ResponseLogBytes < 0 {
		return fmt.Errorf("core: transport rate limits must not be negative")
	}
	return nil
}

// withFallbacks fills zero values left by partial configuration.
func (c Config) withFallbacks() Config {
	defaults := DefaultConfig()
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = defaults.Queue.BatchSize
	}
	if c.Queue.FlushEvery == 0 {
		c.Queue.FlushEvery = defaults.Queue.FlushEvery
	}
	if c.Queue.DrainInterval == 0 {
		c.Queue.DrainInterval = defaults.Queue.DrainInterval
	}
	if c.Queue.LockTTL == 0 {
		c.Queue.LockTTL = defaults.Queue.LockTTL
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = defaults.Transport.Timeout
	}
	if c.Transport.MaxResponseBodyBytes == 0 {
		c.Transport.MaxResponseBodyBytes = defaults.Transport.MaxResponseBodyBytes
	}
	if strings.TrimSpace(c.Transport.XMLRootElement) == "" {
		c.Transport.XMLRootElement = defaults.Transport.XMLRootElement
	}
	if c.Transport.ResponseLogBytes == 0 {
		c.Transport.ResponseLogBytes = defaults.Transport.ResponseLogBytes
	}
	if strings.TrimSpace(c.Inbound.APIKeyParam) == "" {
		c.Inbound.APIKeyParam = defaults.Inbound.APIKeyParam
	}
	if strings.TrimSpace(c.Inbound.ActionParam) == "" {
		c.Inbound.ActionParam = defaults.Inbound.ActionParam
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaults.Cache.TTL
	}
	return c
}
