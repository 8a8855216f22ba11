package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	ProviderID        string   `koanf:"provider_id" mapstructure:"provider_id"`
	Secret            string   `koanf:"secret" mapstructure:"secret"`
	Token             string   `koanf:"token" mapstructure:"token"`
	SignatureHeader   string   `koanf:"signature_header" mapstructure:"signature_header"`
	SignaturePrefix   string   `koanf:"signature_prefix" mapstructure:"signature_prefix"`
	SignatureEncoding string   `koanf:"signature_encoding" mapstructure:"signature_encoding"`
	DeliveryIDHeaders []string `koanf:"delivery_id_headers" mapstructure:"delivery_id_headers"`
	MaxBodyBytes      int64    `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxDecodedBytes   int64    `koanf:"max_decoded_bytes" mapstructure:"max_decoded_bytes"`
	RateLimit         float64  `koanf:"rate_limit" mapstructure:"rate_limit"`
	RateBurst         int      `koanf:"rate_burst" mapstructure:"rate_burst"`
}

type LinkerConfig struct {
	Correlation    []string `koanf:"correlation" mapstructure:"correlation"`
	FolderPath     string   `koanf:"folder_path" mapstructure:"folder_path"`
	SourceID       []string `koanf:"source_id" mapstructure:"source_id"`
	Status         string   `koanf:"status" mapstructure:"status"`
	RootFolderName string   `koanf:"root_folder_name" mapstructure:"root_folder_name"`
}

type StoreConfig struct {
	Dialect     string `koanf:"dialect" mapstructure:"dialect"`
	DSN         string `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool   `koanf:"debug" mapstructure:"debug"`
	PingTimeout string `koanf:"ping_timeout" mapstructure:"ping_timeout"`
	JobCacheTTL string `koanf:"job_cache_ttl" mapstructure:"job_cache_ttl"`
}

type OutboxConfig struct {
	BatchSize      int    `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts    int    `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff string `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     string `koanf:"max_backoff" mapstructure:"max_backoff"`
	RedisURL       string `koanf:"redis_url" mapstructure:"redis_url"`
	RedisChannel   string `koanf:"redis_channel" mapstructure:"redis_channel"`
}

type ScheduleConfig struct {
	OutboxDispatch  string `koanf:"outbox_dispatch" mapstructure:"outbox_dispatch"`
	LedgerPrune     string `koanf:"ledger_prune" mapstructure:"ledger_prune"`
	RetentionWindow string `koanf:"retention_window" mapstructure:"retention_window"`
}

type HTTPConfig struct {
	Addr         string `koanf:"addr" mapstructure:"addr"`
	ReadTimeout  string `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout string `koanf:"write_timeout" mapstructure:"write_timeout"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Linker      LinkerConfig   `koanf:"linker" mapstructure:"linker"`
	Store       StoreConfig    `koanf:"store" mapstructure:"store"`
	Outbox      OutboxConfig   `koanf:"outbox" mapstructure:"outbox"`
	Schedule    ScheduleConfig `koanf:"schedule" mapstructure:"schedule"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "ingest",
		Webhook: WebhookConfig{
			ProviderID:        "brightdata",
			SignatureHeader:   "X-Brightdata-Signature",
			SignatureEncoding: "hex",
			DeliveryIDHeaders: []string{"X-Delivery-Id", "X-Brightdata-Delivery-Id"},
			MaxBodyBytes:      32 << 20,
			MaxDecodedBytes:   256 << 20,
			RateLimit:         50,
			RateBurst:         100,
		},
		Linker: LinkerConfig{
			Correlation:    []string{"job_id", "snapshot_id"},
			FolderPath:     "[category, page]",
			SourceID:       []string{"id", "url"},
			Status:         "status",
			RootFolderName: "root",
		},
		Store: StoreConfig{
			Dialect:     "postgres",
			PingTimeout: "5s",
			JobCacheTTL: "30s",
		},
		Outbox: OutboxConfig{
			BatchSize:      50,
			MaxAttempts:    8,
			InitialBackoff: "2s",
			MaxBackoff:     "5m",
			RedisChannel:   "ingest.events",
		},
		Schedule: ScheduleConfig{
			OutboxDispatch:  "@every 10s",
			LedgerPrune:     "@daily",
			RetentionWindow: "720h",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  "15s",
			WriteTimeout: "30s",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Webhook.ProviderID) == "" {
		return fmt.Errorf("core: webhook.provider_id is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Webhook.SignatureEncoding)) {
	case "", "hex", "base64":
	default:
		return fmt.Errorf("core: webhook.signature_encoding %q is invalid", c.Webhook.SignatureEncoding)
	}
	if c.Webhook.MaxBodyBytes < 0 || c.Webhook.MaxDecodedBytes < 0 {
		return fmt.Errorf("core: webhook size limits must not be negative")
	}
	if c.Webhook.RateLimit < 0 || c.Webhook.RateBurst < 0 {
		return fmt.Errorf("core: webhook rate limits must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Dialect)) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("core: store.dialect %q is invalid", c.Store.Dialect)
	}
	if c.Outbox.BatchSize < 0 || c.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("core: outbox limits must not be negative")
	}
	durations := map[string]string{
		"store.ping_timeout":        c.Store.PingTimeout,
		"store.job_cache_ttl":       c.Store.JobCacheTTL,
		"outbox.initial_backoff":    c.Outbox.InitialBackoff,
		"outbox.max_backoff":        c.Outbox.MaxBackoff,
		"schedule.retention_window": c.Schedule.RetentionWindow,
		"http.read_timeout":         c.HTTP.ReadTimeout,
		"http.write_timeout":        c.HTTP.WriteTimeout,
	}
	for key, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("core: %s is invalid: %w", key, err)
		}
	}
	return nil
}

func (c StoreConfig) PingTimeoutDuration() time.Duration {
	return mustDuration(c.PingTimeout, 5*time.Second)
}

func (c StoreConfig) JobCacheTTLDuration() time.Duration {
	return mustDuration(c.JobCacheTTL, 30*time.Second)
}

func (c OutboxConfig) DispatcherConfig() OutboxDispatcherConfig {
	defaults := DefaultOutboxDispatcherConfig()
	cfg := OutboxDispatcherConfig{
		BatchSize:      c.BatchSize,
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: mustDuration(c.InitialBackoff, defaults.InitialBackoff),
		MaxBackoff:     mustDuration(c.MaxBackoff, defaults.MaxBackoff),
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	return cfg
}

func (c ScheduleConfig) RetentionWindowDuration() time.Duration {
	return mustDuration(c.RetentionWindow, 30*24*time.Hour)
}

func (c HTTPConfig) ReadTimeoutDuration() time.Duration {
	return mustDuration(c.ReadTimeout, 15*time.Second)
}

func (c HTTPConfig) WriteTimeoutDuration() time.Duration {
	return mustDuration(c.WriteTimeout, 30*time.Second)
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", value)
	}
	return parsed, nil
}

func mustDuration(value string, fallback time.Duration) time.Duration {
	parsed, err := parseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
