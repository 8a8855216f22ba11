package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const EnvPrefix = "INGEST_"

// envOverrides mirrors core.Config with pointer leaves so unset variables
// stay out of the tree and never mask file values.
type envOverrides struct {
	ServiceName *string          `env:"SERVICE_NAME"`
	Webhook     webhookOverride  `envPrefix:"WEBHOOK_"`
	Store       storeOverride    `envPrefix:"STORE_"`
	Outbox      outboxOverride   `envPrefix:"OUTBOX_"`
	Schedule    scheduleOverride `envPrefix:"SCHEDULE_"`
	HTTP        httpOverride     `envPrefix:"HTTP_"`
}

type webhookOverride struct {
	ProviderID        *string  `env:"PROVIDER_ID"`
	Secret            *string  `env:"SECRET"`
	Token             *string  `env:"TOKEN"`
	SignatureHeader   *string  `env:"SIGNATURE_HEADER"`
	SignatureEncoding *string  `env:"SIGNATURE_ENCODING"`
	DeliveryIDHeaders []string `env:"DELIVERY_ID_HEADERS" envSeparator:","`
	MaxBodyBytes      *int64   `env:"MAX_BODY_BYTES"`
	MaxDecodedBytes   *int64   `env:"MAX_DECODED_BYTES"`
	RateLimit         *float64 `env:"RATE_LIMIT"`
	RateBurst         *int     `env:"RATE_BURST"`
}

type storeOverride struct {
	Dialect     *string `env:"DIALECT"`
	DSN         *string `env:"DSN"`
	Debug       *bool   `env:"DEBUG"`
	PingTimeout *string `env:"PING_TIMEOUT"`
	JobCacheTTL *string `env:"JOB_CACHE_TTL"`
}

type outboxOverride struct {
	BatchSize      *int    `env:"BATCH_SIZE"`
	MaxAttempts    *int    `env:"MAX_ATTEMPTS"`
	InitialBackoff *string `env:"INITIAL_BACKOFF"`
	MaxBackoff     *string `env:"MAX_BACKOFF"`
	RedisURL       *string `env:"REDIS_URL"`
	RedisChannel   *string `env:"REDIS_CHANNEL"`
}

type scheduleOverride struct {
	OutboxDispatch  *string `env:"OUTBOX_DISPATCH"`
	LedgerPrune     *string `env:"LEDGER_PRUNE"`
	RetentionWindow *string `env:"RETENTION_WINDOW"`
}

type httpOverride struct {
	Addr         *string `env:"ADDR"`
	ReadTimeout  *string `env:"READ_TIMEOUT"`
	WriteTimeout *string `env:"WRITE_TIMEOUT"`
}

// EnvLoader reads INGEST_* variables, after loading EnvFile (or ./.env when
// empty) into the process environment if it exists.
type EnvLoader struct {
	EnvFile string
}

func (l EnvLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := loadDotEnv(l.EnvFile); err != nil {
		return nil, err
	}
	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return overrides.tree(), nil
}

func loadDotEnv(path string) error {
	var err error
	if path = strings.TrimSpace(path); path != "" {
		err = godotenv.Load(path)
	} else {
		err = godotenv.Load()
	}
	if err == nil {
		return nil
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && path == "" {
		return nil
	}
	return fmt.Errorf("config: load env file: %w", err)
}

func (o envOverrides) tree() map[string]any {
	out := map[string]any{}
	set(out, "service_name", o.ServiceName)

	webhook := map[string]any{}
	set(webhook, "provider_id", o.Webhook.ProviderID)
	set(webhook, "secret", o.Webhook.Secret)
	set(webhook, "token", o.Webhook.Token)
	set(webhook, "signature_header", o.Webhook.SignatureHeader)
	set(webhook, "signature_encoding", o.Webhook.SignatureEncoding)
	if len(o.Webhook.DeliveryIDHeaders) > 0 {
		webhook["delivery_id_headers"] = o.Webhook.DeliveryIDHeaders
	}
	set(webhook, "max_body_bytes", o.Webhook.MaxBodyBytes)
	set(webhook, "max_decoded_bytes", o.Webhook.MaxDecodedBytes)
	set(webhook, "rate_limit", o.Webhook.RateLimit)
	set(webhook, "rate_burst", o.Webhook.RateBurst)
	section(out, "webhook", webhook)

	store := map[string]any{}
	set(store, "dialect", o.Store.Dialect)
	set(store, "dsn", o.Store.DSN)
	set(store, "debug", o.Store.Debug)
	set(store, "ping_timeout", o.Store.PingTimeout)
	set(store, "job_cache_ttl", o.Store.JobCacheTTL)
	section(out, "store", store)

	outbox := map[string]any{}
	set(outbox, "batch_size", o.Outbox.BatchSize)
	set(outbox, "max_attempts", o.Outbox.MaxAttempts)
	set(outbox, "initial_backoff", o.Outbox.InitialBackoff)
	set(outbox, "max_backoff", o.Outbox.MaxBackoff)
	set(outbox, "redis_url", o.Outbox.RedisURL)
	set(outbox, "redis_channel", o.Outbox.RedisChannel)
	section(out, "outbox", outbox)

	schedule := map[string]any{}
	set(schedule, "outbox_dispatch", o.Schedule.OutboxDispatch)
	set(schedule, "ledger_prune", o.Schedule.LedgerPrune)
	set(schedule, "retention_window", o.Schedule.RetentionWindow)
	section(out, "schedule", schedule)

	httpCfg := map[string]any{}
	set(httpCfg, "addr", o.HTTP.Addr)
	set(httpCfg, "read_timeout", o.HTTP.ReadTimeout)
	set(httpCfg, "write_timeout", o.HTTP.WriteTimeout)
	section(out, "http", httpCfg)
	return out
}

func set[T any](dst map[string]any, key string, value *T) {
	if value != nil {
		dst[key] = *value
	}
}

func section(dst map[string]any, key string, values map[string]any) {
	if len(values) > 0 {
		dst[key] = values
	}
}
