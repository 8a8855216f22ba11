package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	ingestStore     IngestStore
	linker          RecordLinker
	jobStore        JobStore
	jobReader       JobReader
	deliveryStore   DeliveryStore
	quarantineStore QuarantineStore
	invalidator     JobCacheInvalidator
	now             func() time.Time
}

type Option func(*serviceBuilder)

// JobCacheInvalidator drops cached job reads after a write.
type JobCacheInvalidator interface {
	InvalidateJob(ctx context.Context, id string) error
}

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithIngestStore(store IngestStore) Option {
	return func(b *serviceBuilder) {
		b.ingestStore = store
	}
}

func WithLinker(linker RecordLinker) Option {
	return func(b *serviceBuilder) {
		b.linker = linker
	}
}

func WithJobStore(store JobStore) Option {
	return func(b *serviceBuilder) {
		b.jobStore = store
	}
}

// WithJobReader routes job reads through a separate, possibly cached, reader.
func WithJobReader(reader JobReader) Option {
	return func(b *serviceBuilder) {
		b.jobReader = reader
	}
}

func WithJobCacheInvalidator(invalidator JobCacheInvalidator) Option {
	return func(b *serviceBuilder) {
		b.invalidator = invalidator
	}
}

func WithDeliveryStore(store DeliveryStore) Option {
	return func(b *serviceBuilder) {
		b.deliveryStore = store
	}
}

func WithQuarantineStore(store QuarantineStore) Option {
	return func(b *serviceBuilder) {
		b.quarantineStore = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("ingest", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw configuration tree.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

type layer struct {
	values      map[string]any
	includeZero bool
}

func (l layer) str(key, value string) {
	if l.includeZero || strings.TrimSpace(value) != "" {
		l.values[key] = value
	}
}

func (l layer) strs(key string, value []string) {
	if l.includeZero || len(value) > 0 {
		l.values[key] = append([]string(nil), value...)
	}
}

func (l layer) num(key string, value int64) {
	if l.includeZero || value != 0 {
		l.values[key] = value
	}
}

func (l layer) float(key string, value float64) {
	if l.includeZero || value != 0 {
		l.values[key] = value
	}
}

func (l layer) flag(key string, value bool) {
	if l.includeZero || value {
		l.values[key] = value
	}
}

func (l layer) section(parent map[string]any, key string) {
	if len(l.values) > 0 {
		parent[key] = l.values
	}
}

func newLayer(includeZero bool) layer {
	return layer{values: map[string]any{}, includeZero: includeZero}
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	root := newLayer(includeZero)
	root.str("service_name", cfg.ServiceName)

	webhook := newLayer(includeZero)
	webhook.str("provider_id", cfg.Webhook.ProviderID)
	webhook.str("secret", cfg.Webhook.Secret)
	webhook.str("token", cfg.Webhook.Token)
	webhook.str("signature_header", cfg.Webhook.SignatureHeader)
	webhook.str("signature_prefix", cfg.Webhook.SignaturePrefix)
	webhook.str("signature_encoding", cfg.Webhook.SignatureEncoding)
	webhook.strs("delivery_id_headers", cfg.Webhook.DeliveryIDHeaders)
	webhook.num("max_body_bytes", cfg.Webhook.MaxBodyBytes)
	webhook.num("max_decoded_bytes", cfg.Webhook.MaxDecodedBytes)
	webhook.float("rate_limit", cfg.Webhook.RateLimit)
	webhook.num("rate_burst", int64(cfg.Webhook.RateBurst))
	webhook.section(root.values, "webhook")

	linker := newLayer(includeZero)
	linker.strs("correlation", cfg.Linker.Correlation)
	linker.str("folder_path", cfg.Linker.FolderPath)
	linker.strs("source_id", cfg.Linker.SourceID)
	linker.str("status", cfg.Linker.Status)
	linker.str("root_folder_name", cfg.Linker.RootFolderName)
	linker.section(root.values, "linker")

	store := newLayer(includeZero)
	store.str("dialect", cfg.Store.Dialect)
	store.str("dsn", cfg.Store.DSN)
	store.flag("debug", cfg.Store.Debug)
	store.str("ping_timeout", cfg.Store.PingTimeout)
	store.str("job_cache_ttl", cfg.Store.JobCacheTTL)
	store.section(root.values, "store")

	outbox := newLayer(includeZero)
	outbox.num("batch_size", int64(cfg.Outbox.BatchSize))
	outbox.num("max_attempts", int64(cfg.Outbox.MaxAttempts))
	outbox.str("initial_backoff", cfg.Outbox.InitialBackoff)
	outbox.str("max_backoff", cfg.Outbox.MaxBackoff)
	outbox.str("redis_url", cfg.Outbox.RedisURL)
	outbox.str("redis_channel", cfg.Outbox.RedisChannel)
	outbox.section(root.values, "outbox")

	schedule := newLayer(includeZero)
	schedule.str("outbox_dispatch", cfg.Schedule.OutboxDispatch)
	schedule.str("ledger_prune", cfg.Schedule.LedgerPrune)
	schedule.str("retention_window", cfg.Schedule.RetentionWindow)
	schedule.section(root.values, "schedule")

	httpLayer := newLayer(includeZero)
	httpLayer.str("addr", cfg.HTTP.Addr)
	httpLayer.str("read_timeout", cfg.HTTP.ReadTimeout)
	httpLayer.str("write_timeout", cfg.HTTP.WriteTimeout)
	httpLayer.section(root.values, "http")

	return root.values
}
