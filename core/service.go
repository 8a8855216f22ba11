package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service owns the ingestion pipeline and the job, delivery, and quarantine
// operations around it.
type Service struct {
	config          Config
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
	invalidator     JobCacheInvalidator
	deliveryStore   DeliveryStore
	quarantineStore QuarantineStore
	now             func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("ingest", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("ingest"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.ingestStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: ingest store is required"))
	}
	if builder.linker == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: record linker is required"))
	}
	if builder.jobReader == nil && builder.jobStore != nil {
		builder.jobReader = builder.jobStore
	}
	if builder.invalidator == nil {
		if invalidator, ok := builder.jobReader.(JobCacheInvalidator); ok {
			builder.invalidator = invalidator
		}
	}
	if builder.deliveryStore == nil {
		if store, ok := builder.ingestStore.(DeliveryStore); ok {
			builder.deliveryStore = store
		}
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		ingestStore:     builder.ingestStore,
		linker:          builder.linker,
		jobStore:        builder.jobStore,
		jobReader:       builder.jobReader,
		invalidator:     builder.invalidator,
		deliveryStore:   builder.deliveryStore,
		quarantineStore: builder.quarantineStore,
		now:             builder.now,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) LoggerProvider() LoggerProvider {
	if s == nil {
		return nil
	}
	return s.loggerProvider
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	mapper := s.errorMapper
	if mapper == nil {
		mapper = MapError
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) invalidateJob(ctx context.Context, jobID string) {
	if s == nil || s.invalidator == nil || jobID == "" {
		return
	}
	if err := s.invalidator.InvalidateJob(ctx, jobID); err != nil {
		s.logError(ctx, "job cache invalidation failed", map[string]any{
			"job_id": jobID,
			"error":  err.Error(),
		})
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

var _ Ingestor = (*Service)(nil)
