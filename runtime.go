package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/redis/go-redis/v9"
	"github.com/wina-futureobjects/track-futura-new-sub007/adapters/gocommand"
	"github.com/wina-futureobjects/track-futura-new-sub007/adapters/gojob"
	"github.com/wina-futureobjects/track-futura-new-sub007/adapters/gologger"
	"github.com/wina-futureobjects/track-futura-new-sub007/adapters/goredis"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	"github.com/wina-futureobjects/track-futura-new-sub007/inbound"
	"github.com/wina-futureobjects/track-futura-new-sub007/linker"
	"github.com/wina-futureobjects/track-futura-new-sub007/scheduler"
	sqlstore "github.com/wina-futureobjects/track-futura-new-sub007/store/sql"
	"github.com/wina-futureobjects/track-futura-new-sub007/webhooks"
)

// Runtime is a fully wired ingest node: stores, service, webhook pipeline,
// outbox dispatcher, scheduler and command bus over one database.
type Runtime struct {
	Config     core.Config
	Logger     core.Logger
	Stores     *sqlstore.RepositoryFactory
	Service    *core.Service
	Facade     *Facade
	Outbox     *core.OutboxDispatcher
	Processor  *webhooks.Processor
	Dispatcher *inbound.Dispatcher
	Handler    *inbound.Handler
	Scheduler  *scheduler.Scheduler
	Queue      *gojob.MemoryQueue
	Worker     *scheduler.Worker
	Commands   *gocommand.RegistryAdapter

	loggers   gologger.Loggers
	redis     *redis.Client
	closeOnce sync.Once
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	publishers     []core.Publisher
	cacheService   repositorycache.CacheService
	queueCapacity  int
	inlineTasks    bool
	serviceOptions []core.Option
	skipCommandBus bool
}

func WithRuntimeLogger(logger core.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

func WithRuntimeLoggerProvider(provider core.LoggerProvider) RuntimeOption {
	return func(o *runtimeOptions) {
		o.loggerProvider = provider
	}
}

// WithPublishers replaces the default outbox publishers.
func WithPublishers(publishers ...core.Publisher) RuntimeOption {
	return func(o *runtimeOptions) {
		o.publishers = append([]core.Publisher(nil), publishers...)
	}
}

func WithJobCacheService(cacheService repositorycache.CacheService) RuntimeOption {
	return func(o *runtimeOptions) {
		o.cacheService = cacheService
	}
}

// WithInlineTasks runs scheduled ticks in the cron goroutine instead of
// going through the job queue.
func WithInlineTasks() RuntimeOption {
	return func(o *runtimeOptions) {
		o.inlineTasks = true
	}
}

func WithQueueCapacity(capacity int) RuntimeOption {
	return func(o *runtimeOptions) {
		o.queueCapacity = capacity
	}
}

func WithServiceOptions(opts ...core.Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.serviceOptions = append(o.serviceOptions, opts...)
	}
}

// WithoutCommandBus skips the go-command subscriptions. One-shot CLI commands
// call the facade directly.
func WithoutCommandBus() RuntimeOption {
	return func(o *runtimeOptions) {
		o.skipCommandBus = true
	}
}

// NewRuntime wires every component over client. Migrations are not applied
// here.
func NewRuntime(ctx context.Context, client *persistence.Client, cfg core.Config, opts ...RuntimeOption) (*Runtime, error) {
	if client == nil {
		return nil, fmt.Errorf("ingest: persistence client is required")
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	loggers := gologger.NewLoggers(options.loggerProvider, options.logger)
	rt := &Runtime{Logger: loggers.Root, loggers: loggers}

	stores, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return nil, fmt.Errorf("ingest: build stores: %w", err)
	}
	rt.Stores = stores

	recordLinker, err := linker.New(linker.PolicyFromConfig(cfg.Linker))
	if err != nil {
		return nil, err
	}

	cacheService := options.cacheService
	if cacheService == nil {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = cfg.Store.JobCacheTTLDuration()
		if cacheService, err = repositorycache.NewCacheService(cacheConfig); err != nil {
			return nil, fmt.Errorf("ingest: job cache: %w", err)
		}
	}
	jobReader, err := stores.CachedJobReader(cacheService)
	if err != nil {
		return nil, err
	}

	serviceOpts := append(stores.ServiceOptions(),
		core.WithLinker(recordLinker),
		core.WithJobReader(jobReader),
		core.WithLogger(loggers.For(gologger.ComponentService)),
		core.WithLoggerProvider(loggers.Provider),
	)
	serviceOpts = append(serviceOpts, options.serviceOptions...)
	service, err := core.NewService(cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}
	rt.Service = service
	rt.Config = service.Config()
	cfg = rt.Config

	publishers := options.publishers
	if len(publishers) == 0 {
		publishers, err = rt.defaultPublishers(ctx)
		if err != nil {
			return nil, err
		}
	}
	rt.Outbox, err = core.NewOutboxDispatcher(stores.OutboxStore(), publishers, cfg.Outbox.DispatcherConfig(), loggers.For(gologger.ComponentOutbox))
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Facade, err = NewFacade(service, WithOutboxDispatcher(rt.Outbox))
	if err != nil {
		rt.Close()
		return nil, err
	}
	if !options.skipCommandBus {
		rt.Commands = gocommand.NewRegistryAdapter(nil)
		if err := rt.Facade.Register(rt.Commands); err != nil {
			rt.Close()
			return nil, err
		}
	}

	if err := rt.buildInbound(client); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.buildScheduler(options); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) defaultPublishers(ctx context.Context) ([]core.Publisher, error) {
	publishers := []core.Publisher{gologger.NewPublisher(rt.loggers.For(gologger.ComponentOutbox))}
	if rt.Config.Outbox.RedisURL == "" {
		return publishers, nil
	}
	client, err := goredis.NewClient(ctx, rt.Config.Outbox.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("ingest: redis publisher: %w", err)
	}
	publisher, err := goredis.NewPublisher(client, rt.Config.Outbox.RedisChannel)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	rt.redis = client
	return append(publishers, publisher), nil
}

func (rt *Runtime) buildInbound(client *persistence.Client) error {
	cfg := rt.Config.Webhook
	template, err := webhooks.TemplateFromConfig(cfg)
	if err != nil {
		return err
	}
	processor := webhooks.NewProcessorFromTemplate(template, rt.Service)
	processor.Deliveries = rt.Service
	logger := rt.loggers.For(gologger.ComponentInbound)
	processor.Logger = logger
	if cfg.MaxBodyBytes > 0 {
		processor.MaxBodyBytes = cfg.MaxBodyBytes
	}
	if cfg.MaxDecodedBytes > 0 {
		processor.Decoder = webhooks.NewDecoder(cfg.MaxDecodedBytes)
	}
	rt.Processor = processor

	rt.Dispatcher = inbound.NewDispatcher(cfg.RateLimit, cfg.RateBurst)
	if err := rt.Dispatcher.Register(template.ProviderID, processor); err != nil {
		return err
	}
	rt.Handler = inbound.NewHandler(rt.Dispatcher, processor.MaxBodyBytes, func(ctx context.Context) error {
		return client.DB().PingContext(ctx)
	}, logger)
	return nil
}

func (rt *Runtime) buildScheduler(options runtimeOptions) error {
	logger := rt.loggers.For(gologger.ComponentScheduler)
	schedulerOpts := []scheduler.Option{scheduler.WithLogger(logger)}
	if !options.inlineTasks {
		rt.Queue = gojob.NewMemoryQueue(options.queueCapacity)
		schedulerOpts = append(schedulerOpts, scheduler.WithEnqueuer(gojob.NewEnqueuerAdapter(rt.Queue)))
	}
	rt.Scheduler = scheduler.New(schedulerOpts...)

	schedule := rt.Config.Schedule
	if err := rt.Scheduler.Register(
		core.JobIDOutboxDispatch,
		schedule.OutboxDispatch,
		scheduler.OutboxDispatchTask(rt.Outbox, rt.Config.Outbox.BatchSize, logger),
	); err != nil {
		return err
	}
	if err := rt.Scheduler.Register(
		core.JobIDLedgerPrune,
		schedule.LedgerPrune,
		scheduler.LedgerPruneTask(rt.Service, schedule.RetentionWindowDuration(), nil),
	); err != nil {
		return err
	}

	if rt.Queue != nil {
		dequeuer := gojob.NewDequeuerAdapter(rt.Queue, gojob.RetryPolicy{
			MaxAttempts:     5,
			MaxDelay:        time.Minute,
			DeadLetterOnMax: true,
		})
		rt.Worker = scheduler.NewWorker(dequeuer, rt.Scheduler, logger)
		rt.Worker.Hook = scheduler.LogHook{Logger: logger}
	}
	return nil
}

// HTTPServer returns a server for the inbound handler using the configured
// address and timeouts.
func (rt *Runtime) HTTPServer() *http.Server {
	cfg := rt.Config.HTTP
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.Handler,
		ReadTimeout:       cfg.ReadTimeoutDuration(),
		ReadHeaderTimeout: cfg.ReadTimeoutDuration(),
		WriteTimeout:      cfg.WriteTimeoutDuration(),
	}
}

// Start launches the scheduler and, in queue mode, the worker. Background
// work stops when ctx is cancelled or Stop is called.
func (rt *Runtime) Start(ctx context.Context) {
	if rt.Worker != nil {
		go func() {
			if err := rt.Worker.Run(ctx); err != nil {
				rt.Logger.Error("job worker stopped", "error", err.Error())
			}
		}()
	}
	rt.Scheduler.Start()
}

// Stop halts the scheduler and waits for running ticks up to ctx.
func (rt *Runtime) Stop(ctx context.Context) error {
	if rt == nil || rt.Scheduler == nil {
		return nil
	}
	return rt.Scheduler.Stop(ctx)
}

// Close releases the queue, command subscriptions and the redis client. The
// persistence client belongs to the caller.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var err error
	rt.closeOnce.Do(func() {
		if rt.Queue != nil {
			rt.Queue.Close()
		}
		if rt.Commands != nil {
			rt.Commands.Close()
		}
		if rt.redis != nil {
			err = errors.Join(err, rt.redis.Close())
		}
	})
	return err
}
