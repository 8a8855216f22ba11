package ingest

import "github.com/wina-futureobjects/track-futura-new-sub007/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type Delivery = core.Delivery
type ParsedRecord = core.ParsedRecord
type IngestOutcome = core.IngestOutcome
type Job = core.Job
type JobStatus = core.JobStatus
type Folder = core.Folder
type ResultRecord = core.ResultRecord
type QuarantinedRecord = core.QuarantinedRecord
type OutboxEvent = core.OutboxEvent
type Publisher = core.Publisher

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorMapper         = core.WithErrorMapper
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithIngestStore         = core.WithIngestStore
	WithLinker              = core.WithLinker
	WithJobStore            = core.WithJobStore
	WithJobReader           = core.WithJobReader
	WithJobCacheInvalidator = core.WithJobCacheInvalidator
	WithDeliveryStore       = core.WithDeliveryStore
	WithQuarantineStore     = core.WithQuarantineStore
	WithClock               = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
