package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Ingestor commits a parsed delivery. RecordFailure keeps the raw payload of
// a delivery that passed signature checks but could not be decoded.
type Ingestor interface {
	Ingest(ctx context.Context, delivery Delivery, records []ParsedRecord) (IngestOutcome, error)
	RecordFailure(ctx context.Context, delivery Delivery, cause error) error
}

type DeliveryLookup interface {
	GetDelivery(ctx context.Context, providerID, deliveryID string) (Delivery, error)
}

// LinkStore is the slice of the transactional store the linker needs.
type LinkStore interface {
	FindJob(ctx context.Context, correlationID string) (Job, error)
	GetOrCreateFolder(ctx context.Context, key FolderKey) (Folder, error)
}

// IngestTx is every write the ingestion path performs inside the single
// transaction that belongs to one delivery.
type IngestTx interface {
	LinkStore
	ClaimDelivery(ctx context.Context, delivery Delivery) (Delivery, bool, error)
	CompleteDelivery(ctx context.Context, outcome IngestOutcome) error
	UpsertResult(ctx context.Context, record ResultRecord) (ResultRecord, error)
	InsertQuarantine(ctx context.Context, record QuarantinedRecord) (QuarantinedRecord, error)
	GetQuarantine(ctx context.Context, id string) (QuarantinedRecord, error)
	CloseQuarantine(ctx context.Context, id string, status QuarantineStatus, resolution, resultID string) (bool, error)
	TransitionJob(ctx context.Context, jobID string, to JobStatus) (bool, error)
	EnqueueEvent(ctx context.Context, event OutboxEvent) error
}

type IngestStore interface {
	DeliveryLookup
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx IngestTx) error) error
	RecordFailedDelivery(ctx context.Context, delivery Delivery) (Delivery, error)
}

type RecordLinker interface {
	Link(ctx context.Context, store LinkStore, record ParsedRecord, opts LinkOptions) (Link, error)
}

type JobStore interface {
	RegisterJob(ctx context.Context, in RegisterJobInput) (Job, bool, error)
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context, status JobStatus, limit, offset int) ([]Job, int, error)
	CompareAndSetJobStatus(ctx context.Context, id string, from, to JobStatus) (bool, error)
	ListFolders(ctx context.Context, jobID string) ([]Folder, error)
}

// JobReader is the read side of the job store. Implementations may cache.
type JobReader interface {
	GetJob(ctx context.Context, id string) (Job, error)
}

type DeliveryStore interface {
	DeliveryLookup
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, int, error)
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
}

type QuarantineStore interface {
	GetQuarantine(ctx context.Context, id string) (QuarantinedRecord, error)
	ListQuarantine(ctx context.Context, filter QuarantineFilter) ([]QuarantinedRecord, int, error)
}

type OutboxStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]OutboxEvent, error)
	Ack(ctx context.Context, eventID string) error
	Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Scheduled work handed to a job queue.
const (
	JobIDOutboxDispatch = "ingest.outbox.dispatch"
	JobIDLedgerPrune    = "ingest.ledger.prune"
)

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type WebhookHandler interface {
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}
