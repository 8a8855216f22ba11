package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type jobRecord struct {
	bun.BaseModel `bun:"table:ingest_jobs,alias:ij"`

	ID         string         `bun:"id,pk"`
	SnapshotID *string        `bun:"snapshot_id"`
	Name       string         `bun:"name,notnull"`
	Status     string         `bun:"status,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type folderRecord struct {
	bun.BaseModel `bun:"table:ingest_folders,alias:ifo"`

	ID        string    `bun:"id,pk"`
	JobID     string    `bun:"job_id,notnull"`
	ParentID  *string   `bun:"parent_id"`
	ParentKey string    `bun:"parent_key,notnull"`
	Name      string    `bun:"name,notnull"`
	Path      string    `bun:"path,notnull"`
	Depth     int       `bun:"depth,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:ingest_deliveries,alias:idl"`

	ID                 string     `bun:"id,pk"`
	ProviderID         string     `bun:"provider_id,notnull"`
	DeliveryID         string     `bun:"delivery_id,notnull"`
	Checksum           string     `bun:"checksum,notnull"`
	Status             string     `bun:"status,notnull"`
	ContentType        string     `bun:"content_type,notnull"`
	ContentEncoding    string     `bun:"content_encoding,notnull"`
	RecordsTotal       int        `bun:"records_total,notnull"`
	RecordsWritten     int        `bun:"records_written,notnull"`
	RecordsQuarantined int        `bun:"records_quarantined,notnull"`
	Error              string     `bun:"error,notnull"`
	Payload            []byte     `bun:"payload"`
	ReceivedAt         time.Time  `bun:"received_at,notnull"`
	ProcessedAt        *time.Time `bun:"processed_at,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type resultRecord struct {
	bun.BaseModel `bun:"table:ingest_results,alias:ir"`

	ID             string    `bun:"id,pk"`
	JobID          string    `bun:"job_id,notnull"`
	FolderID       string    `bun:"folder_id,notnull"`
	DeliveryRef    string    `bun:"delivery_ref,notnull"`
	SourceRecordID string    `bun:"source_record_id,notnull"`
	RawPayload     []byte    `bun:"raw_payload,notnull"`
	ProcessedAt    time.Time `bun:"processed_at,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type quarantineRecord struct {
	bun.BaseModel `bun:"table:ingest_quarantine,alias:iq"`

	ID            string     `bun:"id,pk"`
	DeliveryRef   string     `bun:"delivery_ref,notnull"`
	ProviderID    string     `bun:"provider_id,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	RecordIndex   int        `bun:"record_index,notnull"`
	Reason        string     `bun:"reason,notnull"`
	TextCode      string     `bun:"text_code,notnull"`
	CorrelationID string     `bun:"correlation_id,notnull"`
	RawPayload    []byte     `bun:"raw_payload,notnull"`
	Status        string     `bun:"status,notnull"`
	Resolution    string     `bun:"resolution,notnull"`
	ResultID      *string    `bun:"result_id"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt    *time.Time `bun:"resolved_at,nullzero"`
}

type outboxRecord struct {
	bun.BaseModel `bun:"table:ingest_outbox,alias:io"`

	ID          string         `bun:"id,pk"`
	EventID     string         `bun:"event_id,notnull"`
	EventName   string         `bun:"event_name,notnull"`
	AggregateID string         `bun:"aggregate_id,notnull"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status      string         `bun:"status,notnull"`
	Attempts    int            `bun:"attempts,notnull"`
	NextAttempt *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError   string         `bun:"last_error,notnull"`
	OccurredAt  time.Time      `bun:"occurred_at,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
