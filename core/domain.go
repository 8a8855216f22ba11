package core

import (
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

type DeliveryStatus string

const (
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusProcessed  DeliveryStatus = "processed"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

type QuarantineStatus string

const (
	QuarantineStatusOpen      QuarantineStatus = "open"
	QuarantineStatusResolved  QuarantineStatus = "resolved"
	QuarantineStatusDiscarded QuarantineStatus = "discarded"
)

const (
	EventDeliveryProcessed  = "delivery.processed"
	EventJobStatusChanged   = "job.status_changed"
	EventRecordQuarantined  = "record.quarantined"
	EventQuarantineResolved = "quarantine.resolved"
)

// Job is a unit of work submitted to the scraping provider.
type Job struct {
	ID         string
	SnapshotID string
	Name       string
	Status     JobStatus
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Folder groups results under a job. ParentID is empty for the job's root
// folder.
type Folder struct {
	ID        string
	JobID     string
	ParentID  string
	Name      string
	Path      string
	Depth     int
	CreatedAt time.Time
}

func (f Folder) IsRoot() bool {
	return strings.TrimSpace(f.ParentID) == ""
}

// FolderKey is the natural key of a folder: the same job, parent, and name
// always resolve to the same row.
type FolderKey struct {
	JobID    string
	ParentID string
	Name     string
	Path     string
	Depth    int
}

// Delivery is one inbound webhook invocation.
type Delivery struct {
	ID                 string
	ProviderID         string
	DeliveryID         string
	Checksum           string
	Status             DeliveryStatus
	ContentType        string
	ContentEncoding    string
	RecordsTotal       int
	RecordsWritten     int
	RecordsQuarantined int
	Error              string
	Payload            []byte
	ReceivedAt         time.Time
	ProcessedAt        *time.Time
}

// ParsedRecord is one record decoded from a delivery body. Fields already
// carry any envelope level defaults; Raw is the record as it appeared on the
// wire.
type ParsedRecord struct {
	Index  int
	Fields map[string]any
	Raw    []byte
}

type ParsedPayload struct {
	Format   string
	Envelope map[string]any
	Records  []ParsedRecord
}

// ResultRecord is one linked unit of scraped data.
type ResultRecord struct {
	ID             string
	JobID          string
	FolderID       string
	DeliveryRef    string
	SourceRecordID string
	RawPayload     []byte
	ProcessedAt    time.Time
}

// QuarantinedRecord holds a record that could not be linked to a job.
type QuarantinedRecord struct {
	ID            string
	DeliveryRef   string
	ProviderID    string
	DeliveryID    string
	RecordIndex   int
	Reason        string
	TextCode      string
	CorrelationID string
	RawPayload    []byte
	Status        QuarantineStatus
	Resolution    string
	ResultID      string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// Link is the outcome of resolving a parsed record against the job and
// folder hierarchy.
type Link struct {
	Job            Job
	Folder         Folder
	CorrelationID  string
	SourceRecordID string
	ProviderStatus string
}

type LinkOptions struct {
	// JobID forces the record onto a job instead of reading the correlation
	// expressions.
	JobID string
}

type IngestOutcome struct {
	DeliveryRef string
	ProviderID  string
	DeliveryID  string
	Duplicate   bool
	Total       int
	Written     int
	Quarantined int
	JobIDs      []string
}

type OutboxEvent struct {
	ID          string
	Name        string
	AggregateID string
	Payload     map[string]any
	Metadata    map[string]any
	OccurredAt  time.Time
}

type RegisterJobInput struct {
	ID         string
	SnapshotID string
	Name       string
	Status     JobStatus
	Metadata   map[string]any
}

type DeliveryFilter struct {
	ProviderID string
	Status     DeliveryStatus
	Since      time.Time
	Limit      int
	Offset     int
}

type QuarantineFilter struct {
	Status      QuarantineStatus
	ProviderID  string
	DeliveryRef string
	Limit       int
	Offset      int
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}
