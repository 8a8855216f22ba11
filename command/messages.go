package command

import (
	"strings"
	"time"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	TypeIngestDelivery    = "ingest.command.delivery.ingest"
	TypeRegisterJob       = "ingest.command.job.register"
	TypeUpdateJobStatus   = "ingest.command.job.update_status"
	TypeResolveQuarantine = "ingest.command.quarantine.resolve"
	TypeDiscardQuarantine = "ingest.command.quarantine.discard"
	TypePruneDeliveries   = "ingest.command.deliveries.prune"
	TypeDispatchOutbox    = "ingest.command.outbox.dispatch"
)

// IngestDeliveryMessage commits an already verified and parsed delivery.
type IngestDeliveryMessage struct {
	Delivery core.Delivery
	Records  []core.ParsedRecord
}

func (IngestDeliveryMessage) Type() string { return TypeIngestDelivery }

func (m IngestDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.Delivery.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.Delivery.DeliveryID) == "" {
		return commandValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

type RegisterJobMessage struct {
	Input core.RegisterJobInput
}

func (RegisterJobMessage) Type() string { return TypeRegisterJob }

func (m RegisterJobMessage) Validate() error {
	if strings.TrimSpace(m.Input.ID) == "" && strings.TrimSpace(m.Input.SnapshotID) == "" {
		return commandValidationError("snapshot_id", "job id or snapshot id is required")
	}
	if m.Input.Status != "" && !m.Input.Status.Valid() {
		return commandValidationError("status", "unknown job status")
	}
	return nil
}

type UpdateJobStatusMessage struct {
	JobID  string
	Status core.JobStatus
}

func (UpdateJobStatusMessage) Type() string { return TypeUpdateJobStatus }

func (m UpdateJobStatusMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return commandValidationError("job_id", "job id is required")
	}
	if !m.Status.Valid() {
		return commandValidationError("status", "unknown job status")
	}
	return nil
}

// ResolveQuarantineMessage links a quarantined record to an explicit job.
type ResolveQuarantineMessage struct {
	QuarantineID string
	JobID        string
}

func (ResolveQuarantineMessage) Type() string { return TypeResolveQuarantine }

func (m ResolveQuarantineMessage) Validate() error {
	if strings.TrimSpace(m.QuarantineID) == "" {
		return commandValidationError("quarantine_id", "quarantine id is required")
	}
	if strings.TrimSpace(m.JobID) == "" {
		return commandValidationError("job_id", "job id is required")
	}
	return nil
}

type DiscardQuarantineMessage struct {
	QuarantineID string
	Reason       string
}

func (DiscardQuarantineMessage) Type() string { return TypeDiscardQuarantine }

func (m DiscardQuarantineMessage) Validate() error {
	if strings.TrimSpace(m.QuarantineID) == "" {
		return commandValidationError("quarantine_id", "quarantine id is required")
	}
	return nil
}

// PruneDeliveriesMessage removes processed ledger rows received before
// Before.
type PruneDeliveriesMessage struct {
	Before time.Time
}

func (PruneDeliveriesMessage) Type() string { return TypePruneDeliveries }

func (m PruneDeliveriesMessage) Validate() error {
	if m.Before.IsZero() {
		return commandValidationError("before", "cutoff time is required")
	}
	return nil
}

type DispatchOutboxMessage struct {
	BatchSize int
}

func (DispatchOutboxMessage) Type() string { return TypeDispatchOutbox }

func (m DispatchOutboxMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must be >= 0")
	}
	return nil
}

// PruneResult is stored by PruneDeliveriesCommand.
type PruneResult struct {
	Before time.Time
	Pruned int64
}
