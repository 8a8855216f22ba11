package query

import (
	"strings"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	TypeGetJob         = "ingest.query.job.get"
	TypeListJobs       = "ingest.query.job.list"
	TypeListFolders    = "ingest.query.folder.list"
	TypeGetDelivery    = "ingest.query.delivery.get"
	TypeListDeliveries = "ingest.query.delivery.list"
	TypeGetQuarantine  = "ingest.query.quarantine.get"
	TypeListQuarantine = "ingest.query.quarantine.list"
)

const maxPageSize = 500

type GetJobMessage struct {
	JobID string
}

func (GetJobMessage) Type() string { return TypeGetJob }

func (m GetJobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return queryValidationError("job_id", "job id is required")
	}
	return nil
}

type ListJobsMessage struct {
	Status core.JobStatus
	Limit  int
	Offset int
}

func (ListJobsMessage) Type() string { return TypeListJobs }

func (m ListJobsMessage) Validate() error {
	if m.Status != "" && !m.Status.Valid() {
		return queryValidationError("status", "unknown job status")
	}
	return validatePage(m.Limit, m.Offset)
}

type ListFoldersMessage struct {
	JobID string
}

func (ListFoldersMessage) Type() string { return TypeListFolders }

func (m ListFoldersMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return queryValidationError("job_id", "job id is required")
	}
	return nil
}

// GetDeliveryMessage looks a delivery up by its provider-scoped natural key.
type GetDeliveryMessage struct {
	ProviderID string
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	return validatePage(m.Filter.Limit, m.Filter.Offset)
}

type GetQuarantineMessage struct {
	QuarantineID string
}

func (GetQuarantineMessage) Type() string { return TypeGetQuarantine }

func (m GetQuarantineMessage) Validate() error {
	if strings.TrimSpace(m.QuarantineID) == "" {
		return queryValidationError("quarantine_id", "quarantine id is required")
	}
	return nil
}

type ListQuarantineMessage struct {
	Filter core.QuarantineFilter
}

func (ListQuarantineMessage) Type() string { return TypeListQuarantine }

func (m ListQuarantineMessage) Validate() error {
	return validatePage(m.Filter.Limit, m.Filter.Offset)
}

// Page is one slice of a listing plus the unpaged total.
type Page[T any] struct {
	Items  []T
	Total  int
	Limit  int
	Offset int
}

func validatePage(limit, offset int) error {
	if limit < 0 || limit > maxPageSize {
		return queryValidationError("limit", "limit must be between 0 and 500")
	}
	if offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}
