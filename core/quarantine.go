package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func (s *Service) ListQuarantine(ctx context.Context, filter QuarantineFilter) ([]QuarantinedRecord, int, error) {
	if s == nil || s.quarantineStore == nil {
		return nil, 0, MapError(errServiceNotConfigured)
	}
	if filter.Status != "" && !validQuarantineStatus(filter.Status) {
		return nil, 0, NewBadInputError(fmt.Sprintf("quarantine status %q is invalid", filter.Status))
	}
	filter.Limit = normalizeLimit(filter.Limit)
	filter.Offset = max(filter.Offset, 0)
	records, total, err := s.quarantineStore.ListQuarantine(ctx, filter)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return records, total, nil
}

func (s *Service) GetQuarantine(ctx context.Context, id string) (QuarantinedRecord, error) {
	if s == nil || s.quarantineStore == nil {
		return QuarantinedRecord{}, MapError(errServiceNotConfigured)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return QuarantinedRecord{}, NewBadInputError("quarantine id is required")
	}
	record, err := s.quarantineStore.GetQuarantine(ctx, id)
	if err != nil {
		return QuarantinedRecord{}, s.mapError(err)
	}
	return record, nil
}

// ResolveQuarantine links an open quarantined record to an explicit job and
// writes its result in one transaction. The quarantine row is kept and
// marked resolved.
func (s *Service) ResolveQuarantine(ctx context.Context, id, jobID string) (result ResultRecord, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"quarantine_id": strings.TrimSpace(id),
		"job_id":        strings.TrimSpace(jobID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "resolve_quarantine", err, fields)
	}()

	if s == nil || s.ingestStore == nil || s.linker == nil {
		return ResultRecord{}, MapError(errServiceNotConfigured)
	}
	id = strings.TrimSpace(id)
	jobID = strings.TrimSpace(jobID)
	if id == "" || jobID == "" {
		return ResultRecord{}, NewBadInputError("quarantine id and job id are required")
	}

	var changed []string
	txErr := s.ingestStore.WithinTx(ctx, func(ctx context.Context, tx IngestTx) error {
		changed = nil
		held, err := tx.GetQuarantine(ctx, id)
		if err != nil {
			return err
		}
		if held.Status != QuarantineStatusOpen {
			return NewConflictError(fmt.Sprintf("quarantined record is already %s", held.Status))
		}
		record, err := quarantinedRecordToParsed(held)
		if err != nil {
			return err
		}
		link, err := s.linker.Link(ctx, tx, record, LinkOptions{JobID: jobID})
		if err != nil {
			return err
		}
		now := s.now()
		stored, err := tx.UpsertResult(ctx, ResultRecord{
			JobID:          link.Job.ID,
			FolderID:       link.Folder.ID,
			DeliveryRef:    held.DeliveryRef,
			SourceRecordID: link.SourceRecordID,
			RawPayload:     held.RawPayload,
			ProcessedAt:    now,
		})
		if err != nil {
			return err
		}
		closed, err := tx.CloseQuarantine(ctx, id, QuarantineStatusResolved, "linked to job "+link.Job.ID, stored.ID)
		if err != nil {
			return err
		}
		if !closed {
			return NewConflictError("quarantined record changed concurrently")
		}
		moved, err := s.advanceJobs(ctx, tx,
			map[string]Job{link.Job.ID: link.Job},
			map[string]JobStatus{link.Job.ID: JobStatusFromProvider(link.ProviderStatus)},
			held.DeliveryID,
		)
		if err != nil {
			return err
		}
		changed = moved
		result = stored
		return tx.EnqueueEvent(ctx, OutboxEvent{
			Name:        EventQuarantineResolved,
			AggregateID: id,
			Payload: map[string]any{
				"quarantine_id": id,
				"job_id":        link.Job.ID,
				"folder_id":     link.Folder.ID,
				"result_id":     stored.ID,
			},
			OccurredAt: now,
		})
	})
	if txErr != nil {
		return ResultRecord{}, s.mapError(txErr)
	}
	for _, changedID := range changed {
		s.invalidateJob(ctx, changedID)
	}
	return result, nil
}

// DiscardQuarantine closes an open quarantined record without linking it.
// The row and its payload stay in place.
func (s *Service) DiscardQuarantine(ctx context.Context, id, reason string) (err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"quarantine_id": strings.TrimSpace(id),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "discard_quarantine", err, fields)
	}()

	if s == nil || s.ingestStore == nil {
		return MapError(errServiceNotConfigured)
	}
	id = strings.TrimSpace(id)
	reason = strings.TrimSpace(reason)
	if id == "" {
		return NewBadInputError("quarantine id is required")
	}
	if reason == "" {
		reason = "discarded"
	}
	txErr := s.ingestStore.WithinTx(ctx, func(ctx context.Context, tx IngestTx) error {
		held, err := tx.GetQuarantine(ctx, id)
		if err != nil {
			return err
		}
		if held.Status != QuarantineStatusOpen {
			return NewConflictError(fmt.Sprintf("quarantined record is already %s", held.Status))
		}
		closed, err := tx.CloseQuarantine(ctx, id, QuarantineStatusDiscarded, reason, "")
		if err != nil {
			return err
		}
		if !closed {
			return NewConflictError("quarantined record changed concurrently")
		}
		return nil
	})
	return s.mapError(txErr)
}

func quarantinedRecordToParsed(held QuarantinedRecord) (ParsedRecord, error) {
	fields := map[string]any{}
	if len(held.RawPayload) > 0 {
		if err := json.Unmarshal(held.RawPayload, &fields); err != nil {
			return ParsedRecord{}, NewParseError("quarantined payload is not a JSON object", err)
		}
	}
	return ParsedRecord{
		Index:  held.RecordIndex,
		Fields: fields,
		Raw:    held.RawPayload,
	}, nil
}

func validQuarantineStatus(status QuarantineStatus) bool {
	switch status {
	case QuarantineStatusOpen, QuarantineStatusResolved, QuarantineStatusDiscarded:
		return true
	default:
		return false
	}
}
