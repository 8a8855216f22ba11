package core

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Ingest commits one parsed delivery in a single transaction: the ledger
// claim, every linked result, every quarantined record, job status moves,
// outbox events, and the processed marker. A delivery whose ID was already
// processed is reported as a duplicate and writes nothing.
func (s *Service) Ingest(ctx context.Context, delivery Delivery, records []ParsedRecord) (outcome IngestOutcome, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"provider_id":   strings.TrimSpace(delivery.ProviderID),
		"delivery_id":   strings.TrimSpace(delivery.DeliveryID),
		"records_total": len(records),
	}
	defer func() {
		fields["duplicate"] = outcome.Duplicate
		fields["records_written"] = outcome.Written
		fields["records_quarantined"] = outcome.Quarantined
		if outcome.Duplicate {
			fields["outcome"] = "duplicate"
		} else if err == nil {
			fields["outcome"] = "processed"
		}
		s.observeOperation(ctx, startedAt, "ingest_delivery", err, fields)
	}()

	if s == nil || s.ingestStore == nil || s.linker == nil {
		return IngestOutcome{}, MapError(errServiceNotConfigured)
	}
	delivery.ProviderID = strings.TrimSpace(delivery.ProviderID)
	delivery.DeliveryID = strings.TrimSpace(delivery.DeliveryID)
	if delivery.ProviderID == "" || delivery.DeliveryID == "" {
		return IngestOutcome{}, NewPayloadError("provider id and delivery id are required", nil)
	}
	now := s.now()
	if delivery.ReceivedAt.IsZero() {
		delivery.ReceivedAt = now
	}
	delivery.Status = DeliveryStatusProcessing
	delivery.RecordsTotal = len(records)
	delivery.Payload = nil

	outcome = IngestOutcome{
		ProviderID: delivery.ProviderID,
		DeliveryID: delivery.DeliveryID,
		Total:      len(records),
	}
	var changed []string

	txErr := s.ingestStore.WithinTx(ctx, func(ctx context.Context, tx IngestTx) error {
		outcome.Written, outcome.Quarantined, outcome.JobIDs, changed = 0, 0, nil, nil

		claimed, ok, err := tx.ClaimDelivery(ctx, delivery)
		if err != nil {
			return err
		}
		outcome.DeliveryRef = claimed.ID
		if !ok {
			outcome.Duplicate = true
			return nil
		}

		jobs := map[string]Job{}
		targets := map[string]JobStatus{}
		for _, record := range records {
			raw := recordPayload(record)
			link, linkErr := s.linker.Link(ctx, tx, record, LinkOptions{})
			if linkErr != nil {
				if !IsLinkResolutionError(linkErr) {
					return linkErr
				}
				if err := s.quarantine(ctx, tx, claimed, record, raw, linkErr, now); err != nil {
					return err
				}
				outcome.Quarantined++
				continue
			}
			if _, err := tx.UpsertResult(ctx, ResultRecord{
				JobID:          link.Job.ID,
				FolderID:       link.Folder.ID,
				DeliveryRef:    claimed.ID,
				SourceRecordID: link.SourceRecordID,
				RawPayload:     raw,
				ProcessedAt:    now,
			}); err != nil {
				return err
			}
			outcome.Written++
			if _, seen := jobs[link.Job.ID]; !seen {
				jobs[link.Job.ID] = link.Job
			}
			targets[link.Job.ID] = mergeJobTarget(targets[link.Job.ID], JobStatusFromProvider(link.ProviderStatus))
		}

		outcome.JobIDs = sortedKeys(jobs)
		moved, err := s.advanceJobs(ctx, tx, jobs, targets, delivery.DeliveryID)
		if err != nil {
			return err
		}
		changed = moved

		if err := tx.EnqueueEvent(ctx, OutboxEvent{
			Name:        EventDeliveryProcessed,
			AggregateID: claimed.ID,
			Payload: map[string]any{
				"provider_id":         delivery.ProviderID,
				"delivery_id":         delivery.DeliveryID,
				"records_total":       outcome.Total,
				"records_written":     outcome.Written,
				"records_quarantined": outcome.Quarantined,
				"job_ids":             append([]string(nil), outcome.JobIDs...),
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}
		return tx.CompleteDelivery(ctx, outcome)
	})
	if txErr != nil {
		return IngestOutcome{
			ProviderID: delivery.ProviderID,
			DeliveryID: delivery.DeliveryID,
			Total:      len(records),
		}, s.mapError(txErr)
	}
	if outcome.Duplicate {
		outcome.Written, outcome.Quarantined, outcome.JobIDs = 0, 0, nil
		return outcome, nil
	}
	for _, jobID := range changed {
		s.invalidateJob(ctx, jobID)
	}
	return outcome, nil
}

// RecordFailure keeps a delivery that passed authentication but could not be
// decoded or parsed, with its raw payload, so it can be inspected offline. A
// later delivery with the same ID may still claim it.
func (s *Service) RecordFailure(ctx context.Context, delivery Delivery, cause error) (err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"provider_id": strings.TrimSpace(delivery.ProviderID),
		"delivery_id": strings.TrimSpace(delivery.DeliveryID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "record_delivery_failure", err, fields)
	}()

	if s == nil || s.ingestStore == nil {
		return MapError(errServiceNotConfigured)
	}
	delivery.ProviderID = strings.TrimSpace(delivery.ProviderID)
	delivery.DeliveryID = strings.TrimSpace(delivery.DeliveryID)
	if delivery.ProviderID == "" || delivery.DeliveryID == "" {
		return NewPayloadError("provider id and delivery id are required", nil)
	}
	if delivery.ReceivedAt.IsZero() {
		delivery.ReceivedAt = s.now()
	}
	delivery.Status = DeliveryStatusFailed
	if cause != nil {
		delivery.Error = cause.Error()
		if mapped := MapError(cause); mapped != nil {
			fields["text_code"] = mapped.TextCode
		}
	}
	if _, err := s.ingestStore.RecordFailedDelivery(ctx, delivery); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) quarantine(
	ctx context.Context,
	tx IngestTx,
	delivery Delivery,
	record ParsedRecord,
	raw []byte,
	cause error,
	now time.Time,
) error {
	mapped := MapError(cause)
	correlationID := ""
	if mapped != nil {
		if value, ok := mapped.Metadata["correlation_id"].(string); ok {
			correlationID = value
		}
	}
	stored, err := tx.InsertQuarantine(ctx, QuarantinedRecord{
		DeliveryRef:   delivery.ID,
		ProviderID:    delivery.ProviderID,
		DeliveryID:    delivery.DeliveryID,
		RecordIndex:   record.Index,
		Reason:        mapped.Message,
		TextCode:      mapped.TextCode,
		CorrelationID: correlationID,
		RawPayload:    raw,
		Status:        QuarantineStatusOpen,
		CreatedAt:     now,
	})
	if err != nil {
		return err
	}
	s.logWarn(ctx, "record quarantined", map[string]any{
		"provider_id":    delivery.ProviderID,
		"delivery_id":    delivery.DeliveryID,
		"record_index":   record.Index,
		"quarantine_id":  stored.ID,
		"correlation_id": correlationID,
		"reason":         mapped.Message,
	})
	return tx.EnqueueEvent(ctx, OutboxEvent{
		Name:        EventRecordQuarantined,
		AggregateID: stored.ID,
		Payload: map[string]any{
			"delivery_id":    delivery.DeliveryID,
			"record_index":   record.Index,
			"correlation_id": correlationID,
			"reason":         mapped.Message,
		},
		OccurredAt: now,
	})
}

// advanceJobs moves every touched job toward the status the delivery reports.
// Moves the status machine does not allow are logged and skipped.
func (s *Service) advanceJobs(
	ctx context.Context,
	tx IngestTx,
	jobs map[string]Job,
	targets map[string]JobStatus,
	deliveryID string,
) ([]string, error) {
	var changed []string
	for _, jobID := range sortedKeys(jobs) {
		job := jobs[jobID]
		target := targets[jobID]
		if target == "" || job.Status == target {
			continue
		}
		if !CanTransitionJob(job.Status, target) {
			s.logInfo(ctx, "job status transition ignored", map[string]any{
				"job_id":      jobID,
				"from":        string(job.Status),
				"to":          string(target),
				"delivery_id": deliveryID,
			})
			continue
		}
		moved, err := tx.TransitionJob(ctx, jobID, target)
		if err != nil {
			return nil, err
		}
		if !moved {
			s.logInfo(ctx, "job status transition ignored", map[string]any{
				"job_id":      jobID,
				"to":          string(target),
				"delivery_id": deliveryID,
				"reason":      "status changed concurrently",
			})
			continue
		}
		changed = append(changed, jobID)
		if err := tx.EnqueueEvent(ctx, OutboxEvent{
			Name:        EventJobStatusChanged,
			AggregateID: jobID,
			Payload: map[string]any{
				"job_id":      jobID,
				"from":        string(job.Status),
				"to":          string(target),
				"delivery_id": deliveryID,
			},
			OccurredAt: s.now(),
		}); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

func recordPayload(record ParsedRecord) []byte {
	if len(record.Raw) > 0 {
		return append([]byte(nil), record.Raw...)
	}
	encoded, err := json.Marshal(record.Fields)
	if err != nil {
		return []byte("{}")
	}
	return encoded
}

func sortedKeys[V any](values map[string]V) []string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
