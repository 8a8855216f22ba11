package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

func newJobRecord(in core.RegisterJobInput, now time.Time) *jobRecord {
	record := &jobRecord{
		ID:        strings.TrimSpace(in.ID),
		Name:      strings.TrimSpace(in.Name),
		Status:    string(in.Status),
		Metadata:  core.RedactSensitiveMap(in.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if snapshotID := strings.TrimSpace(in.SnapshotID); snapshotID != "" {
		record.SnapshotID = &snapshotID
	}
	return record
}

func (r *jobRecord) toDomain() core.Job {
	if r == nil {
		return core.Job{}
	}
	job := core.Job{
		ID:        r.ID,
		Name:      r.Name,
		Status:    core.JobStatus(r.Status),
		Metadata:  copyAnyMap(r.Metadata),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.SnapshotID != nil {
		job.SnapshotID = *r.SnapshotID
	}
	return job
}

func (r *folderRecord) toDomain() core.Folder {
	if r == nil {
		return core.Folder{}
	}
	folder := core.Folder{
		ID:        r.ID,
		JobID:     r.JobID,
		Name:      r.Name,
		Path:      r.Path,
		Depth:     r.Depth,
		CreatedAt: r.CreatedAt,
	}
	if r.ParentID != nil {
		folder.ParentID = *r.ParentID
	}
	return folder
}

func newDeliveryRecord(in core.Delivery, id string, now time.Time) *deliveryRecord {
	receivedAt := in.ReceivedAt.UTC()
	if receivedAt.IsZero() {
		receivedAt = now
	}
	return &deliveryRecord{
		ID:                 id,
		ProviderID:         strings.TrimSpace(in.ProviderID),
		DeliveryID:         strings.TrimSpace(in.DeliveryID),
		Checksum:           strings.TrimSpace(in.Checksum),
		Status:             string(in.Status),
		ContentType:        strings.TrimSpace(in.ContentType),
		ContentEncoding:    strings.TrimSpace(in.ContentEncoding),
		RecordsTotal:       in.RecordsTotal,
		RecordsWritten:     in.RecordsWritten,
		RecordsQuarantined: in.RecordsQuarantined,
		Error:              in.Error,
		Payload:            cloneBytes(in.Payload),
		ReceivedAt:         receivedAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (r *deliveryRecord) toDomain() core.Delivery {
	if r == nil {
		return core.Delivery{}
	}
	return core.Delivery{
		ID:                 r.ID,
		ProviderID:         r.ProviderID,
		DeliveryID:         r.DeliveryID,
		Checksum:           r.Checksum,
		Status:             core.DeliveryStatus(r.Status),
		ContentType:        r.ContentType,
		ContentEncoding:    r.ContentEncoding,
		RecordsTotal:       r.RecordsTotal,
		RecordsWritten:     r.RecordsWritten,
		RecordsQuarantined: r.RecordsQuarantined,
		Error:              r.Error,
		Payload:            cloneBytes(r.Payload),
		ReceivedAt:         r.ReceivedAt,
		ProcessedAt:        cloneTimePointer(r.ProcessedAt),
	}
}

func (r *resultRecord) toDomain() core.ResultRecord {
	if r == nil {
		return core.ResultRecord{}
	}
	return core.ResultRecord{
		ID:             r.ID,
		JobID:          r.JobID,
		FolderID:       r.FolderID,
		DeliveryRef:    r.DeliveryRef,
		SourceRecordID: r.SourceRecordID,
		RawPayload:     cloneBytes(r.RawPayload),
		ProcessedAt:    r.ProcessedAt,
	}
}

func newQuarantineRecord(in core.QuarantinedRecord, id string, now time.Time) *quarantineRecord {
	createdAt := in.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	status := in.Status
	if status == "" {
		status = core.QuarantineStatusOpen
	}
	raw := cloneBytes(in.RawPayload)
	if raw == nil {
		raw = []byte{}
	}
	return &quarantineRecord{
		ID:            id,
		DeliveryRef:   strings.TrimSpace(in.DeliveryRef),
		ProviderID:    strings.TrimSpace(in.ProviderID),
		DeliveryID:    strings.TrimSpace(in.DeliveryID),
		RecordIndex:   in.RecordIndex,
		Reason:        in.Reason,
		TextCode:      in.TextCode,
		CorrelationID: strings.TrimSpace(in.CorrelationID),
		RawPayload:    raw,
		Status:        string(status),
		Resolution:    in.Resolution,
		CreatedAt:     createdAt,
	}
}

func (r *quarantineRecord) toDomain() core.QuarantinedRecord {
	if r == nil {
		return core.QuarantinedRecord{}
	}
	record := core.QuarantinedRecord{
		ID:            r.ID,
		DeliveryRef:   r.DeliveryRef,
		ProviderID:    r.ProviderID,
		DeliveryID:    r.DeliveryID,
		RecordIndex:   r.RecordIndex,
		Reason:        r.Reason,
		TextCode:      r.TextCode,
		CorrelationID: r.CorrelationID,
		RawPayload:    cloneBytes(r.RawPayload),
		Status:        core.QuarantineStatus(r.Status),
		Resolution:    r.Resolution,
		CreatedAt:     r.CreatedAt,
		ResolvedAt:    cloneTimePointer(r.ResolvedAt),
	}
	if r.ResultID != nil {
		record.ResultID = *r.ResultID
	}
	return record
}

func outboxRecordToEvent(record outboxRecord) core.OutboxEvent {
	event := core.OutboxEvent{
		ID:          record.EventID,
		Name:        record.EventName,
		AggregateID: record.AggregateID,
		Payload:     copyAnyMap(record.Payload),
		Metadata:    copyAnyMap(record.Metadata),
		OccurredAt:  record.OccurredAt,
	}
	event.Metadata[core.MetadataKeyOutboxAttempts] = record.Attempts
	return event
}

func marshalJSONMap(in map[string]any) (string, error) {
	if len(in) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	return append([]byte(nil), in...)
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
