package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any)               {}
func (stubLogger) Debug(string, ...any)               {}
func (stubLogger) Info(string, ...any)                {}
func (stubLogger) Warn(string, ...any)                {}
func (stubLogger) Error(string, ...any)               {}
func (stubLogger) Fatal(string, ...any)               {}
func (stubLogger) WithContext(context.Context) Logger { return stubLogger{} }

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	if p.logger == nil {
		return stubLogger{}
	}
	return p.logger
}

type memoryState struct {
	jobs       map[string]Job
	folders    map[string]Folder
	deliveries map[string]Delivery
	results    map[string]ResultRecord
	quarantine map[string]QuarantinedRecord
	events     []OutboxEvent
	sequence   int
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		jobs:       make(map[string]Job, len(s.jobs)),
		folders:    make(map[string]Folder, len(s.folders)),
		deliveries: make(map[string]Delivery, len(s.deliveries)),
		results:    make(map[string]ResultRecord, len(s.results)),
		quarantine: make(map[string]QuarantinedRecord, len(s.quarantine)),
		events:     append([]OutboxEvent(nil), s.events...),
		sequence:   s.sequence,
	}
	for k, v := range s.jobs {
		out.jobs[k] = v
	}
	for k, v := range s.folders {
		out.folders[k] = v
	}
	for k, v := range s.deliveries {
		out.deliveries[k] = v
	}
	for k, v := range s.results {
		out.results[k] = v
	}
	for k, v := range s.quarantine {
		out.quarantine[k] = v
	}
	return out
}

// memoryIngestStore commits a copy of its state only when the transaction
// function succeeds.
type memoryIngestStore struct {
	mu       sync.Mutex
	state    memoryState
	txErr    error
	failedAt map[string]Delivery
}

func newMemoryIngestStore() *memoryIngestStore {
	return &memoryIngestStore{
		state: memoryState{
			jobs:       map[string]Job{},
			folders:    map[string]Folder{},
			deliveries: map[string]Delivery{},
			results:    map[string]ResultRecord{},
			quarantine: map[string]QuarantinedRecord{},
		},
		failedAt: map[string]Delivery{},
	}
}

func (m *memoryIngestStore) addJob(job Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	m.state.jobs[job.ID] = job
}

func (m *memoryIngestStore) WithinTx(ctx context.Context, fn func(context.Context, IngestTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txErr != nil {
		return m.txErr
	}
	working := m.state.clone()
	if err := fn(ctx, &memoryTx{state: &working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *memoryIngestStore) RecordFailedDelivery(_ context.Context, delivery Delivery) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := delivery.ProviderID + "/" + delivery.DeliveryID
	if existing, ok := m.state.deliveries[key]; ok && existing.Status == DeliveryStatusProcessed {
		return existing, nil
	}
	m.state.sequence++
	delivery.ID = fmt.Sprintf("del_%d", m.state.sequence)
	m.state.deliveries[key] = delivery
	m.failedAt[key] = delivery
	return delivery, nil
}

func (m *memoryIngestStore) GetDelivery(_ context.Context, providerID, deliveryID string) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delivery, ok := m.state.deliveries[providerID+"/"+deliveryID]
	if !ok {
		return Delivery{}, ErrDeliveryNotFound
	}
	return delivery, nil
}

func (m *memoryIngestStore) snapshot() memoryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) nextID(prefix string) string {
	t.state.sequence++
	return fmt.Sprintf("%s_%d", prefix, t.state.sequence)
}

func (t *memoryTx) FindJob(_ context.Context, correlationID string) (Job, error) {
	for _, job := range t.state.jobs {
		if job.ID == correlationID || (job.SnapshotID != "" && job.SnapshotID == correlationID) {
			return job, nil
		}
	}
	return Job{}, ErrJobNotFound
}

func (t *memoryTx) GetOrCreateFolder(_ context.Context, key FolderKey) (Folder, error) {
	for _, folder := range t.state.folders {
		if folder.JobID == key.JobID && folder.ParentID == key.ParentID && folder.Name == key.Name {
			return folder, nil
		}
	}
	folder := Folder{
		ID:       t.nextID("fld"),
		JobID:    key.JobID,
		ParentID: key.ParentID,
		Name:     key.Name,
		Path:     key.Path,
		Depth:    key.Depth,
	}
	t.state.folders[folder.ID] = folder
	return folder, nil
}

func (t *memoryTx) ClaimDelivery(_ context.Context, delivery Delivery) (Delivery, bool, error) {
	key := delivery.ProviderID + "/" + delivery.DeliveryID
	if existing, ok := t.state.deliveries[key]; ok {
		if existing.Status == DeliveryStatusProcessed {
			return existing, false, nil
		}
		existing.Status = DeliveryStatusProcessing
		t.state.deliveries[key] = existing
		return existing, true, nil
	}
	delivery.ID = t.nextID("del")
	t.state.deliveries[key] = delivery
	return delivery, true, nil
}

func (t *memoryTx) CompleteDelivery(_ context.Context, outcome IngestOutcome) error {
	key := outcome.ProviderID + "/" + outcome.DeliveryID
	delivery, ok := t.state.deliveries[key]
	if !ok {
		return ErrDeliveryNotFound
	}
	delivery.Status = DeliveryStatusProcessed
	delivery.RecordsWritten = outcome.Written
	delivery.RecordsQuarantined = outcome.Quarantined
	t.state.deliveries[key] = delivery
	return nil
}

func (t *memoryTx) UpsertResult(_ context.Context, record ResultRecord) (ResultRecord, error) {
	for id, existing := range t.state.results {
		if existing.JobID == record.JobID && existing.SourceRecordID == record.SourceRecordID {
			record.ID = id
			t.state.results[id] = record
			return record, nil
		}
	}
	record.ID = t.nextID("res")
	t.state.results[record.ID] = record
	return record, nil
}

func (t *memoryTx) InsertQuarantine(_ context.Context, record QuarantinedRecord) (QuarantinedRecord, error) {
	record.ID = t.nextID("qr")
	t.state.quarantine[record.ID] = record
	return record, nil
}

func (t *memoryTx) GetQuarantine(_ context.Context, id string) (QuarantinedRecord, error) {
	record, ok := t.state.quarantine[id]
	if !ok {
		return QuarantinedRecord{}, ErrQuarantineNotFound
	}
	return record, nil
}

func (t *memoryTx) CloseQuarantine(_ context.Context, id string, status QuarantineStatus, resolution, resultID string) (bool, error) {
	record, ok := t.state.quarantine[id]
	if !ok || record.Status != QuarantineStatusOpen {
		return false, nil
	}
	record.Status = status
	record.Resolution = resolution
	record.ResultID = resultID
	t.state.quarantine[id] = record
	return true, nil
}

func (t *memoryTx) TransitionJob(_ context.Context, jobID string, to JobStatus) (bool, error) {
	job, ok := t.state.jobs[jobID]
	if !ok || !CanTransitionJob(job.Status, to) {
		return false, nil
	}
	job.Status = to
	t.state.jobs[jobID] = job
	return true, nil
}

func (t *memoryTx) EnqueueEvent(_ context.Context, event OutboxEvent) error {
	t.state.events = append(t.state.events, event)
	return nil
}

// fieldLinker resolves records by their job_id field and files them under a
// single folder named after the category field.
type fieldLinker struct{}

func (fieldLinker) Link(ctx context.Context, store LinkStore, record ParsedRecord, opts LinkOptions) (Link, error) {
	correlationID := strings.TrimSpace(opts.JobID)
	if correlationID == "" {
		correlationID, _ = record.Fields["job_id"].(string)
	}
	if correlationID == "" {
		return Link{}, NewLinkResolutionError("record has no correlation id", "")
	}
	job, err := store.FindJob(ctx, correlationID)
	if err != nil {
		return Link{}, NewLinkResolutionError("no job matches correlation id", correlationID)
	}
	category, _ := record.Fields["category"].(string)
	if category == "" {
		category = "uncategorized"
	}
	folder, err := store.GetOrCreateFolder(ctx, FolderKey{JobID: job.ID, Name: category, Path: "/" + category, Depth: 1})
	if err != nil {
		return Link{}, err
	}
	sourceID, _ := record.Fields["id"].(string)
	if sourceID == "" {
		sourceID = fmt.Sprintf("idx-%d", record.Index)
	}
	status, _ := record.Fields["status"].(string)
	return Link{Job: job, Folder: folder, CorrelationID: correlationID, SourceRecordID: sourceID, ProviderStatus: status}, nil
}

func newTestService(store *memoryIngestStore, opts ...Option) (*Service, error) {
	base := []Option{
		WithIngestStore(store),
		WithLinker(fieldLinker{}),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{}),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	}
	return NewService(DefaultConfig(), append(base, opts...)...)
}

func parsedRecord(index int, fields map[string]any) ParsedRecord {
	return ParsedRecord{Index: index, Fields: fields}
}

func eventNames(events []OutboxEvent) []string {
	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.Name)
	}
	sort.Strings(names)
	return names
}
