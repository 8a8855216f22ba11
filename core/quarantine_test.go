package core

import (
	"context"
	"testing"
)

type memoryQuarantineStore struct {
	store *memoryIngestStore
}

func (m memoryQuarantineStore) GetQuarantine(_ context.Context, id string) (QuarantinedRecord, error) {
	record, ok := m.store.snapshot().quarantine[id]
	if !ok {
		return QuarantinedRecord{}, ErrQuarantineNotFound
	}
	return record, nil
}

func (m memoryQuarantineStore) ListQuarantine(_ context.Context, filter QuarantineFilter) ([]QuarantinedRecord, int, error) {
	var out []QuarantinedRecord
	for _, record := range m.store.snapshot().quarantine {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		out = append(out, record)
	}
	return out, len(out), nil
}

func quarantineOne(t *testing.T, svc *Service, store *memoryIngestStore) QuarantinedRecord {
	t.Helper()
	outcome, err := svc.Ingest(context.Background(), Delivery{ProviderID: "brightdata", DeliveryID: "d_q"}, []ParsedRecord{
		parsedRecord(0, map[string]any{"id": "orphan", "category": "shoes"}),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if outcome.Quarantined != 1 {
		t.Fatalf("expected one quarantined record, got %+v", outcome)
	}
	for _, held := range store.snapshot().quarantine {
		return held
	}
	t.Fatalf("expected quarantined record in store")
	return QuarantinedRecord{}
}

func TestResolveQuarantine_LinksRecordAndKeepsRow(t *testing.T) {
	ctx := context.Background()
	store := newMemoryIngestStore()
	store.addJob(Job{ID: "job_1"})
	svc, err := newTestService(store, WithQuarantineStore(memoryQuarantineStore{store: store}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	held := quarantineOne(t, svc, store)

	result, err := svc.ResolveQuarantine(ctx, held.ID, "job_1")
	if err != nil {
		t.Fatalf("resolve quarantine: %v", err)
	}
	if result.JobID != "job_1" || result.SourceRecordID != "orphan" {
		t.Fatalf("unexpected result: %+v", result)
	}

	state := store.snapshot()
	resolved := state.quarantine[held.ID]
	if resolved.Status != QuarantineStatusResolved || resolved.ResultID != result.ID {
		t.Fatalf("expected resolved quarantine row, got %+v", resolved)
	}
	if len(state.results) != 1 {
		t.Fatalf("expected one result after resolve, got %d", len(state.results))
	}

	if _, err := svc.ResolveQuarantine(ctx, held.ID, "job_1"); err == nil {
		t.Fatalf("expected conflict resolving a closed record")
	}

	open, total, err := svc.ListQuarantine(ctx, QuarantineFilter{Status: QuarantineStatusOpen})
	if err != nil {
		t.Fatalf("list quarantine: %v", err)
	}
	if total != 0 || len(open) != 0 {
		t.Fatalf("expected no open records, got %d", total)
	}
}

func TestResolveQuarantine_UnknownJobLeavesRecordOpen(t *testing.T) {
	store := newMemoryIngestStore()
	svc, err := newTestService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	held := quarantineOne(t, svc, store)

	if _, err := svc.ResolveQuarantine(context.Background(), held.ID, "job_missing"); !IsLinkResolutionError(err) {
		t.Fatalf("expected link resolution error, got %v", err)
	}
	if got := store.snapshot().quarantine[held.ID].Status; got != QuarantineStatusOpen {
		t.Fatalf("expected record to stay open, got %q", got)
	}
}

func TestDiscardQuarantine_ClosesWithoutDeleting(t *testing.T) {
	store := newMemoryIngestStore()
	svc, err := newTestService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	held := quarantineOne(t, svc, store)

	if err := svc.DiscardQuarantine(context.Background(), held.ID, "test noise"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	discarded, ok := store.snapshot().quarantine[held.ID]
	if !ok {
		t.Fatalf("expected discarded row to be kept")
	}
	if discarded.Status != QuarantineStatusDiscarded || discarded.Resolution != "test noise" {
		t.Fatalf("unexpected discarded row: %+v", discarded)
	}
	if err := svc.DiscardQuarantine(context.Background(), "qr_missing", ""); err == nil {
		t.Fatalf("expected error for unknown quarantine id")
	}
}
