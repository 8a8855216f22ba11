package command

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

func TestIngestDeliveryCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	svc := &stubMutatingService{
		ingestFn: func(_ context.Context, delivery core.Delivery, records []core.ParsedRecord) (core.IngestOutcome, error) {
			if delivery.DeliveryID != "d_1" || len(records) != 2 {
				t.Fatalf("unexpected ingest input: %+v %d", delivery, len(records))
			}
			return core.IngestOutcome{DeliveryRef: "ref_1", Total: 2, Written: 2}, nil
		},
	}

	collector := gocmd.NewResult[core.IngestOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewIngestDeliveryCommand(svc).Execute(ctx, IngestDeliveryMessage{
		Delivery: core.Delivery{ProviderID: "brightdata", DeliveryID: "d_1"},
		Records:  []core.ParsedRecord{{Index: 0}, {Index: 1}},
	})
	if err != nil {
		t.Fatalf("execute ingest: %v", err)
	}
	outcome, ok := collector.Load()
	if !ok {
		t.Fatalf("expected outcome to be stored")
	}
	if outcome.DeliveryRef != "ref_1" || outcome.Written != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestJobCommands_DelegateToService(t *testing.T) {
	t.Run("register", func(t *testing.T) {
		svc := &stubMutatingService{
			registerJobFn: func(_ context.Context, in core.RegisterJobInput) (core.Job, error) {
				if in.SnapshotID != "s_1" {
					t.Fatalf("unexpected register input: %+v", in)
				}
				return core.Job{ID: "job_1", SnapshotID: in.SnapshotID, Status: core.JobStatusPending}, nil
			},
		}
		collector := gocmd.NewResult[core.Job]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRegisterJobCommand(svc).Execute(ctx, RegisterJobMessage{Input: core.RegisterJobInput{SnapshotID: "s_1"}}); err != nil {
			t.Fatalf("execute register: %v", err)
		}
		job, ok := collector.Load()
		if !ok || job.ID != "job_1" {
			t.Fatalf("unexpected stored job: %+v", job)
		}
	})

	t.Run("update status", func(t *testing.T) {
		svc := &stubMutatingService{
			updateJobStatusFn: func(_ context.Context, id string, to core.JobStatus) (core.Job, error) {
				if id != "job_1" || to != core.JobStatusComplete {
					t.Fatalf("unexpected update input: %q %q", id, to)
				}
				return core.Job{ID: id, Status: to}, nil
			},
		}
		collector := gocmd.NewResult[core.Job]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewUpdateJobStatusCommand(svc).Execute(ctx, UpdateJobStatusMessage{JobID: "job_1", Status: core.JobStatusComplete}); err != nil {
			t.Fatalf("execute update: %v", err)
		}
		job, ok := collector.Load()
		if !ok || job.Status != core.JobStatusComplete {
			t.Fatalf("unexpected stored job: %+v", job)
		}
	})
}

func TestQuarantineCommands_DelegateToService(t *testing.T) {
	discarded := false
	svc := &stubMutatingService{
		resolveFn: func(_ context.Context, id, jobID string) (core.ResultRecord, error) {
			if id != "q_1" || jobID != "job_1" {
				t.Fatalf("unexpected resolve input: %q %q", id, jobID)
			}
			return core.ResultRecord{ID: "res_1", JobID: jobID}, nil
		},
		discardFn: func(_ context.Context, id, reason string) error {
			discarded = id == "q_2" && reason == "spam"
			return nil
		},
	}

	collector := gocmd.NewResult[core.ResultRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewResolveQuarantineCommand(svc).Execute(ctx, ResolveQuarantineMessage{QuarantineID: "q_1", JobID: "job_1"}); err != nil {
		t.Fatalf("execute resolve: %v", err)
	}
	if result, ok := collector.Load(); !ok || result.ID != "res_1" {
		t.Fatalf("unexpected resolve result: %+v", result)
	}

	if err := NewDiscardQuarantineCommand(svc).Execute(context.Background(), DiscardQuarantineMessage{QuarantineID: "q_2", Reason: "spam"}); err != nil {
		t.Fatalf("execute discard: %v", err)
	}
	if !discarded {
		t.Fatalf("expected discard invocation")
	}
}

func TestMaintenanceCommands_StoreResults(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubMutatingService{
		pruneFn: func(_ context.Context, before time.Time) (int64, error) {
			if !before.Equal(cutoff) {
				t.Fatalf("unexpected cutoff %s", before)
			}
			return 7, nil
		},
	}
	pruneCollector := gocmd.NewResult[PruneResult]()
	ctx := gocmd.ContextWithResult(context.Background(), pruneCollector)
	if err := NewPruneDeliveriesCommand(svc).Execute(ctx, PruneDeliveriesMessage{Before: cutoff}); err != nil {
		t.Fatalf("execute prune: %v", err)
	}
	if result, ok := pruneCollector.Load(); !ok || result.Pruned != 7 {
		t.Fatalf("unexpected prune result: %+v", result)
	}

	dispatcher := &stubDispatcher{stats: core.DispatchStats{Claimed: 3, Delivered: 2, Retried: 1}}
	statsCollector := gocmd.NewResult[core.DispatchStats]()
	ctx = gocmd.ContextWithResult(context.Background(), statsCollector)
	if err := NewDispatchOutboxCommand(dispatcher).Execute(ctx, DispatchOutboxMessage{BatchSize: 10}); err != nil {
		t.Fatalf("execute dispatch: %v", err)
	}
	if dispatcher.batch != 10 {
		t.Fatalf("expected batch size 10, got %d", dispatcher.batch)
	}
	if stats, ok := statsCollector.Load(); !ok || stats.Delivered != 2 {
		t.Fatalf("unexpected dispatch stats: %+v", stats)
	}
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := &stubMutatingService{
		ingestFn: func(context.Context, core.Delivery, []core.ParsedRecord) (core.IngestOutcome, error) {
			return core.IngestOutcome{}, boom
		},
	}
	collector := gocmd.NewResult[core.IngestOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewIngestDeliveryCommand(svc).Execute(ctx, IngestDeliveryMessage{Delivery: core.Delivery{ProviderID: "p", DeliveryID: "d"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected service error, got %v", err)
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("failed commands must not store a result")
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := map[string]interface{ Validate() error }{
		"ingest without delivery id":   IngestDeliveryMessage{Delivery: core.Delivery{ProviderID: "brightdata"}},
		"register without ids":         RegisterJobMessage{},
		"register with unknown status": RegisterJobMessage{Input: core.RegisterJobInput{SnapshotID: "s", Status: "archived"}},
		"update without job":           UpdateJobStatusMessage{Status: core.JobStatusRunning},
		"update with unknown status":   UpdateJobStatusMessage{JobID: "job_1", Status: "paused"},
		"resolve without job":          ResolveQuarantineMessage{QuarantineID: "q_1"},
		"discard without id":           DiscardQuarantineMessage{},
		"prune without cutoff":         PruneDeliveriesMessage{},
		"dispatch with negative batch": DispatchOutboxMessage{BatchSize: -1},
	}
	for name, msg := range cases {
		if err := msg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	valid := []interface{ Validate() error }{
		IngestDeliveryMessage{Delivery: core.Delivery{ProviderID: "brightdata", DeliveryID: "d_1"}},
		RegisterJobMessage{Input: core.RegisterJobInput{SnapshotID: "s_1"}},
		UpdateJobStatusMessage{JobID: "job_1", Status: core.JobStatusFailed},
		ResolveQuarantineMessage{QuarantineID: "q_1", JobID: "job_1"},
		DiscardQuarantineMessage{QuarantineID: "q_1"},
		PruneDeliveriesMessage{Before: time.Now()},
		DispatchOutboxMessage{},
	}
	for _, msg := range valid {
		if err := msg.Validate(); err != nil {
			t.Fatalf("unexpected validation error for %T: %v", msg, err)
		}
	}
}

type stubMutatingService struct {
	ingestFn          func(context.Context, core.Delivery, []core.ParsedRecord) (core.IngestOutcome, error)
	registerJobFn     func(context.Context, core.RegisterJobInput) (core.Job, error)
	updateJobStatusFn func(context.Context, string, core.JobStatus) (core.Job, error)
	resolveFn         func(context.Context, string, string) (core.ResultRecord, error)
	discardFn         func(context.Context, string, string) error
	pruneFn           func(context.Context, time.Time) (int64, error)
}

func (s *stubMutatingService) Ingest(ctx context.Context, delivery core.Delivery, records []core.ParsedRecord) (core.IngestOutcome, error) {
	if s.ingestFn == nil {
		return core.IngestOutcome{}, nil
	}
	return s.ingestFn(ctx, delivery, records)
}

func (s *stubMutatingService) RegisterJob(ctx context.Context, in core.RegisterJobInput) (core.Job, error) {
	if s.registerJobFn == nil {
		return core.Job{}, nil
	}
	return s.registerJobFn(ctx, in)
}

func (s *stubMutatingService) UpdateJobStatus(ctx context.Context, id string, to core.JobStatus) (core.Job, error) {
	if s.updateJobStatusFn == nil {
		return core.Job{}, nil
	}
	return s.updateJobStatusFn(ctx, id, to)
}

func (s *stubMutatingService) ResolveQuarantine(ctx context.Context, id, jobID string) (core.ResultRecord, error) {
	if s.resolveFn == nil {
		return core.ResultRecord{}, nil
	}
	return s.resolveFn(ctx, id, jobID)
}

func (s *stubMutatingService) DiscardQuarantine(ctx context.Context, id, reason string) error {
	if s.discardFn == nil {
		return nil
	}
	return s.discardFn(ctx, id, reason)
}

func (s *stubMutatingService) PruneDeliveries(ctx context.Context, before time.Time) (int64, error) {
	if s.pruneFn == nil {
		return 0, nil
	}
	return s.pruneFn(ctx, before)
}

type stubDispatcher struct {
	batch int
	stats core.DispatchStats
}

func (d *stubDispatcher) DispatchPending(_ context.Context, batchSize int) (core.DispatchStats, error) {
	d.batch = batchSize
	return d.stats, nil
}
