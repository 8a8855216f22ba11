package core

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type sample struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type logLine struct {
	level  string
	msg    string
	fields map[string]any
}

// telemetry captures metrics and log lines for one service under test.
type telemetry struct {
	mu      sync.Mutex
	samples []sample
	lines   []logLine
}

func (c *telemetry) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample{kind: "counter", name: name, value: float64(value), tags: cloneTags(tags)})
}

func (c *telemetry) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample{kind: "histogram", name: name, value: value, tags: cloneTags(tags)})
}

func (c *telemetry) sampled(kind, name, status string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.samples {
		if s.kind == kind && s.name == name && s.tags["status"] == status {
			return true
		}
	}
	return false
}

func (c *telemetry) logged(match func(logLine) bool) (logLine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.lines) - 1; i >= 0; i-- {
		if match(c.lines[i]) {
			return c.lines[i], true
		}
	}
	return logLine{}, false
}

// telemetryLogger writes into a shared telemetry sink.
type telemetryLogger struct {
	sink   *telemetry
	fields map[string]any
}

func (l telemetryLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.fields)
	for key, value := range fields {
		merged[key] = value
	}
	return telemetryLogger{sink: l.sink, fields: merged}
}

func (l telemetryLogger) WithContext(context.Context) Logger { return l }

func (l telemetryLogger) Trace(msg string, args ...any) { l.write("trace", msg, args) }
func (l telemetryLogger) Debug(msg string, args ...any) { l.write("debug", msg, args) }
func (l telemetryLogger) Info(msg string, args ...any)  { l.write("info", msg, args) }
func (l telemetryLogger) Warn(msg string, args ...any)  { l.write("warn", msg, args) }
func (l telemetryLogger) Error(msg string, args ...any) { l.write("error", msg, args) }
func (l telemetryLogger) Fatal(msg string, args ...any) { l.write("fatal", msg, args) }

func (l telemetryLogger) write(level, msg string, args []any) {
	fields := cloneFields(l.fields)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.lines = append(l.sink.lines, logLine{level: level, msg: msg, fields: fields})
}

func newObservedService(t *testing.T, store *memoryIngestStore) (*Service, *telemetry) {
	t.Helper()
	sink := &telemetry{}
	logger := telemetryLogger{sink: sink}
	svc, err := newTestService(store,
		WithMetricsRecorder(sink),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, sink
}

func TestObserveOperation_SuccessfulIngest(t *testing.T) {
	store := newMemoryIngestStore()
	store.addJob(Job{ID: "job_1"})
	svc, sink := newObservedService(t, store)

	_, err := svc.Ingest(context.Background(), Delivery{ProviderID: "brightdata", DeliveryID: "d_obs"}, []ParsedRecord{
		parsedRecord(0, map[string]any{"job_id": "job_1", "id": "r1"}),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if !sink.sampled("counter", "ingest.ingest_delivery.total", "success") {
		t.Fatalf("missing success counter: %+v", sink.samples)
	}
	if !sink.sampled("histogram", "ingest.ingest_delivery.duration_ms", "success") {
		t.Fatalf("missing latency histogram: %+v", sink.samples)
	}
	if _, ok := sink.logged(func(l logLine) bool {
		return l.level == "info" && l.msg == "ingest_delivery succeeded" && l.fields["event_type"] == "ingest_delivery"
	}); !ok {
		t.Fatalf("missing success log line")
	}
}

func TestObserveOperation_QuarantineWarns(t *testing.T) {
	svc, sink := newObservedService(t, newMemoryIngestStore())

	if _, err := svc.Ingest(context.Background(), Delivery{ProviderID: "brightdata", DeliveryID: "d_warn"}, []ParsedRecord{
		parsedRecord(0, map[string]any{"id": "orphan"}),
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, ok := sink.logged(func(l logLine) bool {
		return l.level == "warn" && l.msg == "record quarantined" && l.fields["delivery_id"] == "d_warn"
	}); !ok {
		t.Fatalf("missing quarantine warning")
	}
}

func TestObserveOperation_FailureCarriesErrorEnvelope(t *testing.T) {
	svc, sink := newObservedService(t, newMemoryIngestStore())

	cause := NewTransientStoreError(goerrors.New("dial tcp: connection refused", goerrors.CategoryExternal)).
		WithMetadata(map[string]any{
			"trace_id":    "trace_123",
			"request_id":  "req_123",
			"db_password": "hunter2",
		})
	svc.observeOperation(context.Background(), time.Now().Add(-100*time.Millisecond), "Ingest Delivery", cause,
		map[string]any{"provider_id": "brightdata"})

	line, ok := sink.logged(func(l logLine) bool { return l.level == "error" })
	if !ok {
		t.Fatalf("missing error log line")
	}
	want := map[string]any{
		"event_type":      "ingest_delivery",
		"error_category":  "external",
		"error_text_code": ErrorStoreUnavailable,
		"request_id":      "req_123",
		"trace_id":        "trace_123",
	}
	for key, value := range want {
		if line.fields[key] != value {
			t.Fatalf("field %s = %#v, want %#v", key, line.fields[key], value)
		}
	}
	metadata, ok := line.fields["error_metadata"].(map[string]any)
	if !ok || metadata["db_password"] != RedactedValue {
		t.Fatalf("expected redacted error metadata, got %#v", line.fields["error_metadata"])
	}
	if !sink.sampled("counter", "ingest.ingest_delivery.total", "failure") {
		t.Fatalf("missing failure counter")
	}
}

func TestMetricTags_LiftsKnownFields(t *testing.T) {
	tags := metricTags("ingest_delivery", "success", map[string]any{
		"provider_id": " brightdata ",
		"job_id":      nil,
		"outcome":     "",
		"delivery_id": "d1",
	})
	if tags["provider_id"] != "brightdata" {
		t.Fatalf("provider_id tag = %q", tags["provider_id"])
	}
	for _, key := range []string{"job_id", "outcome", "delivery_id"} {
		if _, ok := tags[key]; ok {
			t.Fatalf("unexpected tag %s in %v", key, tags)
		}
	}
	if operationName("  ") != "unknown" {
		t.Fatalf("blank operation should be unknown")
	}
}
