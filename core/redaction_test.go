package core

import (
	"strings"
	"testing"
)

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"snapshot_id":   "s_1",
		"delivery_id":   "d_1",
		"session_token": "secret-token",
		"authorization": "Bearer secret-token",
		"nested":        map[string]any{"cookie": "sid=1", "job_id": "job_nested"},
		"records":       []any{map[string]any{"api_key": "key_1"}, map[string]any{"url": "https://example.com"}},
	})

	if redacted["snapshot_id"] != "s_1" {
		t.Fatalf("expected snapshot_id to remain visible, got %#v", redacted["snapshot_id"])
	}
	if redacted["session_token"] != RedactedValue {
		t.Fatalf("expected session_token to be redacted, got %#v", redacted["session_token"])
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["cookie"] != RedactedValue {
		t.Fatalf("expected nested cookie to be redacted, got %#v", nested["cookie"])
	}
	if nested["job_id"] != "job_nested" {
		t.Fatalf("expected nested job_id to remain visible, got %#v", nested["job_id"])
	}
	records, ok := redacted["records"].([]any)
	if !ok || len(records) != 2 {
		t.Fatalf("expected redacted records slice")
	}
	if records[0].(map[string]any)["api_key"] != RedactedValue {
		t.Fatalf("expected api_key inside slice to be redacted")
	}
}

func TestPayloadPreviewRedactsAndTruncates(t *testing.T) {
	preview := PayloadPreview([]byte(`{"password":"hunter2","url":"https://example.com"}`), 0)
	if strings.Contains(preview, "hunter2") {
		t.Fatalf("expected password to be redacted, got %q", preview)
	}
	if !strings.Contains(preview, "https://example.com") {
		t.Fatalf("expected url to remain visible, got %q", preview)
	}

	long := PayloadPreview([]byte(strings.Repeat("x", 64)), 16)
	if !strings.HasSuffix(long, "...(truncated)") || len(long) != 16+len("...(truncated)") {
		t.Fatalf("expected truncated preview, got %q", long)
	}

	if PayloadPreview([]byte{0xff, 0xfe, 0x00}, 0) != "<binary payload>" {
		t.Fatalf("expected binary marker for invalid utf-8")
	}
}
