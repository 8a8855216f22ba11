package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		before    string
		olderThan time.Duration
		want      time.Time
		wantErr   bool
	}{
		{name: "before", before: "2026-02-01T00:00:00Z", want: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{name: "older than", olderThan: 48 * time.Hour, want: now.Add(-48 * time.Hour)},
		{name: "neither", wantErr: true},
		{name: "both", before: "2026-02-01T00:00:00Z", olderThan: time.Hour, wantErr: true},
		{name: "bad timestamp", before: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruneBefore, pruneOlderThan = tt.before, tt.olderThan
			t.Cleanup(func() { pruneBefore, pruneOlderThan = "", 0 })

			got, err := pruneCutoff(now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func runCLI(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("ingestd %v: %v", args, err)
	}
	return out.Bytes()
}

func TestCLI_MigrateRegisterAndListJobs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ingest.db")
	t.Setenv("INGEST_STORE_DIALECT", "sqlite")
	t.Setenv("INGEST_STORE_DSN", "file:"+dbPath+"?_foreign_keys=on")
	t.Setenv("INGEST_WEBHOOK_SECRET", "cli_secret")
	logLevel = "error"

	runCLI(t, "migrate")

	var job struct {
		ID         string
		SnapshotID string
		Name       string
		Status     string
	}
	out := runCLI(t, "jobs", "register", "--snapshot", "s_cli_1", "--name", "cli job")
	if err := json.Unmarshal(out, &job); err != nil {
		t.Fatalf("decode register output %q: %v", out, err)
	}
	if job.ID == "" || job.SnapshotID != "s_cli_1" || job.Status != "pending" {
		t.Fatalf("unexpected job: %+v", job)
	}

	var page struct {
		Items []struct{ ID string }
		Total int
	}
	out = runCLI(t, "jobs", "list", "--limit", "10")
	if err := json.Unmarshal(out, &page); err != nil {
		t.Fatalf("decode list output %q: %v", out, err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != job.ID {
		t.Fatalf("expected the registered job, got %+v", page)
	}

	var stats struct{ Claimed int }
	out = runCLI(t, "outbox", "dispatch")
	if err := json.Unmarshal(out, &stats); err != nil {
		t.Fatalf("decode dispatch output %q: %v", out, err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("expected nothing to dispatch after a registration, got %+v", stats)
	}
}

func TestNewLogger_WritesLeveledJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warning", "json", "ingestd")

	logger.Info("dropped below level")
	logger.GetLogger("ingest.inbound").Warn("kept", "delivery_id", "d1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one line at warn level, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["level"] != "warn" || entry["delivery_id"] != "d1" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}
