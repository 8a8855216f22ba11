package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Service operations report "ingest.<operation>.total" and
// "ingest.<operation>.duration_ms" tagged with operation and status.
const metricPrefix = "ingest."

// metricTagKeys are lifted from the operation's log fields into metric tags.
var metricTagKeys = [...]string{"provider_id", "job_id", "outcome"}

// NopMetricsRecorder discards every sample.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// observeOperation closes out one service call: a counter and a latency
// sample, then an info line on success or an error line carrying the
// go-errors envelope on failure.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	op := operationName(operation)
	elapsed := time.Since(startedAt).Milliseconds()

	status, level, verb := "success", "info", "succeeded"
	entry := cloneFields(fields)
	if err != nil {
		status, level, verb = "failure", "error", "failed"
		entry["error"] = err.Error()
		addErrorFields(entry, err)
	}
	entry["event_type"] = op
	entry["status"] = status
	entry["duration_ms"] = elapsed

	if recorder := s.metricsRecorder; recorder != nil {
		tags := metricTags(op, status, entry)
		recorder.IncCounter(ctx, metricPrefix+op+".total", 1, tags)
		recorder.ObserveHistogram(ctx, metricPrefix+op+".duration_ms", float64(elapsed), cloneTags(tags))
	}
	s.emit(ctx, level, op+" "+verb, entry)
}

func metricTags(op, status string, fields map[string]any) map[string]string {
	tags := map[string]string{"operation": op, "status": status}
	for _, key := range metricTagKeys {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}
	return tags
}

// addErrorFields flattens a go-errors envelope into log fields. Metadata is
// redacted; correlation ids are promoted to top-level fields.
func addErrorFields(fields map[string]any, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return
	}
	fields["error_category"] = rich.Category.String()
	if rich.Code != 0 {
		fields["error_code"] = rich.Code
	}
	if code := strings.TrimSpace(rich.TextCode); code != "" {
		fields["error_text_code"] = code
	}
	if len(rich.Metadata) == 0 {
		return
	}
	fields["error_metadata"] = RedactSensitiveMap(rich.Metadata)
	for _, key := range []string{"request_id", "trace_id", "correlation_id"} {
		if value, ok := rich.Metadata[key]; ok {
			fields[key] = value
		}
	}
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.emit(ctx, "info", message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.emit(ctx, "warn", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.emit(ctx, "error", message, fields)
}

func (s *Service) emit(ctx context.Context, level, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if scoped, ok := logger.(FieldsLogger); ok {
		logger = scoped.WithFields(cloneFields(fields))
	}
	write := logger.Info
	switch level {
	case "warn":
		write = logger.Warn
	case "error":
		write = logger.Error
	}
	write(message, sortedArgs(fields)...)
}

// sortedArgs renders fields as key/value pairs in key order so log lines
// are stable across runs.
func sortedArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2*len(keys))
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func operationName(operation string) string {
	op := strings.ToLower(strings.TrimSpace(operation))
	op = strings.NewReplacer(" ", "_", "-", "_").Replace(op)
	if op == "" {
		return "unknown"
	}
	return op
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		out[key] = value
	}
	return out
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for key, value := range tags {
		out[key] = value
	}
	return out
}

var _ MetricsRecorder = NopMetricsRecorder{}
