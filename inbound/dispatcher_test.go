package inbound

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

func TestDispatcher_RoutesByProvider(t *testing.T) {
	dispatcher := NewDispatcher(0, 0)
	brightdata := &stubWebhookHandler{result: core.InboundResult{Accepted: true, StatusCode: http.StatusOK}}
	other := &stubWebhookHandler{result: core.InboundResult{Accepted: true, StatusCode: http.StatusAccepted}}
	if err := dispatcher.Register("BrightData", brightdata); err != nil {
		t.Fatalf("register brightdata: %v", err)
	}
	if err := dispatcher.Register("other", other); err != nil {
		t.Fatalf("register other: %v", err)
	}

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: " brightdata "})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.StatusCode != http.StatusOK || result.Metadata["provider_id"] != "brightdata" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if brightdata.calls() != 1 || other.calls() != 0 {
		t.Fatalf("expected only the brightdata handler to run, got %d and %d", brightdata.calls(), other.calls())
	}
	if brightdata.last().ProviderID != "brightdata" {
		t.Fatalf("expected normalized provider id, got %q", brightdata.last().ProviderID)
	}
}

func TestDispatcher_RejectsDuplicateRegistration(t *testing.T) {
	dispatcher := NewDispatcher(0, 0)
	if err := dispatcher.Register("brightdata", &stubWebhookHandler{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := dispatcher.Register("brightdata", &stubWebhookHandler{})
	if err == nil {
		t.Fatalf("expected conflict on duplicate registration")
	}
	if mapped := core.MapError(err); mapped.TextCode != core.ErrorConflict {
		t.Fatalf("expected conflict text code, got %q", mapped.TextCode)
	}
	if err := dispatcher.Register(" ", &stubWebhookHandler{}); err == nil {
		t.Fatalf("expected blank provider to be rejected")
	}
	if err := dispatcher.Register("x", nil); err == nil {
		t.Fatalf("expected nil handler to be rejected")
	}
}

func TestDispatcher_RateLimitsPerProvider(t *testing.T) {
	dispatcher := NewDispatcher(0.0001, 2)
	first := &stubWebhookHandler{result: core.InboundResult{Accepted: true, StatusCode: http.StatusOK}}
	second := &stubWebhookHandler{result: core.InboundResult{Accepted: true, StatusCode: http.StatusOK}}
	if err := dispatcher.Register("first", first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := dispatcher.Register("second", second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "first"}); err != nil {
			t.Fatalf("dispatch %d within burst: %v", i, err)
		}
	}
	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "first"})
	if err == nil {
		t.Fatalf("expected rate limit error once the burst is spent")
	}
	if result.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", result.StatusCode)
	}
	if mapped := core.MapError(err); mapped.TextCode != core.ErrorRateLimited || mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected rate limit envelope: %+v", mapped)
	}
	if first.calls() != 2 {
		t.Fatalf("limited delivery must not reach the handler, got %d calls", first.calls())
	}

	if _, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "second"}); err != nil {
		t.Fatalf("other providers keep their own bucket: %v", err)
	}
}

func TestDispatcher_UnknownProviderIsNotFound(t *testing.T) {
	dispatcher := NewDispatcher(0, 0)
	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "nobody"})
	mapped := core.MapError(err)
	if mapped == nil || mapped.Code != http.StatusNotFound || mapped.TextCode != core.ErrorNotFound {
		t.Fatalf("expected 404 not found envelope, got %+v", mapped)
	}
}

func TestDispatcher_WrapsPlainHandlerErrors(t *testing.T) {
	dispatcher := NewDispatcher(0, 0)
	handler := &stubWebhookHandler{err: errors.New("kaboom")}
	if err := dispatcher.Register("brightdata", handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "brightdata"})
	mapped := core.MapError(err)
	if mapped == nil || mapped.TextCode != core.ErrorInternal || mapped.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal envelope, got %+v", mapped)
	}

	handler.err = core.NewTransientStoreError(errors.New("connection refused"))
	_, err = dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "brightdata"})
	if !core.IsTransientStoreError(err) {
		t.Fatalf("expected rich handler errors to pass through, got %v", err)
	}
}

type stubWebhookHandler struct {
	mu       sync.Mutex
	requests []core.InboundRequest
	result   core.InboundResult
	err      error
}

func (h *stubWebhookHandler) Handle(_ context.Context, req core.InboundRequest) (core.InboundResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	if h.err != nil {
		return core.InboundResult{}, h.err
	}
	result := h.result
	result.Metadata = map[string]any{}
	for key, value := range h.result.Metadata {
		result.Metadata[key] = value
	}
	return result, nil
}

func (h *stubWebhookHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func (h *stubWebhookHandler) last() core.InboundRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return core.InboundRequest{}
	}
	return h.requests[len(h.requests)-1]
}
