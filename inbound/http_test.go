package inbound

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	"github.com/wina-futureobjects/track-futura-new-sub007/webhooks"
)

const httpTestSecret = "bd_secret"

func TestHandler_AcceptsSignedDelivery(t *testing.T) {
	ingestor := &recordingIngestor{}
	server := newTestServer(t, ingestor, 0)

	body := []byte(`[{"job_id":"j1","id":"a"},{"job_id":"j1","id":"b"}]`)
	resp := postDelivery(t, server, "brightdata", body, map[string]string{
		webhooks.BrightDataSignatureHeader: "sha256=" + sign(body),
		"X-Delivery-Id":                    "d_1",
		"Content-Type":                     "application/json",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Accepted bool           `json:"accepted"`
		Result   map[string]any `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Accepted || payload.Result["records_written"] != float64(2) || payload.Result["delivery_id"] != "d_1" {
		t.Fatalf("unexpected response payload: %+v", payload)
	}
	if ingestor.count() != 1 {
		t.Fatalf("expected one ingest call, got %d", ingestor.count())
	}
}

func TestHandler_RendersErrorEnvelope(t *testing.T) {
	ingestor := &recordingIngestor{}
	server := newTestServer(t, ingestor, 0)

	body := []byte(`[{"id":"a"}]`)
	resp := postDelivery(t, server, "brightdata", body, map[string]string{
		webhooks.BrightDataSignatureHeader: "bad",
		"X-Delivery-Id":                    "d_bad",
		"X-Request-Id":                     "req-7",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	envelope := decodeEnvelope(t, resp)
	if envelope.Error.TextCode != core.ErrorAuthenticationFailed {
		t.Fatalf("expected %q, got %q", core.ErrorAuthenticationFailed, envelope.Error.TextCode)
	}
	if envelope.Error.RequestID != "req-7" {
		t.Fatalf("expected request id to be echoed, got %q", envelope.Error.RequestID)
	}
	if ingestor.count() != 0 {
		t.Fatalf("expected nothing ingested for a rejected signature")
	}
}

func TestHandler_MapsStatusCodes(t *testing.T) {
	ingestor := &recordingIngestor{}
	server := newTestServer(t, ingestor, 16)

	malformed := []byte(`[1,`)
	resp := postDelivery(t, server, "brightdata", malformed, map[string]string{
		webhooks.BrightDataSignatureHeader: "sha256=" + sign(malformed),
		"X-Delivery-Id":                    "d_parse",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed payload, got %d", resp.StatusCode)
	}

	large := []byte(`[{"id":"` + strings.Repeat("x", 64) + `"}]`)
	resp = postDelivery(t, server, "brightdata", large, map[string]string{
		webhooks.BrightDataSignatureHeader: "sha256=" + sign(large),
		"X-Delivery-Id":                    "d_large",
	})
	envelope := decodeEnvelope(t, resp)
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge || envelope.Error.TextCode != core.ErrorPayloadTooLarge {
		t.Fatalf("expected 413 payload too large, got %d %q", resp.StatusCode, envelope.Error.TextCode)
	}

	resp = postDelivery(t, server, "unknown", []byte(`[]`), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown provider, got %d", resp.StatusCode)
	}

	ingestor.setErr(core.NewTransientStoreError(errors.New("dial tcp: connection refused")))
	ok := []byte(`[{"id":"a"}]`)
	resp = postDelivery(t, server, "brightdata", ok, map[string]string{
		webhooks.BrightDataSignatureHeader: "sha256=" + sign(ok),
		"X-Delivery-Id":                    "d_retry",
	})
	envelope = decodeEnvelope(t, resp)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable || envelope.Error.TextCode != core.ErrorStoreUnavailable {
		t.Fatalf("expected retryable 503, got %d %q", resp.StatusCode, envelope.Error.TextCode)
	}
	if strings.Contains(envelope.Error.Source, "connection refused") {
		t.Fatalf("store details must not leak into the response: %q", envelope.Error.Source)
	}
}

func TestHandler_Healthz(t *testing.T) {
	var down atomic.Bool
	dispatcher := NewDispatcher(0, 0)
	handler := NewHandler(dispatcher, 0, func(context.Context) error {
		if down.Load() {
			return errors.New("database is locked")
		}
		return nil
	}, nil)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy 200, got %d", resp.StatusCode)
	}

	down.Store(true)
	resp, err = http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/webhooks/brightdata")
	if err != nil {
		t.Fatalf("get webhook route: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET on the webhook route, got %d", resp.StatusCode)
	}
}

func TestFlattenHeaders_CanonicalizesKeys(t *testing.T) {
	header := http.Header{}
	header.Add("x-delivery-id", "d_1")
	header.Add("x-delivery-id", "d_2")
	flat := flattenHeaders(header)
	if flat["X-Delivery-Id"] != "d_1" {
		t.Fatalf("expected first canonical value, got %#v", flat)
	}
}

type errorEnvelope struct {
	Error struct {
		TextCode  string `json:"text_code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
		Source    string `json:"source"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) errorEnvelope {
	t.Helper()
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope
}

func newTestServer(t *testing.T, ingestor core.Ingestor, maxBody int64) *httptest.Server {
	t.Helper()
	dispatcher := NewDispatcher(0, 0)
	processor := webhooks.NewProcessorFromTemplate(webhooks.NewBrightDataTemplate(httpTestSecret), ingestor)
	if err := dispatcher.Register(webhooks.BrightDataProviderID, processor); err != nil {
		t.Fatalf("register processor: %v", err)
	}
	server := httptest.NewServer(NewHandler(dispatcher, maxBody, nil, nil))
	t.Cleanup(server.Close)
	return server
}

func postDelivery(t *testing.T, server *httptest.Server, provider string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/webhooks/"+provider, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("post delivery: %v", err)
	}
	return resp
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(httpTestSecret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type recordingIngestor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *recordingIngestor) Ingest(_ context.Context, delivery core.Delivery, records []core.ParsedRecord) (core.IngestOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return core.IngestOutcome{}, r.err
	}
	r.calls++
	return core.IngestOutcome{
		DeliveryRef: "ref_" + delivery.DeliveryID,
		ProviderID:  delivery.ProviderID,
		DeliveryID:  delivery.DeliveryID,
		Total:       len(records),
		Written:     len(records),
	}, nil
}

func (r *recordingIngestor) RecordFailure(context.Context, core.Delivery, error) error {
	return nil
}

func (r *recordingIngestor) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *recordingIngestor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
