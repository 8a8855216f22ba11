package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	WebhookRoute = "POST /webhooks/{provider}"
	HealthRoute  = "GET /healthz"

	requestIDHeader = "X-Request-Id"
)

// HealthCheck reports whether the service can accept deliveries.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Dispatcher   *Dispatcher
	Health       HealthCheck
	Logger       core.Logger
	MaxBodyBytes int64

	once sync.Once
	mux  *http.ServeMux
}

func NewHandler(dispatcher *Dispatcher, maxBodyBytes int64, health HealthCheck, logger core.Logger) *Handler {
	h := &Handler{
		Dispatcher:   dispatcher,
		Health:       health,
		Logger:       logger,
		MaxBodyBytes: maxBodyBytes,
	}
	h.mux = h.routes()
	return h
}

func (h *Handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(WebhookRoute, h.serveWebhook)
	mux.HandleFunc(HealthRoute, h.serveHealth)
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		if h.mux == nil {
			h.mux = h.routes()
		}
	})
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) serveWebhook(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()
	providerID := r.PathValue("provider")
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))

	body, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, ctx, requestID, 0, err)
		return
	}

	req := core.InboundRequest{
		ProviderID: providerID,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
		},
	}
	if requestID != "" {
		req.Metadata["request_id"] = requestID
	}

	result, err := h.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		h.writeError(w, ctx, requestID, result.StatusCode, err)
		h.logger(ctx).Warn("webhook delivery rejected",
			"provider_id", providerID,
			"status", statusOf(result.StatusCode, err),
			"error", err.Error(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return
	}

	status := result.StatusCode
	if status <= 0 {
		status = http.StatusOK
	}
	h.writeJSON(w, ctx, status, map[string]any{
		"accepted": result.Accepted,
		"result":   result.Metadata,
	})
	h.logger(ctx).Info("webhook delivery accepted",
		"provider_id", providerID,
		"status", status,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Health != nil {
		if err := h.Health(ctx); err != nil {
			h.writeError(w, ctx, "", http.StatusServiceUnavailable, core.NewTransientStoreError(err))
			return
		}
	}
	h.writeJSON(w, ctx, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.NewPayloadTooLargeError(limit)
		}
		return nil, core.NewPayloadError("request body could not be read", err)
	}
	return body, nil
}

func (h *Handler) writeError(w http.ResponseWriter, ctx context.Context, requestID string, status int, err error) {
	mapped := core.MapError(err)
	if mapped == nil {
		mapped = goerrors.New("unexpected error", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ErrorInternal)
	}
	rendered := mapped.Clone()
	if requestID != "" {
		rendered = rendered.WithRequestID(requestID)
	}
	status = statusOf(status, rendered)
	rendered.Code = status
	rendered.Location = nil
	if status >= http.StatusInternalServerError {
		// Store and driver messages stay in the logs.
		rendered.Source = nil
	}
	h.writeJSON(w, ctx, status, rendered.ToErrorResponse(false, nil))
}

func (h *Handler) writeJSON(w http.ResponseWriter, ctx context.Context, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger(ctx).Error("write response failed", "error", err.Error())
	}
}

func (h *Handler) logger(ctx context.Context) core.Logger {
	return glog.Ensure(h.Logger).WithContext(ctx)
}

func statusOf(status int, err error) int {
	if status > 0 {
		return status
	}
	if mapped := core.MapError(err); mapped != nil && mapped.Code > 0 {
		return mapped.Code
	}
	return http.StatusInternalServerError
}

// flattenHeaders keeps the first value of each header under its canonical
// name.
func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[http.CanonicalHeaderKey(key)] = values[0]
	}
	return out
}
