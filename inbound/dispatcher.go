package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	"golang.org/x/time/rate"
)

// Dispatcher routes deliveries to the handler registered for their provider.
// Each provider gets its own token bucket so one noisy provider cannot starve
// the others.
type Dispatcher struct {
	Limit rate.Limit
	Burst int

	mu       sync.RWMutex
	handlers map[string]core.WebhookHandler
	limiters map[string]*rate.Limiter
}

// NewDispatcher builds a dispatcher that admits perSecond deliveries per
// provider with the given burst. A non-positive rate disables limiting.
func NewDispatcher(perSecond float64, burst int) *Dispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{
		Limit:    limit,
		Burst:    burst,
		handlers: map[string]core.WebhookHandler{},
		limiters: map[string]*rate.Limiter{},
	}
}

func (d *Dispatcher) Register(providerID string, handler core.WebhookHandler) error {
	if d == nil {
		return kindInternal.new("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return kindBadInput.new("inbound: handler is nil", nil)
	}
	providerID = normalizeProvider(providerID)
	if providerID == "" {
		return kindBadInput.new("inbound: provider id is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[string]core.WebhookHandler{}
	}
	if _, exists := d.handlers[providerID]; exists {
		return kindConflict.new(
			fmt.Sprintf("inbound: handler already registered for provider %q", providerID),
			providerMeta(providerID),
		)
	}
	d.handlers[providerID] = handler
	return nil
}

func (d *Dispatcher) Providers() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for providerID := range d.handlers {
		out = append(out, providerID)
	}
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, kindInternal.new("inbound: dispatcher is nil", nil)
	}
	req.ProviderID = normalizeProvider(req.ProviderID)
	if req.ProviderID == "" {
		return core.InboundResult{}, kindBadInput.new("inbound: provider id is required", nil)
	}

	handler := d.handlerFor(req.ProviderID)
	if handler == nil {
		return core.InboundResult{}, kindNotFound.new(
			fmt.Sprintf("inbound: no handler registered for provider %q", req.ProviderID),
			providerMeta(req.ProviderID),
		)
	}

	if !d.limiterFor(req.ProviderID).Allow() {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusTooManyRequests,
			Metadata: map[string]any{
				"provider_id": req.ProviderID,
				"rejected":    true,
			},
		}, core.NewRateLimitedError().WithMetadata(providerMeta(req.ProviderID))
	}

	result, err := handler.Handle(ctx, req)
	if err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			err = kindInternal.wrap(err, "inbound: handler execution failed", providerMeta(req.ProviderID))
		}
		return result, err
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider_id"] = req.ProviderID
	return result, nil
}

func (d *Dispatcher) handlerFor(providerID string) core.WebhookHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[providerID]
}

func (d *Dispatcher) limiterFor(providerID string) *rate.Limiter {
	d.mu.RLock()
	limiter, ok := d.limiters[providerID]
	d.mu.RUnlock()
	if ok {
		return limiter
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiters == nil {
		d.limiters = map[string]*rate.Limiter{}
	}
	if limiter, ok := d.limiters[providerID]; ok {
		return limiter
	}
	limit := d.Limit
	if limit == 0 {
		limit = rate.Inf
	}
	burst := d.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter = rate.NewLimiter(limit, burst)
	d.limiters[providerID] = limiter
	return limiter
}

func normalizeProvider(providerID string) string {
	return strings.TrimSpace(strings.ToLower(providerID))
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}
