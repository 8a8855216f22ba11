package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	DefaultMaxBodyBytes int64 = 32 << 20
	payloadPreviewBytes       = 2048
)

// Processor receives one authenticated delivery: verify, extract the delivery
// ID, decode, parse, then hand the records to the ingestor. It writes nothing
// itself; failed decodes and parses are recorded through the ingestor.
type Processor struct {
	Verifier   Verifier
	ExtractID  DeliveryIDExtractor
	Decoder    *Decoder
	Parser     *Parser
	Ingestor   core.Ingestor
	Deliveries core.DeliveryLookup
	Logger     core.Logger

	MaxBodyBytes int64
	Now          func() time.Time
}

func NewProcessor(verifier Verifier, ingestor core.Ingestor) *Processor {
	return &Processor{
		Verifier:     verifier,
		ExtractID:    DefaultDeliveryIDExtractor,
		Decoder:      NewDecoder(DefaultMaxDecodedBytes),
		Parser:       NewParser(DefaultMaxRecords),
		Ingestor:     ingestor,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewProcessorFromTemplate uses the template's verifier and extractor.
func NewProcessorFromTemplate(template ProviderWebhookTemplate, ingestor core.Ingestor) *Processor {
	processor := NewProcessor(template.Verifier, ingestor)
	if template.Extractor != nil {
		processor.ExtractID = template.Extractor
	}
	return processor
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Ingestor == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires an ingestor")
	}

	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		return rejected(providerID, http.StatusBadRequest), core.NewPayloadError("provider id is required", nil)
	}
	req.ProviderID = providerID

	if limit := p.maxBodyBytes(); int64(len(req.Body)) > limit {
		return rejected(providerID, http.StatusRequestEntityTooLarge), core.NewPayloadTooLargeError(limit)
	}

	if p.Verifier == nil {
		return rejected(providerID, http.StatusUnauthorized), core.NewAuthenticationError("no verifier configured")
	}
	if err := p.Verifier.Verify(ctx, req); err != nil {
		if !core.IsAuthenticationError(err) {
			err = core.NewAuthenticationError(err.Error())
		}
		p.logger(ctx).Warn("webhook rejected", "provider_id", providerID, "reason", err.Error())
		return rejected(providerID, http.StatusUnauthorized), err
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	deliveryID, err := extractor(req)
	if err != nil {
		return rejected(providerID, http.StatusBadRequest), err
	}

	delivery := core.Delivery{
		ProviderID:      providerID,
		DeliveryID:      deliveryID,
		Checksum:        checksum(req.Body),
		ContentType:     headerValue(req.Headers, "Content-Type"),
		ContentEncoding: headerValue(req.Headers, "Content-Encoding"),
		ReceivedAt:      p.now(),
	}

	if existing, ok := p.processedDelivery(ctx, providerID, deliveryID); ok {
		return duplicateResult(existing), nil
	}

	decoded, err := p.decoder().Decode(delivery.ContentEncoding, req.Body)
	if err != nil {
		delivery.Payload = req.Body
		p.recordFailure(ctx, delivery, err)
		return rejected(providerID, core.MapError(err).Code), err
	}

	parsed, err := p.parser().Parse(delivery.ContentType, decoded)
	if err != nil {
		p.logger(ctx).Error("webhook payload could not be parsed",
			"provider_id", providerID,
			"delivery_id", deliveryID,
			"error", err.Error(),
			"payload", core.PayloadPreview(decoded, payloadPreviewBytes),
		)
		delivery.Payload = decoded
		p.recordFailure(ctx, delivery, err)
		return rejected(providerID, http.StatusBadRequest), err
	}

	outcome, err := p.Ingestor.Ingest(ctx, delivery, parsed.Records)
	if err != nil {
		status := http.StatusInternalServerError
		if mapped := core.MapError(err); mapped != nil && mapped.Code > 0 {
			status = mapped.Code
		}
		return core.InboundResult{
			Accepted:   false,
			StatusCode: status,
			Metadata: map[string]any{
				"provider_id": providerID,
				"delivery_id": deliveryID,
				"retryable":   core.IsTransientStoreError(err),
			},
		}, err
	}

	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"provider_id":         providerID,
			"delivery_id":         deliveryID,
			"delivery_ref":        outcome.DeliveryRef,
			"format":              parsed.Format,
			"deduped":             outcome.Duplicate,
			"records_total":       outcome.Total,
			"records_written":     outcome.Written,
			"records_quarantined": outcome.Quarantined,
			"job_ids":             append([]string(nil), outcome.JobIDs...),
		},
	}, nil
}

// processedDelivery skips decode and parse for a redelivery already known to
// be processed. The claim inside the ingest transaction stays authoritative;
// lookup failures fall through to it.
func (p *Processor) processedDelivery(ctx context.Context, providerID, deliveryID string) (core.Delivery, bool) {
	if p.Deliveries == nil {
		return core.Delivery{}, false
	}
	existing, err := p.Deliveries.GetDelivery(ctx, providerID, deliveryID)
	if err != nil {
		if !errors.Is(err, core.ErrDeliveryNotFound) {
			p.logger(ctx).Debug("delivery lookup failed", "provider_id", providerID, "delivery_id", deliveryID, "error", err.Error())
		}
		return core.Delivery{}, false
	}
	return existing, existing.Status == core.DeliveryStatusProcessed
}

func (p *Processor) recordFailure(ctx context.Context, delivery core.Delivery, cause error) {
	if err := p.Ingestor.RecordFailure(ctx, delivery, cause); err != nil {
		p.logger(ctx).Error("record failed delivery",
			"provider_id", delivery.ProviderID,
			"delivery_id", delivery.DeliveryID,
			"error", err.Error(),
		)
	}
}

func (p *Processor) decoder() *Decoder {
	if p.Decoder != nil {
		return p.Decoder
	}
	return NewDecoder(DefaultMaxDecodedBytes)
}

func (p *Processor) parser() *Parser {
	if p.Parser != nil {
		return p.Parser
	}
	return NewParser(DefaultMaxRecords)
}

func (p *Processor) maxBodyBytes() int64 {
	if p != nil && p.MaxBodyBytes > 0 {
		return p.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) logger(ctx context.Context) core.Logger {
	logger := glog.Ensure(p.Logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	return logger
}

func duplicateResult(existing core.Delivery) core.InboundResult {
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"provider_id":  existing.ProviderID,
			"delivery_id":  existing.DeliveryID,
			"delivery_ref": existing.ID,
			"status":       string(existing.Status),
			"deduped":      true,
		},
	}
}

func rejected(providerID string, status int) core.InboundResult {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	return core.InboundResult{
		Accepted:   false,
		StatusCode: status,
		Metadata: map[string]any{
			"provider_id": providerID,
			"rejected":    true,
		},
	}
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Handle lets a Processor serve as a core.WebhookHandler.
func (p *Processor) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	return p.Process(ctx, req)
}

var _ core.WebhookHandler = (*Processor)(nil)
