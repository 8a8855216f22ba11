package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	BrightDataProviderID      = "brightdata"
	BrightDataSignatureHeader = "X-Brightdata-Signature"
	BrightDataTokenHeader     = "Authorization"
)

// BrightDataDeliveryIDHeaders are tried in order when the delivery carries no
// delivery_id metadata. X-Request-Id is not among them: proxies mint a fresh
// one per attempt, so retries would never deduplicate. Add it through
// webhook.delivery_id_headers when the provider sets it itself.
var BrightDataDeliveryIDHeaders = []string{
	"X-Delivery-Id",
	"X-Brightdata-Delivery-Id",
}

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Extractor  DeliveryIDExtractor
}

// HeaderHMACVerifier checks an HMAC-SHA256 of the raw request body, before
// any content decoding, against a signature header.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return core.NewAuthenticationError(fmt.Sprintf("%s signature header is required", strings.TrimSpace(v.Header)))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return core.NewAuthenticationError("signature secret is not configured")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return core.NewAuthenticationError("signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return core.NewAuthenticationError("signature is not correctly encoded")
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return core.NewAuthenticationError("signature verification failed")
	}
	return nil
}

// HeaderTokenVerifier compares a static shared token. A "Bearer " prefix on
// the header value is ignored.
type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return core.NewAuthenticationError("verification token is not configured")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if len(actual) > len("bearer ") && strings.EqualFold(actual[:len("bearer ")], "bearer ") {
		actual = strings.TrimSpace(actual[len("bearer "):])
	}
	if actual == "" {
		return core.NewAuthenticationError(fmt.Sprintf("%s verification header is required", strings.TrimSpace(v.Header)))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return core.NewAuthenticationError("verification token mismatch")
	}
	return nil
}

// DefaultDeliveryIDExtractor reads delivery_id from request metadata, then the
// BrightData delivery headers.
func DefaultDeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	return HeaderDeliveryIDExtractor(BrightDataDeliveryIDHeaders...)(req)
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req core.InboundRequest) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", errDeliveryIDRequired()
	}
}

func ChainDeliveryIDExtractors(extractors ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), extractors...)
	return func(req core.InboundRequest) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(req)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", errDeliveryIDRequired()
	}
}

func NewBrightDataTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: BrightDataProviderID,
		Verifier: HeaderHMACVerifier{
			Header:   BrightDataSignatureHeader,
			Prefix:   "sha256=",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: DefaultDeliveryIDExtractor,
	}
}

// NewBrightDataTokenTemplate authenticates with the static Authorization
// header BrightData can attach to webhook deliveries instead of a signature.
func NewBrightDataTokenTemplate(token string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: BrightDataProviderID,
		Verifier: HeaderTokenVerifier{
			Header: BrightDataTokenHeader,
			Token:  strings.TrimSpace(token),
		},
		Extractor: DefaultDeliveryIDExtractor,
	}
}

// TemplateFromConfig builds the template described by the webhook config.
// A configured secret selects signature verification; otherwise the token is
// used.
func TemplateFromConfig(cfg core.WebhookConfig) (ProviderWebhookTemplate, error) {
	var template ProviderWebhookTemplate
	switch {
	case strings.TrimSpace(cfg.Secret) != "":
		template = NewBrightDataTemplate(cfg.Secret)
		verifier := template.Verifier.(HeaderHMACVerifier)
		if header := strings.TrimSpace(cfg.SignatureHeader); header != "" {
			verifier.Header = header
		}
		if cfg.SignaturePrefix != "" {
			verifier.Prefix = strings.TrimSpace(cfg.SignaturePrefix)
		}
		if encoding := strings.TrimSpace(cfg.SignatureEncoding); encoding != "" {
			verifier.Encoding = encoding
		}
		template.Verifier = verifier
	case strings.TrimSpace(cfg.Token) != "":
		template = NewBrightDataTokenTemplate(cfg.Token)
	default:
		return ProviderWebhookTemplate{}, core.NewBadInputError("webhook secret or token is required")
	}
	if providerID := strings.TrimSpace(cfg.ProviderID); providerID != "" {
		template.ProviderID = providerID
	}
	if len(cfg.DeliveryIDHeaders) > 0 {
		template.Extractor = ChainDeliveryIDExtractors(
			metadataDeliveryIDExtractor,
			HeaderDeliveryIDExtractor(cfg.DeliveryIDHeaders...),
		)
	}
	return template, nil
}

func metadataDeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	return "", nil
}

func errDeliveryIDRequired() error {
	return core.NewPayloadError("delivery id is required for dedupe", nil)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
