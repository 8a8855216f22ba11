package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorAuthenticationFailed = "INGEST_AUTHENTICATION_FAILED"
	ErrorPayloadInvalid       = "INGEST_PAYLOAD_INVALID"
	ErrorPayloadUnsupported   = "INGEST_PAYLOAD_UNSUPPORTED"
	ErrorPayloadTooLarge      = "INGEST_PAYLOAD_TOO_LARGE"
	ErrorParseFailed          = "INGEST_PARSE_FAILED"
	ErrorLinkUnresolved       = "INGEST_LINK_UNRESOLVED"
	ErrorStoreUnavailable     = "INGEST_STORE_UNAVAILABLE"
	ErrorRateLimited          = "INGEST_RATE_LIMITED"
	ErrorBadInput             = "INGEST_BAD_INPUT"
	ErrorNotFound             = "INGEST_NOT_FOUND"
	ErrorConflict             = "INGEST_CONFLICT"
	ErrorInternal             = "INGEST_INTERNAL_ERROR"
)

var (
	ErrJobNotFound        = errors.New("core: job not found")
	ErrDeliveryNotFound   = errors.New("core: delivery not found")
	ErrQuarantineNotFound = errors.New("core: quarantined record not found")

	errServiceNotConfigured = errors.New("core: service is not configured")
)

// NewAuthenticationError rejects a delivery whose signature does not verify.
func NewAuthenticationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorAuthenticationFailed)
}

func NewPayloadError(message string, cause error) *goerrors.Error {
	return wrapOrNew(cause, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorPayloadInvalid)
}

func NewUnsupportedEncodingError(encoding string) *goerrors.Error {
	return goerrors.New("unsupported content encoding", goerrors.CategoryBadInput).
		WithCode(http.StatusUnsupportedMediaType).
		WithTextCode(ErrorPayloadUnsupported).
		WithMetadata(map[string]any{"content_encoding": encoding})
}

func NewPayloadTooLargeError(limit int64) *goerrors.Error {
	return goerrors.New("payload exceeds the configured size limit", goerrors.CategoryBadInput).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode(ErrorPayloadTooLarge).
		WithMetadata(map[string]any{"limit_bytes": limit})
}

func NewParseError(message string, cause error) *goerrors.Error {
	return wrapOrNew(cause, goerrors.CategoryValidation, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorParseFailed)
}

// NewLinkResolutionError marks a record that cannot be tied to a job. It
// quarantines the record; it never fails the delivery.
func NewLinkResolutionError(message string, correlationID string) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ErrorLinkUnresolved)
	if correlationID = strings.TrimSpace(correlationID); correlationID != "" {
		err = err.WithMetadata(map[string]any{"correlation_id": correlationID})
	}
	return err
}

// NewTransientStoreError marks a store failure the provider should retry.
func NewTransientStoreError(cause error) *goerrors.Error {
	return wrapOrNew(cause, goerrors.CategoryExternal, "store unavailable").
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ErrorStoreUnavailable).
		WithMetadata(map[string]any{"retryable": true})
}

func NewRateLimitedError() *goerrors.Error {
	return goerrors.New("too many deliveries", goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ErrorRateLimited)
}

func NewBadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func NewConflictError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorConflict)
}

func IsAuthenticationError(err error) bool {
	return hasTextCode(err, ErrorAuthenticationFailed)
}

func IsPayloadError(err error) bool {
	return hasTextCode(err, ErrorPayloadInvalid) ||
		hasTextCode(err, ErrorPayloadUnsupported) ||
		hasTextCode(err, ErrorPayloadTooLarge)
}

func IsParseError(err error) bool {
	return hasTextCode(err, ErrorParseFailed)
}

func IsLinkResolutionError(err error) bool {
	return hasTextCode(err, ErrorLinkUnresolved)
}

func IsTransientStoreError(err error) bool {
	return hasTextCode(err, ErrorStoreUnavailable)
}

func hasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

func wrapOrNew(cause error, category goerrors.Category, message string) *goerrors.Error {
	if cause == nil {
		return goerrors.New(message, category)
	}
	var rich *goerrors.Error
	if goerrors.As(cause, &rich) {
		// Wrap would keep the source category; build a fresh envelope instead.
		return &goerrors.Error{
			Category:  category,
			Message:   message + ": " + rich.Message,
			Source:    cause,
			Timestamp: rich.Timestamp,
			Location:  rich.Location,
			Severity:  goerrors.SeverityError,
		}
	}
	return goerrors.Wrap(cause, category, message)
}

// MapError normalizes any error into the ingestion error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}

	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrDeliveryNotFound), errors.Is(err, ErrQuarantineNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, "resource not found").
			WithTextCode(ErrorNotFound))
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransientStoreError(err)
	case errors.Is(err, context.Canceled):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryOperation, "request canceled").
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(ErrorStoreUnavailable))
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newMappedError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newMappedError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newMappedError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorParseFailed
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthenticationFailed
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorStoreUnavailable
	default:
		return ErrorInternal
	}
}

// HTTPStatus maps an error category onto the response contract: client
// faults are 4xx and never retried, store faults are 503 so the provider
// redelivers.
func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
