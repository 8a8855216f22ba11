package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// errorKind fixes the category, HTTP status and text code the handler
// renders for a class of dispatch failure.
type errorKind struct {
	category goerrors.Category
	status   int
	textCode string
}

var (
	kindBadInput = errorKind{goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput}
	kindNotFound = errorKind{goerrors.CategoryNotFound, http.StatusNotFound, core.ErrorNotFound}
	kindConflict = errorKind{goerrors.CategoryConflict, http.StatusConflict, core.ErrorConflict}
	kindInternal = errorKind{goerrors.CategoryInternal, http.StatusInternalServerError, core.ErrorInternal}
)

func (k errorKind) new(message string, metadata map[string]any) error {
	return k.decorate(goerrors.New(message, k.category), metadata)
}

// wrap keeps source reachable through errors.Is. A nil source degrades to
// new.
func (k errorKind) wrap(source error, message string, metadata map[string]any) error {
	if source == nil {
		return k.new(message, metadata)
	}
	return k.decorate(goerrors.Wrap(source, k.category, message), metadata)
}

func (k errorKind) decorate(err *goerrors.Error, metadata map[string]any) error {
	err = err.WithCode(k.status).WithTextCode(k.textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func providerMeta(providerID string) map[string]any {
	return map[string]any{"provider_id": providerID}
}
