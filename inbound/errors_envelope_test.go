package inbound

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

func TestErrorKinds_RenderEnvelope(t *testing.T) {
	cases := []struct {
		kind     errorKind
		category goerrors.Category
		status   int
		textCode string
	}{
		{kindBadInput, goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput},
		{kindNotFound, goerrors.CategoryNotFound, http.StatusNotFound, core.ErrorNotFound},
		{kindConflict, goerrors.CategoryConflict, http.StatusConflict, core.ErrorConflict},
		{kindInternal, goerrors.CategoryInternal, http.StatusInternalServerError, core.ErrorInternal},
	}
	for _, tc := range cases {
		err := tc.kind.new("inbound: failure", providerMeta("brightdata"))
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("expected go-errors envelope, got %T", err)
		}
		if rich.Category != tc.category || rich.Code != tc.status || rich.TextCode != tc.textCode {
			t.Fatalf("unexpected envelope for %s: %+v", tc.textCode, rich)
		}
		if rich.Metadata["provider_id"] != "brightdata" {
			t.Fatalf("expected provider metadata, got %#v", rich.Metadata)
		}
	}
}

func TestErrorKindWrap_KeepsSource(t *testing.T) {
	source := errors.New("socket closed")
	err := kindInternal.wrap(source, "inbound: handler execution failed", nil)
	if !errors.Is(err, source) {
		t.Fatalf("expected wrapped source to be reachable")
	}
	if fallback := kindInternal.wrap(nil, "no source", nil); fallback == nil || fallback.Error() == "" {
		t.Fatalf("expected an error without a source")
	}
}
