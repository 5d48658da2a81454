package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthenticated, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeUnauthorized, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeInvalidState, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeConcurrentModification, status: http.StatusConflict, publicMsg: "resource was modified concurrently", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestDomainCodesResolveToKind(t *testing.T) {
	tests := map[Code]Code{
		CodeOrderNotFound:          CodeNotFound,
		CodePaymentNotFound:        CodeNotFound,
		CodeAlreadyPaid:            CodeInvalidState,
		CodeOrderNotPayable:        CodeInvalidState,
		CodeAmountExceedsBalance:   CodeValidation,
		CodeDuplicateBankReference: CodeValidation,
		CodeDisputeWindowExpired:   CodeExpired,
		CodeInvalidState:           CodeInvalidState,
	}
	for code, kind := range tests {
		if got := KindOf(code); got != kind {
			t.Fatalf("code %s expected kind %s got %s", code, kind, got)
		}
	}
	if MetadataFor(CodeOrderNotFound).HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected ORDER_NOT_FOUND to map to 404")
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}

	formatted := Newf(CodeInvalidState, "Cannot transition from %s to %s", "delivered", "shipped")
	if formatted.Message() != "Cannot transition from delivered to shipped" {
		t.Fatalf("unexpected message %q", formatted.Message())
	}
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeAmountExceedsBalance, "too much"))
	if got := As(err); got == nil || got.Code() != CodeAmountExceedsBalance {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected IsCode to match kind")
	}
	if !IsCode(err, CodeAmountExceedsBalance) {
		t.Fatalf("expected IsCode to match exact code")
	}
	if IsCode(stdErrors.New("plain"), CodeValidation) {
		t.Fatalf("plain errors carry no code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
