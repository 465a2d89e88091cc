package errors

import (
	stdErrors "errors"
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
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeGateway, status: http.StatusPaymentRequired, publicMsg: "card could not be processed", retryable: true},
		{code: CodeBackend, status: http.StatusBadGateway, publicMsg: "request failed", detailsOK: true},
		{code: CodeAuthExpired, status: http.StatusUnauthorized, publicMsg: "session expired, please login again"},
		{code: CodeTimeout, status: http.StatusGatewayTimeout, publicMsg: "request timed out", retryable: true},
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
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsWalksWrappedCodes(t *testing.T) {
	inner := New(CodeAuthExpired, "token expired")
	outer := Wrap(CodeBackend, inner, "load cart")

	if !Is(outer, CodeBackend) {
		t.Fatalf("expected outer code to match")
	}
	if !Is(outer, CodeAuthExpired) {
		t.Fatalf("expected wrapped auth code to match")
	}
	if Is(outer, CodeGateway) {
		t.Fatalf("unexpected gateway match")
	}
	if Is(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("untyped errors carry no code")
	}
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("expected internal for untyped error, got %s", got)
	}
}

func TestRetryableAndUserMessage(t *testing.T) {
	decline := Wrap(CodeGateway, stdErrors.New("card_declined"), "Your card was declined.")
	if !Retryable(decline) {
		t.Fatal("expected gateway errors to be retryable")
	}
	if Retryable(New(CodeValidation, "bad")) || Retryable(nil) {
		t.Fatal("expected validation and nil to be final")
	}
	if got := UserMessage(decline); got != "Your card was declined." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := UserMessage(stdErrors.New("dial tcp: refused")); got != "internal server error" {
		t.Fatalf("expected generic message for untyped errors, got %q", got)
	}
}

func TestIsWalksNestedCodes(t *testing.T) {
	inner := New(CodeAuthExpired, "expired")
	outer := Wrap(CodeBackend, inner, "request failed")
	if !Is(outer, CodeAuthExpired) || !Is(outer, CodeBackend) {
		t.Fatal("expected both codes in the chain")
	}
	if Is(outer, CodeGateway) {
		t.Fatal("unexpected gateway code")
	}
	if CodeOf(outer) != CodeBackend {
		t.Fatalf("expected outermost code, got %s", CodeOf(outer))
	}
}
