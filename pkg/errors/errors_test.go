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
		{code: CodeGatewayTimeout, status: http.StatusGatewayTimeout, publicMsg: "payment gateway timed out", retryable: true, detailsOK: true},
		{code: CodeGatewayRejected, status: http.StatusUnprocessableEntity, publicMsg: "payment was declined", detailsOK: true},
		{code: CodeStoreUnavailable, status: http.StatusServiceUnavailable, publicMsg: "order store unavailable", retryable: true, detailsOK: true},
		{code: CodeRefundFailed, status: http.StatusBadGateway, publicMsg: "refund could not be completed", retryable: true, detailsOK: true},
		{code: CodeInconsistent, status: http.StatusInternalServerError, publicMsg: "payment requires manual reconciliation", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
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

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeStoreUnavailable, cause, "persist order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
	if wrapped.Error() != "STORE_UNAVAILABLE: persist order" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}

	withNilCause := Wrap(CodeRefundFailed, nil, "refund declined")
	if withNilCause.Unwrap() != nil {
		t.Fatalf("expected nil cause")
	}
}

func TestAsAndRetryable(t *testing.T) {
	wrapped := Wrap(CodeGatewayTimeout, stdErrors.New("deadline"), "confirm intent")
	outer := stdErrors.Join(stdErrors.New("context"), wrapped)

	typed := As(outer)
	if typed == nil || typed.Code() != CodeGatewayTimeout {
		t.Fatalf("expected typed gateway timeout, got %v", typed)
	}
	if !IsRetryable(outer) {
		t.Fatalf("gateway timeouts should be retryable")
	}
	if IsRetryable(stdErrors.New("plain")) {
		t.Fatalf("plain errors are not retryable")
	}
}
