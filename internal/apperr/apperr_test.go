package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Validation("bad input"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"conflict", Conflict("already exists"), http.StatusConflict},
		{"upstream", Upstream("fetch failed", errors.New("timeout")), http.StatusBadGateway},
		{"timeout", Timeout("deadline exceeded"), http.StatusInternalServerError},
		{"internal", Internal("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	withCause := Upstream("dial upstream", cause)
	if withCause.Error() != "dial upstream: connection refused" {
		t.Errorf("Error() = %q", withCause.Error())
	}

	withoutCause := NotFound("dataset missing")
	if withoutCause.Error() != "dataset missing" {
		t.Errorf("Error() = %q", withoutCause.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal("wrapping", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should see through Unwrap() to the cause")
	}
}

func TestAs_DirectMatch(t *testing.T) {
	err := NotFound("job not found")

	ae, ok := As(err)
	if !ok {
		t.Fatal("As() should match a direct *Error")
	}
	if ae.Code != CodeNotFound {
		t.Errorf("Code = %q, want %q", ae.Code, CodeNotFound)
	}
}

func TestAs_WrappedMatch(t *testing.T) {
	inner := Conflict("dataset locked")
	wrapped := fmt.Errorf("creating job: %w", inner)

	ae, ok := As(wrapped)
	if !ok {
		t.Fatal("As() should find the wrapped *Error")
	}
	if ae.Code != CodeConflict {
		t.Errorf("Code = %q, want %q", ae.Code, CodeConflict)
	}
}

func TestAs_NoMatch(t *testing.T) {
	_, ok := As(errors.New("plain error"))
	if ok {
		t.Error("As() should not match a plain error")
	}
}
