package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestMalformedInputError(t *testing.T) {
	err := NewOutOfOrder(3, 100, 200)

	if !Is(err, ErrMalformedInput) {
		t.Fatal("out-of-order error should match ErrMalformedInput")
	}

	wrapped := fmt.Errorf("advance: %w", err)
	var mi *MalformedInputError
	if !As(wrapped, &mi) {
		t.Fatal("As should find MalformedInputError through wrapping")
	}
	if mi.Index != 3 || mi.Timestamp != 100 || mi.Previous != 200 {
		t.Errorf("unexpected fields: %+v", mi)
	}

	bad := NewBadRate(42, "abc")
	if bad.Index != -1 {
		t.Errorf("expected index -1, got %d", bad.Index)
	}
	if !IsValidation(bad) {
		t.Error("bad rate should be a validation error")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unknown kind", Wrap(ErrUnknownKind, "lookup"), http.StatusNotFound},
		{"unknown series", ErrUnknownSeries, http.StatusNotFound},
		{"malformed", NewOutOfOrder(0, 1, 2), http.StatusUnprocessableEntity},
		{"config", NewValidation("listen", "empty"), http.StatusBadRequest},
		{"unavailable", Unavailable(fmt.Errorf("dial tcp"), "redis"), http.StatusServiceUnavailable},
		{"timeout", Wrapf(ErrTimeout, "fetch %s", "gem_to_gold"), http.StatusServiceUnavailable},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Unavailable(cause, "postgres")

	if !Is(err, ErrSourceUnavailable) {
		t.Error("should match ErrSourceUnavailable")
	}
	if !Is(err, cause) {
		t.Error("should keep original cause")
	}
	if !IsRetriable(err) {
		t.Error("source failures are retriable")
	}
	if Unavailable(nil, "x") != nil {
		t.Error("Unavailable(nil) should be nil")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.AddField("listen", "cannot be empty")
	v.AddMissing("datasets")
	v.Add(nil)

	if len(v.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(v.Errors))
	}

	err := v.Err()
	if !Is(err, ErrInvalidConfig) {
		t.Error("should match ErrInvalidConfig")
	}
	if !Is(err, ErrMissingField) {
		t.Error("should match ErrMissingField")
	}
}
