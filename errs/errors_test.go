package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"nil", nil, "ok", http.StatusInternalServerError},
		{"malformed", fmt.Errorf("%w: %q", ErrMalformedIdentifier, "abc"), "malformed_identifier", http.StatusBadRequest},
		{"no match", ErrNoMatchFound, "no_match", http.StatusNotFound},
		{"unavailable wrapped twice", fmt.Errorf("search: %w", fmt.Errorf("%w: timeout", ErrServiceUnavailable)), "service_unavailable", http.StatusServiceUnavailable},
		{"unsupported", ErrUnsupportedPublisher, "unsupported_publisher", http.StatusUnprocessableEntity},
		{"scraper", ErrScraperUnavailable, "scraper_unavailable", http.StatusUnprocessableEntity},
		{"extraction", ErrExtraction, "extraction_failed", http.StatusBadGateway},
		{"duplicate", ErrDuplicateRecord, "duplicate_record", http.StatusConflict},
		{"foreign", errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
			if tt.err == nil {
				return
			}
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("%w: status 503", ErrServiceUnavailable)) {
		t.Error("service unavailable should be retryable")
	}
	for _, err := range []error{ErrNoMatchFound, ErrExtraction, ErrUnsupportedPublisher, ErrMalformedIdentifier} {
		if Retryable(err) {
			t.Errorf("%v should not be retryable", err)
		}
	}
}

func TestTerminalKind(t *testing.T) {
	tests := map[string]bool{
		"no_match":              true,
		"unsupported_publisher": true,
		"scraper_unavailable":   true,
		"extraction_failed":     true,
		"malformed_identifier":  true,
		"service_unavailable":   false,
		"duplicate_record":      false,
		"internal":              false,
		"":                      false,
	}
	for kind, want := range tests {
		if got := TerminalKind(kind); got != want {
			t.Errorf("TerminalKind(%q) = %v, want %v", kind, got, want)
		}
	}
}
