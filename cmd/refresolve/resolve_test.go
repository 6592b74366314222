package main

import (
	"errors"
	"fmt"
	"testing"

	"ref-resolver/errs"
	"ref-resolver/models"
)

func TestResolveRequest(t *testing.T) {
	tests := []struct {
		name               string
		doi, citation, url string
		want               models.ResolutionRequest
		wantErr            bool
	}{
		{name: "doi", doi: " 10.1002/biot.201400046 ", want: models.DOIRequest("10.1002/biot.201400046")},
		{name: "citation", citation: "Mali P. Cas9. 2013", want: models.CitationRequest("Mali P. Cas9. 2013")},
		{name: "url", url: "https://example.org/a", want: models.URLRequest("https://example.org/a")},
		{name: "none", wantErr: true},
		{name: "two", doi: "10.1002/x", url: "https://example.org/a", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveRequest(tc.doi, tc.citation, tc.url)
			if tc.wantErr {
				if !errors.Is(err, errs.ErrMalformedIdentifier) {
					t.Errorf("err = %v, want ErrMalformedIdentifier", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("resolveRequest() = %+v, %v; want %+v", got, err, tc.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{fmt.Errorf("%w: DB_HOST missing", errConfig), ExitConfigError},
		{fmt.Errorf("%w: x", errs.ErrMalformedIdentifier), ExitInputError},
		{fmt.Errorf("%w: crossref 503", errs.ErrServiceUnavailable), ExitUnavailable},
		{errs.ErrNoMatchFound, ExitNoMatch},
		{errs.ErrUnsupportedPublisher, ExitNoMatch},
		{errs.ErrScraperUnavailable, ExitNoMatch},
		{errs.ErrExtraction, ExitError},
		{errors.New("boom"), ExitError},
	}
	for _, tc := range tests {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
