package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"ref-resolver/errs"
)

// UserAgent wird allen ausgehenden Anfragen mitgegeben; viele Verlage liefern Bots sonst nichts aus.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// maxBody begrenzt gelesene Antworten (Artikelseiten mit eingebetteten Daten können groß werden).
const maxBody = 16 << 20

// CustomTransport fügt jeder Anfrage einen User-Agent-Header hinzu.
type CustomTransport struct {
	Transport http.RoundTripper
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient erstellt den gemeinsamen Client für alle externen Aufrufe.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &CustomTransport{
			Transport: http.DefaultTransport,
		},
	}
}

// Fetch lädt eine Ressource. Transportfehler und Nicht-2xx-Antworten werden als
// errs.ErrServiceUnavailable klassifiziert.
func Fetch(ctx context.Context, client *http.Client, url, accept string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", errs.ErrServiceUnavailable, url, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", errs.ErrServiceUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: GET %s: status %d", errs.ErrServiceUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errs.ErrServiceUnavailable, url, err)
	}
	return &Page{
		URL:         resp.Request.URL.String(),
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
