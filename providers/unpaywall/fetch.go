package unpaywall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"ref-resolver/config"
	"ref-resolver/errs"
	"ref-resolver/providers"
)

// Response repräsentiert die JSON-Antwort der Unpaywall-API.
type Response struct {
	IsOA           bool `json:"is_oa"`
	BestOALocation struct {
		URLForPDF string `json:"url_for_pdf"`
	} `json:"best_oa_location"`
}

// Fetcher kapselt die Logik für Unpaywall.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Client *http.Client
}

var _ providers.PDFLinker = (*Fetcher)(nil)

// NewFetcher erstellt einen neuen Unpaywall-Fetcher.
func NewFetcher(cfg *config.Config, client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Client: client, Logger: logger}
}

// GetPDFLink holt einen freien PDF-Link via Unpaywall anhand der DOI.
// Eine unbekannte DOI (404) ist kein Fehler, sondern liefert keinen Link.
func (f *Fetcher) GetPDFLink(ctx context.Context, doi string) (string, error) {
	if f.Config.UnpaywallEmail == "" {
		return "", fmt.Errorf("unpaywall email ist nicht konfiguriert")
	}

	reqURL := fmt.Sprintf("%s/%s?email=%s", f.Config.UnpaywallBaseURL, doi, url.QueryEscape(f.Config.UnpaywallEmail))
	log := f.Logger.With(zap.String("doi", doi))
	log.Debug("Rufe Unpaywall API auf.")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: unpaywall: %v", errs.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.Debug("DOI bei Unpaywall unbekannt.")
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: unpaywall request failed with status: %d", errs.ErrServiceUnavailable, resp.StatusCode)
	}

	var ur Response
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", err
	}

	if ur.BestOALocation.URLForPDF != "" {
		log.Info("PDF-Link über Unpaywall gefunden.")
		return ur.BestOALocation.URLForPDF, nil
	}

	log.Debug("Kein PDF-Link in Unpaywall-Antwort gefunden.")
	return "", nil
}
