// Package crossref implementiert die Zitations-Suche gegen search.crossref.org.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ref-resolver/config"
	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
	"ref-resolver/providers"
)

// Item ist ein Treffer der CrossRef-Metadatensuche. doi kommt häufig als
// "http://dx.doi.org/..." zurück.
type Item struct {
	DOI             string  `json:"doi"`
	Score           float64 `json:"score"`
	NormalizedScore float64 `json:"normalizedScore"`
	Title           string  `json:"title"`
	FullCitation    string  `json:"fullCitation"`
	Year            string  `json:"year"`
}

// Fetcher implementiert das Provider-Interface für CrossRef.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	Client  *http.Client
	limiter *rate.Limiter
}

var _ providers.Provider = (*Fetcher)(nil)

// NewFetcher erstellt einen neuen CrossRef Fetcher. Ausgehende Anfragen werden
// auf SEARCH_RATE_LIMIT pro Sekunde begrenzt.
func NewFetcher(cfg *config.Config, client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		Client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.SearchRateLimit), 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "crossref"
}

// Search führt die Suche auf CrossRef aus.
func (f *Fetcher) Search(ctx context.Context, citation string) ([]models.Candidate, error) {
	citation = strings.TrimSpace(citation)
	if citation == "" {
		return nil, fmt.Errorf("%w: empty citation", errs.ErrMalformedIdentifier)
	}
	log := f.Logger.With(zap.String("provider", f.Name()))

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", errs.ErrServiceUnavailable, err)
	}

	params := url.Values{}
	params.Set("q", citation)
	if f.Config.CrossrefMailto != "" {
		params.Set("mailto", f.Config.CrossrefMailto)
	}
	searchURL := f.Config.CrossrefSearchURL + "?" + params.Encode()
	log.Debug("Rufe CrossRef-Suche auf", zap.String("url", searchURL))

	page, err := providers.Fetch(ctx, f.Client, searchURL, "application/json")
	if err != nil {
		log.Warn("CrossRef-Suche fehlgeschlagen", zap.Error(err))
		return nil, err
	}

	var items []Item
	if err := json.Unmarshal(page.Body, &items); err != nil {
		return nil, fmt.Errorf("%w: undecodable search response: %v", errs.ErrNoMatchFound, err)
	}

	candidates := Rank(items)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q", errs.ErrNoMatchFound, citation)
	}
	log.Info("CrossRef-Suche abgeschlossen", zap.Int("candidates", len(candidates)), zap.String("top_doi", candidates[0].DOI))
	return candidates, nil
}

// Rank normalisiert die DOIs der Treffer, verwirft Treffer ohne gültige DOI und sortiert
// stabil nach Score absteigend (bei Gleichstand bleibt die Reihenfolge des Dienstes).
func Rank(items []Item) []models.Candidate {
	out := make([]models.Candidate, 0, len(items))
	for _, it := range items {
		doi, err := identifier.NormalizeDOI(it.DOI)
		if err != nil {
			continue
		}
		out = append(out, models.Candidate{DOI: doi, Title: it.Title, Score: it.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
