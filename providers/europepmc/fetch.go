package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ref-resolver/config"
	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
	"ref-resolver/providers"
)

// Fetcher implementiert das Provider-Interface für Europe PMC.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	Client  *http.Client
	limiter *rate.Limiter
}

var _ providers.Provider = (*Fetcher)(nil)

// NewFetcher erstellt einen neuen Europe PMC Fetcher.
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
	return "europepmc"
}

// Search führt die Suche auf Europe PMC aus. Europe PMC liefert keinen Score; er wird
// aus dem Rang abgeleitet, damit die Reihenfolge des Dienstes erhalten bleibt.
func (f *Fetcher) Search(ctx context.Context, citation string) ([]models.Candidate, error) {
	citation = strings.TrimSpace(citation)
	if citation == "" {
		return nil, fmt.Errorf("%w: empty citation", errs.ErrMalformedIdentifier)
	}
	log := f.Logger.With(zap.String("provider", f.Name()))
	log.Info("Starte Suche auf Europe PMC.")

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", errs.ErrServiceUnavailable, err)
	}

	searchURL := fmt.Sprintf("%s/search?query=%s&format=json&resultType=lite&pageSize=25",
		f.Config.EuropePMCBaseURL, url.QueryEscape(citation))
	log.Debug("Rufe Europe PMC API auf", zap.String("url", searchURL))

	page, err := providers.Fetch(ctx, f.Client, searchURL, "application/json")
	if err != nil {
		return nil, err
	}

	var searchResponse SearchResponse
	if err := json.Unmarshal(page.Body, &searchResponse); err != nil {
		return nil, fmt.Errorf("%w: undecodable search response: %v", errs.ErrNoMatchFound, err)
	}

	results := searchResponse.ResultList.Result
	var candidates []models.Candidate
	for i, article := range results {
		doi, err := identifier.NormalizeDOI(article.DOI)
		if err != nil {
			continue
		}
		candidates = append(candidates, models.Candidate{
			DOI:   doi,
			Title: article.Title,
			Score: float64(len(results) - i),
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q", errs.ErrNoMatchFound, citation)
	}

	log.Info("Suche auf Europe PMC abgeschlossen", zap.Int("candidates", len(candidates)))
	return candidates, nil
}
