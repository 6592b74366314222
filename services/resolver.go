package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
)

// Searcher findet zu einem Zitations-Freitext DOI-Kandidaten, bester zuerst.
type Searcher interface {
	Search(ctx context.Context, citation string) ([]models.Candidate, error)
}

// Publishers bildet DOIs und URLs auf Publisher-Profile und Artikel-URLs ab.
type Publishers interface {
	ResolvePublisher(urlOrPrefix string) (models.PublisherProfile, error)
	BuildArticleURL(ctx context.Context, doi string, profile models.PublisherProfile) (string, error)
	LandingURL(ctx context.Context, doi string) (string, error)
}

// Extractor liefert zu einer Artikel-URL den extrahierten Record.
type Extractor interface {
	Extract(ctx context.Context, articleURL string, profile models.PublisherProfile) (*models.PaperRecord, error)
}

// Cache ist der Record-Cache aus Sicht des Resolvers.
type Cache interface {
	Lookup(ctx context.Context, doi string) (*models.PaperRecord, error)
	LookupURL(ctx context.Context, rawURL string) (*models.PaperRecord, error)
	Store(ctx context.Context, rec *models.PaperRecord) (bool, error)
}

// Resolver führt eine Anfrage (Zitation, DOI oder URL) durch Cache, Suche, Dispatch
// und Persistenz. Fehler werden nicht wiederholt und behalten ihre errs-Klassifikation.
type Resolver struct {
	Searcher   Searcher
	Publishers Publishers
	Extractor  Extractor
	Cache      Cache
	Logger     *zap.Logger
	Metrics    *Metrics
}

// NewResolver erstellt den Resolver aus seinen Kollaborateuren.
func NewResolver(search Searcher, publishers Publishers, extractor Extractor, cache Cache, logger *zap.Logger, metrics *Metrics) *Resolver {
	return &Resolver{
		Searcher:   search,
		Publishers: publishers,
		Extractor:  extractor,
		Cache:      cache,
		Logger:     logger,
		Metrics:    metrics,
	}
}

// Resolve beantwortet eine Anfrage aus dem Cache oder löst sie auf und speichert das Ergebnis.
func (r *Resolver) Resolve(ctx context.Context, req models.ResolutionRequest) (*models.PaperRecord, error) {
	log := r.Logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("kind", string(req.Kind)),
	)
	log.Debug("state", zap.String("state", "START"), zap.String("value", req.Value))

	var (
		rec *models.PaperRecord
		hit bool
		err error
	)
	switch req.Kind {
	case models.KindCitation:
		rec, hit, err = r.resolveCitation(ctx, log, req.Value)
	case models.KindDOI:
		rec, hit, err = r.resolveDOI(ctx, log, req.Value)
	case models.KindURL:
		rec, hit, err = r.resolveURL(ctx, log, req.Value)
	default:
		err = fmt.Errorf("%w: unknown request kind %q", errs.ErrMalformedIdentifier, req.Kind)
	}

	switch {
	case err != nil:
		r.Metrics.observeResolution(req.Kind, errs.Kind(err))
		log.Info("state", zap.String("state", "ERROR"), zap.String("error_kind", errs.Kind(err)), zap.Error(err))
		return nil, err
	case hit:
		r.Metrics.observeResolution(req.Kind, "cache_hit")
	default:
		r.Metrics.observeResolution(req.Kind, "resolved")
	}
	log.Debug("state", zap.String("state", "DONE"), zap.String("doi", rec.DOI), zap.Bool("cache_hit", hit))
	return rec, nil
}

func (r *Resolver) resolveCitation(ctx context.Context, log *zap.Logger, citation string) (*models.PaperRecord, bool, error) {
	citation = strings.TrimSpace(citation)
	if citation == "" {
		return nil, false, fmt.Errorf("%w: empty citation", errs.ErrMalformedIdentifier)
	}
	candidates, err := r.Searcher.Search(ctx, citation)
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 0 {
		return nil, false, fmt.Errorf("%w: %q", errs.ErrNoMatchFound, citation)
	}
	top := candidates[0]
	log.Debug("Zitation zugeordnet", zap.String("doi", top.DOI), zap.Float64("score", top.Score))
	return r.resolveDOI(ctx, log, top.DOI)
}

func (r *Resolver) resolveDOI(ctx context.Context, log *zap.Logger, raw string) (*models.PaperRecord, bool, error) {
	doi, err := identifier.NormalizeDOI(raw)
	if err != nil {
		return nil, false, err
	}
	log = log.With(zap.String("doi", doi))

	if rec, err := r.cacheCheck(ctx, log, doi); err != nil || rec != nil {
		return rec, rec != nil, err
	}

	log.Debug("state", zap.String("state", "IDENTIFY"))
	profile, articleURL, err := r.identify(ctx, log, doi)
	if err != nil {
		return nil, false, err
	}
	rec, err := r.dispatchAndPersist(ctx, log, articleURL, profile, doi)
	return rec, false, err
}

func (r *Resolver) resolveURL(ctx context.Context, log *zap.Logger, raw string) (*models.PaperRecord, bool, error) {
	raw = strings.TrimSpace(raw)
	log = log.With(zap.String("url", raw))

	profile, err := r.Publishers.ResolvePublisher(raw)
	if err != nil {
		return nil, false, err
	}

	if doi, ok := identifier.DOIFromURL(raw); ok {
		log = log.With(zap.String("doi", doi))
		if rec, err := r.cacheCheck(ctx, log, doi); err != nil || rec != nil {
			return rec, rec != nil, err
		}
		articleURL := raw
		if profile.URLTemplate != "" && !profile.RedirectResolved {
			if articleURL, err = r.Publishers.BuildArticleURL(ctx, doi, profile); err != nil {
				return nil, false, err
			}
		}
		rec, err := r.dispatchAndPersist(ctx, log, articleURL, profile, doi)
		return rec, false, err
	}

	// Ohne DOI in der URL entscheidet die kanonische URL über den Cache-Treffer.
	log.Debug("state", zap.String("state", "CACHE_CHECK"))
	cached, err := r.Cache.LookupURL(ctx, raw)
	if err != nil {
		return nil, false, err
	}
	if cached != nil {
		r.Metrics.cacheHit()
		return cached, true, nil
	}
	rec, err := r.dispatchAndPersist(ctx, log, raw, profile, "")
	return rec, false, err
}

func (r *Resolver) cacheCheck(ctx context.Context, log *zap.Logger, doi string) (*models.PaperRecord, error) {
	log.Debug("state", zap.String("state", "CACHE_CHECK"))
	rec, err := r.Cache.Lookup(ctx, doi)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		r.Metrics.cacheHit()
	}
	return rec, nil
}

// identify bestimmt Profil und Artikel-URL. Kennt das Verzeichnis den DOI-Präfix nicht,
// entscheidet der Host der Landing Page hinter doi.org.
func (r *Resolver) identify(ctx context.Context, log *zap.Logger, doi string) (models.PublisherProfile, string, error) {
	profile, err := r.Publishers.ResolvePublisher(doi)
	if err == nil {
		articleURL, err := r.Publishers.BuildArticleURL(ctx, doi, profile)
		return profile, articleURL, err
	}
	if !errors.Is(err, errs.ErrUnsupportedPublisher) {
		return models.PublisherProfile{}, "", err
	}

	landing, err := r.Publishers.LandingURL(ctx, doi)
	if err != nil {
		return models.PublisherProfile{}, "", err
	}
	log.Debug("DOI-Präfix unbekannt, nutze Landing Page", zap.String("landing", landing))
	profile, err = r.Publishers.ResolvePublisher(landing)
	if err != nil {
		return models.PublisherProfile{}, "", err
	}
	return profile, landing, nil
}

func (r *Resolver) dispatchAndPersist(ctx context.Context, log *zap.Logger, articleURL string, profile models.PublisherProfile, doi string) (*models.PaperRecord, error) {
	log.Debug("state", zap.String("state", "DISPATCH"), zap.String("scraper", profile.ScraperID), zap.String("article_url", articleURL))
	rec, err := r.Extractor.Extract(ctx, articleURL, profile)
	if err != nil {
		return nil, err
	}
	if doi != "" {
		rec.DOI = doi
	} else {
		// Verlage leiten gern weiter; die angefragte URL bleibt als zweiter Cache-Schlüssel.
		rec.RequestURL = articleURL
	}

	log.Debug("state", zap.String("state", "PERSIST"))
	inserted, err := r.Cache.Store(ctx, rec)
	if err != nil {
		return nil, err
	}
	if inserted {
		r.Metrics.referencesStored(len(rec.References))
		return rec, nil
	}

	// Ein anderer Schreiber war schneller; sein Record ist der kanonische.
	var cached *models.PaperRecord
	if rec.DOI != "" {
		cached, err = r.Cache.Lookup(ctx, rec.DOI)
	} else {
		cached, err = r.Cache.LookupURL(ctx, rec.URL)
	}
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return rec, nil
	}
	log.Debug("Record existierte bereits, liefere gespeicherte Fassung")
	return cached, nil
}
