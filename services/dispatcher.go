package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
	"ref-resolver/providers"
)

// Bekannte Entry-Keys; alles andere bei Referenzen landet in ExternalIDs.
var referenceFields = map[string]bool{
	"title": true, "authors": true, "publication": true, "volume": true,
	"issue": true, "pages": true, "date": true, "doi": true,
}

// Dispatcher ruft zu einem Publisher-Profil die registrierte Extraktions-Strategie auf.
type Dispatcher struct {
	Client  *http.Client
	Logger  *zap.Logger
	Metrics *Metrics

	// PDFFallback wird gefragt, wenn die Strategie keinen PDF-Link liefert. Optional.
	PDFFallback providers.PDFLinker

	mu         sync.RWMutex
	strategies map[string]providers.Strategy
}

// NewDispatcher erstellt einen Dispatcher ohne registrierte Strategien.
func NewDispatcher(client *http.Client, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Client:     client,
		Logger:     logger,
		strategies: make(map[string]providers.Strategy),
	}
}

// Register hinterlegt eine Strategie unter einer Scraper-ID. Eine spätere Registrierung
// unter derselben ID ersetzt die frühere.
func (d *Dispatcher) Register(id string, s providers.Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies[strings.ToLower(id)] = s
}

// Registered liefert die registrierten Scraper-IDs sortiert.
func (d *Dispatcher) Registered() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.strategies))
	for id := range d.strategies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (d *Dispatcher) strategy(id string) (providers.Strategy, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.strategies[strings.ToLower(id)]
	return s, ok
}

// Extract lädt die Artikelseite (außer bei API-gestützten Strategien), ruft die drei
// Capabilities der Strategie auf und baut daraus einen PaperRecord.
func (d *Dispatcher) Extract(ctx context.Context, articleURL string, profile models.PublisherProfile) (*models.PaperRecord, error) {
	s, ok := d.strategy(profile.ScraperID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrScraperUnavailable, profile.ScraperID)
	}
	log := d.Logger.With(zap.String("scraper", profile.ScraperID), zap.String("url", articleURL))

	start := time.Now()
	defer func() { d.Metrics.observeDispatch(profile.ScraperID, time.Since(start)) }()

	var page *providers.Page
	if _, remote := s.(providers.RemoteStrategy); remote {
		page = &providers.Page{URL: articleURL}
	} else {
		var err error
		page, err = providers.Fetch(ctx, d.Client, articleURL, "text/html,application/xhtml+xml")
		if err != nil {
			log.Warn("Artikelseite nicht abrufbar", zap.Error(err))
			return nil, err
		}
	}

	entry, err := s.ExtractEntry(ctx, page)
	if err != nil {
		return nil, capabilityError(profile.ScraperID, "entry", err)
	}
	refs, err := s.ExtractReferences(ctx, page)
	if err != nil {
		return nil, capabilityError(profile.ScraperID, "references", err)
	}
	pdf, err := s.ExtractPDFLink(ctx, page)
	if err != nil {
		return nil, capabilityError(profile.ScraperID, "pdf link", err)
	}

	rec := buildRecord(page.URL, profile.ScraperID, entry, refs)
	rec.PDFLink = pdf

	if rec.PDFLink == "" && rec.DOI != "" && d.PDFFallback != nil {
		link, err := d.PDFFallback.GetPDFLink(ctx, rec.DOI)
		if err != nil {
			log.Warn("PDF-Fallback fehlgeschlagen", zap.String("kind", errs.Kind(err)), zap.Error(err))
		} else {
			rec.PDFLink = link
		}
	}

	log.Info("Extraktion abgeschlossen",
		zap.String("doi", rec.DOI),
		zap.Int("authors", len(rec.Authors)),
		zap.Int("references", len(rec.References)),
		zap.Bool("pdf", rec.PDFLink != ""))
	return rec, nil
}

// capabilityError macht aus Strategie-Fehlern ErrExtraction. Nicht erreichbare Dienste
// API-gestützter Strategien bleiben als ErrServiceUnavailable erkennbar.
func capabilityError(scraper, capability string, err error) error {
	if errors.Is(err, errs.ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", errs.ErrExtraction, scraper, capability, err)
}

func buildRecord(pageURL, scraper string, entry providers.Entry, refs []map[string]string) *models.PaperRecord {
	f := entry.Fields
	rec := &models.PaperRecord{
		Title:       strings.TrimSpace(f["title"]),
		Publication: strings.TrimSpace(f["publication"]),
		Date:        strings.TrimSpace(f["date"]),
		Volume:      strings.TrimSpace(f["volume"]),
		Issue:       strings.TrimSpace(f["issue"]),
		Pages:       strings.TrimSpace(f["pages"]),
		Abstract:    strings.TrimSpace(f["abstract"]),
		Keywords:    strings.TrimSpace(f["keywords"]),
		URL:         pageURL,
		PublisherID: scraper,
	}
	if doi, err := identifier.NormalizeDOI(f["doi"]); err == nil {
		rec.DOI = doi
	}

	for _, a := range entry.Authors {
		if a = a.Normalized(); a.Name != "" {
			rec.Authors = append(rec.Authors, a)
		}
	}

	for i, m := range refs {
		ref := models.ReferenceRecord{
			Ordering:    i + 1,
			Title:       strings.TrimSpace(m["title"]),
			Authors:     strings.TrimSpace(m["authors"]),
			Publication: strings.TrimSpace(m["publication"]),
			Volume:      strings.TrimSpace(m["volume"]),
			Issue:       strings.TrimSpace(m["issue"]),
			Pages:       strings.TrimSpace(m["pages"]),
			Date:        strings.TrimSpace(m["date"]),
		}
		if doi, err := identifier.NormalizeDOI(m["doi"]); err == nil {
			ref.DOI = doi
		}
		for k, v := range m {
			if v = strings.TrimSpace(v); v == "" || referenceFields[k] {
				continue
			}
			if ref.ExternalIDs == nil {
				ref.ExternalIDs = make(map[string]string)
			}
			ref.ExternalIDs[k] = v
		}
		rec.References = append(rec.References, ref)
	}
	return rec
}
