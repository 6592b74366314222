package providers

import (
	"context"
	"sync"

	"ref-resolver/models"
)

// Provider ist das Interface, das jeder Such-Provider (z.B. CrossRef, Europe PMC) implementieren muss.
type Provider interface {
	// Search sucht zu einem Zitations-Freitext passende Kandidaten, nach Score absteigend sortiert.
	Search(ctx context.Context, citation string) ([]models.Candidate, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "crossref").
	Name() string
}

// Page ist eine abgerufene Artikelseite. Für API-gestützte Strategien bleibt Body leer.
type Page struct {
	URL         string
	Body        []byte
	ContentType string

	mu   sync.Mutex
	memo map[string]any
}

// Memo berechnet einen Wert einmal pro Seite, damit die drei Capabilities einer Strategie
// dieselbe Analyse bzw. denselben API-Aufruf teilen können.
func (p *Page) Memo(key string, fn func() (any, error)) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.memo[key]; ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	if p.memo == nil {
		p.memo = make(map[string]any)
	}
	p.memo[key] = v
	return v, nil
}

// Entry sind die Kopfdaten eines Artikels als flache Key/Value-Map plus strukturierte Autoren.
// Bekannte Keys: title, publication, date, volume, issue, pages, abstract, keywords, doi.
type Entry struct {
	Fields  map[string]string
	Authors []models.AuthorInfo
}

// Strategy extrahiert Metadaten eines Verlags aus einer Artikelseite.
type Strategy interface {
	ExtractEntry(ctx context.Context, page *Page) (Entry, error)
	// ExtractReferences liefert die Literaturliste in Bibliographie-Reihenfolge.
	// Bekannte Keys: title, authors, publication, volume, issue, pages, date, doi; alle
	// übrigen landen als externe IDs am Record.
	ExtractReferences(ctx context.Context, page *Page) ([]map[string]string, error)
	ExtractPDFLink(ctx context.Context, page *Page) (string, error)
}

// RemoteStrategy markiert API-gestützte Strategien, die ihre Daten selbst abrufen.
// Der Dispatcher lädt für sie keine Seite.
type RemoteStrategy interface {
	Strategy
	RemoteBacked()
}

// PDFLinker sucht einen frei zugänglichen PDF-Link zu einer DOI.
type PDFLinker interface {
	GetPDFLink(ctx context.Context, doi string) (string, error)
}
