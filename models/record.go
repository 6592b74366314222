package models

import (
	"slices"
	"strings"
)

// PaperRecord ist ein aufgelöster Artikel mit geordneter Referenzliste.
type PaperRecord struct {
	DOI         string       `json:"doi,omitempty"`
	Title       string       `json:"title,omitempty"`
	Authors     []AuthorInfo `json:"authors,omitempty"`
	Publication string       `json:"publication,omitempty"`
	Date        string       `json:"date,omitempty"`
	Volume      string       `json:"volume,omitempty"`
	Issue       string       `json:"issue,omitempty"`
	Pages       string       `json:"pages,omitempty"`
	Abstract    string       `json:"abstract,omitempty"`
	Keywords    string       `json:"keywords,omitempty"`

	URL         string `json:"url"`
	PDFLink     string `json:"pdf_link,omitempty"`
	PublisherID string `json:"publisher_id"`

	References []ReferenceRecord `json:"references,omitempty"`

	// RequestURL ist die angefragte URL bei Auflösung über eine URL ohne DOI.
	// Leitet der Verlag weiter, weicht sie von URL ab.
	RequestURL string `json:"-"`
}

// AuthorInfo beschreibt einen Autor. Affiliations haben Mengen-Semantik.
type AuthorInfo struct {
	Name         string   `json:"name"`
	Affiliations []string `json:"affiliations,omitempty"`
	Email        string   `json:"email,omitempty"`
}

// Normalized liefert eine Kopie mit deduplizierten, sortierten Affiliations.
func (a AuthorInfo) Normalized() AuthorInfo {
	out := AuthorInfo{Name: strings.TrimSpace(a.Name), Email: strings.TrimSpace(a.Email)}
	for _, aff := range a.Affiliations {
		if aff = strings.TrimSpace(aff); aff != "" {
			out.Affiliations = append(out.Affiliations, aff)
		}
	}
	slices.Sort(out.Affiliations)
	out.Affiliations = slices.Compact(out.Affiliations)
	return out
}

// AffiliationString verbindet die Affiliations für die Anzeige.
func (a AuthorInfo) AffiliationString() string {
	return strings.Join(a.Affiliations, "; ")
}

// ReferenceRecord ist ein Eintrag der Bibliographie eines Papers.
// Ordering beginnt bei 1 und ist innerhalb eines Papers lückenlos.
type ReferenceRecord struct {
	Ordering    int               `json:"ordering"`
	DOI         string            `json:"doi,omitempty"`
	Title       string            `json:"title,omitempty"`
	Authors     string            `json:"authors,omitempty"`
	Publication string            `json:"publication,omitempty"`
	Volume      string            `json:"volume,omitempty"`
	Issue       string            `json:"issue,omitempty"`
	Pages       string            `json:"pages,omitempty"`
	Date        string            `json:"date,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
}

// PublisherProfile beschreibt, wie Artikel eines Verlags gefunden und extrahiert werden.
type PublisherProfile struct {
	MatchPattern     string `json:"match_pattern" yaml:"match_pattern"`
	ScraperID        string `json:"scraper" yaml:"scraper"`
	URLTemplate      string `json:"url_template,omitempty" yaml:"url_template"`
	RootURL          string `json:"root_url" yaml:"root_url"`
	RedirectResolved bool   `json:"redirect,omitempty" yaml:"redirect"`
}

// Candidate ist ein Treffer der Zitations-Suche.
type Candidate struct {
	DOI   string  `json:"doi"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score"`
}

// RequestKind unterscheidet die Eingabeformen einer Auflösung.
type RequestKind string

const (
	KindCitation RequestKind = "citation"
	KindDOI      RequestKind = "doi"
	KindURL      RequestKind = "url"
)

// ResolutionRequest ist der einzige Einstiegspunkt in den Resolver.
type ResolutionRequest struct {
	Kind  RequestKind `json:"kind"`
	Value string      `json:"value"`
}

func CitationRequest(text string) ResolutionRequest {
	return ResolutionRequest{Kind: KindCitation, Value: text}
}

func DOIRequest(doi string) ResolutionRequest {
	return ResolutionRequest{Kind: KindDOI, Value: doi}
}

func URLRequest(url string) ResolutionRequest {
	return ResolutionRequest{Kind: KindURL, Value: url}
}
