// Package highwire liest Artikel-Metadaten aus den Highwire-Press citation_* Meta-Tags,
// die Wiley, Springer, Nature, Elsevier und die meisten anderen Verlage ausliefern.
package highwire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"ref-resolver/models"
	"ref-resolver/providers"
)

// Scrapers sind die Publisher-IDs, unter denen die Strategie registriert wird.
var Scrapers = []string{
	"wiley", "springer", "nature", "sciencedirect", "acs", "tandf",
	"oup", "plos", "pnas", "sage", "science", "highwire",
}

type meta struct {
	name    string
	content string
}

// Strategy ist die seitenbasierte Extraktion über Meta-Tags.
type Strategy struct {
	Logger *zap.Logger
}

var _ providers.Strategy = (*Strategy)(nil)

func NewStrategy(logger *zap.Logger) *Strategy {
	return &Strategy{Logger: logger}
}

func (s *Strategy) ExtractEntry(ctx context.Context, page *providers.Page) (providers.Entry, error) {
	tags, err := metaTags(page)
	if err != nil {
		return providers.Entry{}, err
	}

	f := map[string]string{}
	var keywords []string
	var authors []models.AuthorInfo
	for _, m := range tags {
		switch m.name {
		case "citation_author":
			authors = append(authors, models.AuthorInfo{Name: m.content})
		case "citation_author_institution":
			if n := len(authors); n > 0 {
				authors[n-1].Affiliations = append(authors[n-1].Affiliations, m.content)
			}
		case "citation_author_email":
			if n := len(authors); n > 0 {
				authors[n-1].Email = m.content
			}
		case "citation_keywords", "keywords":
			for _, kw := range strings.Split(m.content, ";") {
				if kw = strings.TrimSpace(kw); kw != "" {
					keywords = append(keywords, kw)
				}
			}
		default:
			if _, ok := f[m.name]; !ok {
				f[m.name] = m.content
			}
		}
	}

	title := first(f, "citation_title", "dc.title")
	if title == "" {
		return providers.Entry{}, fmt.Errorf("no citation_title on %s", page.URL)
	}

	pages := f["citation_firstpage"]
	if last := f["citation_lastpage"]; pages != "" && last != "" && last != pages {
		pages += "-" + last
	}

	return providers.Entry{
		Fields: map[string]string{
			"title":       title,
			"publication": first(f, "citation_journal_title", "citation_conference_title", "citation_book_title"),
			"date":        first(f, "citation_publication_date", "citation_date", "citation_online_date", "citation_cover_date", "citation_year"),
			"volume":      f["citation_volume"],
			"issue":       f["citation_issue"],
			"pages":       pages,
			"abstract":    first(f, "citation_abstract", "dc.description", "description"),
			"keywords":    strings.Join(keywords, ", "),
			"doi":         strings.TrimPrefix(f["citation_doi"], "doi:"),
		},
		Authors: authors,
	}, nil
}

// ExtractReferences wertet citation_reference aus. Der Inhalt ist eine Liste
// "citation_key=value;"-Paare; ohne "=" gilt der ganze Text als Titel.
func (s *Strategy) ExtractReferences(ctx context.Context, page *providers.Page) ([]map[string]string, error) {
	tags, err := metaTags(page)
	if err != nil {
		return nil, err
	}
	var out []map[string]string
	for _, m := range tags {
		if m.name != "citation_reference" {
			continue
		}
		if ref := parseReference(m.content); len(ref) > 0 {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *Strategy) ExtractPDFLink(ctx context.Context, page *providers.Page) (string, error) {
	tags, err := metaTags(page)
	if err != nil {
		return "", err
	}
	for _, m := range tags {
		if m.name != "citation_pdf_url" || m.content == "" {
			continue
		}
		base, err := url.Parse(page.URL)
		if err != nil {
			return m.content, nil
		}
		ref, err := url.Parse(m.content)
		if err != nil {
			s.Logger.Debug("Ungültige citation_pdf_url", zap.String("value", m.content))
			return "", nil
		}
		return base.ResolveReference(ref).String(), nil
	}
	return "", nil
}

var referenceKeys = map[string]string{
	"citation_title":            "title",
	"citation_article_title":    "title",
	"citation_journal_title":    "publication",
	"citation_conference_title": "publication",
	"citation_volume":           "volume",
	"citation_issue":            "issue",
	"citation_publication_date": "date",
	"citation_date":             "date",
	"citation_year":             "date",
	"citation_doi":              "doi",
	"citation_pmid":             "pubmed",
	"citation_pmcid":            "pubmed_central",
}

func parseReference(content string) map[string]string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if !strings.Contains(content, "=") {
		return map[string]string{"title": content}
	}

	ref := map[string]string{}
	var authors []string
	var firstPage, lastPage string
	for _, part := range strings.Split(content, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch k {
		case "citation_author", "citation_authors":
			authors = append(authors, v)
		case "citation_firstpage":
			firstPage = v
		case "citation_lastpage":
			lastPage = v
		default:
			if key, ok := referenceKeys[k]; ok {
				if _, seen := ref[key]; !seen {
					ref[key] = v
				}
			} else {
				ref[strings.TrimPrefix(k, "citation_")] = v
			}
		}
	}
	if len(authors) > 0 {
		ref["authors"] = strings.Join(authors, ", ")
	}
	if firstPage != "" {
		ref["pages"] = firstPage
		if lastPage != "" && lastPage != firstPage {
			ref["pages"] += "-" + lastPage
		}
	}
	return ref
}

func first(f map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(f[k]); v != "" {
			return v
		}
	}
	return ""
}

// metaTags parst die Seite einmal und teilt das Ergebnis zwischen den drei Capabilities.
func metaTags(page *providers.Page) ([]meta, error) {
	v, err := page.Memo("highwire.meta", func() (any, error) {
		return parseMeta(page.Body)
	})
	if err != nil {
		return nil, err
	}
	return v.([]meta), nil
}

func parseMeta(body []byte) ([]meta, error) {
	var tags []meta
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return tags, nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Meta {
				continue
			}
			var name, content string
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "name", "property":
					name = strings.ToLower(strings.TrimSpace(a.Val))
				case "content":
					content = strings.TrimSpace(a.Val)
				}
			}
			if name != "" {
				tags = append(tags, meta{name: name, content: content})
			}
		}
	}
}
