package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ref-resolver/config"
	"ref-resolver/models"
	"ref-resolver/providers"
)

// Strategy ist die API-gestützte Extraktion für europepmc.org-Artikel.
// Unterstützt /article/{SRC}/{ID}, /abstract/{SRC}/{ID} und /search?query=....
type Strategy struct {
	Config *config.Config
	Logger *zap.Logger
	Client *http.Client
}

var _ providers.RemoteStrategy = (*Strategy)(nil)

// NewStrategy erstellt die Europe PMC Extraktions-Strategie.
func NewStrategy(cfg *config.Config, client *http.Client, logger *zap.Logger) *Strategy {
	return &Strategy{Config: cfg, Client: client, Logger: logger}
}

// RemoteBacked markiert die Strategie als API-gestützt.
func (s *Strategy) RemoteBacked() {}

func (s *Strategy) ExtractEntry(ctx context.Context, page *providers.Page) (providers.Entry, error) {
	a, err := s.article(ctx, page)
	if err != nil {
		return providers.Entry{}, err
	}
	return mapArticleToEntry(a), nil
}

func (s *Strategy) ExtractReferences(ctx context.Context, page *providers.Page) ([]map[string]string, error) {
	a, err := s.article(ctx, page)
	if err != nil {
		return nil, err
	}
	if a.HasReferences != "Y" {
		return nil, nil
	}

	refURL := fmt.Sprintf("%s/%s/%s/references?format=json&page=1&pageSize=1000",
		s.Config.EuropePMCBaseURL, url.PathEscape(a.Source), url.PathEscape(a.ID))
	s.Logger.Debug("Hole Referenzen von Europe PMC", zap.String("url", refURL))

	resp, err := providers.Fetch(ctx, s.Client, refURL, "application/json")
	if err != nil {
		return nil, err
	}
	var rr ReferencesResponse
	if err := json.Unmarshal(resp.Body, &rr); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}

	refs := rr.ReferenceList.Reference
	// citedOrder fehlt bei manchen Datensätzen; dann bleibt die API-Reihenfolge
	ordered := true
	for _, r := range refs {
		if r.CitedOrder <= 0 {
			ordered = false
			break
		}
	}
	if ordered {
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].CitedOrder < refs[j].CitedOrder })
	}

	out := make([]map[string]string, 0, len(refs))
	for _, r := range refs {
		m := map[string]string{
			"title":       r.Title,
			"authors":     r.AuthorString,
			"publication": r.JournalAbbreviation,
			"volume":      string(r.Volume),
			"issue":       string(r.Issue),
			"pages":       r.PageInfo,
			"date":        string(r.PubYear),
			"doi":         r.DOI,
		}
		switch r.Source {
		case "MED":
			m["pubmed"] = r.ID
		case "PMC":
			m["pubmed_central"] = r.ID
		case "":
		default:
			m["europepmc"] = r.Source + "/" + r.ID
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Strategy) ExtractPDFLink(ctx context.Context, page *providers.Page) (string, error) {
	a, err := s.article(ctx, page)
	if err != nil {
		return "", err
	}
	// Finde den besten PDF-Link
	for _, u := range a.FullTextURLList.FullTextURL {
		if u.DocumentStyle == "pdf" && u.AvailabilityCode == "OA" {
			return u.URL, nil
		}
	}
	if a.PMCID != "" && a.IsOpenAccess == "Y" {
		return fmt.Sprintf("https://europepmc.org/articles/%s?pdf=render", a.PMCID), nil
	}
	return "", nil
}

// article holt den core-Datensatz einmal pro Seite.
func (s *Strategy) article(ctx context.Context, page *providers.Page) (*Article, error) {
	v, err := page.Memo("europepmc.article", func() (any, error) {
		query, err := queryFromURL(page.URL)
		if err != nil {
			return nil, err
		}
		searchURL := fmt.Sprintf("%s/search?query=%s&format=json&resultType=core&pageSize=1",
			s.Config.EuropePMCBaseURL, url.QueryEscape(query))
		s.Logger.Debug("Hole Europe PMC core-Datensatz", zap.String("url", searchURL))

		resp, err := providers.Fetch(ctx, s.Client, searchURL, "application/json")
		if err != nil {
			return nil, err
		}
		var sr SearchResponse
		if err := json.Unmarshal(resp.Body, &sr); err != nil {
			return nil, fmt.Errorf("decode core record: %w", err)
		}
		if len(sr.ResultList.Result) == 0 {
			return nil, fmt.Errorf("no europepmc record for %q", query)
		}
		return &sr.ResultList.Result[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Article), nil
}

func queryFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if q := strings.TrimSpace(u.Query().Get("query")); q != "" {
		return q, nil
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 3 && (parts[0] == "article" || parts[0] == "abstract") {
		src, id := strings.ToUpper(parts[1]), parts[2]
		if src == "PMC" {
			return "PMCID:" + id, nil
		}
		return fmt.Sprintf("EXT_ID:%s AND SRC:%s", id, src), nil
	}
	return "", fmt.Errorf("unsupported europepmc url %q", raw)
}

// mapArticleToEntry konvertiert ein Europe PMC Article-Objekt in Entry-Felder.
func mapArticleToEntry(a *Article) providers.Entry {
	publication := a.JournalInfo.Journal.Title
	if publication == "" {
		publication = a.JournalTitle
	}
	date := a.FirstPublicationDate
	if date == "" {
		date = a.JournalInfo.PrintPublicationDate
	}
	if date == "" {
		date = a.PubYear
	}

	entry := providers.Entry{Fields: map[string]string{
		"title":       strings.TrimSpace(a.Title),
		"publication": publication,
		"date":        date,
		"volume":      a.JournalInfo.Volume,
		"issue":       a.JournalInfo.Issue,
		"pages":       a.PageInfo,
		"abstract":    a.AbstractText,
		"keywords":    strings.Join(a.KeywordList.Keyword, ", "),
		"doi":         a.DOI,
	}}
	if a.PMID != "" {
		entry.Fields["pubmed"] = a.PMID
	}

	for _, au := range a.AuthorList.Author {
		name := au.FullName
		if name == "" {
			name = strings.TrimSpace(au.FirstName + " " + au.LastName)
		}
		info := models.AuthorInfo{Name: name}
		for _, aff := range au.AuthorAffiliationDetailsList.AuthorAffiliation {
			info.Affiliations = append(info.Affiliations, aff.Affiliation)
		}
		if au.Affiliation != "" {
			info.Affiliations = append(info.Affiliations, au.Affiliation)
		}
		entry.Authors = append(entry.Authors, info)
	}
	return entry
}
