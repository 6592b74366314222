package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"ref-resolver/config"
	"ref-resolver/models"
	"ref-resolver/providers"
)

var (
	pdfRegex  = regexp.MustCompile(`href="([^"]+\.pdf)"`)
	tarRegex  = regexp.MustCompile(`href="([^"]+\.tar\.gz)"`)
	pmidRegex = regexp.MustCompile(`^[0-9]{1,9}$`)
)

// Fetcher ist die API-gestützte Extraktions-Strategie für pubmed.ncbi.nlm.nih.gov.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Client *http.Client
}

var _ providers.RemoteStrategy = (*Fetcher)(nil)

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Client: client, Logger: logger}
}

// RemoteBacked markiert die Strategie als API-gestützt.
func (f *Fetcher) RemoteBacked() {}

func (f *Fetcher) ExtractEntry(ctx context.Context, page *providers.Page) (providers.Entry, error) {
	a, err := f.article(ctx, page)
	if err != nil {
		return providers.Entry{}, err
	}
	return mapArticleToEntry(a), nil
}

func (f *Fetcher) ExtractReferences(ctx context.Context, page *providers.Page) ([]map[string]string, error) {
	a, err := f.article(ctx, page)
	if err != nil {
		return nil, err
	}
	var out []map[string]string
	for _, list := range a.PubmedData.ReferenceList {
		for _, r := range list.Reference {
			m := map[string]string{"title": strings.TrimSpace(r.Citation)}
			for _, id := range r.ArticleIDs {
				switch strings.ToLower(id.IDType) {
				case "doi":
					m["doi"] = strings.TrimSpace(id.Value)
				case "pubmed":
					m["pubmed"] = strings.TrimSpace(id.Value)
				case "pmc", "pmcid":
					m["pubmed_central"] = strings.TrimSpace(id.Value)
				}
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// ExtractPDFLink sucht über PMC einen Open-Access-Link. Fehler des OA-Feeds werden nur
// geloggt, der Link ist optional.
func (f *Fetcher) ExtractPDFLink(ctx context.Context, page *providers.Page) (string, error) {
	a, err := f.article(ctx, page)
	if err != nil {
		return "", err
	}
	pmid := a.MedlineCitation.PMID
	log := f.Logger.With(zap.String("pmid", pmid))

	pmcID := articleID(a, "pmc")
	if pmcID == "" {
		pmcID, err = f.getPmcIDFromConverter(ctx, pmid)
		if err != nil {
			log.Warn("Fehler beim Holen der PMCID", zap.Error(err))
			return "", nil
		}
	}
	if pmcID == "" {
		log.Debug("Keine PMCID vorhanden, kein PMC-Link möglich.")
		return "", nil
	}

	link, err := f.getLinkFromOA(ctx, pmcID)
	if err != nil {
		log.Warn("Fehler beim Abruf des PMC OA Feeds", zap.String("pmcid", pmcID), zap.Error(err))
		return "", nil
	}
	if link != "" {
		log.Info("Download-Link über PMC OA Feed gefunden", zap.String("link", link))
	}
	return link, nil
}

// article holt die Metadaten einmal pro Seite via EFetch.
func (f *Fetcher) article(ctx context.Context, page *providers.Page) (*PubmedArticle, error) {
	v, err := page.Memo("pubmed.article", func() (any, error) {
		pmid, err := pmidFromURL(page.URL)
		if err != nil {
			return nil, err
		}
		return f.fetchMetadata(ctx, pmid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PubmedArticle), nil
}

// fetchMetadata holt Metadaten für eine einzelne PMID via EFetch.
func (f *Fetcher) fetchMetadata(ctx context.Context, pmid string) (*PubmedArticle, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", pmid)
	params.Set("retmode", "xml")
	if f.Config.PubMedAPIKey != "" {
		params.Set("api_key", f.Config.PubMedAPIKey)
	}
	if f.Config.PubMedTool != "" {
		params.Set("tool", f.Config.PubMedTool)
	}
	if f.Config.PubMedEmail != "" {
		params.Set("email", f.Config.PubMedEmail)
	}
	efetchURL := f.Config.PubMedBaseURL + "/efetch.fcgi?" + params.Encode()
	f.Logger.Debug("Rufe EFetch-URL für Metadaten auf", zap.String("pmid", pmid))

	resp, err := providers.Fetch(ctx, f.Client, efetchURL, "application/xml")
	if err != nil {
		return nil, err
	}

	var articleSet PubmedArticleSet
	if err := xml.Unmarshal(resp.Body, &articleSet); err != nil {
		return nil, fmt.Errorf("decode efetch response: %w", err)
	}
	if len(articleSet.PubmedArticle) == 0 {
		return nil, fmt.Errorf("kein PubmedArticle in EFetch-Antwort für PMID %s gefunden", pmid)
	}
	return &articleSet.PubmedArticle[0], nil
}

// getPmcIDFromConverter holt die PMCID über den PMC ID Converter.
func (f *Fetcher) getPmcIDFromConverter(ctx context.Context, pmid string) (string, error) {
	convURL := fmt.Sprintf("%s?ids=%s&format=json", f.Config.PubMedIDConvURL, url.QueryEscape(pmid))
	f.Logger.Debug("Rufe ID Converter URL auf", zap.String("url", convURL))

	resp, err := providers.Fetch(ctx, f.Client, convURL, "application/json")
	if err != nil {
		return "", err
	}

	var convResponse IDConvResponse
	if err := json.Unmarshal(resp.Body, &convResponse); err != nil {
		return "", err
	}
	if len(convResponse.Records) > 0 && convResponse.Records[0].PMCID != "" {
		return convResponse.Records[0].PMCID, nil
	}
	return "", nil // Kein Fehler, aber auch keine PMCID
}

// getLinkFromOA holt den besten Download-Link aus dem PMC OA Feed.
func (f *Fetcher) getLinkFromOA(ctx context.Context, pmcID string) (string, error) {
	oaURL := fmt.Sprintf("%s?id=%s", f.Config.PubMedOAURL, url.QueryEscape(pmcID))
	f.Logger.Debug("Rufe PMC OA Feed URL auf", zap.String("url", oaURL))

	resp, err := providers.Fetch(ctx, f.Client, oaURL, "application/xml")
	if err != nil {
		return "", err
	}
	body := resp.Body

	var oaResponse OAResponse
	if err := xml.Unmarshal(body, &oaResponse); err != nil {
		f.Logger.Warn("XML-Parsing des OA-Feeds fehlgeschlagen, versuche Regex-Fallback", zap.Error(err))
	}
	if oaResponse.Error != "" {
		return "", fmt.Errorf("OA feed returned error: %s", oaResponse.Error)
	}

	var pdfLink, tarLink string
	if len(oaResponse.Records) > 0 {
		for _, link := range oaResponse.Records[0].Links {
			if strings.EqualFold(link.Format, "pdf") && link.Href != "" {
				pdfLink = link.Href
				break
			}
			if tarLink == "" && strings.EqualFold(link.Format, "tgz") && link.Href != "" {
				tarLink = link.Href
			}
		}
	}

	// Regex-Fallbacks
	if pdfLink == "" {
		if matches := pdfRegex.FindSubmatch(body); len(matches) > 1 {
			pdfLink = string(matches[1])
		}
	}
	if pdfLink == "" && tarLink == "" {
		if matches := tarRegex.FindSubmatch(body); len(matches) > 1 {
			tarLink = string(matches[1])
		}
	}

	finalLink := pdfLink
	if finalLink == "" {
		finalLink = tarLink
	}
	return normalizeURL(finalLink), nil
}

// normalizeURL stellt sicher, dass eine URL absolut und mit https ist.
func normalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if strings.HasPrefix(rawURL, "ftp://") {
		return strings.Replace(rawURL, "ftp://", "https://", 1)
	}
	if strings.HasPrefix(rawURL, "//") {
		return "https:" + rawURL
	}
	if strings.HasPrefix(rawURL, "/") {
		return "https://www.ncbi.nlm.nih.gov" + rawURL
	}
	return rawURL
}

// pmidFromURL liest die PMID aus https://pubmed.ncbi.nlm.nih.gov/<pmid>/ bzw. .../pubmed/<pmid>.
func pmidFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if pmidRegex.MatchString(seg) {
			return seg, nil
		}
	}
	if term := u.Query().Get("term"); pmidRegex.MatchString(term) {
		return term, nil
	}
	return "", fmt.Errorf("no pmid in %q", raw)
}

func articleID(a *PubmedArticle, idType string) string {
	for _, id := range a.PubmedData.ArticleIDs {
		if strings.EqualFold(id.IDType, idType) {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

// mapArticleToEntry wandelt ein XML-Article-Objekt in Entry-Felder um.
func mapArticleToEntry(article *PubmedArticle) providers.Entry {
	mc := article.MedlineCitation
	art := mc.Article

	var keywords []string
	for _, kl := range mc.KeywordList {
		for _, kw := range kl.Keyword {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}

	doi := ""
	for _, id := range art.ELocationID {
		if id.IDType == "doi" && id.ValidYN != "N" {
			doi = strings.TrimSpace(id.Value)
			break
		}
	}
	if doi == "" {
		doi = articleID(article, "doi")
	}

	entry := providers.Entry{Fields: map[string]string{
		"title":       strings.TrimSpace(art.Title),
		"publication": art.Journal.Title,
		"date":        formatPubDate(art.Journal.JournalIssue.PubDate),
		"volume":      art.Journal.JournalIssue.Volume,
		"issue":       art.Journal.JournalIssue.Issue,
		"pages":       art.Pagination.MedlinePgn,
		"abstract":    strings.Join(art.Abstract.Text, "\n"),
		"keywords":    strings.Join(keywords, ", "),
		"doi":         doi,
		"pubmed":      mc.PMID,
	}}
	if pmc := articleID(article, "pmc"); pmc != "" {
		entry.Fields["pubmed_central"] = pmc
	}

	for _, author := range art.Authors {
		name := strings.TrimSpace(author.ForeName + " " + author.LastName)
		if author.ForeName == "" && author.Initials != "" {
			name = author.Initials + " " + author.LastName
		}
		if name == "" {
			name = author.CollectiveName
		}
		info := models.AuthorInfo{Name: name}
		for _, aff := range author.AffiliationInfo {
			info.Affiliations = append(info.Affiliations, aff.Affiliation)
		}
		entry.Authors = append(entry.Authors, info)
	}
	return entry
}

// formatPubDate bringt das PubDate in die Form YYYY-MM-DD, soweit die Angaben reichen.
func formatPubDate(pubDate PubDate) string {
	if pubDate.Year == "" {
		return strings.TrimSpace(pubDate.MedlineDate)
	}
	if pubDate.Month == "" {
		return pubDate.Year
	}
	month := ""
	if parsedMonth, err := time.Parse("Jan", pubDate.Month); err == nil {
		month = fmt.Sprintf("%02d", parsedMonth.Month())
	} else if tm, err := time.Parse("1", pubDate.Month); err == nil {
		// Fallback für numerische Monate
		month = fmt.Sprintf("%02d", tm.Month())
	}
	if month == "" {
		return pubDate.Year
	}
	if pubDate.Day == "" {
		return pubDate.Year + "-" + month
	}
	day := pubDate.Day
	if len(day) == 1 {
		day = "0" + day
	}
	return pubDate.Year + "-" + month + "-" + day
}
