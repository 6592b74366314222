package storage

import (
	"strings"

	"gorm.io/datatypes"

	"ref-resolver/identifier"
	"ref-resolver/models"
)

func toPaper(rec *models.PaperRecord) *models.Paper {
	p := &models.Paper{
		DOI:         normalizedDOI(rec.DOI),
		URL:         rec.URL,
		Title:       rec.Title,
		Publication: rec.Publication,
		Date:        rec.Date,
		Volume:      rec.Volume,
		Issue:       rec.Issue,
		Pages:       rec.Pages,
		Abstract:    rec.Abstract,
		Keywords:    rec.Keywords,
		PDFLink:     rec.PDFLink,
		PublisherID: rec.PublisherID,
	}
	p.CanonicalURL = canonicalOrRaw(rec.URL)
	if rec.RequestURL != "" {
		if req := canonicalOrRaw(rec.RequestURL); req != p.CanonicalURL {
			p.RequestURL = req
		}
	}
	return p
}

func canonicalOrRaw(rawURL string) string {
	if canon, err := identifier.CanonicalURL(rawURL); err == nil {
		return canon
	}
	return rawURL
}

func toReference(r models.ReferenceRecord) *models.Reference {
	row := &models.Reference{
		DOI:         normalizedDOI(r.DOI),
		Title:       r.Title,
		TitleKey:    identifier.TitleKey(r.Title),
		Authors:     r.Authors,
		Publication: r.Publication,
		Volume:      r.Volume,
		Issue:       r.Issue,
		Pages:       r.Pages,
		Date:        r.Date,
	}
	if len(r.ExternalIDs) > 0 {
		row.ExternalIDs = datatypes.NewJSONType(r.ExternalIDs)
	}
	return row
}

func toRecord(p *models.Paper, links []models.PaperReference) *models.PaperRecord {
	rec := &models.PaperRecord{
		URL:         p.URL,
		Title:       p.Title,
		Publication: p.Publication,
		Date:        p.Date,
		Volume:      p.Volume,
		Issue:       p.Issue,
		Pages:       p.Pages,
		Abstract:    p.Abstract,
		Keywords:    p.Keywords,
		PDFLink:     p.PDFLink,
		PublisherID: p.PublisherID,
		RequestURL:  p.RequestURL,
	}
	if p.DOI != nil {
		rec.DOI = *p.DOI
	}
	for _, a := range p.Authors {
		info := models.AuthorInfo{Name: a.Name, Email: a.Email}
		if len(a.Affiliations) > 0 {
			info.Affiliations = []string(a.Affiliations)
		}
		rec.Authors = append(rec.Authors, info)
	}
	for _, l := range links {
		r := l.Reference
		ref := models.ReferenceRecord{
			Ordering:    l.Ordering,
			Title:       r.Title,
			Authors:     r.Authors,
			Publication: r.Publication,
			Volume:      r.Volume,
			Issue:       r.Issue,
			Pages:       r.Pages,
			Date:        r.Date,
		}
		if r.DOI != nil {
			ref.DOI = *r.DOI
		}
		if ids := r.ExternalIDs.Data(); len(ids) > 0 {
			ref.ExternalIDs = ids
		}
		rec.References = append(rec.References, ref)
	}
	return rec
}

// normalizedDOI liefert nil für fehlende DOIs, damit der Unique-Index nicht greift.
// Nicht normalisierbare Werte werden nur kleingeschrieben übernommen.
func normalizedDOI(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if n, err := identifier.NormalizeDOI(raw); err == nil {
		return &n
	}
	lower := strings.ToLower(raw)
	return &lower
}
