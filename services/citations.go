package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
)

var (
	// Überschrift des Literaturverzeichnisses, auch nummeriert oder als Markdown
	sectionHeader = regexp.MustCompile(`(?i)^(?:#{1,6}\s*|[0-9]+\.?\s*)?(references|bibliography|literature|literature cited|works cited|literaturverzeichnis|literatur|quellen|sources)\s*:?$`)

	// [1] Author / 1. Author / (1) Author
	numbering = regexp.MustCompile(`^(?:\[\d+\]|\d+\.|\(\d+\))\s+`)

	hyphenBreak = regexp.MustCompile(`(\p{L})-\n\s*(\p{Ll})`)
	whitespace  = regexp.MustCompile(`\s+`)

	ligatures = strings.NewReplacer("ﬁ", "fi", "ﬂ", "fl", "ﬀ", "ff", "ﬃ", "ffi", "ﬄ", "ffl", "\u00ad", "")

	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`[A-Z][a-zA-Z\s,&.]+\s*\(\d{4}[a-z]?\)`), // Autor (Jahr)
		regexp.MustCompile(`[A-Z][a-zA-Z\s,&]+\.\s*\d{4}[a-z]?`),
		regexp.MustCompile(`\d+\s*\(\d+\)\s*:\s*\d+[-–]\d+`),
		regexp.MustCompile(`(?i)\bvol\.\s*\d+`),
		regexp.MustCompile(`(?i)\bpp?\.\s*\d+[-–]\d+`),
		regexp.MustCompile(`(?i)doi:?\s*10\.\d+`),
		regexp.MustCompile(`10\.\d{4,9}/\S+`),
		regexp.MustCompile(`(?i)pmid:\s*\d+`),
		regexp.MustCompile(`https?://\S+`),
	}
)

// SplitReferences zerlegt Freitext (z.B. einen PDF-Extrakt) in einzelne Literaturangaben.
//
// Gesucht wird ab der letzten Verzeichnis-Überschrift, fehlt sie, der ganze Text.
// Sind die Einträge nummeriert, gehören Folgezeilen zum vorherigen Eintrag, sonst ist
// jede Zeile ein Eintrag. Zeilen ohne typische Referenz-Merkmale werden verworfen.
func SplitReferences(text string) []string {
	text = ligatures.Replace(norm.NFC.String(text))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")

	lines := strings.Split(text, "\n")
	start := 0
	for i, line := range lines {
		if sectionHeader.MatchString(strings.TrimSpace(line)) {
			start = i + 1
		}
	}
	lines = lines[start:]

	numbered := false
	for _, line := range lines {
		if numbering.MatchString(strings.TrimSpace(line)) {
			numbered = true
			break
		}
	}

	var entries []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case !numbered || numbering.MatchString(line) || len(entries) == 0:
			entries = append(entries, line)
		default:
			entries[len(entries)-1] += " " + line
		}
	}

	seen := make(map[string]bool, len(entries))
	var out []string
	for _, e := range entries {
		e = whitespace.ReplaceAllString(numbering.ReplaceAllString(e, ""), " ")
		if !isReference(e) || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func isReference(line string) bool {
	if len(line) < 15 {
		return false
	}
	for _, p := range referencePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// ResolveText löst alle Literaturangaben eines Freitexts auf. Angaben mit DOI gehen direkt
// in die DOI-Auflösung, alle anderen in die Zitations-Suche.
func (s *ReferenceService) ResolveText(ctx context.Context, text string) ([]ReferenceOutcome, error) {
	refs := SplitReferences(text)
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no references found in text", errs.ErrMalformedIdentifier)
	}

	outcomes := make([]ReferenceOutcome, len(refs))
	requests := make([]*models.ResolutionRequest, len(refs))
	for i, ref := range refs {
		outcomes[i] = ReferenceOutcome{Ordering: i + 1, Query: ref, Status: StatusSkipped}
		req := models.CitationRequest(ref)
		if doi, err := identifier.NormalizeDOI(ref); err == nil {
			req = models.DOIRequest(doi)
			outcomes[i].DOI = doi
		}
		requests[i] = &req
	}

	s.run(ctx, requests, outcomes)
	s.Logger.Info("Literaturangaben aus Text aufgelöst", zap.Int("references", len(refs)))
	return outcomes, nil
}
