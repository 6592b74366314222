// Package identifier normalisiert DOIs, URLs und Titel in eine vergleichbare Form.
package identifier

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"ref-resolver/errs"
)

var (
	doiPattern    = regexp.MustCompile(`10\.[0-9]{4,9}(?:\.[0-9]+)*/[^\s?#&"<>]+`)
	prefixPattern = regexp.MustCompile(`^10\.[0-9]{4,9}(?:\.[0-9]+)*$`)
	spaces        = regexp.MustCompile(`\s+`)
)

// NormalizeDOI bringt eine DOI in ihre kanonische Form (kleingeschrieben, ohne Resolver-Präfix).
//
// Akzeptiert werden nackte DOIs, "doi:"-Schreibweisen und beliebige URLs, die eine DOI
// im Pfad oder Query enthalten. Die Funktion ist idempotent.
func NormalizeDOI(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty doi", errs.ErrMalformedIdentifier)
	}
	s = unescape(s)

	m := doiPattern.FindString(strings.ToLower(s))
	if m == "" {
		return "", fmt.Errorf("%w: no doi in %q", errs.ErrMalformedIdentifier, raw)
	}
	m = trimTrailing(m)
	if strings.HasSuffix(m, "/") || !strings.Contains(m, "/") {
		return "", fmt.Errorf("%w: empty doi suffix in %q", errs.ErrMalformedIdentifier, raw)
	}
	return m, nil
}

// Prefix liefert das Registranten-Präfix ("10.1002") einer DOI.
// Ein bereits nacktes Präfix wird unverändert (normalisiert) zurückgegeben.
func Prefix(doiOrPrefix string) (string, error) {
	if p := strings.ToLower(strings.TrimSpace(doiOrPrefix)); prefixPattern.MatchString(p) {
		return p, nil
	}
	doi, err := NormalizeDOI(doiOrPrefix)
	if err != nil {
		return "", err
	}
	return doi[:strings.Index(doi, "/")], nil
}

// LooksLikeDOI meldet, ob die Eingabe eine DOI oder ein DOI-Präfix ist (und keine Publisher-URL).
func LooksLikeDOI(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if prefixPattern.MatchString(s) {
		return true
	}
	for _, p := range []string{"doi:", "https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/"} {
		s = strings.TrimPrefix(s, p)
	}
	return strings.HasPrefix(s, "10.") && doiPattern.MatchString(s)
}

// TitleKey ist der Vergleichsschlüssel für den exakten Titel-Abgleich:
// NFC-normalisiert, Whitespace zusammengefasst.
func TitleKey(title string) string {
	t := norm.NFC.String(title)
	return strings.TrimSpace(spaces.ReplaceAllString(t, " "))
}

// unescape dekodiert Prozent-Kodierung bis zum Fixpunkt, damit NormalizeDOI idempotent bleibt.
// Jede Runde kürzt den String, die Schleife terminiert also.
func unescape(s string) string {
	for strings.Contains(s, "%") {
		d, err := url.PathUnescape(s)
		if err != nil || d == s {
			break
		}
		s = d
	}
	return s
}

// trimTrailing entfernt Satzzeichen am Ende, schließende Klammern nur wenn sie unbalanciert sind.
func trimTrailing(s string) string {
	for len(s) > 0 {
		last := s[len(s)-1]
		switch last {
		case '.', ',', ';', ':', '\'', '"':
			s = s[:len(s)-1]
			continue
		case ')':
			if strings.Count(s, "(") < strings.Count(s, ")") {
				s = s[:len(s)-1]
				continue
			}
		case ']':
			if strings.Count(s, "[") < strings.Count(s, "]") {
				s = s[:len(s)-1]
				continue
			}
		}
		break
	}
	return s
}
