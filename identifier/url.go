package identifier

import (
	"fmt"
	"net/url"
	"strings"

	"ref-resolver/errs"
)

// Ansichts-Segmente, die Verlage hinter die DOI hängen (…/10.1002/x/abstract).
var viewSegments = []string{
	"abstract", "full", "fulltext", "pdf", "epdf", "pdfdirect", "html",
	"references", "summary", "suppinfo", "citedby", "figures", "metrics",
}

// BaseURL liefert Schema und Host einer URL in normalisierter Form ("https://nature.com").
// "www." wird entfernt, fehlt das Schema, wird http angenommen.
func BaseURL(rawURL string) (string, error) {
	u, err := parseLoose(rawURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + Host(u), nil
}

// Host liefert den normalisierten Hostnamen einer geparsten URL.
func Host(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// CanonicalURL normalisiert eine Artikel-URL für den Cache-Abgleich DOI-loser Records:
// Host normalisiert, Fragment entfernt, abschließender Slash entfernt.
func CanonicalURL(rawURL string) (string, error) {
	u, err := parseLoose(rawURL)
	if err != nil {
		return "", err
	}
	out := u.Scheme + "://" + Host(u) + strings.TrimSuffix(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out, nil
}

// DOIFromURL extrahiert eine in Pfad oder Query eingebettete DOI.
// Der zweite Rückgabewert ist false, wenn die URL keine DOI trägt.
func DOIFromURL(rawURL string) (string, bool) {
	u, err := parseLoose(rawURL)
	if err != nil {
		return "", false
	}
	candidates := []string{u.Path}
	for _, vals := range u.Query() {
		candidates = append(candidates, vals...)
	}
	for _, c := range candidates {
		doi, err := NormalizeDOI(c)
		if err != nil {
			continue
		}
		return stripViewSegments(doi), true
	}
	return "", false
}

func stripViewSegments(doi string) string {
	for changed := true; changed; {
		changed = false
		for _, seg := range viewSegments {
			if trimmed, ok := strings.CutSuffix(doi, "/"+seg); ok && strings.Contains(trimmed, "/") {
				doi = trimmed
				changed = true
			}
		}
	}
	return doi
}

func parseLoose(rawURL string) (*url.URL, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return nil, fmt.Errorf("%w: empty url", errs.ErrMalformedIdentifier)
	}
	if !strings.Contains(s, "://") {
		s = "http://" + strings.TrimPrefix(s, "//")
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedIdentifier, err)
	}
	if u.Hostname() == "" || !strings.Contains(u.Hostname(), ".") && u.Hostname() != "localhost" {
		return nil, fmt.Errorf("%w: no host in %q", errs.ErrMalformedIdentifier, rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}
