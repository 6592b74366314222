// Package directory ordnet URLs und DOI-Präfixe einem Publisher-Profil zu.
package directory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
)

// Directory ist nach dem Laden unveränderlich und damit nebenläufig nutzbar.
type Directory struct {
	profiles   []models.PublisherProfile
	prefixes   map[string]string
	redirector *Redirector
	logger     *zap.Logger
}

// New erstellt ein Directory aus einer geladenen Tabelle. Der Redirector wird für
// redirect-aufgelöste Profile und unbekannte DOI-Präfixe benötigt.
func New(t Table, redirector *Redirector, logger *zap.Logger) *Directory {
	d := &Directory{
		profiles:   append([]models.PublisherProfile(nil), t.Profiles...),
		prefixes:   make(map[string]string, len(t.Prefixes)),
		redirector: redirector,
		logger:     logger,
	}
	for _, e := range t.Prefixes {
		// erster Eintrag gewinnt, wie bei den Profilen
		if _, ok := d.prefixes[e.Prefix]; !ok {
			d.prefixes[e.Prefix] = e.RootURL
		}
	}
	return d
}

// Profiles liefert eine Kopie aller Profile in Ladereihenfolge.
func (d *Directory) Profiles() []models.PublisherProfile {
	return append([]models.PublisherProfile(nil), d.profiles...)
}

// ResolvePublisher sucht das erste passende Profil für eine URL, eine DOI oder ein DOI-Präfix.
func (d *Directory) ResolvePublisher(urlOrPrefix string) (models.PublisherProfile, error) {
	if identifier.LooksLikeDOI(urlOrPrefix) {
		return d.resolvePrefix(urlOrPrefix)
	}
	base, err := identifier.BaseURL(urlOrPrefix)
	if err != nil {
		return models.PublisherProfile{}, err
	}
	return d.matchHost(base)
}

// KnowsPrefix meldet, ob das Präfix der DOI ohne Netzwerkzugriff einem Profil zugeordnet werden kann.
func (d *Directory) KnowsPrefix(doi string) bool {
	_, err := d.resolvePrefix(doi)
	return err == nil
}

func (d *Directory) resolvePrefix(doiOrPrefix string) (models.PublisherProfile, error) {
	prefix, err := identifier.Prefix(doiOrPrefix)
	if err != nil {
		return models.PublisherProfile{}, err
	}
	for _, p := range d.profiles {
		if isPrefixPattern(p.MatchPattern) && p.MatchPattern == prefix {
			return p, nil
		}
	}
	root, ok := d.prefixes[prefix]
	if !ok {
		return models.PublisherProfile{}, fmt.Errorf("%w: doi prefix %s", errs.ErrUnsupportedPublisher, prefix)
	}
	base, err := identifier.BaseURL(root)
	if err != nil {
		return models.PublisherProfile{}, fmt.Errorf("%w: prefix %s maps to invalid root %q", errs.ErrUnsupportedPublisher, prefix, root)
	}
	return d.matchHost(base)
}

func (d *Directory) matchHost(base string) (models.PublisherProfile, error) {
	for _, p := range d.profiles {
		if isPrefixPattern(p.MatchPattern) {
			continue
		}
		if strings.Contains(base, p.MatchPattern) {
			return p, nil
		}
	}
	return models.PublisherProfile{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedPublisher, base)
}

// BuildArticleURL setzt die DOI in das URL-Template des Profils ein. Für redirect-aufgelöste
// Profile wird stattdessen die Landing-Page über den DOI-Resolver ermittelt.
func (d *Directory) BuildArticleURL(ctx context.Context, doi string, profile models.PublisherProfile) (string, error) {
	if profile.RedirectResolved || profile.URLTemplate == "" {
		return d.LandingURL(ctx, doi)
	}
	return strings.ReplaceAll(profile.URLTemplate, "{doi}", doi), nil
}

// LandingURL folgt der Weiterleitung des DOI-Resolvers und liefert die Ziel-URL.
func (d *Directory) LandingURL(ctx context.Context, doi string) (string, error) {
	if d.redirector == nil {
		return "", fmt.Errorf("%w: no doi resolver configured", errs.ErrServiceUnavailable)
	}
	return d.redirector.Follow(ctx, doi)
}

func isPrefixPattern(p string) bool {
	return strings.HasPrefix(p, "10.")
}
