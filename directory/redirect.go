package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ref-resolver/errs"
)

// Redirector folgt DOI-Weiterleitungen (https://doi.org/<doi>) bis zur Landing-Page des Verlags.
type Redirector struct {
	Client      *http.Client
	ResolverURL string
	Logger      *zap.Logger
}

// NewRedirector erstellt einen Redirector gegen resolverURL.
func NewRedirector(client *http.Client, resolverURL string, logger *zap.Logger) *Redirector {
	if !strings.HasSuffix(resolverURL, "/") {
		resolverURL += "/"
	}
	return &Redirector{Client: client, ResolverURL: resolverURL, Logger: logger}
}

// Follow liefert die finale URL nach allen Weiterleitungen. Der Statuscode der Zielseite
// spielt keine Rolle: viele Verlage antworten Bots mit 403, die URL ist trotzdem korrekt.
func (r *Redirector) Follow(ctx context.Context, doi string) (string, error) {
	target := r.ResolverURL + doi
	log := r.Logger.With(zap.String("doi", doi))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", errs.ErrServiceUnavailable, err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		log.Warn("DOI-Weiterleitung fehlgeschlagen", zap.Error(err))
		return "", fmt.Errorf("%w: follow %s: %v", errs.ErrServiceUnavailable, target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	// Antwortet der Resolver selbst statt weiterzuleiten, entscheidet sein Status.
	if resp.Request.URL.String() == target && resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: doi %s not registered", errs.ErrUnsupportedPublisher, doi)
		}
		log.Warn("DOI-Resolver antwortet mit Fehler", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: %s returned status %d", errs.ErrServiceUnavailable, target, resp.StatusCode)
	}

	landing := resp.Request.URL.String()
	log.Debug("DOI aufgelöst", zap.String("landing_url", landing), zap.Int("status", resp.StatusCode))
	return landing, nil
}
