package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ref-resolver/errs"
	"ref-resolver/identifier"
	"ref-resolver/models"
)

// Status-Werte eines ReferenceOutcome neben den errs.Kind-Namen.
const (
	StatusResolved = "resolved"
	StatusSkipped  = "skipped"
)

// ReferenceOutcome ist das Ergebnis der Auflösung einer einzelnen Referenz.
type ReferenceOutcome struct {
	Ordering int    `json:"ordering,omitempty"`
	DOI      string `json:"doi,omitempty"`
	Query    string `json:"query,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// ReferenceSource liefert gespeicherte Paper und offene Referenz-DOIs.
type ReferenceSource interface {
	Lookup(ctx context.Context, doi string) (*models.PaperRecord, error)
	UnresolvedReferenceDOIs(ctx context.Context, limit int) ([]string, error)
	MarkBackfillAttempt(ctx context.Context, doi, kind string, terminal bool) error
}

// ReferenceService löst die Literaturliste gespeicherter Paper parallel auf.
type ReferenceService struct {
	Resolver *Resolver
	Source   ReferenceSource
	Logger   *zap.Logger
	Workers  int

	// SearchCitations löst Referenzen ohne DOI über die Zitations-Suche auf.
	SearchCitations bool
}

func NewReferenceService(resolver *Resolver, source ReferenceSource, workers int, logger *zap.Logger) *ReferenceService {
	if workers < 1 {
		workers = 1
	}
	return &ReferenceService{Resolver: resolver, Source: source, Workers: workers, Logger: logger}
}

// ResolveReferences löst die Referenzen des gespeicherten Papers mit der gegebenen DOI auf.
// Fehler einzelner Referenzen stehen im jeweiligen Outcome und brechen die anderen nicht ab.
func (s *ReferenceService) ResolveReferences(ctx context.Context, doi string) ([]ReferenceOutcome, error) {
	norm, err := identifier.NormalizeDOI(doi)
	if err != nil {
		return nil, err
	}
	rec, err := s.Source.Lookup(ctx, norm)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: no cached paper for %s", errs.ErrNoMatchFound, norm)
	}

	outcomes := make([]ReferenceOutcome, len(rec.References))
	requests := make([]*models.ResolutionRequest, len(rec.References))
	for i, ref := range rec.References {
		outcomes[i] = ReferenceOutcome{Ordering: ref.Ordering, DOI: ref.DOI, Status: StatusSkipped}
		switch {
		case ref.DOI != "":
			req := models.DOIRequest(ref.DOI)
			requests[i] = &req
		case s.SearchCitations:
			if q := CitationQuery(ref); q != "" {
				req := models.CitationRequest(q)
				requests[i] = &req
				outcomes[i].Query = q
			}
		}
	}

	s.run(ctx, requests, outcomes)
	s.Logger.Info("Referenzen aufgelöst", zap.String("doi", norm), zap.Int("references", len(outcomes)))
	return outcomes, nil
}

// Backfill löst bis zu limit gespeicherte Referenz-DOIs auf, zu denen noch kein Paper existiert.
// Jeder Versuch wird an der Referenz vermerkt: der nächste Lauf beginnt bei den am längsten
// nicht versuchten DOIs, terminale Fehlschläge werden nicht wiederholt.
// Liefert die Anzahl erfolgreich aufgelöster Referenzen.
func (s *ReferenceService) Backfill(ctx context.Context, limit int) (int, []ReferenceOutcome, error) {
	dois, err := s.Source.UnresolvedReferenceDOIs(ctx, limit)
	if err != nil {
		return 0, nil, err
	}
	outcomes := make([]ReferenceOutcome, len(dois))
	requests := make([]*models.ResolutionRequest, len(dois))
	for i, doi := range dois {
		req := models.DOIRequest(doi)
		requests[i] = &req
		outcomes[i] = ReferenceOutcome{DOI: doi, Status: StatusSkipped}
	}

	s.run(ctx, requests, outcomes)

	resolved := 0
	for i, o := range outcomes {
		kind := ""
		if o.Status == StatusResolved {
			resolved++
		} else {
			kind = o.Status
		}
		if err := s.Source.MarkBackfillAttempt(ctx, dois[i], kind, errs.TerminalKind(kind)); err != nil {
			return resolved, outcomes, err
		}
	}
	return resolved, outcomes, nil
}

// run löst die Anfragen mit höchstens Workers gleichzeitigen Resolves auf; nil-Einträge werden übersprungen.
func (s *ReferenceService) run(ctx context.Context, requests []*models.ResolutionRequest, outcomes []ReferenceOutcome) {
	var g errgroup.Group
	g.SetLimit(s.Workers)
	for i, req := range requests {
		if req == nil {
			continue
		}
		g.Go(func() error {
			rec, err := s.Resolver.Resolve(ctx, *req)
			if err != nil {
				outcomes[i].Status = errs.Kind(err)
				outcomes[i].Error = err.Error()
				return nil
			}
			outcomes[i].Status = StatusResolved
			outcomes[i].DOI = rec.DOI
			return nil
		})
	}
	_ = g.Wait()
}
