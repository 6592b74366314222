package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ref-resolver/directory"
	"ref-resolver/errs"
	"ref-resolver/models"
	"ref-resolver/storage"
)

const (
	wileyDOI = "10.1002/biot.201400046"
	wileyURL = "https://onlinelibrary.wiley.com/doi/10.1002/biot.201400046"
)

func newTestCache(t *testing.T) *storage.RecordCache {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cache.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	c := storage.NewRecordCache(db, zaptest.NewLogger(t))
	if err := c.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return c
}

func countPapers(t *testing.T, c *storage.RecordCache) int64 {
	t.Helper()
	var n int64
	if err := c.DB.Model(&models.Paper{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

type fakeSearcher struct {
	calls   atomic.Int32
	results map[string][]models.Candidate
}

func (f *fakeSearcher) Search(_ context.Context, citation string) ([]models.Candidate, error) {
	f.calls.Add(1)
	if c, ok := f.results[citation]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrNoMatchFound, citation)
}

type extractCall struct {
	URL     string
	Scraper string
}

// fakeExtractor liefert einen festen Record pro Artikel-URL, sonst einen generischen.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   []extractCall
	records map[string]*models.PaperRecord
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, articleURL string, profile models.PublisherProfile) (*models.PaperRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, extractCall{URL: articleURL, Scraper: profile.ScraperID})
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.records[articleURL]; ok {
		cp := *rec
		return &cp, nil
	}
	return &models.PaperRecord{
		Title:       "Extracted from " + articleURL,
		URL:         articleURL,
		PublisherID: profile.ScraperID,
	}, nil
}

func (f *fakeExtractor) Calls() []extractCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extractCall(nil), f.calls...)
}

type fixture struct {
	resolver *Resolver
	cache    *storage.RecordCache
	search   *fakeSearcher
	extract  *fakeExtractor
	metrics  *Metrics
}

func newFixture(t *testing.T, dir *directory.Directory) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	if dir == nil {
		table, err := directory.DefaultTable()
		if err != nil {
			t.Fatal(err)
		}
		dir = directory.New(table, nil, logger)
	}
	f := &fixture{
		cache:   newTestCache(t),
		search:  &fakeSearcher{results: map[string][]models.Candidate{}},
		extract: &fakeExtractor{records: map[string]*models.PaperRecord{}},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	f.resolver = NewResolver(f.search, dir, f.extract, f.cache, logger, f.metrics)
	return f
}

func wileyExtraction() *models.PaperRecord {
	return &models.PaperRecord{
		Title:       "CRISPR/Cas9-mediated genome engineering: An adeno-associated viral (AAV) vector toolbox",
		Authors:     []models.AuthorInfo{{Name: "Senís, Elena", Affiliations: []string{"Heidelberg University"}}},
		Publication: "Biotechnology Journal",
		Date:        "2014/11/01",
		URL:         wileyURL,
		PublisherID: "wiley",
		References: []models.ReferenceRecord{
			{Ordering: 1, Title: "Genome engineering using the CRISPR-Cas9 system", DOI: "10.1038/nprot.2013.143"},
			{Ordering: 2, Title: "RNA-guided human genome engineering via Cas9"},
		},
	}
}

func TestResolveDOI(t *testing.T) {
	f := newFixture(t, nil)
	f.extract.records[wileyURL] = wileyExtraction()
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, models.DOIRequest("10.1002/BIOT.201400046"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if first.DOI != wileyDOI {
		t.Errorf("DOI = %q, want %q", first.DOI, wileyDOI)
	}
	if diff := cmp.Diff([]extractCall{{URL: wileyURL, Scraper: "wiley"}}, f.extract.Calls()); diff != "" {
		t.Errorf("extract calls mismatch (-want +got):\n%s", diff)
	}

	second, err := f.resolver.Resolve(ctx, models.DOIRequest("https://doi.org/"+wileyDOI))
	if err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached record mismatch (-first +second):\n%s", diff)
	}
	if n := len(f.extract.Calls()); n != 1 {
		t.Errorf("extract calls = %d, want 1 (second call must be a cache hit)", n)
	}
	if n := f.search.calls.Load(); n != 0 {
		t.Errorf("search calls = %d, want 0", n)
	}

	if got := testutil.ToFloat64(f.metrics.CacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.Resolutions.WithLabelValues("doi", "resolved")); got != 1 {
		t.Errorf("resolved = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.Resolutions.WithLabelValues("doi", "cache_hit")); got != 1 {
		t.Errorf("cache_hit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.ReferencesStored); got != 2 {
		t.Errorf("references stored = %v, want 2", got)
	}
}

func TestResolveCitation(t *testing.T) {
	f := newFixture(t, nil)
	f.extract.records[wileyURL] = wileyExtraction()
	citation := "Senís, Elena, et al. CRISPR/Cas9-mediated genome engineering. Biotechnology Journal 9.11 (2014): 1402-1412."
	f.search.results[citation] = []models.Candidate{
		{DOI: wileyDOI, Score: 98.5},
		{DOI: "10.1002/other", Score: 12},
	}
	ctx := context.Background()

	rec, err := f.resolver.Resolve(ctx, models.CitationRequest(citation))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rec.DOI != wileyDOI || rec.PublisherID != "wiley" {
		t.Errorf("got doi=%q publisher=%q", rec.DOI, rec.PublisherID)
	}

	if _, err := f.resolver.Resolve(ctx, models.CitationRequest(citation)); err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	if n := len(f.extract.Calls()); n != 1 {
		t.Errorf("extract calls = %d, want 1", n)
	}
	if n := f.search.calls.Load(); n != 2 {
		t.Errorf("search calls = %d, want 2", n)
	}
}

func TestResolveFailuresPersistNothing(t *testing.T) {
	tests := []struct {
		name    string
		req     models.ResolutionRequest
		extErr  error
		wantErr error
	}{
		{"garbage citation", models.CitationRequest("qwertz asdf"), nil, errs.ErrNoMatchFound},
		{"empty citation", models.CitationRequest("   "), nil, errs.ErrMalformedIdentifier},
		{"malformed doi", models.DOIRequest("not a doi"), nil, errs.ErrMalformedIdentifier},
		{"unknown kind", models.ResolutionRequest{Kind: "isbn", Value: "978-3-16-148410-0"}, nil, errs.ErrMalformedIdentifier},
		{"unknown publisher url", models.URLRequest("https://unknown-publisher.example/article/1"), nil, errs.ErrUnsupportedPublisher},
		{"unknown prefix without resolver", models.DOIRequest("10.9999/xyz"), nil, errs.ErrServiceUnavailable},
		{"extraction failure", models.DOIRequest(wileyDOI), fmt.Errorf("%w: boom", errs.ErrExtraction), errs.ErrExtraction},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.extract.err = tc.extErr

			rec, err := f.resolver.Resolve(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Resolve() = %+v, %v; want %v", rec, err, tc.wantErr)
			}
			if n := countPapers(t, f.cache); n != 0 {
				t.Errorf("papers = %d, want 0", n)
			}
			outcome := errs.Kind(tc.wantErr)
			if got := testutil.ToFloat64(f.metrics.Resolutions.WithLabelValues(string(tc.req.Kind), outcome)); got != 1 {
				t.Errorf("resolutions{%s,%s} = %v, want 1", tc.req.Kind, outcome, got)
			}
		})
	}
}

func TestResolveURLWithDOI(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec, err := f.resolver.Resolve(ctx, models.URLRequest("https://onlinelibrary.wiley.com/doi/abs/10.1002/biot.201400046"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rec.DOI != wileyDOI {
		t.Errorf("DOI = %q, want %q", rec.DOI, wileyDOI)
	}
	// Template-Profile extrahieren von der kanonischen Artikel-URL
	if diff := cmp.Diff([]extractCall{{URL: wileyURL, Scraper: "wiley"}}, f.extract.Calls()); diff != "" {
		t.Errorf("extract calls mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.resolver.Resolve(ctx, models.DOIRequest(wileyDOI)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.resolver.Resolve(ctx, models.URLRequest(wileyURL+"/full")); err != nil {
		t.Fatal(err)
	}
	if n := len(f.extract.Calls()); n != 1 {
		t.Errorf("extract calls = %d, want 1", n)
	}
}

func TestResolveURLWithoutDOI(t *testing.T) {
	f := newFixture(t, nil)
	const pubmedURL = "https://pubmed.ncbi.nlm.nih.gov/25123456/"
	f.extract.records[pubmedURL] = &models.PaperRecord{
		DOI:         "10.1000/pubmed-paper",
		Title:       "A paper found through PubMed",
		URL:         pubmedURL,
		PublisherID: "pubmed",
	}
	ctx := context.Background()

	rec, err := f.resolver.Resolve(ctx, models.URLRequest(pubmedURL))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rec.DOI != "10.1000/pubmed-paper" {
		t.Errorf("DOI = %q", rec.DOI)
	}

	for _, req := range []models.ResolutionRequest{
		models.URLRequest(pubmedURL),
		models.URLRequest("https://pubmed.ncbi.nlm.nih.gov/25123456"),
		models.DOIRequest("10.1000/pubmed-paper"),
	} {
		got, err := f.resolver.Resolve(ctx, req)
		if err != nil {
			t.Fatalf("Resolve(%v) error: %v", req, err)
		}
		if got.Title != rec.Title {
			t.Errorf("Resolve(%v).Title = %q", req, got.Title)
		}
	}
	if n := len(f.extract.Calls()); n != 1 {
		t.Errorf("extract calls = %d, want 1", n)
	}
	if n := countPapers(t, f.cache); n != 1 {
		t.Errorf("papers = %d, want 1", n)
	}
}

func TestResolveURLBehindRedirect(t *testing.T) {
	f := newFixture(t, nil)
	const (
		requested = "http://pubmed.ncbi.nlm.nih.gov/25123456"
		landing   = "https://pubmed.ncbi.nlm.nih.gov/25123456/full/"
	)
	// die Extraktion meldet die Seite nach der Weiterleitung
	f.extract.records[requested] = &models.PaperRecord{
		Title:       "Landing page behind a redirect",
		URL:         landing,
		PublisherID: "pubmed",
	}
	ctx := context.Background()

	for _, raw := range []string{requested, requested, requested + "/", landing} {
		rec, err := f.resolver.Resolve(ctx, models.URLRequest(raw))
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", raw, err)
		}
		if rec.Title != "Landing page behind a redirect" {
			t.Errorf("Resolve(%s).Title = %q", raw, rec.Title)
		}
	}
	if n := len(f.extract.Calls()); n != 1 {
		t.Errorf("extract calls = %d, want 1", n)
	}
	if n := countPapers(t, f.cache); n != 1 {
		t.Errorf("papers = %d, want 1", n)
	}
	if got := testutil.ToFloat64(f.metrics.CacheHits); got != 3 {
		t.Errorf("cache hits = %v, want 3", got)
	}
}

func TestResolveDOIWithoutPrefixFollowsLandingPage(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/resolve/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		doi := strings.TrimPrefix(r.URL.Path, "/resolve/")
		switch {
		case strings.HasSuffix(doi, "/missing"):
			http.NotFound(w, r)
			return
		case strings.HasSuffix(doi, "/outage"):
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		http.Redirect(w, r, "/landing/"+doi, http.StatusFound)
	})
	mux.HandleFunc("/landing/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	logger := zaptest.NewLogger(t)
	table := directory.Table{Profiles: []models.PublisherProfile{
		{MatchPattern: "127.0.0.1", ScraperID: "highwire", RootURL: ts.URL, RedirectResolved: true},
	}}
	f := newFixture(t, directory.New(table, directory.NewRedirector(ts.Client(), ts.URL+"/resolve", logger), logger))
	ctx := context.Background()

	rec, err := f.resolver.Resolve(ctx, models.DOIRequest("10.9999/xyz"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rec.DOI != "10.9999/xyz" {
		t.Errorf("DOI = %q", rec.DOI)
	}
	want := []extractCall{{URL: ts.URL + "/landing/10.9999/xyz", Scraper: "highwire"}}
	if diff := cmp.Diff(want, f.extract.Calls()); diff != "" {
		t.Errorf("extract calls mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.resolver.Resolve(ctx, models.DOIRequest("10.9999/missing")); !errors.Is(err, errs.ErrUnsupportedPublisher) {
		t.Errorf("unregistered doi err = %v, want ErrUnsupportedPublisher", err)
	}
	_, err = f.resolver.Resolve(ctx, models.DOIRequest("10.9999/outage"))
	if !errors.Is(err, errs.ErrServiceUnavailable) || !errs.Retryable(err) {
		t.Errorf("resolver outage err = %v, want retryable ErrServiceUnavailable", err)
	}
	if n := countPapers(t, f.cache); n != 1 {
		t.Errorf("papers = %d, want 1", n)
	}
}

// racingCache verpasst den ersten Lookup, als hätte ein paralleler Schreiber
// den Record erst nach dem Cache-Check gespeichert.
type racingCache struct {
	*storage.RecordCache
	missed atomic.Bool
}

func (c *racingCache) Lookup(ctx context.Context, doi string) (*models.PaperRecord, error) {
	if c.missed.CompareAndSwap(false, true) {
		return nil, nil
	}
	return c.RecordCache.Lookup(ctx, doi)
}

func TestResolvePersistConflictReturnsStoredRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stored := wileyExtraction()
	stored.DOI = wileyDOI
	stored.Title = "Stored first"
	if _, err := f.cache.Store(ctx, stored); err != nil {
		t.Fatal(err)
	}
	f.resolver.Cache = &racingCache{RecordCache: f.cache}

	rec, err := f.resolver.Resolve(ctx, models.DOIRequest(wileyDOI))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rec.Title != "Stored first" {
		t.Errorf("Title = %q, want the stored record", rec.Title)
	}
	if n := len(f.extract.Calls()); n != 1 {
		t.Errorf("extract calls = %d, want 1", n)
	}
	if got := testutil.ToFloat64(f.metrics.ReferencesStored); got != 0 {
		t.Errorf("references stored = %v, want 0", got)
	}
}

func TestResolveConcurrentSameDOI(t *testing.T) {
	f := newFixture(t, nil)
	f.extract.records[wileyURL] = wileyExtraction()

	const n = 8
	var wg sync.WaitGroup
	results := make([]*models.PaperRecord, n)
	errList := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errList[i] = f.resolver.Resolve(context.Background(), models.DOIRequest(wileyDOI))
		}()
	}
	wg.Wait()

	for i := range n {
		if errList[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errList[i])
		}
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Errorf("goroutine %d saw a different record (-0 +%d):\n%s", i, i, diff)
		}
	}
	if got := countPapers(t, f.cache); got != 1 {
		t.Errorf("papers = %d, want 1", got)
	}
}
