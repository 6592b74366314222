package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"ref-resolver/errs"
	"ref-resolver/models"
	"ref-resolver/providers"
	"ref-resolver/providers/highwire"
)

const dispatchPage = `<html><head>
<meta name="citation_title" content=" Genome editing with Cas9 ">
<meta name="citation_author" content="Senís, Elena">
<meta name="citation_author_institution" content="Univ B">
<meta name="citation_author_institution" content="Univ A">
<meta name="citation_author" content="  ">
<meta name="citation_journal_title" content="Biotechnology Journal">
<meta name="citation_doi" content="doi:10.1002/BIOT.201400046">
<meta name="citation_reference" content="citation_title=First; citation_doi=10.1038/NMETH.2649">
<meta name="citation_reference" content="citation_title=Second; citation_pmid=123">
<meta name="citation_reference" content="Third reference as free text">
%s
</head><body></body></html>`

func newArticleServer(t *testing.T, pdfMeta string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, dispatchPage, pdfMeta)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

type fakeLinker struct {
	link  string
	err   error
	calls []string
}

func (f *fakeLinker) GetPDFLink(_ context.Context, doi string) (string, error) {
	f.calls = append(f.calls, doi)
	return f.link, f.err
}

type stubStrategy struct {
	entry    providers.Entry
	refs     []map[string]string
	pdf      string
	entryErr error
	refsErr  error
	pages    []*providers.Page
}

func (s *stubStrategy) ExtractEntry(_ context.Context, p *providers.Page) (providers.Entry, error) {
	s.pages = append(s.pages, p)
	return s.entry, s.entryErr
}

func (s *stubStrategy) ExtractReferences(_ context.Context, p *providers.Page) ([]map[string]string, error) {
	return s.refs, s.refsErr
}

func (s *stubStrategy) ExtractPDFLink(_ context.Context, p *providers.Page) (string, error) {
	return s.pdf, nil
}

type remoteStub struct{ stubStrategy }

func (remoteStub) RemoteBacked() {}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(http.DefaultClient, zaptest.NewLogger(t))
	d.Metrics = NewMetrics(prometheus.NewRegistry())
	d.Register("wiley", highwire.NewStrategy(zaptest.NewLogger(t)))
	return d
}

func TestDispatcherExtract(t *testing.T) {
	ts := newArticleServer(t, `<meta name="citation_pdf_url" content="/pdf/a.pdf">`)
	d := newTestDispatcher(t)
	fallback := &fakeLinker{link: "https://unused.example/a.pdf"}
	d.PDFFallback = fallback

	rec, err := d.Extract(context.Background(), ts.URL+"/article", models.PublisherProfile{ScraperID: "Wiley"})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	want := &models.PaperRecord{
		DOI:         "10.1002/biot.201400046",
		Title:       "Genome editing with Cas9",
		Authors:     []models.AuthorInfo{{Name: "Senís, Elena", Affiliations: []string{"Univ A", "Univ B"}}},
		Publication: "Biotechnology Journal",
		URL:         ts.URL + "/article",
		PDFLink:     ts.URL + "/pdf/a.pdf",
		PublisherID: "Wiley",
		References: []models.ReferenceRecord{
			{Ordering: 1, Title: "First", DOI: "10.1038/nmeth.2649"},
			{Ordering: 2, Title: "Second", ExternalIDs: map[string]string{"pubmed": "123"}},
			{Ordering: 3, Title: "Third reference as free text"},
		},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
	if len(fallback.calls) != 0 {
		t.Errorf("PDF fallback called although the page had a link: %v", fallback.calls)
	}
	if n := testutil.CollectAndCount(d.Metrics.DispatchDuration); n != 1 {
		t.Errorf("dispatch duration series = %d, want 1", n)
	}
}

func TestDispatcherPDFFallback(t *testing.T) {
	ts := newArticleServer(t, "")

	t.Run("link", func(t *testing.T) {
		d := newTestDispatcher(t)
		fallback := &fakeLinker{link: "https://oa.example/biot.pdf"}
		d.PDFFallback = fallback

		rec, err := d.Extract(context.Background(), ts.URL+"/article", models.PublisherProfile{ScraperID: "wiley"})
		if err != nil {
			t.Fatal(err)
		}
		if rec.PDFLink != "https://oa.example/biot.pdf" {
			t.Errorf("PDFLink = %q", rec.PDFLink)
		}
		if diff := cmp.Diff([]string{"10.1002/biot.201400046"}, fallback.calls); diff != "" {
			t.Errorf("fallback calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failure is not fatal", func(t *testing.T) {
		d := newTestDispatcher(t)
		d.PDFFallback = &fakeLinker{err: fmt.Errorf("%w: unpaywall down", errs.ErrServiceUnavailable)}

		rec, err := d.Extract(context.Background(), ts.URL+"/article", models.PublisherProfile{ScraperID: "wiley"})
		if err != nil {
			t.Fatalf("Extract() error: %v", err)
		}
		if rec.PDFLink != "" {
			t.Errorf("PDFLink = %q, want empty", rec.PDFLink)
		}
	})
}

func TestDispatcherErrors(t *testing.T) {
	ts := newArticleServer(t, "")
	missing := ts.URL + "/gone"

	tests := []struct {
		name     string
		scraper  string
		strategy providers.Strategy
		url      string
		want     error
	}{
		{"unregistered scraper", "nature", nil, ts.URL + "/article", errs.ErrScraperUnavailable},
		{"page not found", "wiley", nil, missing, errs.ErrServiceUnavailable},
		{"entry fails", "stub", &stubStrategy{entryErr: errors.New("no title")}, ts.URL + "/article", errs.ErrExtraction},
		{"references fail", "stub", &stubStrategy{refsErr: errors.New("bad markup")}, ts.URL + "/article", errs.ErrExtraction},
		{"remote service down", "stub", &remoteStub{stubStrategy{entryErr: fmt.Errorf("%w: efetch 503", errs.ErrServiceUnavailable)}}, ts.URL + "/article", errs.ErrServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDispatcher(t)
			if tc.strategy != nil {
				d.Register(tc.scraper, tc.strategy)
			}
			rec, err := d.Extract(context.Background(), tc.url, models.PublisherProfile{ScraperID: tc.scraper})
			if !errors.Is(err, tc.want) {
				t.Errorf("Extract() = %+v, %v; want %v", rec, err, tc.want)
			}
		})
	}
}

func TestDispatcherRemoteStrategySkipsPageFetch(t *testing.T) {
	d := newTestDispatcher(t)
	remote := &remoteStub{stubStrategy{
		entry: providers.Entry{Fields: map[string]string{"title": "From the API", "doi": "10.1000/api"}},
		pdf:   "https://api.example/paper.pdf",
	}}
	d.Register("api", remote)

	// die URL ist nicht erreichbar; ein Seitenabruf würde scheitern
	rec, err := d.Extract(context.Background(), "http://127.0.0.1:1/paper/42", models.PublisherProfile{ScraperID: "api"})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if rec.Title != "From the API" || rec.DOI != "10.1000/api" || rec.PDFLink != "https://api.example/paper.pdf" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(remote.pages) != 1 || remote.pages[0].Body != nil {
		t.Errorf("remote strategy got pages %+v, want one empty page", remote.pages)
	}
}

func TestDispatcherRegistered(t *testing.T) {
	d := NewDispatcher(http.DefaultClient, zaptest.NewLogger(t))
	d.Register("Wiley", &stubStrategy{})
	d.Register("acs", &stubStrategy{})
	d.Register("wiley", &stubStrategy{})

	if diff := cmp.Diff([]string{"acs", "wiley"}, d.Registered()); diff != "" {
		t.Errorf("Registered() mismatch (-want +got):\n%s", diff)
	}
}
