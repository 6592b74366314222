package europepmc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"ref-resolver/config"
	"ref-resolver/errs"
	"ref-resolver/models"
	"ref-resolver/providers"
)

const coreRecord = `{"hitCount": 1, "resultList": {"result": [{
	"id": "25123456", "source": "MED", "pmid": "25123456", "pmcid": "PMC4200000",
	"doi": "10.1002/biot.201400046",
	"title": "Metabolic engineering of yeast.",
	"pageInfo": "1-12",
	"firstPublicationDate": "2014-08-14",
	"abstractText": "We engineered yeast.",
	"journalInfo": {"volume": "9", "issue": "11", "journal": {"title": "Biotechnology journal"}},
	"authorList": {"author": [
		{"fullName": "Doe J", "authorAffiliationDetailsList": {"authorAffiliation": [{"affiliation": "Univ B"}, {"affiliation": "Univ A"}]}},
		{"firstName": "Max", "lastName": "Muster", "affiliation": "Lab C"}
	]},
	"keywordList": {"keyword": ["yeast", "metabolic engineering"]},
	"fullTextUrlList": {"fullTextUrl": [
		{"availabilityCode": "S", "documentStyle": "pdf", "url": "https://publisher.example/sub.pdf"},
		{"availabilityCode": "OA", "documentStyle": "pdf", "url": "https://europepmc.org/oa.pdf"}
	]},
	"isOpenAccess": "Y",
	"hasReferences": "Y"
}]}}`

const referencesBody = `{"hitCount": 3, "referenceList": {"reference": [
	{"id": "111", "source": "MED", "title": "Second", "citedOrder": 2, "pubYear": 2001, "volume": "4"},
	{"title": "First", "authorString": "Roe R", "journalAbbreviation": "J Biol", "citedOrder": 1, "pubYear": "1999", "doi": "10.1000/first"},
	{"id": "PMC9", "source": "PMC", "title": "Third", "citedOrder": 3}
]}}`

func newServer(t *testing.T, hits map[string]int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		switch {
		case r.URL.Path == "/search" && r.URL.Query().Get("resultType") == "core":
			if !strings.Contains(r.URL.Query().Get("query"), "25123456") && !strings.Contains(r.URL.Query().Get("query"), "DOI:") {
				w.Write([]byte(`{"hitCount": 0, "resultList": {"result": []}}`))
				return
			}
			w.Write([]byte(coreRecord))
		case r.URL.Path == "/search":
			w.Write([]byte(`{"hitCount": 3, "resultList": {"result": [
				{"id": "1", "doi": "10.1000/A", "title": "A"},
				{"id": "2", "title": "no doi"},
				{"id": "3", "doi": "10.1000/c", "title": "C"}
			]}}`))
		case r.URL.Path == "/MED/25123456/references":
			w.Write([]byte(referencesBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(url string) *config.Config {
	return &config.Config{EuropePMCBaseURL: url, SearchRateLimit: 100}
}

func TestSearchRankDerivedScore(t *testing.T) {
	ts := newServer(t, map[string]int{})
	f := NewFetcher(testConfig(ts.URL), ts.Client(), zaptest.NewLogger(t))

	got, err := f.Search(context.Background(), "yeast engineering 2014")
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Candidate{
		{DOI: "10.1000/a", Title: "A", Score: 3},
		{DOI: "10.1000/c", Title: "C", Score: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hitCount": 0, "resultList": {"result": []}}`))
	}))
	defer ts.Close()
	f := NewFetcher(testConfig(ts.URL), ts.Client(), zaptest.NewLogger(t))
	if _, err := f.Search(context.Background(), "qwertzuiop"); !errors.Is(err, errs.ErrNoMatchFound) {
		t.Errorf("err = %v", err)
	}
}

func TestStrategyExtractsArticle(t *testing.T) {
	hits := map[string]int{}
	ts := newServer(t, hits)
	s := NewStrategy(testConfig(ts.URL), ts.Client(), zaptest.NewLogger(t))
	page := &providers.Page{URL: "https://europepmc.org/article/MED/25123456"}
	ctx := context.Background()

	entry, err := s.ExtractEntry(ctx, page)
	if err != nil {
		t.Fatalf("ExtractEntry() error: %v", err)
	}
	if entry.Fields["title"] != "Metabolic engineering of yeast." || entry.Fields["doi"] != "10.1002/biot.201400046" {
		t.Errorf("fields = %v", entry.Fields)
	}
	if entry.Fields["publication"] != "Biotechnology journal" || entry.Fields["keywords"] != "yeast, metabolic engineering" {
		t.Errorf("fields = %v", entry.Fields)
	}
	wantAuthors := []models.AuthorInfo{
		{Name: "Doe J", Affiliations: []string{"Univ B", "Univ A"}},
		{Name: "Max Muster", Affiliations: []string{"Lab C"}},
	}
	if diff := cmp.Diff(wantAuthors, entry.Authors); diff != "" {
		t.Errorf("authors mismatch (-want +got):\n%s", diff)
	}

	refs, err := s.ExtractReferences(ctx, page)
	if err != nil {
		t.Fatalf("ExtractReferences() error: %v", err)
	}
	var titles []string
	for _, r := range refs {
		titles = append(titles, r["title"])
	}
	if diff := cmp.Diff([]string{"First", "Second", "Third"}, titles); diff != "" {
		t.Errorf("reference order mismatch:\n%s", diff)
	}
	if refs[0]["doi"] != "10.1000/first" || refs[0]["date"] != "1999" || refs[1]["date"] != "2001" {
		t.Errorf("refs = %v", refs)
	}
	if refs[1]["pubmed"] != "111" || refs[2]["pubmed_central"] != "PMC9" {
		t.Errorf("external ids = %v / %v", refs[1], refs[2])
	}

	pdf, err := s.ExtractPDFLink(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	if pdf != "https://europepmc.org/oa.pdf" {
		t.Errorf("pdf = %q", pdf)
	}

	if hits["/search"] != 1 {
		t.Errorf("core record fetched %d times, want 1", hits["/search"])
	}
}

func TestStrategyUnknownArticle(t *testing.T) {
	ts := newServer(t, map[string]int{})
	s := NewStrategy(testConfig(ts.URL), ts.Client(), zaptest.NewLogger(t))

	if _, err := s.ExtractEntry(context.Background(), &providers.Page{URL: "https://europepmc.org/article/MED/1"}); err == nil {
		t.Error("expected error for unknown record")
	}
	if _, err := s.ExtractEntry(context.Background(), &providers.Page{URL: "https://europepmc.org/grants"}); err == nil {
		t.Error("expected error for unsupported url")
	}
}

func TestQueryFromURL(t *testing.T) {
	tests := map[string]string{
		"https://europepmc.org/article/MED/25123456":               "EXT_ID:25123456 AND SRC:MED",
		"https://europepmc.org/abstract/med/1":                     "EXT_ID:1 AND SRC:MED",
		"https://europepmc.org/article/PMC/PMC4200000":             "PMCID:PMC4200000",
		"https://europepmc.org/search?query=DOI:10.1002/biot.2014": "DOI:10.1002/biot.2014",
	}
	for in, want := range tests {
		got, err := queryFromURL(in)
		if err != nil || got != want {
			t.Errorf("queryFromURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}
