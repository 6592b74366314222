package services

import (
	"testing"

	"ref-resolver/models"
)

func TestCitationQuery(t *testing.T) {
	tests := []struct {
		name string
		ref  models.ReferenceRecord
		want string
	}{
		{
			name: "full",
			ref: models.ReferenceRecord{
				Title: "Cas9 as a versatile tool.", Authors: "Mali, P., Esvelt, K.",
				Date: "2013/09/01", Publication: "Nat. Methods", Volume: "10", Issue: "10", Pages: "957-963",
			},
			want: "Mali, P., Esvelt, K. (2013). Cas9 as a versatile tool. Nat. Methods 10(10), 957-963.",
		},
		{
			name: "year without authors",
			ref:  models.ReferenceRecord{Title: "Genome engineering", Date: "published 2014"},
			want: "(2014). Genome engineering.",
		},
		{
			name: "title only",
			ref:  models.ReferenceRecord{Title: "  Unstructured reference text  "},
			want: "Unstructured reference text.",
		},
		{
			name: "pages need a venue",
			ref:  models.ReferenceRecord{Title: "T", Pages: "1-2", Date: "n.d."},
			want: "T.",
		},
		{
			name: "initials without year",
			ref:  models.ReferenceRecord{Title: "Unrelated work", Authors: "Roe, R."},
			want: "Roe, R. Unrelated work.",
		},
		{
			name: "no title",
			ref:  models.ReferenceRecord{Authors: "Anonymous", Date: "2001"},
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CitationQuery(tc.ref); got != tc.want {
				t.Errorf("CitationQuery() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.observeResolution(models.KindDOI, "resolved")
	m.cacheHit()
	m.observeDispatch("wiley", 0)
	m.referencesStored(3)
}
