package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"ref-resolver/models"
	"ref-resolver/services"
)

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(w io.Writer, rec *models.PaperRecord) {
	fmt.Fprintf(w, "%s\n", rec.Title)
	if rec.DOI != "" {
		fmt.Fprintf(w, "  DOI:       %s\n", rec.DOI)
	}
	names := make([]string, 0, len(rec.Authors))
	for _, a := range rec.Authors {
		names = append(names, a.Name)
	}
	if len(names) > 0 {
		fmt.Fprintf(w, "  Authors:   %s\n", strings.Join(names, "; "))
	}
	if rec.Publication != "" {
		fmt.Fprintf(w, "  Journal:   %s %s\n", rec.Publication, rec.Date)
	}
	fmt.Fprintf(w, "  URL:       %s\n", rec.URL)
	if rec.PDFLink != "" {
		fmt.Fprintf(w, "  PDF:       %s\n", rec.PDFLink)
	}
	fmt.Fprintf(w, "  Publisher: %s\n", rec.PublisherID)
	fmt.Fprintf(w, "  References: %d\n", len(rec.References))
}

func printReferences(w io.Writer, refs []models.ReferenceRecord) {
	for _, r := range refs {
		line := services.CitationQuery(r)
		if line == "" {
			line = "(untitled)"
		}
		if r.DOI != "" {
			line += " doi:" + r.DOI
		}
		fmt.Fprintf(w, "%3d. %s\n", r.Ordering, line)
	}
}

func printOutcomes(w io.Writer, outcomes []services.ReferenceOutcome) {
	for _, o := range outcomes {
		label := o.DOI
		if label == "" {
			label = o.Query
		}
		fmt.Fprintf(w, "%3d. [%s] %s\n", o.Ordering, o.Status, label)
	}
}
