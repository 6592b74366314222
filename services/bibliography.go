package services

import (
	"fmt"
	"regexp"
	"strings"

	"ref-resolver/models"
)

var yearRegex = regexp.MustCompile(`\b(1[5-9]|20)\d{2}\b`)

// CitationQuery rendert eine Referenz als kompakten Zitationstext für die Zitations-Suche:
// "Authors (Year). Title. Journal Volume(Issue), Pages."
// Ohne Titel gibt es nichts Sinnvolles zu suchen, dann ist das Ergebnis leer.
func CitationQuery(r models.ReferenceRecord) string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return ""
	}

	var b strings.Builder
	if authors := strings.TrimSpace(r.Authors); authors != "" {
		b.WriteString(authors)
		switch year := yearRegex.FindString(r.Date); {
		case year != "":
			fmt.Fprintf(&b, " (%s). ", year)
		case strings.HasSuffix(authors, "."):
			b.WriteString(" ")
		default:
			b.WriteString(". ")
		}
	} else if year := yearRegex.FindString(r.Date); year != "" {
		fmt.Fprintf(&b, "(%s). ", year)
	}
	b.WriteString(strings.TrimSuffix(title, "."))
	b.WriteString(".")

	var venue []string
	if journal := strings.TrimSpace(r.Publication); journal != "" {
		venue = append(venue, journal)
	}
	if vol := strings.TrimSpace(r.Volume); vol != "" {
		if issue := strings.TrimSpace(r.Issue); issue != "" {
			vol += "(" + issue + ")"
		}
		venue = append(venue, vol)
	}
	if len(venue) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(venue, " "))
		if pages := strings.TrimSpace(r.Pages); pages != "" {
			b.WriteString(", ")
			b.WriteString(pages)
		}
		b.WriteString(".")
	}
	return b.String()
}
