package directory

import (
	"bytes"
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ref-resolver/identifier"
	"ref-resolver/models"
)

//go:embed data/publishers.csv data/prefixes.csv
var defaults embed.FS

// Table ist der Inhalt eines Publisher-Verzeichnisses: Profile in Ladereihenfolge
// plus die Tabelle DOI-Präfix -> Root-URL.
type Table struct {
	Profiles []models.PublisherProfile `yaml:"publishers"`
	Prefixes []PrefixEntry            `yaml:"prefixes"`
}

// PrefixEntry ordnet einem DOI-Präfix die Root-URL des Verlags zu.
type PrefixEntry struct {
	Prefix  string `yaml:"prefix"`
	RootURL string `yaml:"root_url"`
}

// DefaultTable liefert das eingebettete Standardverzeichnis.
func DefaultTable() (Table, error) {
	var t Table
	pub, err := defaults.ReadFile("data/publishers.csv")
	if err != nil {
		return t, err
	}
	if t.Profiles, err = ParseCSV(bytes.NewReader(pub)); err != nil {
		return t, fmt.Errorf("embedded publishers.csv: %w", err)
	}
	pre, err := defaults.ReadFile("data/prefixes.csv")
	if err != nil {
		return t, err
	}
	if t.Prefixes, err = ParsePrefixCSV(bytes.NewReader(pre)); err != nil {
		return t, fmt.Errorf("embedded prefixes.csv: %w", err)
	}
	return t, nil
}

// LoadTable lädt das Verzeichnis aus profilePath (CSV oder YAML) und optional einer
// separaten Präfix-CSV. Leere Pfade fallen auf das eingebettete Verzeichnis zurück.
// Eine YAML-Datei darf ihre eigene Präfix-Tabelle mitbringen.
func LoadTable(profilePath, prefixPath string) (Table, error) {
	t, err := DefaultTable()
	if err != nil {
		return t, err
	}

	if profilePath != "" {
		f, err := os.Open(profilePath)
		if err != nil {
			return t, err
		}
		defer f.Close()

		switch strings.ToLower(filepath.Ext(profilePath)) {
		case ".yaml", ".yml":
			y, err := ParseYAML(f)
			if err != nil {
				return t, fmt.Errorf("%s: %w", profilePath, err)
			}
			t.Profiles = y.Profiles
			if len(y.Prefixes) > 0 {
				t.Prefixes = y.Prefixes
			}
		default:
			if t.Profiles, err = ParseCSV(f); err != nil {
				return t, fmt.Errorf("%s: %w", profilePath, err)
			}
		}
	}

	if prefixPath != "" {
		f, err := os.Open(prefixPath)
		if err != nil {
			return t, err
		}
		defer f.Close()
		if t.Prefixes, err = ParsePrefixCSV(f); err != nil {
			return t, fmt.Errorf("%s: %w", prefixPath, err)
		}
	}
	return t, nil
}

// ParseCSV liest Profile mit den Spalten match_pattern, scraper, url_template, root_url[, redirect].
// Die Spaltenreihenfolge ergibt sich aus der Kopfzeile.
func ParseCSV(r io.Reader) ([]models.PublisherProfile, error) {
	rows, err := readCSV(r, "match_pattern", "scraper")
	if err != nil {
		return nil, err
	}
	profiles := make([]models.PublisherProfile, 0, len(rows))
	for i, row := range rows {
		p := models.PublisherProfile{
			MatchPattern:     row["match_pattern"],
			ScraperID:        row["scraper"],
			URLTemplate:      row["url_template"],
			RootURL:          row["root_url"],
			RedirectResolved: parseBool(row["redirect"]),
		}
		p, err := normalizeProfile(p)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// ParsePrefixCSV liest die Präfix-Tabelle mit den Spalten prefix, root_url.
func ParsePrefixCSV(r io.Reader) ([]PrefixEntry, error) {
	rows, err := readCSV(r, "prefix", "root_url")
	if err != nil {
		return nil, err
	}
	out := make([]PrefixEntry, 0, len(rows))
	for i, row := range rows {
		e, err := normalizePrefix(PrefixEntry{Prefix: row["prefix"], RootURL: row["root_url"]})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ParseYAML liest ein Verzeichnis im YAML-Format (Schlüssel "publishers" und "prefixes").
func ParseYAML(r io.Reader) (Table, error) {
	var t Table
	if err := yaml.NewDecoder(r).Decode(&t); err != nil {
		return t, err
	}
	for i, p := range t.Profiles {
		np, err := normalizeProfile(p)
		if err != nil {
			return t, fmt.Errorf("publisher %d: %w", i, err)
		}
		t.Profiles[i] = np
	}
	for i, e := range t.Prefixes {
		ne, err := normalizePrefix(e)
		if err != nil {
			return t, fmt.Errorf("prefix %d: %w", i, err)
		}
		t.Prefixes[i] = ne
	}
	return t, nil
}

func normalizeProfile(p models.PublisherProfile) (models.PublisherProfile, error) {
	p.MatchPattern = strings.ToLower(strings.TrimSpace(p.MatchPattern))
	p.ScraperID = strings.TrimSpace(p.ScraperID)
	p.URLTemplate = strings.TrimSpace(p.URLTemplate)
	p.RootURL = strings.TrimSpace(p.RootURL)
	if p.MatchPattern == "" || p.ScraperID == "" {
		return p, fmt.Errorf("match_pattern and scraper are required")
	}
	if p.URLTemplate == "" {
		// ohne Template bleibt nur der Weg über den DOI-Resolver
		p.RedirectResolved = true
	} else if !p.RedirectResolved && !strings.Contains(p.URLTemplate, "{doi}") {
		return p, fmt.Errorf("url_template %q has no {doi} placeholder", p.URLTemplate)
	}
	return p, nil
}

func normalizePrefix(e PrefixEntry) (PrefixEntry, error) {
	prefix, err := identifier.Prefix(e.Prefix)
	if err != nil {
		return e, err
	}
	if strings.TrimSpace(e.RootURL) == "" {
		return e, fmt.Errorf("prefix %s has no root_url", prefix)
	}
	return PrefixEntry{Prefix: prefix, RootURL: strings.TrimSpace(e.RootURL)}, nil
}

func readCSV(r io.Reader, required ...string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range required {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("missing column %q", req)
		}
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for name, idx := range cols {
			if idx < len(rec) {
				row[name] = strings.TrimSpace(rec[idx])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "x":
		return true
	}
	return false
}
