package europepmc

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SearchResponse ist die Top-Level-Struktur der Europe PMC API-Antwort.
type SearchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article repräsentiert einen einzelnen Artikel in der API-Antwort (resultType=core).
type Article struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	PMID                 string `json:"pmid"`
	PMCID                string `json:"pmcid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"`
	JournalTitle         string `json:"journalTitle"`
	PubYear              string `json:"pubYear"`
	PageInfo             string `json:"pageInfo"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	AbstractText         string `json:"abstractText"`
	JournalInfo          struct {
		Volume               string `json:"volume"`
		Issue                string `json:"issue"`
		PrintPublicationDate string `json:"printPublicationDate"`
		Journal              struct {
			Title           string `json:"title"`
			ISOAbbreviation string `json:"isoabbreviation"`
		} `json:"journal"`
	} `json:"journalInfo"`
	AuthorList struct {
		Author []Author `json:"author"`
	} `json:"authorList"`
	KeywordList struct {
		Keyword []string `json:"keyword"`
	} `json:"keywordList"`
	FullTextURLList struct {
		FullTextURL []FullTextURL `json:"fullTextUrl"`
	} `json:"fullTextUrlList"`
	PubTypeList struct {
		PubType []string `json:"pubType"`
	} `json:"pubTypeList"`
	IsOpenAccess  string `json:"isOpenAccess"`
	HasReferences string `json:"hasReferences"`
}

// Author ist ein Autor im core-Format. Ältere Datensätze tragen die Affiliation als einfachen String.
type Author struct {
	FullName                     string `json:"fullName"`
	FirstName                    string `json:"firstName"`
	LastName                     string `json:"lastName"`
	Initials                     string `json:"initials"`
	Affiliation                  string `json:"affiliation"`
	AuthorAffiliationDetailsList struct {
		AuthorAffiliation []struct {
			Affiliation string `json:"affiliation"`
		} `json:"authorAffiliation"`
	} `json:"authorAffiliationDetailsList"`
}

// FullTextURL repräsentiert einen einzelnen Volltext-Link.
type FullTextURL struct {
	Availability     string `json:"availability"`
	AvailabilityCode string `json:"availabilityCode"`
	DocumentStyle    string `json:"documentStyle"`
	Site             string `json:"site"`
	URL              string `json:"url"`
}

// ReferencesResponse ist die Antwort von /{source}/{id}/references.
type ReferencesResponse struct {
	HitCount      int `json:"hitCount"`
	ReferenceList struct {
		Reference []Reference `json:"reference"`
	} `json:"referenceList"`
}

// Reference ist ein Eintrag der Literaturliste.
type Reference struct {
	ID                  string     `json:"id"`
	Source              string     `json:"source"`
	CitationType        string     `json:"citationType"`
	Title               string     `json:"title"`
	AuthorString        string     `json:"authorString"`
	JournalAbbreviation string     `json:"journalAbbreviation"`
	Volume              flexString `json:"volume"`
	Issue               flexString `json:"issue"`
	PubYear             flexString `json:"pubYear"`
	PageInfo            string     `json:"pageInfo"`
	DOI                 string     `json:"doi"`
	CitedOrder          int        `json:"citedOrder"`
}

// flexString akzeptiert JSON-Strings und -Zahlen (pubYear kommt je nach Datensatz in beiden Formen).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(b)
	return nil
}
