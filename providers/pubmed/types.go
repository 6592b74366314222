// Package pubmed enthält die Logik für die Interaktion mit der PubMed/PMC API.
package pubmed

import (
	"encoding/xml"
)

// IDConvResponse repräsentiert die JSON-Antwort des PMC ID Converters.
type IDConvResponse struct {
	Records []struct {
		PMCID string `json:"pmcid"`
	} `json:"records"`
}

// OAResponse repräsentiert die XML-Antwort des PMC Open Access Interface.
type OAResponse struct {
	XMLName xml.Name   `xml:"OA"`
	Error   string     `xml:"error"`
	Records []OARecord `xml:"records>record"`
}

// OARecord repräsentiert einen einzelnen Record im OA-Feed.
type OARecord struct {
	Links []OALink `xml:"link"`
}

// OALink repräsentiert einen Download-Link im OA-Record.
type OALink struct {
	Format string `xml:"format,attr"`
	Href   string `xml:"href,attr"`
}

// PubmedArticleSet repräsentiert das gesamte XML-Dokument von efetch.
type PubmedArticleSet struct {
	XMLName       xml.Name        `xml:"PubmedArticleSet"`
	PubmedArticle []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle repräsentiert einen einzelnen Artikel in der XML-Antwort.
type PubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Text []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []Author `xml:"AuthorList>Author"`
			Journal struct {
				Title           string `xml:"Title"`
				ISOAbbreviation string `xml:"ISOAbbreviation"`
				JournalIssue    struct {
					Volume  string  `xml:"Volume"`
					Issue   string  `xml:"Issue"`
					PubDate PubDate `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Pagination struct {
				MedlinePgn string `xml:"MedlinePgn"`
			} `xml:"Pagination"`
			ELocationID []struct {
				IDType  string `xml:"EIdType,attr"`
				ValidYN string `xml:"ValidYN,attr"`
				Value   string `xml:",chardata"`
			} `xml:"ELocationID"`
		} `xml:"Article"`
		KeywordList []struct {
			Keyword []string `xml:"Keyword"`
		} `xml:"KeywordList"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs    []ArticleID `xml:"ArticleIdList>ArticleId"`
		ReferenceList []struct {
			Reference []Reference `xml:"Reference"`
		} `xml:"ReferenceList"`
	} `xml:"PubmedData"`
}

// PubDate ist das Publikationsdatum; MedlineDate trägt Freitext wie "2014 Nov-Dec".
type PubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

// Author ist ein Eintrag der AuthorList.
type Author struct {
	LastName        string `xml:"LastName"`
	ForeName        string `xml:"ForeName"`
	Initials        string `xml:"Initials"`
	CollectiveName  string `xml:"CollectiveName"`
	AffiliationInfo []struct {
		Affiliation string `xml:"Affiliation"`
	} `xml:"AffiliationInfo"`
}

// ArticleID ist eine externe Kennung (pubmed, pmc, doi, pii, ...).
type ArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// Reference ist ein Eintrag der ReferenceList: Freitext-Zitation plus Kennungen.
type Reference struct {
	Citation   string      `xml:"Citation"`
	ArticleIDs []ArticleID `xml:"ArticleIdList>ArticleId"`
}
