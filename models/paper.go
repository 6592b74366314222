package models

import (
	"time"

	"gorm.io/datatypes"
)

// Paper ist die Cache-Zeile eines aufgelösten Artikels. Pro DOI existiert höchstens eine Zeile;
// DOI ist nullable, damit DOI-lose Records den Unique-Index nicht blockieren.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	DOI         *string `json:"doi,omitempty" gorm:"column:doi;uniqueIndex;size:512"`
	URL         string  `json:"url" gorm:"column:url;size:2048"`
	Title       string  `json:"title" gorm:"type:text"`
	Publication string  `json:"publication,omitempty"`
	Date        string  `json:"date,omitempty"`
	Volume      string  `json:"volume,omitempty"`
	Issue       string  `json:"issue,omitempty"`
	Pages       string  `json:"pages,omitempty"`
	Abstract    string  `json:"abstract,omitempty" gorm:"type:text"`
	Keywords    string  `json:"keywords,omitempty" gorm:"type:text"`
	PDFLink     string  `json:"pdf_link,omitempty"`
	PublisherID string  `json:"publisher_id" gorm:"index"`

	// CanonicalURL ist der Lookup-Schlüssel für DOI-lose Records (identifier.CanonicalURL).
	CanonicalURL string `json:"-" gorm:"column:canonical_url;index;size:2048"`

	// RequestURL hält die kanonische Form der angefragten URL, wenn sie von URL abweicht.
	RequestURL string `json:"-" gorm:"column:request_url;index;size:2048"`

	Authors []PaperAuthor `json:"authors,omitempty" gorm:"foreignKey:PaperID"`
}

func (Paper) TableName() string { return "papers" }

// PaperAuthor gehört zu genau einem Paper; Position hält die Autorenreihenfolge.
type PaperAuthor struct {
	ID           uint                        `json:"id" gorm:"primaryKey"`
	PaperID      uint                        `json:"paper_id" gorm:"index;not null"`
	Position     int                         `json:"position"`
	Name         string                      `json:"name"`
	Affiliations datatypes.JSONSlice[string] `json:"affiliations"`
	Email        string                      `json:"email,omitempty"`
}

func (PaperAuthor) TableName() string { return "paper_authors" }

// Reference ist eine (dedupliziert gespeicherte) Literaturangabe. ResolvedPaperID zeigt
// auf den Cache-Eintrag derselben DOI, sobald einer existiert.
type Reference struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	DOI         *string `json:"doi,omitempty" gorm:"column:doi;index;size:512"`
	TitleKey    string  `json:"-" gorm:"column:title_key;index;type:text"`
	Title       string  `json:"title" gorm:"type:text"`
	Authors     string  `json:"authors,omitempty" gorm:"type:text"`
	Publication string  `json:"publication,omitempty"`
	Volume      string  `json:"volume,omitempty"`
	Issue       string  `json:"issue,omitempty"`
	Pages       string  `json:"pages,omitempty"`
	Date        string  `json:"date,omitempty"`

	ExternalIDs datatypes.JSONType[map[string]string] `json:"external_ids"`

	ResolvedPaperID *uint `json:"resolved_paper_id,omitempty" gorm:"index"`

	// Stand des Back-fills; BackfillError ist der errs.Kind des letzten Fehlschlags.
	BackfillAttemptedAt *time.Time `json:"-" gorm:"index"`
	BackfillError       string     `json:"-" gorm:"size:64"`
	BackfillTerminal    bool       `json:"-" gorm:"not null;default:false"`
}

func (Reference) TableName() string { return "references" }
