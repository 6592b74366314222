package models

// PaperReference modelliert eine geordnete Kante: Paper zitiert Reference an Position Ordering.
type PaperReference struct {
	ID uint `json:"id" gorm:"primaryKey"`

	PaperID     uint `json:"paper_id" gorm:"not null;uniqueIndex:idx_paper_references_order,priority:1"`
	Ordering    int  `json:"ordering" gorm:"not null;uniqueIndex:idx_paper_references_order,priority:2"`
	ReferenceID uint `json:"reference_id" gorm:"not null;index"`

	Reference Reference `json:"reference" gorm:"foreignKey:ReferenceID"`
}

func (PaperReference) TableName() string { return "paper_references" }
