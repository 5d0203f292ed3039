package scoring

import (
	"strings"
	"time"

	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
)

// Category is a document category that contributes to the composite score.
type Category string

const (
	CategoryIdentity Category = "IDENTITY"
	CategoryIncome   Category = "INCOME"
	CategoryTax      Category = "TAX"
	CategoryBank     Category = "BANK"
)

// AllCategories lists the categories in their canonical order.
var AllCategories = []Category{CategoryIdentity, CategoryIncome, CategoryTax, CategoryBank}

func (c Category) IsValid() bool {
	switch c {
	case CategoryIdentity, CategoryIncome, CategoryTax, CategoryBank:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown document category %q", s)
	}
	return c, nil
}

// FallbackScore is the neutral score used when a document cannot be analyzed.
const FallbackScore = 50.0

// Document is one uploaded document awaiting scoring.
type Document struct {
	ID       id.DocumentID
	Category Category
	Content  []byte
}

// DocumentScore is the immutable result of scoring one document.
type DocumentScore struct {
	ID               id.DocumentID
	ApplicationID    id.ApplicationID
	Category         Category
	RawScore         float64
	SourceDocumentID id.DocumentID
	Fallback         bool
	ComputedAt       time.Time
}

// CompositeScore is the weighted aggregate of per-category scores. Categories
// with no documents are absent from CategoryScores.
type CompositeScore struct {
	ApplicationID  id.ApplicationID
	CategoryScores map[Category]float64
	WeightedTotal  float64
	ComputedAt     time.Time
}

// Has reports whether the category contributed at least one document.
func (c CompositeScore) Has(cat Category) bool {
	_, ok := c.CategoryScores[cat]
	return ok
}

// Categories returns the present categories in canonical order.
func (c CompositeScore) Categories() []Category {
	out := make([]Category, 0, len(c.CategoryScores))
	for _, cat := range AllCategories {
		if c.Has(cat) {
			out = append(out, cat)
		}
	}
	return out
}
