package model

// Claim is an atomic assertion extracted from a backstory
type Claim struct {
	Text     string `json:"text"`     // The claim text itself
	Position int    `json:"position"` // Claim index within the parent backstory (0-based)
}

// Example is one backstory-plus-source-document unit subject to a consistency decision
type Example struct {
	ID        string `json:"id"`
	Book      string `json:"book"`      // Source document name as given in the input row
	Backstory string `json:"backstory"` // Free-text backstory to check
	Label     string `json:"label,omitempty"`
	HasLabel  bool   `json:"has_label"` // Whether a gold label was provided
}

// GoldConsistent is the literal gold label string that encodes a consistent example
const GoldConsistent = "consistent"

// Binary label encoding used by the classifier
const (
	LabelInconsistent = 0
	LabelConsistent   = 1
)

// EncodeLabel converts a gold label string to its binary encoding.
// Only the literal "consistent" maps to 1; anything else maps to 0.
func EncodeLabel(gold string) int {
	if gold == GoldConsistent {
		return LabelConsistent
	}
	return LabelInconsistent
}

// Target returns the binary training target for the example
func (e Example) Target() int {
	return EncodeLabel(e.Label)
}
