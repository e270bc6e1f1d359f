package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TreatmentCategory is the closed organic/inorganic tag of a treatment.
type TreatmentCategory string

const (
	CategoryOrganic   TreatmentCategory = "organic"
	CategoryInorganic TreatmentCategory = "inorganic"
)

// ParseCategory normalizes s ("Organic", " inorganic ") to a known category.
func ParseCategory(s string) (TreatmentCategory, error) {
	switch c := TreatmentCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryOrganic, CategoryInorganic:
		return c, nil
	default:
		return "", fmt.Errorf("unknown treatment category %q: want organic|inorganic", s)
	}
}

func (c TreatmentCategory) Valid() bool {
	return c == CategoryOrganic || c == CategoryInorganic
}

// UnmarshalJSON accepts any letter case. Unknown values are kept verbatim
// so the ranker can report them against the offending treatment index.
func (c *TreatmentCategory) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if parsed, err := ParseCategory(s); err == nil {
		*c = parsed
		return nil
	}
	*c = TreatmentCategory(s)
	return nil
}

// Treatment is a candidate disease treatment.
type Treatment struct {
	Name          string            `json:"name" yaml:"name"`
	Category      TreatmentCategory `json:"category" yaml:"category"`
	Effectiveness float64           `json:"effectiveness" yaml:"effectiveness"` // fraction of potential loss prevented
	Cost          float64           `json:"cost" yaml:"cost"`                   // currency/ha
}
