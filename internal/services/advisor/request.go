package advisor

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
	"github.com/LeonardoBeccarini/cropgenius/internal/services/economics"
)

// rankRequest is the wire shape of POST /treatments/rank. Numeric fields are
// pointers so that a missing value is reported instead of read as zero.
type rankRequest struct {
	FieldID       string   `json:"field_id"`
	CropType      string   `json:"crop_type"`
	Disease       string   `json:"disease"`
	ExpectedYield *float64 `json:"expected_yield"`
	PricePerUnit  *float64 `json:"price_per_unit"`
	Severity      *float64 `json:"severity"`
	Treatments    []struct {
		Name          string                     `json:"name"`
		Category      entities.TreatmentCategory `json:"category"`
		Effectiveness *float64                   `json:"effectiveness"`
		Cost          *float64                   `json:"cost"`
	} `json:"treatments"`
}

func required(field string) error {
	return &economics.InvalidInputError{Field: field, Value: nil, Reason: "is required"}
}

// ParseRankRequest decodes a ranking request. Missing required fields are
// reported as economics.ErrInvalidInput; range checks are left to the ranker.
func ParseRankRequest(r io.Reader, source string) (RankInput, error) {
	var req rankRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return RankInput{}, fmt.Errorf("decode rank request: %w", err)
	}

	switch {
	case req.ExpectedYield == nil:
		return RankInput{}, required("expected_yield")
	case req.PricePerUnit == nil:
		return RankInput{}, required("price_per_unit")
	case req.Severity == nil:
		return RankInput{}, required("severity")
	}

	in := RankInput{
		Source:   source,
		FieldID:  req.FieldID,
		CropType: req.CropType,
		Disease:  req.Disease,
		Profile: entities.CropEconomicProfile{
			CropType:      req.CropType,
			ExpectedYield: *req.ExpectedYield,
			PricePerUnit:  *req.PricePerUnit,
		},
		Severity:   *req.Severity,
		Treatments: make([]entities.Treatment, 0, len(req.Treatments)),
	}
	for i, t := range req.Treatments {
		if t.Effectiveness == nil {
			return RankInput{}, required(fmt.Sprintf("treatments[%d].effectiveness", i))
		}
		if t.Cost == nil {
			return RankInput{}, required(fmt.Sprintf("treatments[%d].cost", i))
		}
		in.Treatments = append(in.Treatments, entities.Treatment{
			Name:          t.Name,
			Category:      t.Category,
			Effectiveness: *t.Effectiveness,
			Cost:          *t.Cost,
		})
	}
	return in, nil
}
