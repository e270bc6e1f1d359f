// Package economics ranks disease treatments by their return on investment.
package economics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
)

// ErrInvalidInput is matched by every *InvalidInputError.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError names the field that broke the ranking contract.
type InvalidInputError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field string, v any, reason string) error {
	return &InvalidInputError{Field: field, Value: v, Reason: reason}
}

// inUnit reports whether v is in [0,1]. NaN is rejected.
func inUnit(v float64) bool { return v >= 0 && v <= 1 }

// RankTreatments projects the loss caused by a disease of the given severity
// and ranks treatments by ROI, highest first. Equal ROIs keep input order.
//
// Inputs are validated before anything is computed: on error no ranking is returned.
func RankTreatments(profile entities.CropEconomicProfile, severity float64, treatments []entities.Treatment) (entities.Ranking, error) {
	if err := validate(profile, severity, treatments); err != nil {
		return entities.Ranking{}, err
	}

	yieldLoss := profile.ExpectedYield * severity
	out := entities.Ranking{
		YieldLoss:           yieldLoss,
		YieldLossPercentage: severity * 100,
		RevenueLoss:         yieldLoss * profile.PricePerUnit,
		Ranked:              make([]entities.TreatmentAnalysis, 0, len(treatments)),
	}

	for _, t := range treatments {
		out.Ranked = append(out.Ranked, analyze(t, yieldLoss, profile.PricePerUnit))
	}
	sort.SliceStable(out.Ranked, func(i, j int) bool { return out.Ranked[i].ROI > out.Ranked[j].ROI })
	return out, nil
}

func analyze(t entities.Treatment, yieldLoss, price float64) entities.TreatmentAnalysis {
	saved := yieldLoss * t.Effectiveness
	revenue := saved * price
	net := revenue - t.Cost
	var roi float64
	if t.Cost > 0 {
		roi = net / t.Cost
	}
	return entities.TreatmentAnalysis{
		Name:         t.Name,
		Category:     t.Category,
		Cost:         t.Cost,
		SavedYield:   saved,
		SavedRevenue: revenue,
		NetBenefit:   net,
		ROI:          roi,
	}
}

func validate(p entities.CropEconomicProfile, severity float64, ts []entities.Treatment) error {
	if !inUnit(severity) {
		return invalid("severity", severity, "must be within [0,1]")
	}
	if !(p.ExpectedYield > 0) {
		return invalid("expected_yield", p.ExpectedYield, "must be greater than 0")
	}
	if !(p.PricePerUnit >= 0) {
		return invalid("price_per_unit", p.PricePerUnit, "must not be negative")
	}
	for i, t := range ts {
		if !t.Category.Valid() {
			return invalid(fmt.Sprintf("treatments[%d].category", i), string(t.Category), "want organic|inorganic")
		}
		if !inUnit(t.Effectiveness) {
			return invalid(fmt.Sprintf("treatments[%d].effectiveness", i), t.Effectiveness, "must be within [0,1]")
		}
		if !(t.Cost >= 0) {
			return invalid(fmt.Sprintf("treatments[%d].cost", i), t.Cost, "must not be negative")
		}
	}
	return nil
}
