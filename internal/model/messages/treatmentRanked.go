package messages

import (
	"time"

	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
)

// TreatmentRankedEvent is published by the advisor with the ranked treatments for a detection.
type TreatmentRankedEvent struct {
	RunID        string                       `json:"run_id"`
	FieldID      string                       `json:"field_id"`
	CropType     string                       `json:"crop_type"`
	Disease      string                       `json:"disease"`
	Severity     float64                      `json:"severity"`
	PricePerUnit float64                      `json:"price_per_unit"`
	PriceSource  string                       `json:"price_source"` // catalog | market
	YieldLoss    float64                      `json:"yield_loss"`
	RevenueLoss  float64                      `json:"revenue_loss"`
	Ranked       []entities.TreatmentAnalysis `json:"ranked"`
	Timestamp    time.Time                    `json:"timestamp"`
}
