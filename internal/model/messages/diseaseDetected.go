package messages

import "time"

// DiseaseDetectedEvent is published by the detection pipeline when a field shows a disease.
type DiseaseDetectedEvent struct {
	FieldID    string    `json:"field_id"`
	CropType   string    `json:"crop_type"`
	Disease    string    `json:"disease"`
	Severity   float64   `json:"severity"`             // estimated proportional loss if untreated, [0,1]
	Confidence float64   `json:"confidence,omitempty"` // detector confidence, informative only
	Timestamp  time.Time `json:"timestamp"`
}
