package entities

// CropEconomicProfile holds the per-hectare economics of a crop.
type CropEconomicProfile struct {
	CropType      string  `json:"crop_type,omitempty" yaml:"-"`
	ExpectedYield float64 `json:"expected_yield" yaml:"expected_yield"` // kg/ha
	PricePerUnit  float64 `json:"price_per_unit" yaml:"price_per_unit"` // currency/kg
	Unit          string  `json:"unit,omitempty" yaml:"unit"`           // mass unit the price refers to, "kg" if empty
}
