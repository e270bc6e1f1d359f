package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Listing is one row of the market_listings table.
type Listing struct {
	CropType     string    `json:"crop_type"`
	PricePerUnit float64   `json:"price_per_unit"`
	Unit         string    `json:"unit"`
	LocationName string    `json:"location_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// UnmarshalJSON accepts price_per_unit as a number or as a decimal string.
func (l *Listing) UnmarshalJSON(b []byte) error {
	var raw struct {
		CropType     string          `json:"crop_type"`
		PricePerUnit json.RawMessage `json:"price_per_unit"`
		Unit         string          `json:"unit"`
		LocationName string          `json:"location_name"`
		CreatedAt    string          `json:"created_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	l.CropType = raw.CropType
	l.Unit = raw.Unit
	l.LocationName = raw.LocationName

	price, err := decimal(raw.PricePerUnit)
	if err != nil {
		return fmt.Errorf("price_per_unit: %w", err)
	}
	l.PricePerUnit = price

	if raw.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
		l.CreatedAt = t
	}
	return nil
}

func decimal(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Quote summarizes the recent kg-priced listings of a crop.
type Quote struct {
	CropType     string    `json:"crop_type"`
	PricePerUnit float64   `json:"price_per_unit"` // mean, currency/kg
	Listings     int       `json:"listings"`
	Newest       time.Time `json:"newest"`
}
