package entities

// TreatmentAnalysis is the cost-benefit outcome of applying one treatment.
type TreatmentAnalysis struct {
	Name         string            `json:"name"`
	Category     TreatmentCategory `json:"category"`
	Cost         float64           `json:"cost"`
	SavedYield   float64           `json:"saved_yield"`   // kg/ha
	SavedRevenue float64           `json:"saved_revenue"` // currency/ha
	NetBenefit   float64           `json:"net_benefit"`
	ROI          float64           `json:"roi"`
}

// Ranking is the result of one ranking run. Ranked is ordered by ROI, highest first.
type Ranking struct {
	YieldLoss           float64             `json:"yield_loss"`
	YieldLossPercentage float64             `json:"yield_loss_percentage"`
	RevenueLoss         float64             `json:"revenue_loss"`
	Ranked              []TreatmentAnalysis `json:"ranked"`
}

// Best returns the top-ranked treatment, if any.
func (r Ranking) Best() (TreatmentAnalysis, bool) {
	if len(r.Ranked) == 0 {
		return TreatmentAnalysis{}, false
	}
	return r.Ranked[0], true
}
