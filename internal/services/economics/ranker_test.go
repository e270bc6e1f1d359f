package economics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
)

const eps = 1e-9

func maize() entities.CropEconomicProfile {
	return entities.CropEconomicProfile{CropType: "maize", ExpectedYield: 3500, PricePerUnit: 0.35}
}

func treatment(name string, c entities.TreatmentCategory, eff, cost float64) entities.Treatment {
	return entities.Treatment{Name: name, Category: c, Effectiveness: eff, Cost: cost}
}

func names(r entities.Ranking) []string {
	out := make([]string, 0, len(r.Ranked))
	for _, a := range r.Ranked {
		out = append(out, a.Name)
	}
	return out
}

func TestRankTreatments_MaizeLeafBlight(t *testing.T) {
	r, err := RankTreatments(maize(), 0.25, []entities.Treatment{
		treatment("Mancozeb", entities.CategoryInorganic, 0.90, 32.75),
		treatment("Neem Oil", entities.CategoryOrganic, 0.75, 15.50),
	})
	require.NoError(t, err)

	assert.InDelta(t, 875.0, r.YieldLoss, eps)
	assert.InDelta(t, 306.25, r.RevenueLoss, eps)
	assert.InDelta(t, 25.0, r.YieldLossPercentage, eps)
	require.Equal(t, []string{"Neem Oil", "Mancozeb"}, names(r))

	neem, mancozeb := r.Ranked[0], r.Ranked[1]
	assert.Equal(t, entities.CategoryOrganic, neem.Category)
	assert.InDelta(t, 15.50, neem.Cost, eps)
	assert.InDelta(t, 656.25, neem.SavedYield, eps)
	assert.InDelta(t, 229.6875, neem.SavedRevenue, eps)
	assert.InDelta(t, 214.1875, neem.NetBenefit, eps)
	assert.InDelta(t, 13.818, neem.ROI, 1e-3)

	assert.Equal(t, entities.CategoryInorganic, mancozeb.Category)
	assert.InDelta(t, 787.5, mancozeb.SavedYield, eps)
	assert.InDelta(t, 275.625, mancozeb.SavedRevenue, eps)
	assert.InDelta(t, 242.875, mancozeb.NetBenefit, eps)
	assert.InDelta(t, 7.416, mancozeb.ROI, 1e-3)

	best, ok := r.Best()
	require.True(t, ok)
	assert.Equal(t, "Neem Oil", best.Name)
}

func TestRankTreatments_FourTreatmentCatalog(t *testing.T) {
	r, err := RankTreatments(maize(), 0.25, []entities.Treatment{
		treatment("Neem Oil Spray", entities.CategoryOrganic, 0.75, 15.50),
		treatment("Compost Tea", entities.CategoryOrganic, 0.65, 8.25),
		treatment("Mancozeb Fungicide", entities.CategoryInorganic, 0.90, 32.75),
		treatment("Copper Oxychloride", entities.CategoryInorganic, 0.85, 28.50),
	})
	require.NoError(t, err)
	// ROIs: compost 23.13, neem 13.82, copper 8.13, mancozeb 7.42
	assert.Equal(t, []string{"Compost Tea", "Neem Oil Spray", "Copper Oxychloride", "Mancozeb Fungicide"}, names(r))
}

func TestRankTreatments_Identities(t *testing.T) {
	profile := entities.CropEconomicProfile{ExpectedYield: 1234.5, PricePerUnit: 0.42}
	ts := []entities.Treatment{
		treatment("a", entities.CategoryOrganic, 0.1, 3),
		treatment("b", entities.CategoryInorganic, 0.5, 0),
		treatment("c", entities.CategoryOrganic, 1, 120),
		treatment("d", entities.CategoryInorganic, 0, 7.25),
		treatment("e", entities.CategoryOrganic, 0.33, 1e-3),
	}
	r, err := RankTreatments(profile, 0.6, ts)
	require.NoError(t, err)
	require.Len(t, r.Ranked, len(ts))

	assert.InDelta(t, profile.ExpectedYield*0.6, r.YieldLoss, eps)
	assert.InDelta(t, r.YieldLoss*profile.PricePerUnit, r.RevenueLoss, eps)

	for i, a := range r.Ranked {
		assert.InDelta(t, a.SavedRevenue-a.Cost, a.NetBenefit, eps, a.Name)
		if a.Cost > 0 {
			assert.InDelta(t, a.NetBenefit/a.Cost, a.ROI, eps, a.Name)
		} else {
			assert.Zero(t, a.ROI, a.Name)
		}
		if i > 0 {
			assert.GreaterOrEqual(t, r.Ranked[i-1].ROI, a.ROI, "ranking must be non-increasing in roi")
		}
	}
}

func TestRankTreatments_StableOnEqualROI(t *testing.T) {
	r, err := RankTreatments(maize(), 0.25, []entities.Treatment{
		treatment("free-1", entities.CategoryOrganic, 0.2, 0),
		treatment("first", entities.CategoryOrganic, 0.5, 10),
		treatment("free-2", entities.CategoryInorganic, 0.9, 0),
		treatment("second", entities.CategoryInorganic, 0.5, 10),
		treatment("loser", entities.CategoryInorganic, 0.01, 500),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "free-1", "free-2", "loser"}, names(r))
}

func TestRankTreatments_Deterministic(t *testing.T) {
	ts := []entities.Treatment{
		treatment("x", entities.CategoryOrganic, 0.4, 5),
		treatment("y", entities.CategoryOrganic, 0.4, 5),
		treatment("z", entities.CategoryInorganic, 0.8, 10),
	}
	first, err := RankTreatments(maize(), 0.3, ts)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := RankTreatments(maize(), 0.3, ts)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	assert.Equal(t, "x", ts[0].Name, "input must not be reordered")
}

func TestRankTreatments_ZeroSeverity(t *testing.T) {
	r, err := RankTreatments(maize(), 0, []entities.Treatment{
		treatment("Neem Oil", entities.CategoryOrganic, 0.75, 15.50),
		treatment("Free Scouting", entities.CategoryOrganic, 0.3, 0),
	})
	require.NoError(t, err)
	assert.Zero(t, r.YieldLoss)
	assert.Zero(t, r.RevenueLoss)
	for _, a := range r.Ranked {
		assert.Zero(t, a.SavedYield)
		assert.Zero(t, a.SavedRevenue)
		assert.InDelta(t, -a.Cost, a.NetBenefit, eps)
	}
	// 0 for the free treatment beats -1 for the paid one.
	assert.Equal(t, []string{"Free Scouting", "Neem Oil"}, names(r))
}

func TestRankTreatments_EmptyCatalog(t *testing.T) {
	r, err := RankTreatments(maize(), 0.5, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1750.0, r.YieldLoss, eps)
	assert.NotNil(t, r.Ranked)
	assert.Empty(t, r.Ranked)
	_, ok := r.Best()
	assert.False(t, ok)
}

func TestRankTreatments_InvalidInput(t *testing.T) {
	ok := []entities.Treatment{treatment("Neem Oil", entities.CategoryOrganic, 0.75, 15.50)}

	tests := []struct {
		name      string
		profile   entities.CropEconomicProfile
		severity  float64
		ts        []entities.Treatment
		wantField string
	}{
		{"severity above one", maize(), 1.5, ok, "severity"},
		{"negative severity", maize(), -0.01, ok, "severity"},
		{"NaN severity", maize(), math.NaN(), ok, "severity"},
		{"zero yield", entities.CropEconomicProfile{ExpectedYield: 0, PricePerUnit: 0.35}, 0.25, ok, "expected_yield"},
		{"negative yield", entities.CropEconomicProfile{ExpectedYield: -1, PricePerUnit: 0.35}, 0.25, ok, "expected_yield"},
		{"negative price", entities.CropEconomicProfile{ExpectedYield: 3500, PricePerUnit: -0.1}, 0.25, ok, "price_per_unit"},
		{
			"negative effectiveness", maize(), 0.25,
			append(ok, treatment("bad", entities.CategoryOrganic, -0.1, 1)),
			"treatments[1].effectiveness",
		},
		{
			"effectiveness above one", maize(), 0.25,
			[]entities.Treatment{treatment("bad", entities.CategoryOrganic, 1.01, 1)},
			"treatments[0].effectiveness",
		},
		{
			"negative cost", maize(), 0.25,
			[]entities.Treatment{treatment("bad", entities.CategoryInorganic, 0.5, -3)},
			"treatments[0].cost",
		},
		{
			"unknown category", maize(), 0.25,
			[]entities.Treatment{treatment("bad", "biological", 0.5, 3)},
			"treatments[0].category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RankTreatments(tt.profile, tt.severity, tt.ts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var ie *InvalidInputError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.wantField, ie.Field)
			assert.Empty(t, r.Ranked)
		})
	}
}

func TestRankTreatments_FreeTreatmentROIIsZero(t *testing.T) {
	r, err := RankTreatments(maize(), 0.25, []entities.Treatment{
		treatment("Crop Rotation", entities.CategoryOrganic, 0.4, 0),
	})
	require.NoError(t, err)
	require.Len(t, r.Ranked, 1)
	assert.InDelta(t, 122.5, r.Ranked[0].NetBenefit, eps)
	assert.Zero(t, r.Ranked[0].ROI)
}
