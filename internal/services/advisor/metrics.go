package advisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the advisor's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	rankings       *prometheus.CounterVec
	treatments     prometheus.Histogram
	marketLookups  *prometheus.CounterVec
	catalogReloads *prometheus.CounterVec
	duplicates     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rankings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advisor",
			Name:      "rankings_total",
			Help:      "Treatment ranking runs by source (http|mqtt|cli) and outcome (ok|invalid_input|not_finite).",
		}, []string{"source", "outcome"}),
		treatments: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "advisor",
			Name:      "ranking_treatments",
			Help:      "Number of treatments ranked per successful run.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		marketLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advisor",
			Name:      "market_lookups_total",
			Help:      "Market price lookups by outcome (ok|no_listings|error).",
		}, []string{"outcome"}),
		catalogReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advisor",
			Name:      "catalog_reloads_total",
			Help:      "Catalog hot reloads by outcome (ok|error).",
		}, []string{"outcome"}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: "advisor",
			Name:      "duplicate_detections_total",
			Help:      "Redelivered disease detections dropped before ranking.",
		}),
	}
}

func (m *Metrics) Ranking(source, outcome string, treatments int) {
	if m == nil {
		return
	}
	m.rankings.WithLabelValues(source, outcome).Inc()
	if outcome == "ok" {
		m.treatments.Observe(float64(treatments))
	}
}

func (m *Metrics) MarketLookup(outcome string) {
	if m == nil {
		return
	}
	m.marketLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CatalogReload(outcome string) {
	if m == nil {
		return
	}
	m.catalogReloads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}
