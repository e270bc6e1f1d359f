package advisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	measurementRanking   = "treatment_ranking"
	measurementAnalysis  = "treatment_analysis"
	neverFailedErrorAge  = 99999 * time.Hour
	defaultRecentMinutes = 24 * 60
	defaultRecentLimit   = 20
)

// RunSummary is one recorded ranking run as returned by /rankings/recent.
type RunSummary struct {
	RunID         string  `json:"run_id"`
	Source        string  `json:"source"`
	FieldID       string  `json:"field_id,omitempty"`
	CropType      string  `json:"crop_type,omitempty"`
	Disease       string  `json:"disease,omitempty"`
	Severity      float64 `json:"severity"`
	YieldLoss     float64 `json:"yield_loss"`
	RevenueLoss   float64 `json:"revenue_loss"`
	Treatments    int     `json:"treatments"`
	BestTreatment string  `json:"best_treatment,omitempty"`
	BestROI       float64 `json:"best_roi"`
	Time          string  `json:"time"` // RFC3339
}

// Recorder keeps the history of ranking runs.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, minutes, limit int) ([]RunSummary, error)
	// LastErrorAge is the time since the last write failure.
	LastErrorAge() time.Duration
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Run) error { return nil }
func (nopRecorder) Recent(context.Context, int, int) ([]RunSummary, error) {
	return []RunSummary{}, nil
}
func (nopRecorder) LastErrorAge() time.Duration { return neverFailedErrorAge }

// InfluxRecorder writes runs through the async WriteAPI and reads them back with Flux.
type InfluxRecorder struct {
	write  api.WriteAPI
	query  api.QueryAPI
	bucket string
	logger *zap.Logger

	mu      sync.RWMutex
	lastErr time.Time
}

func NewInfluxRecorder(client influxdb2.Client, org, bucket string, logger *zap.Logger) *InfluxRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &InfluxRecorder{
		write:   client.WriteAPI(org, bucket),
		query:   client.QueryAPI(org),
		bucket:  bucket,
		logger:  logger,
		lastErr: time.Now().Add(-neverFailedErrorAge),
	}
	go func() {
		for err := range r.write.Errors() {
			if err == nil {
				continue
			}
			r.mu.Lock()
			r.lastErr = time.Now()
			r.mu.Unlock()
			r.logger.Warn("influx write failed", zap.Error(err))
		}
	}()
	return r
}

func (r *InfluxRecorder) Record(_ context.Context, run Run) error {
	for _, p := range rankingPoints(run) {
		r.write.WritePoint(p)
	}
	return nil
}

// Flush forces pending points out; call before closing the client.
func (r *InfluxRecorder) Flush() { r.write.Flush() }

func (r *InfluxRecorder) LastErrorAge() time.Duration {
	r.mu.RLock()
	t := r.lastErr
	r.mu.RUnlock()
	return time.Since(t)
}

func (r *InfluxRecorder) Recent(ctx context.Context, minutes, limit int) ([]RunSummary, error) {
	res, err := r.query.Query(ctx, recentFlux(r.bucket, minutes, limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	out := make([]RunSummary, 0, limit)
	for res.Next() {
		rec := res.Record()
		out = append(out, summaryFromValues(rec.Values(), rec.Time()))
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

// rankingPoints maps a run to one summary point and one point per ranked treatment.
func rankingPoints(run Run) []*write.Point {
	tags := map[string]string{
		"source":    run.Source,
		"crop_type": orUnknown(run.CropType),
	}
	if run.Disease != "" {
		tags["disease"] = run.Disease
	}
	if run.FieldID != "" {
		tags["field_id"] = run.FieldID
	}

	fields := map[string]interface{}{
		"run_id":         run.ID,
		"severity":       run.Severity,
		"expected_yield": run.Profile.ExpectedYield,
		"price_per_unit": run.Profile.PricePerUnit,
		"yield_loss":     run.Ranking.YieldLoss,
		"yield_loss_pct": run.Ranking.YieldLossPercentage,
		"revenue_loss":   run.Ranking.RevenueLoss,
		"treatments":     int64(len(run.Ranking.Ranked)),
	}
	if best, ok := run.Ranking.Best(); ok {
		fields["best_treatment"] = best.Name
		fields["best_roi"] = best.ROI
	}

	points := make([]*write.Point, 0, 1+len(run.Ranking.Ranked))
	points = append(points, influxdb2.NewPoint(measurementRanking, tags, fields, run.Time))

	// rank is a tag: points of one run share a timestamp, and a request may
	// repeat a treatment name and category
	for i, a := range run.Ranking.Ranked {
		points = append(points, influxdb2.NewPoint(measurementAnalysis,
			map[string]string{
				"source":    run.Source,
				"crop_type": orUnknown(run.CropType),
				"treatment": a.Name,
				"category":  string(a.Category),
				"rank":      strconv.Itoa(i + 1),
			},
			map[string]interface{}{
				"run_id":        run.ID,
				"cost":          a.Cost,
				"saved_yield":   a.SavedYield,
				"saved_revenue": a.SavedRevenue,
				"net_benefit":   a.NetBenefit,
				"roi":           a.ROI,
			},
			run.Time))
	}
	return points
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func recentFlux(bucket string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`, bucket, minutes, measurementRanking, limit)
}

func summaryFromValues(v map[string]interface{}, t time.Time) RunSummary {
	return RunSummary{
		RunID:         str(v["run_id"]),
		Source:        str(v["source"]),
		FieldID:       str(v["field_id"]),
		CropType:      str(v["crop_type"]),
		Disease:       str(v["disease"]),
		Severity:      num(v["severity"]),
		YieldLoss:     num(v["yield_loss"]),
		RevenueLoss:   num(v["revenue_loss"]),
		Treatments:    int(num(v["treatments"])),
		BestTreatment: str(v["best_treatment"]),
		BestROI:       num(v["best_roi"]),
		Time:          t.UTC().Format(time.RFC3339),
	}
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func num(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case int:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return 0
}
