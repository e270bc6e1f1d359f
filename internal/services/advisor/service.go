// Package advisor serves treatment rankings over HTTP and answers disease
// detections received from the broker with ranked treatment advice.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/cropgenius/internal/model"
	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
	"github.com/LeonardoBeccarini/cropgenius/internal/services/economics"
	"github.com/LeonardoBeccarini/cropgenius/internal/services/market"
	"github.com/LeonardoBeccarini/cropgenius/pkg/dedup"
	"github.com/LeonardoBeccarini/cropgenius/pkg/rabbitmq"
)

const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"

	PriceFromCatalog = "catalog"
	PriceFromMarket  = "market"

	DefaultDetectionTopic = "disease/detected/#"
	DefaultRankedTopic    = "advice/treatmentRanked"
)

var (
	// ErrUnknownCrop is returned by Advise when the catalog has no profile for the crop.
	ErrUnknownCrop = errors.New("crop not in catalog")
	// ErrNotFinite is returned by Rank when valid inputs overflow float64.
	ErrNotFinite = errors.New("ranking result is not finite")
)

// PriceSource quotes the current market price of a crop.
type PriceSource interface {
	LatestPrice(ctx context.Context, crop string) (market.Quote, error)
}

type Config struct {
	// DetectionTopic is the filter disease detections arrive on; "prefix/{field_id}".
	DetectionTopic string
	// RankedTopic is the prefix advice is published under, as "RankedTopic/{field_id}".
	RankedTopic string
	PublishQoS  byte
}

// Deps are the collaborators of a Service. Only Catalog is required for HTTP
// ranking; Consumer and Publisher enable the broker loop.
type Deps struct {
	Catalog   *CatalogStore
	Prices    PriceSource
	Recorder  Recorder
	Consumer  rabbitmq.IConsumer
	Publisher rabbitmq.IPublisher
	Deduper   *dedup.Deduper
	Metrics   *Metrics
	Logger    *zap.Logger
}

type Service struct {
	cfg  Config
	deps Deps

	now   func() time.Time
	newID func() string
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.DetectionTopic == "" {
		cfg.DetectionTopic = DefaultDetectionTopic
	}
	if cfg.RankedTopic == "" {
		cfg.RankedTopic = DefaultRankedTopic
	}
	cfg.RankedTopic = strings.TrimRight(cfg.RankedTopic, "/")
	if deps.Catalog == nil {
		deps.Catalog = NewCatalogStore(nil)
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Deduper == nil {
		deps.Deduper = dedup.New(10*time.Minute, 20000)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{cfg: cfg, deps: deps, now: time.Now, newID: uuid.NewString}
}

// RankInput is one ranking request with its provenance.
type RankInput struct {
	Source     string
	FieldID    string
	CropType   string
	Disease    string
	Profile    entities.CropEconomicProfile
	Severity   float64
	Treatments []entities.Treatment
}

// Run is a completed ranking.
type Run struct {
	ID       string
	Source   string
	FieldID  string
	CropType string
	Disease  string
	Severity float64
	Profile  entities.CropEconomicProfile
	Ranking  entities.Ranking
	Time     time.Time
}

// Rank ranks the treatments of in and records the run. A recording failure is
// logged; it does not fail the ranking.
func (s *Service) Rank(ctx context.Context, in RankInput) (Run, error) {
	ranking, err := economics.RankTreatments(in.Profile, in.Severity, in.Treatments)
	if err != nil {
		s.deps.Metrics.Ranking(in.Source, "invalid_input", 0)
		s.deps.Logger.Debug("ranking rejected", zap.String("source", in.Source), zap.Error(err))
		return Run{}, err
	}
	if field, ok := nonFinite(ranking); ok {
		s.deps.Metrics.Ranking(in.Source, "not_finite", 0)
		s.deps.Logger.Debug("ranking overflowed", zap.String("source", in.Source), zap.String("field", field))
		return Run{}, fmt.Errorf("%s: %w", field, ErrNotFinite)
	}
	s.deps.Metrics.Ranking(in.Source, "ok", len(ranking.Ranked))

	run := Run{
		ID:       s.newID(),
		Source:   in.Source,
		FieldID:  in.FieldID,
		CropType: in.CropType,
		Disease:  in.Disease,
		Severity: in.Severity,
		Profile:  in.Profile,
		Ranking:  ranking,
		Time:     s.now().UTC(),
	}
	if err := s.deps.Recorder.Record(ctx, run); err != nil {
		s.deps.Logger.Warn("ranking not recorded", zap.String("run_id", run.ID), zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("source", run.Source),
		zap.String("crop_type", run.CropType),
		zap.Float64("severity", run.Severity),
		zap.Int("treatments", len(ranking.Ranked)),
	}
	if best, ok := ranking.Best(); ok {
		fields = append(fields, zap.String("best", best.Name), zap.Float64("best_roi", best.ROI))
	}
	s.deps.Logger.Info("treatments ranked", fields...)
	return run, nil
}

// nonFinite names the first output value that overflowed, if any.
func nonFinite(r entities.Ranking) (string, bool) {
	bad := func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }
	switch {
	case bad(r.YieldLoss):
		return "yield_loss", true
	case bad(r.RevenueLoss):
		return "revenue_loss", true
	}
	for i, a := range r.Ranked {
		if bad(a.SavedYield) || bad(a.SavedRevenue) || bad(a.NetBenefit) || bad(a.ROI) {
			return fmt.Sprintf("ranked[%d]", i), true
		}
	}
	return "", false
}

// Advise answers a disease detection with the catalog treatments ranked for it.
// The catalog price is replaced by the market quote when one is available.
func (s *Service) Advise(ctx context.Context, ev model.DiseaseDetectedEvent) (model.TreatmentRankedEvent, error) {
	cat := s.deps.Catalog.Load()
	profile, ok := cat.Profile(ev.CropType)
	if !ok {
		return model.TreatmentRankedEvent{}, fmt.Errorf("advise %q: %w", ev.CropType, ErrUnknownCrop)
	}

	priceSource := PriceFromCatalog
	if s.deps.Prices != nil {
		q, err := s.deps.Prices.LatestPrice(ctx, profile.CropType)
		if err == nil && !(q.PricePerUnit >= 0 && !math.IsInf(q.PricePerUnit, 0)) {
			err = fmt.Errorf("market: unusable price %v", q.PricePerUnit)
		}
		switch {
		case err == nil:
			profile.PricePerUnit = q.PricePerUnit
			priceSource = PriceFromMarket
			s.deps.Metrics.MarketLookup("ok")
		case errors.Is(err, market.ErrNoListings):
			s.deps.Metrics.MarketLookup("no_listings")
		default:
			s.deps.Metrics.MarketLookup("error")
			s.deps.Logger.Warn("market price unavailable, using catalog price",
				zap.String("crop_type", profile.CropType), zap.Error(err))
		}
	}

	run, err := s.Rank(ctx, RankInput{
		Source:     SourceMQTT,
		FieldID:    ev.FieldID,
		CropType:   profile.CropType,
		Disease:    ev.Disease,
		Profile:    profile,
		Severity:   ev.Severity,
		Treatments: cat.TreatmentsFor(profile.CropType, ev.Disease),
	})
	if err != nil {
		return model.TreatmentRankedEvent{}, fmt.Errorf("advise field %s: %w", ev.FieldID, err)
	}

	out := model.TreatmentRankedEvent{
		RunID:        run.ID,
		FieldID:      ev.FieldID,
		CropType:     run.CropType,
		Disease:      ev.Disease,
		Severity:     ev.Severity,
		PricePerUnit: profile.PricePerUnit,
		PriceSource:  priceSource,
		YieldLoss:    run.Ranking.YieldLoss,
		RevenueLoss:  run.Ranking.RevenueLoss,
		Ranked:       run.Ranking.Ranked,
		Timestamp:    run.Time,
	}

	if s.deps.Publisher != nil {
		topic := s.cfg.RankedTopic + "/" + orUnknown(ev.FieldID)
		if err := s.deps.Publisher.PublishJSON(topic, s.cfg.PublishQoS, out); err != nil {
			return out, fmt.Errorf("publish advice: %w", err)
		}
	}
	return out, nil
}

// Start consumes disease detections until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.deps.Consumer == nil {
		return errors.New("advisor: no consumer configured")
	}
	s.deps.Consumer.SetHandler(func(topic string, msg mqtt.Message) error {
		return s.handleDetection(ctx, topic, msg)
	})
	return s.deps.Consumer.ConsumeMessage(ctx)
}

func (s *Service) handleDetection(ctx context.Context, topic string, msg mqtt.Message) error {
	key := dedup.PayloadKey(msg.Payload())
	if !s.deps.Deduper.ShouldProcess(key) {
		s.deps.Metrics.Duplicate()
		return nil
	}

	var ev model.DiseaseDetectedEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		// a malformed detection must not block the stream
		s.deps.Logger.Warn("invalid detection payload", zap.String("topic", topic), zap.Error(err))
		return nil
	}
	if strings.TrimSpace(ev.FieldID) == "" {
		ev.FieldID = fieldFromTopic(topic, s.cfg.DetectionTopic)
	}

	advice, err := s.Advise(ctx, ev)
	if err != nil {
		// a redelivery of a failed detection is a retry, not a duplicate
		s.deps.Deduper.Forget(key)
		return err
	}
	s.deps.Logger.Info("advice published",
		zap.String("field_id", advice.FieldID),
		zap.String("disease", advice.Disease),
		zap.String("price_source", advice.PriceSource))
	return nil
}

// fieldFromTopic extracts {field_id} from "prefix/{field_id}" given the "prefix/#" filter.
func fieldFromTopic(topic, filter string) string {
	prefix := strings.TrimSuffix(strings.TrimSuffix(filter, "#"), "+")
	suffix := strings.TrimPrefix(topic, prefix)
	if suffix == topic {
		return ""
	}
	return strings.SplitN(strings.Trim(suffix, "/"), "/", 2)[0]
}

// Recent returns the most recently recorded runs.
func (s *Service) Recent(ctx context.Context, minutes, limit int) ([]RunSummary, error) {
	return s.deps.Recorder.Recent(ctx, minutes, limit)
}

// Catalog returns the active catalog.
func (s *Service) Catalog() *Catalog { return s.deps.Catalog.Load() }

// Ready reports whether the recorder has been healthy for at least grace.
func (s *Service) Ready(grace time.Duration) bool {
	return s.deps.Recorder.LastErrorAge() > grace
}
