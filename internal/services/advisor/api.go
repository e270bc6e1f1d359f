package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
	"github.com/LeonardoBeccarini/cropgenius/internal/services/economics"
)

const (
	maxRequestBytes = 1 << 20
	readyErrorGrace = 30 * time.Second
)

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

type catalogResponse struct {
	CropType   string                        `json:"crop_type,omitempty"`
	Disease    string                        `json:"disease,omitempty"`
	Profile    *entities.CropEconomicProfile `json:"profile,omitempty"`
	Treatments []entities.Treatment          `json:"treatments"`
}

// NewHTTPMux exposes the advisor. gatherer may be nil to disable /metrics.
func NewHTTPMux(svc *Service, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Ready           bool    `json:"ready"`
			CatalogCrops    int     `json:"catalog_crops"`
			LastWriteErrorS float64 `json:"last_write_error_age_sec"`
		}
		out := resp{
			Ready:           svc.Ready(readyErrorGrace),
			CatalogCrops:    len(svc.Catalog().Crops),
			LastWriteErrorS: svc.deps.Recorder.LastErrorAge().Seconds(),
		}
		status := http.StatusOK
		if !out.Ready {
			status = http.StatusServiceUnavailable
		}
		jsonResp(w, status, out)
	})

	// POST /treatments/rank
	mux.HandleFunc("/treatments/rank", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			jsonResp(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
			return
		}
		in, err := ParseRankRequest(http.MaxBytesReader(w, r.Body, maxRequestBytes), SourceHTTP)
		if err == nil {
			var run Run
			run, err = svc.Rank(r.Context(), in)
			if err == nil {
				w.Header().Set("X-Ranking-ID", run.ID)
				jsonResp(w, http.StatusOK, run.Ranking)
				return
			}
		}
		if errors.Is(err, ErrNotFinite) {
			jsonResp(w, http.StatusUnprocessableEntity, errorResponse{Error: "not_finite", Message: err.Error()})
			return
		}
		var ie *economics.InvalidInputError
		if errors.As(err, &ie) {
			jsonResp(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Field: ie.Field, Message: ie.Error()})
			return
		}
		jsonResp(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
	})

	// GET /treatments/catalog?crop=maize[&disease=...]
	mux.HandleFunc("/treatments/catalog", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonResp(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
			return
		}
		q := r.URL.Query()
		crop, disease := strings.TrimSpace(q.Get("crop")), strings.TrimSpace(q.Get("disease"))
		cat := svc.Catalog()
		out := catalogResponse{CropType: crop, Disease: disease, Treatments: cat.TreatmentsFor(crop, disease)}
		if p, ok := cat.Profile(crop); ok {
			out.Profile = &p
		}
		jsonResp(w, http.StatusOK, out)
	})

	// GET /rankings/recent?minutes=1440&limit=20
	mux.HandleFunc("/rankings/recent", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonResp(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
			return
		}
		p := parseRecent(r)
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		runs, err := svc.Recent(ctx, p.Minutes, p.Limit)
		if err != nil {
			w.Header().Set("X-Error", "recorder-query-error")
			jsonResp(w, http.StatusBadGateway, errorResponse{Error: "recorder_unavailable", Message: err.Error()})
			return
		}
		jsonResp(w, http.StatusOK, runs)
	})

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

type recentParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
}

// parseRecent reads the query parameters, clamping them to sane bounds.
func parseRecent(r *http.Request) recentParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return recentParams{
		Minutes:   get("minutes", defaultRecentMinutes, 1, 30*24*60),
		Limit:     get("limit", defaultRecentLimit, 1, 500),
		TimeoutMS: get("timeout_ms", 2000, 200, 5000),
	}
}

// jsonResp encodes v before committing the status, so an unencodable value
// becomes a 500 instead of a truncated success.
func jsonResp(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.Header().Del("X-Ranking-ID")
		status = http.StatusInternalServerError
		b, _ = json.Marshal(errorResponse{Error: "encode_failed", Message: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
