package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/marketplace/internal/health"
	"github.com/onnwee/marketplace/internal/jobs"
	"github.com/onnwee/marketplace/internal/listing"
	"github.com/onnwee/marketplace/internal/middleware"
)

const serviceName = "marketplace-sweeper"

// sweeper is the part of *jobs.ExpirySweep the ops endpoints drive.
type sweeper interface {
	SweepNow(ctx context.Context) (jobs.SweepResult, error)
}

// rankings is the part of *listing.Service the read endpoints serve.
type rankings interface {
	Featured(ctx context.Context) ([]listing.Listing, error)
	Page(ctx context.Context, page, pageSize int) (listing.PageResult, error)
}

type featuredResponse struct {
	Items []listing.Listing `json:"items"`
}

type sweepResponse struct {
	Checked     int      `json:"checked"`
	Lapsed      []string `json:"lapsed"`
	Invalidated bool     `json:"invalidated"`
	Error       string   `json:"error,omitempty"`
}

// newHandler wires the ops endpoints:
//
//	GET  /health   liveness
//	GET  /ready    dependency checks
//	GET  /metrics  Prometheus scrape of reg
//	POST /sweep    run a sweep now
//
// With a non-nil ranked it also serves the snapshot through the ranking cache:
//
//	GET /listings/featured  home-page feed
//	GET /listings           one ranked page (?page=&pageSize=)
func newHandler(job sweeper, ranked rankings, reg *prometheus.Registry, checkers map[string]health.Checker, logger *slog.Logger) http.Handler {
	probes := health.NewHandler(checkers, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", probes.Live)
	mux.HandleFunc("/ready", probes.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/sweep", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		res, err := job.SweepNow(r.Context())
		body := sweepResponse{
			Checked:     res.Checked,
			Lapsed:      res.Lapsed,
			Invalidated: res.Invalidated,
		}
		if body.Lapsed == nil {
			body.Lapsed = []string{}
		}
		status := http.StatusOK
		if err != nil {
			body.Error = err.Error()
			status = http.StatusInternalServerError
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("failed to encode sweep response", "error", err)
		}
	})

	if ranked != nil {
		mux.HandleFunc("GET /listings/featured", func(w http.ResponseWriter, r *http.Request) {
			items, err := ranked.Featured(r.Context())
			if err != nil {
				logger.Error("failed to rank featured listings", "error", err)
				http.Error(w, "Failed to load listings", http.StatusInternalServerError)
				return
			}
			if items == nil {
				items = []listing.Listing{}
			}
			writeJSON(w, featuredResponse{Items: items}, logger)
		})
		mux.HandleFunc("GET /listings", func(w http.ResponseWriter, r *http.Request) {
			page := queryInt(r, "page")
			pageSize := queryInt(r, "pageSize")
			res, err := ranked.Page(r.Context(), page, pageSize)
			if err != nil {
				logger.Error("failed to rank listing page", "page", page, "error", err)
				http.Error(w, "Failed to load listings", http.StatusInternalServerError)
				return
			}
			writeJSON(w, res, logger)
		})
	}

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Tracing(serviceName),
		middleware.Logging(logger),
	)
}

func writeJSON(w http.ResponseWriter, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// queryInt reads an integer query parameter. Missing or malformed values
// yield 0, which the service treats as its default.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
