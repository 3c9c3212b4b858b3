// Package http serves health probes, Prometheus metrics and read-only
// history exports.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spoticord/internal/core"
	"spoticord/internal/flood"
	"spoticord/internal/history"
	"spoticord/internal/metacache"
	"spoticord/internal/stats"
)

const (
	serviceName     = "spoticord"
	shutdownTimeout = 10 * time.Second
)

// HistorySource is the production history log as exported over HTTP.
type HistorySource interface {
	Entries() []history.Entry
	WriteTo(w io.Writer) (int64, error)
}

// Deps are the live components the server reports on. Nil funcs are skipped.
type Deps struct {
	History    HistorySource
	Ready      func() bool
	CacheStats func() metacache.Stats
	FloodStats func() flood.Stats
}

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	registry *prometheus.Registry
}

type Metrics struct {
	MessagesTotal  *prometheus.CounterVec
	VerdictsTotal  *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	ProcessingTime *prometheus.HistogramVec
	PlaylistSize   prometheus.Gauge
}

// NewMetrics creates the bot's collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spoticord_messages_total",
				Help: "Total number of chat messages handled",
			},
			[]string{"kind", "status"},
		),
		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spoticord_verdicts_total",
				Help: "Total number of admission attempts by verdict",
			},
			[]string{"verdict"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spoticord_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component"},
		),
		ProcessingTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spoticord_processing_duration_seconds",
				Help:    "Time spent processing messages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		PlaylistSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spoticord_playlist_size",
				Help: "Number of successful additions in the production history",
			},
		),
	}

	reg.MustRegister(
		metrics.MessagesTotal,
		metrics.VerdictsTotal,
		metrics.ErrorsTotal,
		metrics.ProcessingTime,
		metrics.PlaylistSize,
	)

	return metrics
}

func NewServer(config *core.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(registry)
	registerComponentMetrics(registry, deps)

	return &Server{
		config:   config,
		logger:   logger,
		server:   createHTTPServer(config, setupRoutes(registry, deps, logger)),
		metrics:  metrics,
		registry: registry,
	}
}

func registerComponentMetrics(reg prometheus.Registerer, deps Deps) {
	if deps.CacheStats != nil {
		cacheStats := deps.CacheStats
		reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "spoticord_cache_hits_total",
				Help: "Metadata lookups answered from the cache",
			}, func() float64 { return float64(cacheStats().Hits) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "spoticord_cache_misses_total",
				Help: "Metadata lookups that needed the catalog",
			}, func() float64 { return float64(cacheStats().Misses) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "spoticord_catalog_calls_total",
				Help: "Remote catalog fetches issued by the cache",
			}, func() float64 { return float64(cacheStats().RemoteCalls) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "spoticord_cache_tracks",
				Help: "Tracks held in the metadata cache",
			}, func() float64 { return float64(cacheStats().Tracks) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "spoticord_cache_artists",
				Help: "Artists held in the metadata cache",
			}, func() float64 { return float64(cacheStats().Artists) }),
		)
	}
	if deps.FloodStats != nil {
		floodStats := deps.FloodStats
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "spoticord_flood_blocked_total",
			Help: "Messages dropped by the flood limiter",
		}, func() float64 { return float64(floodStats().Blocked) }))
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func setupRoutes(gatherer prometheus.Gatherer, deps Deps, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting", "service": serviceName})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": serviceName})
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if deps.History != nil {
		r.Get("/history.csv", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="user_data.csv"`)
			if _, err := deps.History.WriteTo(w); err != nil {
				logger.Warn("Failed to stream history", zap.Error(err))
			}
		})

		r.Get("/stats/{kind}", func(w http.ResponseWriter, r *http.Request) {
			kind := stats.Kind(chi.URLParam(r, "kind"))
			var rows []stats.Row
			switch kind {
			case stats.KindPosters:
				rows = stats.Posters(deps.History.Entries())
			case stats.KindArtists:
				rows = stats.Artists(deps.History.Entries(), stats.Options{Reverse: r.URL.Query().Has("reverse")})
			case stats.KindBlames:
				rows = stats.Blames(deps.History.Entries())
			default:
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown stats kind"})
				return
			}
			writeJSON(w, http.StatusOK, stats.Report{Kind: kind, Rows: rows})
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

func (s *Server) RecordMessage(kind, status string) {
	s.metrics.MessagesTotal.WithLabelValues(kind, status).Inc()
}

func (s *Server) RecordVerdict(v core.Verdict) {
	s.metrics.VerdictsTotal.WithLabelValues(v.MetricLabel()).Inc()
}

func (s *Server) RecordError(component string) {
	s.metrics.ErrorsTotal.WithLabelValues(component).Inc()
}

func (s *Server) RecordProcessingTime(kind string, duration time.Duration) {
	s.metrics.ProcessingTime.WithLabelValues(kind).Observe(duration.Seconds())
}

func (s *Server) SetPlaylistSize(size int) {
	s.metrics.PlaylistSize.Set(float64(size))
}
