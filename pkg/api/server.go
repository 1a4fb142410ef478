// Package api exposes the scoring engine, stored insights, and the picks
// ledger over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/engine"
	"github.com/pickpulse/shiva/pkg/metrics"
	"github.com/pickpulse/shiva/pkg/picks"
	"github.com/pickpulse/shiva/pkg/store"
	"github.com/pickpulse/shiva/pkg/stream"
	"github.com/pickpulse/shiva/pkg/teams"
)

// Scorer runs the factor engine for one game context.
type Scorer interface {
	Score(ctx context.Context, rc core.RunCtx) (*core.Insight, error)
}

// InsightStore is the persistence surface the API reads and writes. Nil
// disables the stored-data endpoints.
type InsightStore interface {
	SaveInsight(ctx context.Context, insight *core.Insight, gameDate string) error
	GetInsight(ctx context.Context, runID string) (*core.Insight, error)
	ListInsightsByDate(ctx context.Context, date string) ([]core.Insight, error)
	ListPicks(ctx context.Context, f store.PickFilter) ([]picks.Pick, error)
	CapperRecords(ctx context.Context) ([]picks.Record, error)
}

// ScheduleSource lists the provider's games for a date.
type ScheduleSource interface {
	DailyGames(ctx context.Context, date string) ([]core.Game, error)
}

// Config wires the server's dependencies. Engine is required; everything
// else degrades gracefully when absent.
type Config struct {
	Engine   Scorer
	Store    InsightStore
	Hub      *stream.Hub
	Schedule ScheduleSource
	Metrics  *metrics.EngineMetrics

	RequestTimeout time.Duration
	CORSOrigins    []string
}

// Server is the HTTP surface of the scoring service.
type Server struct {
	engine    Scorer
	store     InsightStore
	hub       *stream.Hub
	schedule  ScheduleSource
	metrics   *metrics.EngineMetrics
	directory *teams.Directory

	requestTimeout time.Duration
	corsOrigins    []string
}

// NewServer creates a Server, applying defaults for unset config values.
func NewServer(cfg Config) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{
		engine:         cfg.Engine,
		store:          cfg.Store,
		hub:            cfg.Hub,
		schedule:       cfg.Schedule,
		metrics:        cfg.Metrics,
		directory:      teams.NewDirectory(),
		requestTimeout: cfg.RequestTimeout,
		corsOrigins:    cfg.CORSOrigins,
	}
}

// Routes builds the chi router with all endpoints registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/factors", s.handleFactors)
		r.Post("/insights", s.handleScoreInsight)
		r.Get("/insights/{runID}", s.handleGetInsight)
		r.Get("/insights", s.handleListInsights)
		r.Get("/slate", s.handleSlate)
		r.Get("/picks", s.handleListPicks)
		r.Get("/leaderboard", s.handleLeaderboard)
	})

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// handleHealth reports liveness and per-component status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]any{}

	switch {
	case s.store == nil:
		components["store"] = "disabled"
	default:
		components["store"] = "ok"
		if pinger, ok := s.store.(interface{ Ping(context.Context) error }); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			if err := pinger.Ping(ctx); err != nil {
				components["store"] = "error"
			}
			cancel()
		}
	}

	if s.hub != nil {
		components["stream_clients"] = s.hub.ClientCount()
	} else {
		components["stream_clients"] = "disabled"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"service":    "shiva",
		"version":    engine.RegistryVersion,
		"components": components,
	})
}

// requestLogger logs each request with zerolog after it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
