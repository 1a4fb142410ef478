package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/engine"
	"github.com/pickpulse/shiva/pkg/hoopdata"
	"github.com/pickpulse/shiva/pkg/store"
)

// scoreRequest is the POST /api/v1/insights body.
type scoreRequest struct {
	GameID   string             `json:"game_id"`
	AwayTeam string             `json:"away_team"`
	HomeTeam string             `json:"home_team"`
	Sport    string             `json:"sport,omitempty"`
	BetType  string             `json:"bet_type"`
	Weights  map[string]float64 `json:"weights,omitempty"`
	GameDate string             `json:"game_date,omitempty"`
}

// handleFactors returns the factor catalog. With a bet_type it resolves the
// exact context the engine would run; without one it lists the catalog,
// optionally narrowed by sport. Unknown contexts yield an empty list, not
// an error.
func (s *Server) handleFactors(w http.ResponseWriter, r *http.Request) {
	sportQ := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("sport")))
	betQ := r.URL.Query().Get("bet_type")

	var metas []core.FactorMeta
	if betQ == "" {
		for _, meta := range engine.Catalog() {
			if sportQ != "" && !sportMatches(meta, core.Sport(sportQ)) {
				continue
			}
			metas = append(metas, meta)
		}
	} else {
		bt, err := core.ParseBetType(betQ)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_bet_type", err.Error())
			return
		}
		sport := core.SportNBA
		if sportQ != "" {
			sport = core.Sport(sportQ)
		}
		metas = engine.FactorsByContext(sport, bt)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"factors": metas,
		"count":   len(metas),
	})
}

func sportMatches(meta core.FactorMeta, sport core.Sport) bool {
	for _, s := range meta.Sports {
		if s == core.SportWildcard || s == sport {
			return true
		}
	}
	return false
}

// handleScoreInsight scores a game on demand, persists the run when a store
// is wired, and streams the insight to subscribers. Teams accept tricodes or
// free-form names; both are resolved to canonical abbreviations.
func (s *Server) handleScoreInsight(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.GameID = strings.TrimSpace(req.GameID)
	switch {
	case req.GameID == "":
		writeError(w, http.StatusBadRequest, "missing_game_id", "game_id is required")
		return
	case strings.TrimSpace(req.AwayTeam) == "" || strings.TrimSpace(req.HomeTeam) == "":
		writeError(w, http.StatusBadRequest, "missing_team", "away_team and home_team are required")
		return
	}

	awayTeam, err := s.directory.Resolve(req.AwayTeam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_team", err.Error())
		return
	}
	homeTeam, err := s.directory.Resolve(req.HomeTeam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_team", err.Error())
		return
	}
	if awayTeam.Abbrev == homeTeam.Abbrev {
		writeError(w, http.StatusBadRequest, "invalid_matchup", "away_team and home_team must differ")
		return
	}

	bt, err := core.ParseBetType(req.BetType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bet_type", err.Error())
		return
	}
	sport := core.SportNBA
	if req.Sport != "" {
		sport = core.Sport(strings.ToUpper(strings.TrimSpace(req.Sport)))
	}

	insight, err := s.engine.Score(r.Context(), core.RunCtx{
		GameID:        req.GameID,
		AwayTeam:      awayTeam.Abbrev,
		HomeTeam:      homeTeam.Abbrev,
		Sport:         sport,
		BetType:       bt,
		FactorWeights: req.Weights,
	})
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.SaveInsight(r.Context(), insight, req.GameDate); err != nil {
			log.Error().Err(err).Str("run_id", insight.RunID).Msg("persist insight failed")
		}
	}
	if s.hub != nil {
		s.hub.BroadcastInsight(insight)
	}

	writeJSON(w, http.StatusOK, insight)
}

// handleGetInsight fetches one stored run by id.
func (s *Server) handleGetInsight(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_disabled", "persistence is not configured")
		return
	}

	runID := chi.URLParam(r, "runID")
	insight, err := s.store.GetInsight(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run_not_found", "no run with id "+runID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

// handleListInsights lists stored runs for a date, defaulting to today.
func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_disabled", "persistence is not configured")
		return
	}

	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	insights, err := s.store.ListInsightsByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":     date,
		"insights": insights,
		"count":    len(insights),
	})
}

// slateEntry is one scheduled game plus the markets already scored for it.
type slateEntry struct {
	core.Game
	ScoredMarkets []string `json:"scored_markets"`
}

// handleSlate lists the provider's games for a date with scoring status.
func (s *Server) handleSlate(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeError(w, http.StatusServiceUnavailable, "schedule_disabled", "stats provider is not configured")
		return
	}

	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	games, err := s.schedule.DailyGames(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_fetch_failed", err.Error())
		return
	}

	scored := map[string][]string{}
	if s.store != nil {
		insights, err := s.store.ListInsightsByDate(r.Context(), date)
		if err != nil {
			log.Warn().Err(err).Str("date", date).Msg("scoring status lookup failed")
		}
		for _, in := range insights {
			scored[in.GameID] = append(scored[in.GameID], string(in.BetType))
		}
	}

	entries := make([]slateEntry, 0, len(games))
	for _, g := range games {
		markets := scored[g.ID]
		if markets == nil {
			markets = []string{}
		}
		entries = append(entries, slateEntry{Game: g, ScoredMarkets: markets})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"games": entries,
		"count": len(entries),
	})
}

// handleListPicks returns the picks ledger, filtered by query params.
func (s *Server) handleListPicks(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_disabled", "persistence is not configured")
		return
	}

	filter := store.PickFilter{
		Status:   r.URL.Query().Get("status"),
		GameDate: r.URL.Query().Get("date"),
		Capper:   r.URL.Query().Get("capper"),
		Limit:    100,
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}

	out, err := s.store.ListPicks(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"picks": out,
		"count": len(out),
	})
}

// handleLeaderboard returns capper records sorted by net units.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_disabled", "persistence is not configured")
		return
	}

	records, err := s.store.CapperRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leaderboard": records,
		"count":       len(records),
	})
}

// dateParam reads the date query param (YYYY-MM-DD), defaulting to today
// UTC. Writes a 400 and returns false on a malformed date.
func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return time.Now().UTC().Format("2006-01-02"), true
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// statusFor maps scoring errors onto HTTP statuses: provider failures are
// bad gateways, weight validation is the caller's fault, an empty factor
// context is unprocessable, and everything else is internal.
func statusFor(err error) (int, string) {
	var fetchErr *hoopdata.DataFetchError
	switch {
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "upstream_fetch_failed"
	case errors.Is(err, engine.ErrBadWeight):
		return http.StatusBadRequest, "invalid_weights"
	case errors.Is(err, engine.ErrNoFactors):
		return http.StatusUnprocessableEntity, "no_applicable_factors"
	default:
		return http.StatusInternalServerError, "scoring_failed"
	}
}
