package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
)

const selectRunColumns = `run_id, game_id, game_date, sport, bet_type, away_team, home_team,
	registry_version, away_points, home_points, max_points, lean, lean_margin, debug, generated_at`

const insertRunQuery = `
	INSERT INTO scoring_runs (
		run_id, game_id, game_date, sport, bet_type, away_team, home_team,
		registry_version, away_points, home_points, max_points, lean,
		lean_margin, debug, generated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING created_at`

const insertLegQuery = `
	INSERT INTO factor_legs (
		run_id, factor_key, name, signal, raw, parsed, away_points,
		home_points, side, max_points, weight_pct, cap_applied, note
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const selectLegColumns = `run_id, factor_key, name, signal, raw, parsed, away_points,
	home_points, side, max_points, weight_pct, cap_applied, note`

type runRow struct {
	RunID           string    `db:"run_id"`
	GameID          string    `db:"game_id"`
	GameDate        string    `db:"game_date"`
	Sport           string    `db:"sport"`
	BetType         string    `db:"bet_type"`
	AwayTeam        string    `db:"away_team"`
	HomeTeam        string    `db:"home_team"`
	RegistryVersion string    `db:"registry_version"`
	AwayPoints      float64   `db:"away_points"`
	HomePoints      float64   `db:"home_points"`
	MaxPoints       float64   `db:"max_points"`
	Lean            string    `db:"lean"`
	LeanMargin      float64   `db:"lean_margin"`
	Debug           []byte    `db:"debug"`
	GeneratedAt     time.Time `db:"generated_at"`
}

type legRow struct {
	RunID      string  `db:"run_id"`
	FactorKey  string  `db:"factor_key"`
	Name       string  `db:"name"`
	Signal     float64 `db:"signal"`
	Raw        []byte  `db:"raw"`
	Parsed     []byte  `db:"parsed"`
	AwayPoints float64 `db:"away_points"`
	HomePoints float64 `db:"home_points"`
	Side       string  `db:"side"`
	MaxPoints  float64 `db:"max_points"`
	WeightPct  float64 `db:"weight_pct"`
	CapApplied bool    `db:"cap_applied"`
	Note       string  `db:"note"`
}

// SaveInsight writes the run and its factor legs in one transaction. A blank
// gameDate falls back to the run's generation date.
func (s *Store) SaveInsight(ctx context.Context, insight *core.Insight, gameDate string) error {
	if insight == nil {
		return fmt.Errorf("store: nil insight")
	}
	if gameDate == "" {
		gameDate = insight.GeneratedAt.UTC().Format("2006-01-02")
	}

	debugJSON, err := marshalNullable(insight.Debug)
	if err != nil {
		return fmt.Errorf("store: marshal debug: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var createdAt time.Time
	err = tx.QueryRowxContext(ctx, insertRunQuery,
		insight.RunID, insight.GameID, gameDate, insight.Sport, insight.BetType,
		insight.AwayTeam, insight.HomeTeam, insight.RegistryVersion,
		insight.AwayPoints, insight.HomePoints, insight.MaxPoints,
		insight.Lean, insight.LeanMargin, debugJSON, insight.GeneratedAt,
	).Scan(&createdAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("store: run %s already saved: %w", insight.RunID, err)
		}
		return fmt.Errorf("store: insert run: %w", err)
	}

	for _, leg := range insight.Factors {
		rawJSON, err := marshalNullable(leg.Raw)
		if err != nil {
			return fmt.Errorf("store: marshal raw for %s: %w", leg.Key, err)
		}
		parsedJSON, err := marshalNullable(leg.Parsed)
		if err != nil {
			return fmt.Errorf("store: marshal parsed for %s: %w", leg.Key, err)
		}
		_, err = tx.ExecContext(ctx, insertLegQuery,
			insight.RunID, leg.Key, leg.Name, leg.Signal, rawJSON, parsedJSON,
			leg.AwayPoints, leg.HomePoints, leg.Side, leg.MaxPoints,
			leg.WeightPct, leg.CapApplied, leg.Note)
		if err != nil {
			return fmt.Errorf("store: insert leg %s: %w", leg.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	log.Debug().
		Str("run_id", insight.RunID).
		Str("game_date", gameDate).
		Int("legs", len(insight.Factors)).
		Time("created_at", createdAt).
		Msg("scoring run saved")
	return nil
}

// GetInsight loads one run with its factor legs. Returns ErrNotFound when
// the run does not exist.
func (s *Store) GetInsight(ctx context.Context, runID string) (*core.Insight, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row runRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+selectRunColumns+` FROM scoring_runs WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}

	legs, err := s.legsForRuns(ctx, []string{runID})
	if err != nil {
		return nil, err
	}
	return row.toInsight(legs[runID])
}

// ListInsightsByDate returns all runs scored for games on the given date
// (YYYY-MM-DD), newest first.
func (s *Store) ListInsightsByDate(ctx context.Context, date string) ([]core.Insight, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []runRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+selectRunColumns+` FROM scoring_runs WHERE game_date = $1 ORDER BY generated_at DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	runIDs := make([]string, len(rows))
	for i, r := range rows {
		runIDs[i] = r.RunID
	}
	legsByRun, err := s.legsForRuns(ctx, runIDs)
	if err != nil {
		return nil, err
	}

	insights := make([]core.Insight, 0, len(rows))
	for _, r := range rows {
		insight, err := r.toInsight(legsByRun[r.RunID])
		if err != nil {
			return nil, err
		}
		insights = append(insights, *insight)
	}
	return insights, nil
}

// legsForRuns fetches factor legs for a set of runs, keyed by run id. The
// caller wraps ctx with the query timeout.
func (s *Store) legsForRuns(ctx context.Context, runIDs []string) (map[string][]legRow, error) {
	var legs []legRow
	err := s.db.SelectContext(ctx, &legs,
		`SELECT `+selectLegColumns+` FROM factor_legs WHERE run_id = ANY($1) ORDER BY id`, pq.Array(runIDs))
	if err != nil {
		return nil, fmt.Errorf("store: list legs: %w", err)
	}

	byRun := make(map[string][]legRow, len(runIDs))
	for _, leg := range legs {
		byRun[leg.RunID] = append(byRun[leg.RunID], leg)
	}
	return byRun, nil
}

func (r runRow) toInsight(legs []legRow) (*core.Insight, error) {
	insight := &core.Insight{
		RunID:           r.RunID,
		GameID:          r.GameID,
		Sport:           core.Sport(r.Sport),
		BetType:         core.BetType(r.BetType),
		AwayTeam:        r.AwayTeam,
		HomeTeam:        r.HomeTeam,
		RegistryVersion: r.RegistryVersion,
		AwayPoints:      r.AwayPoints,
		HomePoints:      r.HomePoints,
		MaxPoints:       r.MaxPoints,
		Lean:            core.Side(r.Lean),
		LeanMargin:      r.LeanMargin,
		GeneratedAt:     r.GeneratedAt,
	}

	if len(r.Debug) > 0 {
		var debug core.InsightDebug
		if err := json.Unmarshal(r.Debug, &debug); err != nil {
			return nil, fmt.Errorf("store: decode debug for %s: %w", r.RunID, err)
		}
		insight.Debug = &debug
	}

	for _, leg := range legs {
		comp := core.FactorComputation{
			Key:        leg.FactorKey,
			Name:       leg.Name,
			Signal:     leg.Signal,
			AwayPoints: leg.AwayPoints,
			HomePoints: leg.HomePoints,
			Side:       core.Side(leg.Side),
			MaxPoints:  leg.MaxPoints,
			WeightPct:  leg.WeightPct,
			CapApplied: leg.CapApplied,
			Note:       leg.Note,
		}
		if len(leg.Raw) > 0 {
			if err := json.Unmarshal(leg.Raw, &comp.Raw); err != nil {
				return nil, fmt.Errorf("store: decode raw for %s/%s: %w", r.RunID, leg.FactorKey, err)
			}
		}
		if len(leg.Parsed) > 0 {
			if err := json.Unmarshal(leg.Parsed, &comp.Parsed); err != nil {
				return nil, fmt.Errorf("store: decode parsed for %s/%s: %w", r.RunID, leg.FactorKey, err)
			}
		}
		insight.Factors = append(insight.Factors, comp)
	}
	return insight, nil
}

// marshalNullable converts optional JSON payloads to a NULL-able column
// value, mapping nil pointers and empty maps to SQL NULL.
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *core.InsightDebug:
		if t == nil {
			return nil, nil
		}
	case map[string]float64:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
