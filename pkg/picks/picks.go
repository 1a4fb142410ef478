// Package picks converts strong insights into model picks, grades them
// against final scores, and aggregates capper records.
package picks

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/engine"
	"github.com/pickpulse/shiva/pkg/metrics"
	"github.com/pickpulse/shiva/pkg/odds"
)

// Status is a pick's lifecycle state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusWon     Status = "WON"
	StatusLost    Status = "LOST"
	StatusPush    Status = "PUSH"
	StatusVoid    Status = "VOID"
)

// Pick is one wager recommended by the model (or inserted manually under
// another capper name).
type Pick struct {
	ID          string       `json:"id" db:"id"`
	RunID       string       `json:"run_id" db:"run_id"`
	GameID      string       `json:"game_id" db:"game_id"`
	GameDate    string       `json:"game_date" db:"game_date"`
	Capper      string       `json:"capper" db:"capper"`
	Sport       core.Sport   `json:"sport" db:"sport"`
	BetType     core.BetType `json:"bet_type" db:"bet_type"`
	Side        core.Side    `json:"side" db:"side"`
	Line        float64      `json:"line" db:"line"`
	Odds        int          `json:"odds" db:"odds"`
	Units       float64      `json:"units" db:"units"`
	EdgePoints  float64      `json:"edge_points" db:"edge_points"`
	WinProb     float64      `json:"win_prob" db:"win_prob"`
	Status      Status       `json:"status" db:"status"`
	ProfitUnits float64      `json:"profit_units" db:"profit_units"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	GradedAt    *time.Time   `json:"graded_at,omitempty" db:"graded_at"`
}

// Quote is the market price a pick is written against. A zero Quote means
// pick'em at the builder's default odds for sides markets; totals require a
// posted line.
type Quote struct {
	Line float64
	Odds int
}

// Config tunes pick generation.
type Config struct {
	Capper          string
	PointsThreshold float64 // winning side must score at least this
	MarginThreshold float64 // and beat the other side by at least this
	DefaultOdds     int
	Sizer           *odds.SizerConfig
}

// DefaultConfig returns the production thresholds. The model grades under
// the registry version as its capper name.
func DefaultConfig() *Config {
	return &Config{
		Capper:          engine.RegistryVersion,
		PointsThreshold: 6.0,
		MarginThreshold: 2.0,
		DefaultOdds:     -110,
	}
}

// Builder turns insights into picks.
type Builder struct {
	capper          string
	pointsThreshold float64
	marginThreshold float64
	defaultOdds     int
	sizer           *odds.Sizer
	metrics         *metrics.EngineMetrics
}

// NewBuilder creates a Builder, falling back to defaults for unset values.
func NewBuilder(config *Config, m *metrics.EngineMetrics) *Builder {
	if config == nil {
		config = DefaultConfig()
	}

	defaults := DefaultConfig()
	if config.Capper == "" {
		config.Capper = defaults.Capper
	}
	if config.PointsThreshold == 0 {
		config.PointsThreshold = defaults.PointsThreshold
	}
	if config.MarginThreshold == 0 {
		config.MarginThreshold = defaults.MarginThreshold
	}
	if config.DefaultOdds == 0 {
		config.DefaultOdds = defaults.DefaultOdds
	}

	return &Builder{
		capper:          config.Capper,
		pointsThreshold: config.PointsThreshold,
		marginThreshold: config.MarginThreshold,
		defaultOdds:     config.DefaultOdds,
		sizer:           odds.NewSizer(config.Sizer),
		metrics:         m,
	}
}

// FromInsight converts a finished insight into a pick when the winning side
// clears the points threshold and its margin over the other side clears the
// margin threshold. Returns false when the insight is not strong enough to
// bet, or when no stake survives sizing.
func (b *Builder) FromInsight(insight *core.Insight, game core.Game, quote Quote) (*Pick, bool) {
	if insight == nil || insight.Lean == core.SideNone {
		return nil, false
	}
	winnerPts := math.Max(insight.AwayPoints, insight.HomePoints)
	if winnerPts < b.pointsThreshold || insight.LeanMargin < b.marginThreshold {
		return nil, false
	}

	// A totals market is ungradable without a posted line. Sides markets
	// degrade to pick'em/flat at line 0.
	if (insight.Lean == core.SideOver || insight.Lean == core.SideUnder) && quote.Line <= 0 {
		log.Debug().Str("run_id", insight.RunID).Msg("totals pick skipped, no posted line")
		return nil, false
	}

	american := quote.Odds
	if american == 0 {
		american = b.defaultOdds
	}
	winProb := b.winProbability(insight.LeanMargin, american)
	units, err := b.sizer.Units(winProb, american)
	if err != nil {
		log.Warn().Err(err).Str("run_id", insight.RunID).Int("odds", american).Msg("pick sizing failed")
		return nil, false
	}
	if units <= 0 {
		return nil, false
	}

	pick := &Pick{
		ID:         uuid.NewString(),
		RunID:      insight.RunID,
		GameID:     insight.GameID,
		GameDate:   game.Date,
		Capper:     b.capper,
		Sport:      insight.Sport,
		BetType:    insight.BetType,
		Side:       insight.Lean,
		Line:       quote.Line,
		Odds:       american,
		Units:      units,
		EdgePoints: insight.LeanMargin,
		WinProb:    winProb,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	b.metrics.RecordPick(string(pick.BetType), string(pick.Side), units)
	log.Debug().
		Str("pick_id", pick.ID).
		Str("game_id", pick.GameID).
		Str("side", string(pick.Side)).
		Float64("units", units).
		Float64("edge_points", pick.EdgePoints).
		Msg("pick generated")
	return pick, true
}

// winProbability anchors on the price's implied probability and credits one
// percentage point per point of model margin, capped at 0.75. Every
// qualifying pick therefore sizes to a positive stake.
func (b *Builder) winProbability(margin float64, american int) float64 {
	implied, err := odds.ImpliedProbability(american)
	if err != nil {
		implied = 0.5
	}
	p := implied + margin/100
	if p > 0.75 {
		p = 0.75
	}
	return p
}
