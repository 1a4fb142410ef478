package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/engine/factors"
	"github.com/pickpulse/shiva/pkg/metrics"
)

var (
	// ErrNoFactors means the (sport, bet type) context matches nothing in
	// the catalog.
	ErrNoFactors = errors.New("no factors apply to context")

	// ErrBadWeight means a caller-supplied weight override is unusable:
	// unknown factor key, out of [0, 100], or non-finite.
	ErrBadWeight = errors.New("invalid factor weight")
)

// BundleSource produces the stats bundle for one game.
type BundleSource interface {
	FetchBundle(ctx context.Context, gameID, away, home string) (*core.StatsBundle, error)
}

// InjurySource produces the injury impact for one matchup.
type InjurySource interface {
	Assess(ctx context.Context, away, home string) (*core.InjuryImpact, error)
}

// Engine runs scoring. It holds no per-run state and is safe for concurrent
// use.
type Engine struct {
	bundles     BundleSource
	injuries    InjurySource
	metrics     *metrics.EngineMetrics
	debugBundle bool
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithBundleDebug includes the full stats bundle snapshot in each insight's
// debug payload. Off by default; the snapshots dominate the payload size.
func WithBundleDebug(enabled bool) Option {
	return func(e *Engine) { e.debugBundle = enabled }
}

// New validates the catalog and builds an engine over the given sources.
func New(bundles BundleSource, injuries InjurySource, m *metrics.EngineMetrics, opts ...Option) (*Engine, error) {
	if err := ValidateCatalog(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if bundles == nil {
		return nil, errors.New("engine: bundle source required")
	}
	if injuries == nil {
		return nil, errors.New("engine: injury source required")
	}
	e := &Engine{bundles: bundles, injuries: injuries, metrics: m}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Score runs one full scoring pass: resolve applicable factors, fetch the
// bundle and injury impact concurrently, compute each factor, apply weight
// overrides, and aggregate side totals. Weight validation happens before any
// network call so a bad request never costs a fetch.
func (e *Engine) Score(ctx context.Context, rc core.RunCtx) (*core.Insight, error) {
	start := time.Now()

	if err := validateWeights(rc.FactorWeights); err != nil {
		return nil, err
	}

	metas := FactorsByContext(rc.Sport, rc.BetType)
	if len(metas) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoFactors, rc.Sport, rc.BetType)
	}

	bundle, impact, err := e.fetch(ctx, rc)
	if err != nil {
		e.metrics.RecordRun(string(rc.Sport), string(rc.BetType), "error", time.Since(start).Seconds(), -1)
		return nil, err
	}
	fetchMillis := time.Since(start).Milliseconds()
	rc.Anchors = bundle.Anchors

	scoreStart := time.Now()
	computations := make([]core.FactorComputation, 0, len(metas))
	factorKeys := make([]string, 0, len(metas))
	var awayTotal, homeTotal, maxTotal float64
	for _, meta := range metas {
		comp := factors.ForKey(meta.Key)(factors.Input{
			Bundle:  bundle,
			Injury:  impact,
			Meta:    meta,
			BetType: rc.BetType,
		})
		e.metrics.RecordFactor(meta.Key, comp.Signal, comp.AwayPoints+comp.HomePoints, comp.Note == factors.BadInput)

		scale := weightPct(rc.FactorWeights, meta.Key)
		comp.WeightPct = scale
		comp.AwayPoints *= scale / 100
		comp.HomePoints *= scale / 100

		awayTotal += comp.AwayPoints
		homeTotal += comp.HomePoints
		maxTotal += meta.MaxPoints * scale / 100
		computations = append(computations, comp)
		factorKeys = append(factorKeys, meta.Key)
	}
	scoreMillis := time.Since(scoreStart).Milliseconds()

	var lean core.Side
	switch {
	case awayTotal > homeTotal:
		lean = core.AdvantageSide(1, rc.BetType)
	case homeTotal > awayTotal:
		lean = core.AdvantageSide(-1, rc.BetType)
	default:
		lean = core.SideNone
	}

	insight := &core.Insight{
		RunID:           uuid.NewString(),
		GameID:          rc.GameID,
		Sport:           rc.Sport,
		BetType:         rc.BetType,
		AwayTeam:        rc.AwayTeam,
		HomeTeam:        rc.HomeTeam,
		RegistryVersion: RegistryVersion,
		Factors:         computations,
		AwayPoints:      awayTotal,
		HomePoints:      homeTotal,
		MaxPoints:       maxTotal,
		Lean:            lean,
		LeanMargin:      math.Abs(awayTotal - homeTotal),
		GeneratedAt:     time.Now().UTC(),
		Debug: &core.InsightDebug{
			Anchors:     rc.Anchors,
			Injury:      *impact,
			FactorKeys:  factorKeys,
			Fallbacks:   bundle.Fallbacks,
			FetchMillis: fetchMillis,
			ScoreMillis: scoreMillis,
		},
	}
	if e.debugBundle {
		insight.Debug.Bundle = bundle
	}

	e.metrics.RecordRun(string(rc.Sport), string(rc.BetType), "ok", time.Since(start).Seconds(), len(computations))
	log.Debug().
		Str("run_id", insight.RunID).
		Str("game_id", rc.GameID).
		Str("bet_type", string(rc.BetType)).
		Float64("away_points", awayTotal).
		Float64("home_points", homeTotal).
		Str("lean", string(lean)).
		Int64("fetch_ms", fetchMillis).
		Int64("score_ms", scoreMillis).
		Msg("scoring run complete")

	return insight, nil
}

// fetch gathers the stats bundle and the injury impact concurrently. Either
// failure aborts the run.
func (e *Engine) fetch(ctx context.Context, rc core.RunCtx) (*core.StatsBundle, *core.InjuryImpact, error) {
	var (
		bundle *core.StatsBundle
		impact *core.InjuryImpact
	)
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b, err := e.bundles.FetchBundle(ctx, rc.GameID, rc.AwayTeam, rc.HomeTeam)
		if err != nil {
			errCh <- err
			return
		}
		bundle = b
	}()
	go func() {
		defer wg.Done()
		imp, err := e.injuries.Assess(ctx, rc.AwayTeam, rc.HomeTeam)
		if err != nil {
			errCh <- err
			return
		}
		impact = imp
	}()
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, nil, err
	}
	return bundle, impact, nil
}

func validateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return nil
	}
	known := make(map[string]bool, len(catalog))
	for _, meta := range catalog {
		known[meta.Key] = true
	}
	for key, pct := range weights {
		if !known[key] {
			return fmt.Errorf("%w: unknown factor %q", ErrBadWeight, key)
		}
		if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 || pct > 100 {
			return fmt.Errorf("%w: %s=%v outside [0, 100]", ErrBadWeight, key, pct)
		}
	}
	return nil
}

// weightPct resolves the effective weight percent for a factor. Absent
// override means full nominal weight.
func weightPct(weights map[string]float64, key string) float64 {
	if pct, ok := weights[key]; ok {
		return pct
	}
	return 100
}
