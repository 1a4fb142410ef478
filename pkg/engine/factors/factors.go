// Package factors implements the shiva-v1 per-factor computation functions.
// Each factor is a pure function of the stats bundle (plus the injury impact
// where relevant): it extracts a handful of fields, computes a raw
// differential, saturates it into a signal in [-1, 1], and hands the full
// point value to the advantaged side. Positive signal always means the away
// team (or the Over) is advantaged.
package factors

import (
	"math"

	"github.com/pickpulse/shiva/core"
)

// BadInput is the note stamped on a computation neutralized because a
// non-finite value reached the formula.
const BadInput = "bad_input"

// Input carries everything a factor function may read.
type Input struct {
	Bundle  *core.StatsBundle
	Injury  *core.InjuryImpact
	Meta    core.FactorMeta
	BetType core.BetType
}

// Func computes one factor. Implementations never return errors; bad numeric
// input degrades to a neutral zero-signal computation.
type Func func(in Input) core.FactorComputation

var registry = map[string]Func{
	"pace_index":           PaceIndex,
	"offensive_form":       OffensiveForm,
	"defensive_erosion":    DefensiveErosion,
	"three_point_env":      ThreePointEnv,
	"whistle_env":          WhistleEnv,
	"rebounding_edge":      ReboundingEdge,
	"pace_mismatch":        PaceMismatch,
	"shooting_momentum":    ShootingMomentum,
	"assist_efficiency":    AssistEfficiency,
	"scoring_margin":       ScoringMargin,
	"clutch_shooting":      ClutchShooting,
	"perimeter_defense":    PerimeterDefense,
	"home_away_splits":     HomeAwaySplits,
	"injury_availability":  InjuryAvailability,
}

// ForKey returns the compute function for a factor key, or nil when the key
// is unknown.
func ForKey(key string) Func {
	return registry[key]
}

// blend mixes a season value with recent form at the fixed 60/40 split every
// blended factor uses.
func blend(season, last10 float64) float64 {
	return season*0.6 + last10*0.4
}

// saturate maps a raw differential into (-1, 1) via tanh.
func saturate(raw, scale float64) float64 {
	return math.Tanh(raw / scale)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// capAbs bounds v to [-bound, bound] and reports whether the cap bit.
func capAbs(v, bound float64) (float64, bool) {
	if v > bound {
		return bound, true
	}
	if v < -bound {
		return -bound, true
	}
	return v, false
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// build assembles the computation record from a clamped signal:
// points = |signal| x MaxPoints, all of it to the advantaged side.
func build(in Input, signal float64, raw, parsed map[string]float64, capApplied bool, note string) core.FactorComputation {
	signal = clamp(signal, -1, 1)
	points := math.Abs(signal) * in.Meta.MaxPoints

	c := core.FactorComputation{
		Key:        in.Meta.Key,
		Name:       in.Meta.Name,
		Signal:     signal,
		Raw:        raw,
		Parsed:     parsed,
		Side:       core.AdvantageSide(signal, in.BetType),
		MaxPoints:  in.Meta.MaxPoints,
		WeightPct:  100,
		CapApplied: capApplied,
		Note:       note,
	}
	switch {
	case signal > 0:
		c.AwayPoints = points
	case signal < 0:
		c.HomePoints = points
	}
	return c
}

// neutral is the zero-signal computation a factor degrades to when the
// formula cannot run.
func neutral(in Input, note string) core.FactorComputation {
	return core.FactorComputation{
		Key:       in.Meta.Key,
		Name:      in.Meta.Name,
		Side:      core.SideNone,
		MaxPoints: in.Meta.MaxPoints,
		WeightPct: 100,
		Note:      note,
	}
}
