// Package engine hosts the shiva-v1 factor registry and the scoring
// orchestrator that turns a game context into a weighted insight.
package engine

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/engine/factors"
)

// RegistryVersion names the catalog revision stamped onto every insight.
const RegistryVersion = "shiva-v1"

const defaultMaxPoints = 5.0

var nba = []core.Sport{core.SportNBA}

// catalog is the static shiva-v1 factor set. Defined once, never mutated.
var catalog = []core.FactorMeta{
	{
		Key:           "pace_index",
		Name:          "Pace Index",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetTotal},
		Scope:         core.ScopeEnvironment,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.30,
	},
	{
		Key:           "offensive_form",
		Name:          "Offensive Form",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetTotal},
		Scope:         core.ScopeEnvironment,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.25,
	},
	{
		Key:           "defensive_erosion",
		Name:          "Defensive Erosion",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetTotal},
		Scope:         core.ScopeEnvironment,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.20,
	},
	{
		Key:           "three_point_env",
		Name:          "3PT Environment",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetTotal},
		Scope:         core.ScopeEnvironment,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.15,
	},
	{
		Key:           "whistle_env",
		Name:          "FT/Whistle Environment",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetTotal},
		Scope:         core.ScopeEnvironment,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
	{
		Key:           "rebounding_edge",
		Name:          "Rebounding Differential",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
	{
		Key:           "pace_mismatch",
		Name:          "Pace Mismatch",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
	{
		Key:           "shooting_momentum",
		Name:          "Shooting Efficiency + Momentum",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.15,
	},
	{
		Key:           "assist_efficiency",
		Name:          "Assist Efficiency",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
	{
		Key:           "scoring_margin",
		Name:          "Scoring Margin",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.15,
	},
	{
		Key:           "clutch_shooting",
		Name:          "Clutch Shooting",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
	{
		Key:           "perimeter_defense",
		Name:          "Perimeter Defense",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
	{
		Key:           "home_away_splits",
		Name:          "Home/Away Splits",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
	{
		Key:           "injury_availability",
		Name:          "Injury Availability",
		Sports:        nba,
		BetTypes:      []core.BetType{core.BetSpread, core.BetMoneyline},
		Scope:         core.ScopeMatchup,
		MaxPoints:     defaultMaxPoints,
		DefaultWeight: 0.10,
	},
}

// Catalog returns a copy of the full factor set.
func Catalog() []core.FactorMeta {
	return slices.Clone(catalog)
}

// FactorsByContext returns the factors applicable to a (sport, bet type)
// pair. The composite SPREAD/MONEYLINE context matches factors tagged either
// way. An empty slice means nothing applies; that is not an error here.
func FactorsByContext(sport core.Sport, betType core.BetType) []core.FactorMeta {
	var out []core.FactorMeta
	for _, meta := range catalog {
		if meta.AppliesTo(sport, betType) {
			out = append(out, meta)
		}
	}
	log.Debug().
		Str("sport", string(sport)).
		Str("bet_type", string(betType)).
		Int("matched", len(out)).
		Msg("factor context resolved")
	return out
}

// ValidateCatalog checks the static catalog at engine construction: keys are
// unique and backed by a compute function, point ceilings are positive,
// default weights are sane shares, and each base context's weights sum near
// 1.0.
func ValidateCatalog() error {
	seen := make(map[string]bool, len(catalog))
	for _, meta := range catalog {
		if meta.Key == "" {
			return fmt.Errorf("factor with empty key")
		}
		if seen[meta.Key] {
			return fmt.Errorf("duplicate factor key %q", meta.Key)
		}
		seen[meta.Key] = true
		if factors.ForKey(meta.Key) == nil {
			return fmt.Errorf("factor %s: no compute function registered", meta.Key)
		}
		if meta.MaxPoints <= 0 {
			return fmt.Errorf("factor %s: max points %v must be positive", meta.Key, meta.MaxPoints)
		}
		if meta.DefaultWeight < 0 || meta.DefaultWeight > 1 {
			return fmt.Errorf("factor %s: default weight %v outside [0, 1]", meta.Key, meta.DefaultWeight)
		}
		if len(meta.Sports) == 0 || len(meta.BetTypes) == 0 {
			return fmt.Errorf("factor %s: empty applicability lists", meta.Key)
		}
	}

	for _, bt := range []core.BetType{core.BetTotal, core.BetSpread, core.BetMoneyline} {
		var sum float64
		for _, meta := range catalog {
			if meta.AppliesTo(core.SportNBA, bt) {
				sum += meta.DefaultWeight
			}
		}
		if sum < 0.8 || sum > 1.2 {
			return fmt.Errorf("%s default weights sum to %.2f, want within [0.8, 1.2]", bt, sum)
		}
	}
	return nil
}
