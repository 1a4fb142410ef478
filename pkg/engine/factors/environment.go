package factors

import (
	"fmt"
	"math"

	"github.com/pickpulse/shiva/core"
)

// PaceIndex compares the matchup's blended expected pace against the league
// anchor. Fast environments favor the Over.
func PaceIndex(in Input) core.FactorComputation {
	b := in.Bundle
	awayPace := blend(b.Away.Season.Pace, b.Away.Last10.Pace)
	homePace := blend(b.Home.Season.Pace, b.Home.Last10.Pace)
	expected := (awayPace + homePace) / 2
	raw := expected - b.Anchors.Pace
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 6),
		map[string]float64{
			"away_pace":   awayPace,
			"home_pace":   homePace,
			"league_pace": b.Anchors.Pace,
		},
		map[string]float64{"expected_pace": expected, "delta": raw},
		false,
		fmt.Sprintf("expected pace %.1f vs league %.1f", expected, b.Anchors.Pace))
}

// OffensiveForm measures how much scoring punch both offenses bring relative
// to league average, adjusting each blended ORtg by the quality of the
// defense it faces tonight.
func OffensiveForm(in Input) core.FactorComputation {
	b := in.Bundle
	awayAdj := blend(b.Away.Season.ORtg, b.Away.Last10.ORtg) +
		(blend(b.Home.Season.DRtg, b.Home.Last10.DRtg) - b.Anchors.DRtg)
	homeAdj := blend(b.Home.Season.ORtg, b.Home.Last10.ORtg) +
		(blend(b.Away.Season.DRtg, b.Away.Last10.DRtg) - b.Anchors.DRtg)
	raw := (awayAdj + homeAdj) - 2*b.Anchors.ORtg
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 10),
		map[string]float64{
			"away_ortg_adj": awayAdj,
			"home_ortg_adj": homeAdj,
			"league_ortg":   b.Anchors.ORtg,
		},
		map[string]float64{"combined_excess": raw},
		false,
		fmt.Sprintf("adjusted offenses %.1f/%.1f vs league %.1f", awayAdj, homeAdj, b.Anchors.ORtg))
}

// DefensiveErosion blends how far both defenses have slipped from league
// average with each roster's injury depletion. Eroding defenses favor the
// Over. Direct clamp, no tanh.
func DefensiveErosion(in Input) core.FactorComputation {
	b := in.Bundle
	inj := in.Injury
	if inj == nil {
		inj = &core.InjuryImpact{}
	}

	awayErosion := 0.7*(blend(b.Away.Season.DRtg, b.Away.Last10.DRtg)-b.Anchors.DRtg)/8 + 0.3*inj.Away
	homeErosion := 0.7*(blend(b.Home.Season.DRtg, b.Home.Last10.DRtg)-b.Anchors.DRtg)/8 + 0.3*inj.Home
	raw := (awayErosion + homeErosion) / 2
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	capApplied := math.Abs(raw) > 1
	return build(in, clamp(raw, -1, 1),
		map[string]float64{
			"away_erosion": awayErosion,
			"home_erosion": homeErosion,
			"away_injury":  inj.Away,
			"home_injury":  inj.Home,
		},
		map[string]float64{"mean_erosion": raw},
		capApplied,
		fmt.Sprintf("defensive erosion %.2f/%.2f", awayErosion, homeErosion))
}

// ThreePointEnv reads the matchup's three-point volume against the league
// plus any recent hot shooting in excess of season norms.
func ThreePointEnv(in Input) core.FactorComputation {
	b := in.Bundle
	meanRate := (b.Away.Season.ThreeRate + b.Home.Season.ThreeRate) / 2
	rateDelta := meanRate - b.Anchors.ThreeRate
	awayHot := math.Max(0, b.Away.Last3.ThreePct-b.Away.Season.ThreePct) / 100
	homeHot := math.Max(0, b.Home.Last3.ThreePct-b.Home.Season.ThreePct) / 100
	hot := (awayHot + homeHot) / 2
	raw := 2*rateDelta + hot
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 0.1),
		map[string]float64{
			"mean_three_rate":   meanRate,
			"league_three_rate": b.Anchors.ThreeRate,
			"away_hot":          awayHot,
			"home_hot":          homeHot,
		},
		map[string]float64{"rate_delta": rateDelta, "hot_excess": hot},
		false,
		fmt.Sprintf("3PA rate %.3f vs league %.3f, hot excess %.3f", meanRate, b.Anchors.ThreeRate, hot))
}

// WhistleEnv reads the matchup's free-throw rate against the league anchor.
// Whistle-heavy games add free points toward the Over.
func WhistleEnv(in Input) core.FactorComputation {
	b := in.Bundle
	meanRate := (b.Away.Season.FTRate + b.Home.Season.FTRate) / 2
	raw := meanRate - b.Anchors.FTRate
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 0.06),
		map[string]float64{
			"mean_ft_rate":   meanRate,
			"league_ft_rate": b.Anchors.FTRate,
		},
		map[string]float64{"delta": raw},
		false,
		fmt.Sprintf("FT rate %.3f vs league %.3f", meanRate, b.Anchors.FTRate))
}
