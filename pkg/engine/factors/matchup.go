package factors

import (
	"fmt"
	"math"

	"github.com/pickpulse/shiva/core"
)

// ReboundingEdge compares combined offensive plus defensive rebounding
// percentage. The raw differential is written home-positive and flipped to
// the away-positive convention at the output step; snapshots keep the raw
// form.
func ReboundingEdge(in Input) core.FactorComputation {
	b := in.Bundle
	awaySum := (b.Away.Season.ORebPct + b.Away.Season.DRebPct) * 100
	homeSum := (b.Home.Season.ORebPct + b.Home.Season.DRebPct) * 100
	raw := homeSum - awaySum
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(-raw, 10),
		map[string]float64{
			"away_reb_pct": awaySum,
			"home_reb_pct": homeSum,
		},
		map[string]float64{"home_edge": raw},
		false,
		fmt.Sprintf("combined rebounding %.1f vs %.1f", awaySum, homeSum))
}

// PaceMismatch rewards the slower team in a spread context: tempo control
// shortens the game and tightens variance.
func PaceMismatch(in Input) core.FactorComputation {
	b := in.Bundle
	raw := -(b.Away.Season.Pace - b.Home.Season.Pace) * 0.3
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 3),
		map[string]float64{
			"away_pace": b.Away.Season.Pace,
			"home_pace": b.Home.Season.Pace,
		},
		map[string]float64{"mismatch": raw},
		false,
		fmt.Sprintf("pace %.1f vs %.1f", b.Away.Season.Pace, b.Home.Season.Pace))
}

// ShootingMomentum blends a shooting-efficiency differential (eFG plus FT
// rate, both on the 0-1 scale) with recent offensive-rating momentum.
func ShootingMomentum(in Input) core.FactorComputation {
	b := in.Bundle
	awayEff := b.Away.Season.EFGPct/100 + b.Away.Season.FTRate
	homeEff := b.Home.Season.EFGPct/100 + b.Home.Season.FTRate
	effTerm := 0.6 * (awayEff - homeEff) * 100

	awayMom := b.Away.Last10.ORtg - b.Away.Season.ORtg
	homeMom := b.Home.Last10.ORtg - b.Home.Season.ORtg
	momTerm := 0.4 * (awayMom - homeMom) * 50

	raw := effTerm + momTerm
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 6),
		map[string]float64{
			"away_eff":      awayEff,
			"home_eff":      homeEff,
			"away_momentum": awayMom,
			"home_momentum": homeMom,
		},
		map[string]float64{"efficiency_term": effTerm, "momentum_term": momTerm},
		false,
		fmt.Sprintf("efficiency %.3f vs %.3f, momentum %+.1f vs %+.1f", awayEff, homeEff, awayMom, homeMom))
}

// AssistEfficiency compares season assist-to-turnover ratios.
func AssistEfficiency(in Input) core.FactorComputation {
	b := in.Bundle
	awayRatio := b.Away.Season.AstPerGame / b.Away.Season.TovPerGame
	homeRatio := b.Home.Season.AstPerGame / b.Home.Season.TovPerGame
	raw := awayRatio - homeRatio
	if !finite(awayRatio, homeRatio, raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 0.5),
		map[string]float64{
			"away_ast_tov": awayRatio,
			"home_ast_tov": homeRatio,
		},
		map[string]float64{"delta": raw},
		false,
		fmt.Sprintf("AST/TOV %.2f vs %.2f", awayRatio, homeRatio))
}

// ScoringMargin compares season scoring margins, capped at +/-20 before
// saturation so one blowout-heavy team cannot pin the signal.
func ScoringMargin(in Input) core.FactorComputation {
	b := in.Bundle
	awayMargin := b.Away.Season.PPG - b.Away.Season.OppPPG
	homeMargin := b.Home.Season.PPG - b.Home.Season.OppPPG
	raw := awayMargin - homeMargin
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	capped, capApplied := capAbs(raw, 20)
	return build(in, saturate(capped, 8),
		map[string]float64{
			"away_margin": awayMargin,
			"home_margin": homeMargin,
		},
		map[string]float64{"delta": capped},
		capApplied,
		fmt.Sprintf("scoring margin %+.1f vs %+.1f", awayMargin, homeMargin))
}

// ClutchShooting weights free-throw accuracy over field-goal accuracy; late
// whistles decide close games.
func ClutchShooting(in Input) core.FactorComputation {
	b := in.Bundle
	raw := 1.5*(b.Away.Season.FTPct-b.Home.Season.FTPct) + 0.8*(b.Away.Season.FGPct-b.Home.Season.FGPct)
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	capped, capApplied := capAbs(raw, 15)
	return build(in, saturate(capped, 6),
		map[string]float64{
			"away_ft_pct": b.Away.Season.FTPct,
			"home_ft_pct": b.Home.Season.FTPct,
			"away_fg_pct": b.Away.Season.FGPct,
			"home_fg_pct": b.Home.Season.FGPct,
		},
		map[string]float64{"composite": capped},
		capApplied,
		fmt.Sprintf("FT%% %.1f vs %.1f, FG%% %.1f vs %.1f",
			b.Away.Season.FTPct, b.Home.Season.FTPct, b.Away.Season.FGPct, b.Home.Season.FGPct))
}

// PerimeterDefense compares what each defense concedes from three and
// overall. Lower opponent percentages are better, so the differential is
// written home-minus-away and is already away-positive.
func PerimeterDefense(in Input) core.FactorComputation {
	b := in.Bundle
	raw := 1.5*(b.Home.Season.OppThreePct-b.Away.Season.OppThreePct) +
		0.8*(b.Home.Season.OppFGPct-b.Away.Season.OppFGPct)
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	capped, capApplied := capAbs(raw, 10)
	return build(in, saturate(capped, 4),
		map[string]float64{
			"away_opp_three_pct": b.Away.Season.OppThreePct,
			"home_opp_three_pct": b.Home.Season.OppThreePct,
			"away_opp_fg_pct":    b.Away.Season.OppFGPct,
			"home_opp_fg_pct":    b.Home.Season.OppFGPct,
		},
		map[string]float64{"composite": capped},
		capApplied,
		fmt.Sprintf("opp 3P%% %.1f vs %.1f", b.Away.Season.OppThreePct, b.Home.Season.OppThreePct))
}

// HomeAwaySplits compares the away team's road net rating against the home
// team's home net rating, the two contexts that actually apply tonight.
func HomeAwaySplits(in Input) core.FactorComputation {
	b := in.Bundle
	awayRoadNet := b.Away.Season.RoadORtg - b.Away.Season.RoadDRtg
	homeHomeNet := b.Home.Season.HomeORtg - b.Home.Season.HomeDRtg
	raw := awayRoadNet - homeHomeNet
	if !finite(raw) {
		return neutral(in, BadInput)
	}

	return build(in, saturate(raw, 6),
		map[string]float64{
			"away_road_net": awayRoadNet,
			"home_home_net": homeHomeNet,
		},
		map[string]float64{"delta": raw},
		false,
		fmt.Sprintf("road net %+.1f vs home net %+.1f", awayRoadNet, homeHomeNet))
}

// InjuryAvailability converts the net injury differential into a side
// signal. Net is away-minus-home production loss, so a depleted away roster
// pushes the signal toward home.
func InjuryAvailability(in Input) core.FactorComputation {
	inj := in.Injury
	if inj == nil {
		inj = &core.InjuryImpact{}
	}
	if !finite(inj.Net) {
		return neutral(in, BadInput)
	}

	signal := -math.Tanh(inj.Net / 5)
	return build(in, signal,
		map[string]float64{
			"away_loss":     inj.AwayLoss,
			"home_loss":     inj.HomeLoss,
			"away_injuries": float64(inj.AwayInjuries),
			"home_injuries": float64(inj.HomeInjuries),
		},
		map[string]float64{"net": inj.Net},
		false,
		fmt.Sprintf("net injury differential %+.2f (%d vs %d qualifying)", inj.Net, inj.AwayInjuries, inj.HomeInjuries))
}
