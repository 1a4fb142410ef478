package picks

import (
	"fmt"
	"time"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/odds"
)

// Grade settles a pending pick against a final score, filling in status,
// profit units, and the graded timestamp. The away team's line convention
// is used throughout: a spread pick covers when awayScore - homeScore + line
// lands on the pick's side of zero.
func Grade(p *Pick, game core.Game) error {
	if p == nil {
		return fmt.Errorf("grade: nil pick")
	}
	if !game.Final() {
		return fmt.Errorf("grade: game %s is not final", game.ID)
	}
	if p.Status != StatusPending {
		return fmt.Errorf("grade: pick %s already settled (%s)", p.ID, p.Status)
	}

	outcome, err := settle(p, game.AwayScore, game.HomeScore)
	if err != nil {
		return err
	}

	switch outcome {
	case StatusWon:
		profit, err := odds.ProfitUnits(p.Units, p.Odds)
		if err != nil {
			return fmt.Errorf("grade: pick %s: %w", p.ID, err)
		}
		p.ProfitUnits = profit
	case StatusLost:
		p.ProfitUnits = -p.Units
	default:
		p.ProfitUnits = 0
	}

	p.Status = outcome
	now := time.Now().UTC()
	p.GradedAt = &now
	return nil
}

// settle resolves the market outcome for the pick's side. Exact landings
// push.
func settle(p *Pick, awayScore, homeScore int) (Status, error) {
	switch market(p) {
	case core.BetSpread:
		diff := float64(awayScore-homeScore) + p.Line
		switch {
		case diff == 0:
			return StatusPush, nil
		case diff > 0:
			return wonIf(p.Side == core.SideAway), nil
		default:
			return wonIf(p.Side == core.SideHome), nil
		}
	case core.BetTotal:
		total := float64(awayScore + homeScore)
		switch {
		case total == p.Line:
			return StatusPush, nil
		case total > p.Line:
			return wonIf(p.Side == core.SideOver), nil
		default:
			return wonIf(p.Side == core.SideUnder), nil
		}
	case core.BetMoneyline:
		switch {
		case awayScore == homeScore:
			return StatusPush, nil
		case awayScore > homeScore:
			return wonIf(p.Side == core.SideAway), nil
		default:
			return wonIf(p.Side == core.SideHome), nil
		}
	}
	return "", fmt.Errorf("grade: unsupported bet type %q", p.BetType)
}

// market maps the pick's bet type to the market it settles on. A composite
// SPREAD/MONEYLINE pick settles as a spread when it carries a line and as a
// moneyline otherwise.
func market(p *Pick) core.BetType {
	if p.BetType == core.BetSpreadMoneyline {
		if p.Line != 0 {
			return core.BetSpread
		}
		return core.BetMoneyline
	}
	return p.BetType
}

func wonIf(won bool) Status {
	if won {
		return StatusWon
	}
	return StatusLost
}
