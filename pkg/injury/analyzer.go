package injury

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
)

// ReportSource fetches a team's current injury report.
type ReportSource interface {
	Injuries(ctx context.Context, team string) ([]core.PlayerReport, error)
}

// Players below this workload never qualify for impact scoring.
const minQualifyingMPG = 15.0

// Deterministic computes injury impact from report lines alone. Results are
// reproducible run to run.
type Deterministic struct {
	source ReportSource
}

// NewDeterministic creates the default analyzer.
func NewDeterministic(source ReportSource) *Deterministic {
	return &Deterministic{source: source}
}

// Assess fetches both teams' reports concurrently and scores them. Net is
// positive when the away roster is more depleted.
func (d *Deterministic) Assess(ctx context.Context, away, home string) (*core.InjuryImpact, error) {
	awayReports, homeReports, err := fetchBoth(ctx, d.source, away, home)
	if err != nil {
		return nil, err
	}

	awayLoss, awayCount := teamLoss(awayReports)
	homeLoss, homeCount := teamLoss(homeReports)

	impact := &core.InjuryImpact{
		Away:         bounded(awayLoss),
		Home:         bounded(homeLoss),
		AwayLoss:     awayLoss,
		HomeLoss:     homeLoss,
		Net:          awayLoss - homeLoss,
		AwayInjuries: awayCount,
		HomeInjuries: homeCount,
		Source:       "deterministic",
	}

	log.Debug().
		Str("away", away).
		Str("home", home).
		Float64("away_loss", awayLoss).
		Float64("home_loss", homeLoss).
		Int("away_injuries", awayCount).
		Int("home_injuries", homeCount).
		Msg("injury impact assessed")

	return impact, nil
}

// teamLoss sums qualifying player losses and applies the stacking
// multiplier: x1.3 with two qualifying injuries, x1.5 with three or more.
// A player qualifies with MPG >= 15 and a non-available designation.
func teamLoss(reports []core.PlayerReport) (float64, int) {
	total := 0.0
	count := 0
	for _, r := range reports {
		if r.MPG < minQualifyingMPG {
			continue
		}
		mult := statusMultiplier(r.Status)
		if mult == 0 {
			continue
		}
		total += ((r.PPG / 10.0) + (r.MPG/48.0)*2.0) * mult
		count++
	}

	switch {
	case count >= 3:
		total *= 1.5
	case count >= 2:
		total *= 1.3
	}
	return total, count
}

func statusMultiplier(status core.InjuryStatus) float64 {
	switch status {
	case core.InjuryOut:
		return 1.0
	case core.InjuryDoubtful:
		return 0.75
	case core.InjuryQuestionable:
		return 0.5
	case core.InjuryProbable:
		return 0.25
	default:
		return 0
	}
}

// bounded maps a production loss onto [-1, 1].
func bounded(loss float64) float64 {
	return clamp(math.Tanh(loss/5.0), -1, 1)
}

// fetchBoth issues both report fetches concurrently. Either failure aborts.
func fetchBoth(ctx context.Context, source ReportSource, away, home string) ([]core.PlayerReport, []core.PlayerReport, error) {
	type result struct {
		team    string
		reports []core.PlayerReport
		err     error
	}

	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, team := range []string{away, home} {
		wg.Add(1)
		go func(team string) {
			defer wg.Done()
			reports, err := source.Injuries(ctx, team)
			results <- result{team: team, reports: reports, err: err}
		}(team)
	}
	wg.Wait()
	close(results)

	var awayReports, homeReports []core.PlayerReport
	for r := range results {
		if r.err != nil {
			return nil, nil, r.err
		}
		if r.team == away {
			awayReports = r.reports
		} else {
			homeReports = r.reports
		}
	}
	return awayReports, homeReports, nil
}
