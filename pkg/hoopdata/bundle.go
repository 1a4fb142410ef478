package hoopdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
)

// DataFetchError wraps a failed provider call during bundle assembly. A
// scoring run that hits one aborts; there is no partial bundle.
type DataFetchError struct {
	Team     string
	Resource string
	Err      error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Resource, e.Team, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// League-average substitutes for optional fields the provider reports as
// zero. Substitutions are recorded in the bundle for audit.
const (
	fallbackFTPct       = 77.0
	fallbackFGPct       = 46.0
	fallbackThreePct    = 36.0
	fallbackOppFGPct    = 46.0
	fallbackOppThreePct = 36.0
	fallbackEFGPct      = 53.0
	fallbackAstPerGame  = 25.0
	fallbackTovPerGame  = 13.5
	fallbackThreeRate   = 0.39
	fallbackFTRate      = 0.24
)

var bundleWindows = []Window{WindowSeason, WindowLast10, WindowLast3}

// Fetcher assembles stats bundles and injury reports for scoring runs,
// reading through the cache when one is attached.
type Fetcher struct {
	client *Client
	cache  *Cache
}

// NewFetcher creates a Fetcher. The cache may be nil.
func NewFetcher(client *Client, cache *Cache) *Fetcher {
	return &Fetcher{client: client, cache: cache}
}

type statResult struct {
	team   string
	window Window
	stats  *core.TeamWindowStats
	err    error
}

// FetchBundle gathers both teams' stats across all windows concurrently and
// assembles the bundle. Any failed call aborts with a DataFetchError.
func (f *Fetcher) FetchBundle(ctx context.Context, gameID, away, home string) (*core.StatsBundle, error) {
	teams := []string{away, home}

	results := make(chan statResult, len(teams)*len(bundleWindows))
	var wg sync.WaitGroup
	for _, team := range teams {
		for _, window := range bundleWindows {
			wg.Add(1)
			go func(team string, window Window) {
				defer wg.Done()
				stats, err := f.windowStats(ctx, team, window)
				results <- statResult{team: team, window: window, stats: stats, err: err}
			}(team, window)
		}
	}
	wg.Wait()
	close(results)

	bundle := &core.StatsBundle{
		GameID:    gameID,
		Away:      core.TeamStats{Abbrev: away},
		Home:      core.TeamStats{Abbrev: home},
		FetchedAt: time.Now().UTC(),
	}

	for r := range results {
		if r.err != nil {
			return nil, &DataFetchError{Team: r.team, Resource: "stats/" + string(r.window), Err: r.err}
		}
		target := &bundle.Away
		if r.team == home {
			target = &bundle.Home
		}
		switch r.window {
		case WindowSeason:
			target.Season = *r.stats
		case WindowLast10:
			target.Last10 = *r.stats
		case WindowLast3:
			target.Last3 = *r.stats
		}
	}

	for _, team := range []*core.TeamStats{&bundle.Away, &bundle.Home} {
		if err := validateTeam(team); err != nil {
			return nil, err
		}
	}

	bundle.Fallbacks = applyFallbacks(&bundle.Away, &bundle.Home)
	bundle.Anchors = deriveAnchors(&bundle.Away.Season, &bundle.Home.Season)

	log.Debug().
		Str("game_id", gameID).
		Str("away", away).
		Str("home", home).
		Int("fallbacks", len(bundle.Fallbacks)).
		Msg("stats bundle assembled")

	return bundle, nil
}

// Injuries returns a team's injury report, read-through cached.
func (f *Fetcher) Injuries(ctx context.Context, abbrev string) ([]core.PlayerReport, error) {
	if f.cache != nil {
		if reports, ok := f.cache.GetInjuries(ctx, abbrev); ok {
			return reports, nil
		}
	}

	reports, err := f.client.Injuries(ctx, abbrev)
	if err != nil {
		return nil, &DataFetchError{Team: abbrev, Resource: "injuries", Err: err}
	}

	if f.cache != nil {
		f.cache.SetInjuries(ctx, abbrev, reports)
	}
	return reports, nil
}

func (f *Fetcher) windowStats(ctx context.Context, abbrev string, window Window) (*core.TeamWindowStats, error) {
	if f.cache != nil {
		if stats, ok := f.cache.GetStats(ctx, abbrev, window); ok {
			return stats, nil
		}
	}

	stats, err := f.client.TeamStats(ctx, abbrev, window)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		f.cache.SetStats(ctx, abbrev, window, stats)
	}
	return stats, nil
}

// validateTeam checks the fields every factor formula depends on. A zero
// here means the provider returned an unusable payload, which is a fetch
// failure, not a fallback case.
func validateTeam(team *core.TeamStats) error {
	windows := []struct {
		name  string
		stats *core.TeamWindowStats
	}{
		{"season", &team.Season},
		{"last10", &team.Last10},
		{"last3", &team.Last3},
	}

	for _, w := range windows {
		required := []struct {
			name  string
			value float64
		}{
			{"pace", w.stats.Pace},
			{"ortg", w.stats.ORtg},
			{"drtg", w.stats.DRtg},
			{"ppg", w.stats.PPG},
			{"opp_ppg", w.stats.OppPPG},
		}
		for _, r := range required {
			if r.value <= 0 {
				return &DataFetchError{
					Team:     team.Abbrev,
					Resource: "stats/" + w.name,
					Err:      fmt.Errorf("provider payload missing %s", r.name),
				}
			}
		}
	}
	return nil
}

func applyFallbacks(teams ...*core.TeamStats) []string {
	var applied []string
	for _, team := range teams {
		windows := []struct {
			name  string
			stats *core.TeamWindowStats
		}{
			{"season", &team.Season},
			{"last10", &team.Last10},
			{"last3", &team.Last3},
		}
		for _, w := range windows {
			applied = append(applied, fillWindow(team.Abbrev, w.name, w.stats)...)
		}
	}
	return applied
}

func fillWindow(abbrev, window string, ts *core.TeamWindowStats) []string {
	var applied []string
	fill := func(field string, target *float64, substitute float64) {
		if *target == 0 {
			*target = substitute
			applied = append(applied, fmt.Sprintf("%s.%s.%s", abbrev, window, field))
		}
	}

	fill("ft_pct", &ts.FTPct, fallbackFTPct)
	fill("fg_pct", &ts.FGPct, fallbackFGPct)
	fill("three_pct", &ts.ThreePct, fallbackThreePct)
	fill("opp_fg_pct", &ts.OppFGPct, fallbackOppFGPct)
	fill("opp_three_pct", &ts.OppThreePct, fallbackOppThreePct)
	fill("efg_pct", &ts.EFGPct, fallbackEFGPct)
	fill("ast_per_game", &ts.AstPerGame, fallbackAstPerGame)
	fill("tov_per_game", &ts.TovPerGame, fallbackTovPerGame)
	fill("three_rate", &ts.ThreeRate, fallbackThreeRate)
	fill("ft_rate", &ts.FTRate, fallbackFTRate)
	return applied
}

// deriveAnchors averages the two teams' season values into league reference
// points for the factor formulas.
func deriveAnchors(away, home *core.TeamWindowStats) core.LeagueAnchors {
	return core.LeagueAnchors{
		Pace:      (away.Pace + home.Pace) / 2,
		ORtg:      (away.ORtg + home.ORtg) / 2,
		DRtg:      (away.DRtg + home.DRtg) / 2,
		ThreeRate: (away.ThreeRate + home.ThreeRate) / 2,
		FTRate:    (away.FTRate + home.FTRate) / 2,
	}
}
