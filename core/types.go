// Package core defines the shared domain types for the shiva scoring
// service: games, bet markets, factor metadata, the stats bundle consumed
// by factor computations, and the insight produced by a scoring run.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Sport identifies a supported sport.
type Sport string

const (
	SportNBA Sport = "NBA"

	// SportWildcard in FactorMeta.Sports matches any sport.
	SportWildcard Sport = "*"
)

// BetType identifies a bet market.
type BetType string

const (
	BetSpread    BetType = "SPREAD"
	BetMoneyline BetType = "MONEYLINE"
	BetTotal     BetType = "TOTAL"

	// BetSpreadMoneyline is a composite request context that matches
	// factors tagged either SPREAD or MONEYLINE.
	BetSpreadMoneyline BetType = "SPREAD/MONEYLINE"

	// BetWildcard in FactorMeta.BetTypes matches any bet type.
	BetWildcard BetType = "*"
)

// ParseBetType parses a bet type string, case-insensitively.
func ParseBetType(s string) (BetType, error) {
	switch BetType(strings.ToUpper(strings.TrimSpace(s))) {
	case BetSpread:
		return BetSpread, nil
	case BetMoneyline:
		return BetMoneyline, nil
	case BetTotal:
		return BetTotal, nil
	case BetSpreadMoneyline:
		return BetSpreadMoneyline, nil
	}
	return "", fmt.Errorf("unknown bet type %q", s)
}

// MatchesTag reports whether a request bet type matches a factor tag.
// The composite SPREAD/MONEYLINE context matches factors tagged either way.
func (b BetType) MatchesTag(tag BetType) bool {
	if tag == BetWildcard || b == tag {
		return true
	}
	if b == BetSpreadMoneyline {
		return tag == BetSpread || tag == BetMoneyline
	}
	return false
}

// Side is the outcome a factor's points are attributed to.
type Side string

const (
	SideAway  Side = "AWAY"
	SideHome  Side = "HOME"
	SideOver  Side = "OVER"
	SideUnder Side = "UNDER"
	SideNone  Side = ""
)

// AdvantageSide maps a signed signal onto the advantaged side for the
// given bet type. Positive signals favor away (or Over); zero favors none.
func AdvantageSide(signal float64, bt BetType) Side {
	switch {
	case signal > 0:
		if bt == BetTotal {
			return SideOver
		}
		return SideAway
	case signal < 0:
		if bt == BetTotal {
			return SideUnder
		}
		return SideHome
	default:
		return SideNone
	}
}

// Scope describes which slice of the matchup a factor reads.
type Scope string

const (
	// ScopeEnvironment factors read the combined game environment
	// (pace, whistle rate); they drive totals markets.
	ScopeEnvironment Scope = "environment"

	// ScopeMatchup factors read head-to-head differentials; they drive
	// spread and moneyline markets.
	ScopeMatchup Scope = "matchup"
)

// FactorMeta is the static descriptor of one scoring factor. Instances are
// defined once at process start and never mutated.
type FactorMeta struct {
	Key           string    `json:"key"`
	Name          string    `json:"name"`
	Sports        []Sport   `json:"sports"`
	BetTypes      []BetType `json:"bet_types"`
	Scope         Scope     `json:"scope"`
	MaxPoints     float64   `json:"max_points"`
	DefaultWeight float64   `json:"default_weight"`
}

// AppliesTo reports whether the factor is applicable in the given context.
func (f FactorMeta) AppliesTo(sport Sport, betType BetType) bool {
	sportOK := false
	for _, s := range f.Sports {
		if s == SportWildcard || s == sport {
			sportOK = true
			break
		}
	}
	if !sportOK {
		return false
	}
	for _, bt := range f.BetTypes {
		if betType.MatchesTag(bt) {
			return true
		}
	}
	return false
}

// RunCtx is the per-computation context for one scoring run. The engine
// fills Anchors from the fetched bundle before factors execute; everything
// else comes from the caller. Read-only during computation.
type RunCtx struct {
	GameID        string             `json:"game_id"`
	AwayTeam      string             `json:"away_team"`
	HomeTeam      string             `json:"home_team"`
	Sport         Sport              `json:"sport"`
	BetType       BetType            `json:"bet_type"`
	Anchors       LeagueAnchors      `json:"anchors"`
	FactorWeights map[string]float64 `json:"factor_weights,omitempty"`
}

// LeagueAnchors are the league-average reference values factors compare
// against. Derived as the simple average of the two teams' season values.
type LeagueAnchors struct {
	Pace      float64 `json:"pace"`
	ORtg      float64 `json:"ortg"`
	DRtg      float64 `json:"drtg"`
	ThreeRate float64 `json:"three_rate"`
	FTRate    float64 `json:"ft_rate"`
}

// TeamWindowStats holds one team's raw statistics for one time window.
// Percentage stats (FGPct, FTPct, ThreePct, OppFGPct, OppThreePct, EFGPct)
// are carried on the 0-100 scale; rate stats (ThreeRate, FTRate) and
// rebounding percentages on the 0-1 scale, matching the provider payloads.
// All fields are non-negative; venue ratings are stored as separate
// ORtg/DRtg splits so differentials stay a computation concern.
type TeamWindowStats struct {
	GamesPlayed int     `json:"games_played"`
	Pace        float64 `json:"pace"`
	ORtg        float64 `json:"ortg"`
	DRtg        float64 `json:"drtg"`
	PPG         float64 `json:"ppg"`
	OppPPG      float64 `json:"opp_ppg"`
	FGPct       float64 `json:"fg_pct"`
	FTPct       float64 `json:"ft_pct"`
	ThreePct    float64 `json:"three_pct"`
	OppFGPct    float64 `json:"opp_fg_pct"`
	OppThreePct float64 `json:"opp_three_pct"`
	EFGPct      float64 `json:"efg_pct"`
	ThreeRate   float64 `json:"three_rate"`
	FTRate      float64 `json:"ft_rate"`
	ORebPct     float64 `json:"oreb_pct"`
	DRebPct     float64 `json:"dreb_pct"`
	AstPerGame  float64 `json:"ast_per_game"`
	TovPerGame  float64 `json:"tov_per_game"`
	HomeORtg    float64 `json:"home_ortg"`
	HomeDRtg    float64 `json:"home_drtg"`
	RoadORtg    float64 `json:"road_ortg"`
	RoadDRtg    float64 `json:"road_drtg"`
}

// TeamStats bundles one team's stats across the fetched windows.
type TeamStats struct {
	Abbrev string          `json:"abbrev"`
	Season TeamWindowStats `json:"season"`
	Last10 TeamWindowStats `json:"last10"`
	Last3  TeamWindowStats `json:"last3"`
}

// StatsBundle is the flat record of raw statistics for both teams plus
// league anchors. Populated once per game by the fetcher, consumed by all
// factor functions, never mutated after creation. Fallbacks lists the
// optional fields that were absent from the provider payload and were
// substituted with league-average constants.
type StatsBundle struct {
	GameID    string        `json:"game_id"`
	Away      TeamStats     `json:"away"`
	Home      TeamStats     `json:"home"`
	Anchors   LeagueAnchors `json:"anchors"`
	Fallbacks []string      `json:"fallbacks,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// InjuryImpact is the bounded per-team injury severity produced by an
// analyzer. Away and Home are bounded scores in [-1, 1]; AwayLoss and
// HomeLoss are the raw production-loss magnitudes behind them; Net is
// awayLoss - homeLoss, so positive means the away roster is more depleted.
type InjuryImpact struct {
	Away         float64 `json:"away"`
	Home         float64 `json:"home"`
	AwayLoss     float64 `json:"away_loss"`
	HomeLoss     float64 `json:"home_loss"`
	Net          float64 `json:"net"`
	AwayInjuries int     `json:"away_injuries"`
	HomeInjuries int     `json:"home_injuries"`
	Source       string  `json:"source"`
}

// InjuryStatus is a player's designation on the injury report.
type InjuryStatus string

const (
	InjuryOut          InjuryStatus = "OUT"
	InjuryDoubtful     InjuryStatus = "DOUBTFUL"
	InjuryQuestionable InjuryStatus = "QUESTIONABLE"
	InjuryProbable     InjuryStatus = "PROBABLE"
	InjuryAvailable    InjuryStatus = "AVAILABLE"
)

// ParseInjuryStatus normalizes a provider status string. Unknown strings map
// to AVAILABLE, which never qualifies for impact scoring.
func ParseInjuryStatus(s string) InjuryStatus {
	switch InjuryStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case InjuryOut:
		return InjuryOut
	case InjuryDoubtful:
		return InjuryDoubtful
	case InjuryQuestionable:
		return InjuryQuestionable
	case InjuryProbable:
		return InjuryProbable
	}
	return InjuryAvailable
}

// PlayerRole buckets a player's importance for minutes-impact estimates.
type PlayerRole string

const (
	RoleStar     PlayerRole = "star"
	RoleStarter  PlayerRole = "starter"
	RoleRotation PlayerRole = "rotation"
	RoleBench    PlayerRole = "bench"
)

// PlayerReport is one line on a team's injury report.
type PlayerReport struct {
	Name     string       `json:"name"`
	Team     string       `json:"team"`
	Position string       `json:"position,omitempty"`
	Status   InjuryStatus `json:"status"`
	PPG      float64      `json:"ppg"`
	MPG      float64      `json:"mpg"`
	Note     string       `json:"note,omitempty"`
}

// FactorComputation is the output of one factor function. Signal is always
// oriented positive = away/Over advantaged. For TOTAL contexts AwayPoints
// carries the Over contribution and HomePoints the Under contribution.
// Immutable once produced; the engine re-scales a copy when weighting.
type FactorComputation struct {
	Key        string             `json:"key"`
	Name       string             `json:"name"`
	Signal     float64            `json:"signal"`
	Raw        map[string]float64 `json:"raw,omitempty"`
	Parsed     map[string]float64 `json:"parsed,omitempty"`
	AwayPoints float64            `json:"away_points"`
	HomePoints float64            `json:"home_points"`
	Side       Side               `json:"side"`
	MaxPoints  float64            `json:"max_points"`
	WeightPct  float64            `json:"weight_pct"`
	CapApplied bool               `json:"cap_applied"`
	Note       string             `json:"note,omitempty"`
}

// Insight is the result of one scoring run: the weighted factor breakdown
// plus side totals and debug metadata for the insight card.
type Insight struct {
	RunID           string              `json:"run_id"`
	GameID          string              `json:"game_id"`
	Sport           Sport               `json:"sport"`
	BetType         BetType             `json:"bet_type"`
	AwayTeam        string              `json:"away_team"`
	HomeTeam        string              `json:"home_team"`
	RegistryVersion string              `json:"registry_version"`
	Factors         []FactorComputation `json:"factors"`
	AwayPoints      float64             `json:"away_points"`
	HomePoints      float64             `json:"home_points"`
	MaxPoints       float64             `json:"max_points"`
	Lean            Side                `json:"lean"`
	LeanMargin      float64             `json:"lean_margin"`
	GeneratedAt     time.Time           `json:"generated_at"`
	Debug           *InsightDebug       `json:"debug,omitempty"`
}

// InsightDebug carries the diagnostic data a run emits instead of a log
// side channel: anchors used, injury impact, factor keys, fallbacks applied,
// the bundle snapshot, and stage timings.
type InsightDebug struct {
	Anchors     LeagueAnchors `json:"anchors"`
	Injury      InjuryImpact  `json:"injury"`
	FactorKeys  []string      `json:"factor_keys"`
	Fallbacks   []string      `json:"fallbacks,omitempty"`
	Bundle      *StatsBundle  `json:"bundle,omitempty"`
	FetchMillis int64         `json:"fetch_ms"`
	ScoreMillis int64         `json:"score_ms"`
}

// GameStatus is the lifecycle state of a scheduled game.
type GameStatus string

const (
	GameScheduled GameStatus = "SCHEDULED"
	GameLive      GameStatus = "LIVE"
	GameFinal     GameStatus = "FINAL"
)

// Game is one scheduled or completed matchup from the provider slate.
type Game struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"`
	StartTime time.Time  `json:"start_time"`
	Sport     Sport      `json:"sport"`
	AwayTeam  string     `json:"away_team"`
	HomeTeam  string     `json:"home_team"`
	Venue     string     `json:"venue,omitempty"`
	Status    GameStatus `json:"status"`
	AwayScore int        `json:"away_score"`
	HomeScore int        `json:"home_score"`
}

// Final reports whether the game has a final score.
func (g Game) Final() bool { return g.Status == GameFinal }
