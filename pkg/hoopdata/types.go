package hoopdata

import (
	"time"

	"github.com/pickpulse/shiva/core"
)

// Window selects the stat aggregation window on the provider API.
type Window string

const (
	WindowSeason Window = "season"
	WindowLast10 Window = "last10"
	WindowLast3  Window = "last3"
)

// teamStatsResponse is the provider payload for one team and window.
type teamStatsResponse struct {
	Team        teamRef   `json:"team"`
	Window      string    `json:"window"`
	Season      string    `json:"season"`
	GamesPlayed int       `json:"gamesPlayed"`
	Stats       wireStats `json:"stats"`
}

type teamRef struct {
	ID           int    `json:"id"`
	Abbreviation string `json:"abbreviation"`
}

// wireStats carries the flat stat fields the provider reports. Percentages
// arrive on the 0-100 scale, attempt rates and rebounding shares on 0-1.
// Fields the provider has no data for are reported as zero.
type wireStats struct {
	Pace          float64 `json:"pace"`
	OffRating     float64 `json:"offRating"`
	DefRating     float64 `json:"defRating"`
	PtsPerGame    float64 `json:"ptsPerGame"`
	OppPtsPerGame float64 `json:"oppPtsPerGame"`
	FgPct         float64 `json:"fgPct"`
	FtPct         float64 `json:"ftPct"`
	Fg3Pct        float64 `json:"fg3Pct"`
	OppFgPct      float64 `json:"oppFgPct"`
	OppFg3Pct     float64 `json:"oppFg3Pct"`
	EfgPct        float64 `json:"efgPct"`
	Fg3aRate      float64 `json:"fg3aRate"`
	FtaRate       float64 `json:"ftaRate"`
	OrebPct       float64 `json:"orebPct"`
	DrebPct       float64 `json:"drebPct"`
	AstPerGame    float64 `json:"astPerGame"`
	TovPerGame    float64 `json:"tovPerGame"`
	HomeOffRating float64 `json:"homeOffRating"`
	HomeDefRating float64 `json:"homeDefRating"`
	RoadOffRating float64 `json:"roadOffRating"`
	RoadDefRating float64 `json:"roadDefRating"`
}

func (r *teamStatsResponse) toWindowStats() core.TeamWindowStats {
	s := r.Stats
	return core.TeamWindowStats{
		GamesPlayed: r.GamesPlayed,
		Pace:        s.Pace,
		ORtg:        s.OffRating,
		DRtg:        s.DefRating,
		PPG:         s.PtsPerGame,
		OppPPG:      s.OppPtsPerGame,
		FGPct:       s.FgPct,
		FTPct:       s.FtPct,
		ThreePct:    s.Fg3Pct,
		OppFGPct:    s.OppFgPct,
		OppThreePct: s.OppFg3Pct,
		EFGPct:      s.EfgPct,
		ThreeRate:   s.Fg3aRate,
		FTRate:      s.FtaRate,
		ORebPct:     s.OrebPct,
		DRebPct:     s.DrebPct,
		AstPerGame:  s.AstPerGame,
		TovPerGame:  s.TovPerGame,
		HomeORtg:    s.HomeOffRating,
		HomeDRtg:    s.HomeDefRating,
		RoadORtg:    s.RoadOffRating,
		RoadDRtg:    s.RoadDefRating,
	}
}

// injuriesResponse is the provider payload for one team's injury report.
type injuriesResponse struct {
	Team    teamRef          `json:"team"`
	Players []wirePlayerLine `json:"players"`
}

type wirePlayerLine struct {
	Name       string  `json:"name"`
	Position   string  `json:"position"`
	Status     string  `json:"status"`
	PtsPerGame float64 `json:"ptsPerGame"`
	MinPerGame float64 `json:"minPerGame"`
	Note       string  `json:"note"`
}

func (r *injuriesResponse) toReports() []core.PlayerReport {
	reports := make([]core.PlayerReport, 0, len(r.Players))
	for _, p := range r.Players {
		reports = append(reports, core.PlayerReport{
			Name:     p.Name,
			Team:     r.Team.Abbreviation,
			Position: p.Position,
			Status:   core.ParseInjuryStatus(p.Status),
			PPG:      p.PtsPerGame,
			MPG:      p.MinPerGame,
			Note:     p.Note,
		})
	}
	return reports
}

// gamesResponse is the provider payload for a daily schedule or scoreboard.
type gamesResponse struct {
	Date  string     `json:"date"`
	Games []wireGame `json:"games"`
}

type wireGame struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"startTime"`
	AwayTeam  string    `json:"awayTeam"`
	HomeTeam  string    `json:"homeTeam"`
	Venue     string    `json:"venue"`
	Status    string    `json:"status"`
	AwayScore int       `json:"awayScore"`
	HomeScore int       `json:"homeScore"`
}

func (r *gamesResponse) toGames() []core.Game {
	games := make([]core.Game, 0, len(r.Games))
	for _, g := range r.Games {
		games = append(games, core.Game{
			ID:        g.ID,
			Date:      r.Date,
			StartTime: g.StartTime,
			Sport:     core.SportNBA,
			AwayTeam:  g.AwayTeam,
			HomeTeam:  g.HomeTeam,
			Venue:     g.Venue,
			Status:    parseGameStatus(g.Status),
			AwayScore: g.AwayScore,
			HomeScore: g.HomeScore,
		})
	}
	return games
}

func parseGameStatus(s string) core.GameStatus {
	switch s {
	case "live", "LIVE":
		return core.GameLive
	case "final", "FINAL", "completed", "COMPLETED":
		return core.GameFinal
	default:
		return core.GameScheduled
	}
}
