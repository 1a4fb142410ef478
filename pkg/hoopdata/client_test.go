package hoopdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/pickpulse/shiva/core"
)

func newTestClient(ts *httptest.Server) *Client {
	return NewClient("test-key",
		WithBaseURL(ts.URL),
		WithRateLimit(1000, 1000),
	)
}

func TestTeamStats(t *testing.T) {
	var gotAuth, gotPath, gotQuery string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		gotAuth = user + ":" + pass
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{
			"team": {"id": 2, "abbreviation": "BOS"},
			"window": "season",
			"gamesPlayed": 48,
			"stats": {
				"pace": 99.1, "offRating": 118.2, "defRating": 110.4,
				"ptsPerGame": 117.5, "oppPtsPerGame": 109.8,
				"fgPct": 47.2, "ftPct": 81.3, "fg3Pct": 37.4,
				"astPerGame": 26.1, "tovPerGame": 12.9
			}
		}`)
	}))
	defer ts.Close()

	stats, err := newTestClient(ts).TeamStats(context.Background(), "BOS", WindowSeason)
	if err != nil {
		t.Fatalf("TeamStats error: %v", err)
	}

	if gotAuth != "test-key:MSF" {
		t.Errorf("basic auth = %q, want test-key:MSF", gotAuth)
	}
	if gotPath != "/stats/team/BOS" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "window=season") {
		t.Errorf("query missing window: %q", gotQuery)
	}
	if !strings.Contains(gotQuery, "season=2025-2026-regular") {
		t.Errorf("query missing season slug: %q", gotQuery)
	}

	if stats.Pace != 99.1 {
		t.Errorf("Pace = %f, want 99.1", stats.Pace)
	}
	if stats.ORtg != 118.2 || stats.DRtg != 110.4 {
		t.Errorf("ratings = %f/%f", stats.ORtg, stats.DRtg)
	}
	if stats.GamesPlayed != 48 {
		t.Errorf("GamesPlayed = %d, want 48", stats.GamesPlayed)
	}
	if stats.AstPerGame != 26.1 {
		t.Errorf("AstPerGame = %f, want 26.1", stats.AstPerGame)
	}
}

func TestInjuries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("team"); got != "MIL" {
			t.Errorf("team param = %q, want MIL", got)
		}
		fmt.Fprint(w, `{
			"team": {"id": 15, "abbreviation": "MIL"},
			"players": [
				{"name": "Forward One", "position": "PF", "status": "out", "ptsPerGame": 28.4, "minPerGame": 33.2, "note": "knee"},
				{"name": "Guard Two", "position": "PG", "status": "questionable", "ptsPerGame": 17.0, "minPerGame": 30.1}
			]
		}`)
	}))
	defer ts.Close()

	reports, err := newTestClient(ts).Injuries(context.Background(), "MIL")
	if err != nil {
		t.Fatalf("Injuries error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}

	first := reports[0]
	if first.Status != core.InjuryOut {
		t.Errorf("status = %q, want OUT", first.Status)
	}
	if first.Team != "MIL" {
		t.Errorf("team = %q, want MIL", first.Team)
	}
	if first.PPG != 28.4 || first.MPG != 33.2 {
		t.Errorf("usage = %f/%f", first.PPG, first.MPG)
	}
	if reports[1].Status != core.InjuryQuestionable {
		t.Errorf("second status = %q, want QUESTIONABLE", reports[1].Status)
	}
}

func TestDailyGames(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games/2026-01-15" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"date": "2026-01-15",
			"games": [
				{"id": "20260115-BOS-LAL", "startTime": "2026-01-16T03:00:00Z", "awayTeam": "BOS", "homeTeam": "LAL", "venue": "Crypto.com Arena", "status": "scheduled"},
				{"id": "20260115-DEN-PHX", "startTime": "2026-01-16T02:00:00Z", "awayTeam": "DEN", "homeTeam": "PHX", "status": "final", "awayScore": 112, "homeScore": 104}
			]
		}`)
	}))
	defer ts.Close()

	games, err := newTestClient(ts).DailyGames(context.Background(), "2026-01-15")
	if err != nil {
		t.Fatalf("DailyGames error: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2", len(games))
	}

	if games[0].Status != core.GameScheduled {
		t.Errorf("first status = %q, want SCHEDULED", games[0].Status)
	}
	if games[0].Date != "2026-01-15" {
		t.Errorf("date = %q", games[0].Date)
	}
	if !games[1].Final() {
		t.Error("second game should be final")
	}
	if games[1].AwayScore != 112 || games[1].HomeScore != 104 {
		t.Errorf("scores = %d-%d", games[1].AwayScore, games[1].HomeScore)
	}
}

func TestClientAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).TeamStats(context.Background(), "BOS", WindowLast10)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "api error 429") {
		t.Errorf("error = %v, want api error 429", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := newTestClient(ts)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.TeamStats(ctx, "BOS", WindowSeason); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}

	_, err := client.TeamStats(ctx, "BOS", WindowSeason)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open breaker, got %v", err)
	}
}

func TestMetricEndpoint(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/stats/team/BOS", want: "team_stats"},
		{path: "/injuries", want: "injuries"},
		{path: "/games/2026-01-15", want: "games"},
		{path: "/scores/2026-01-15", want: "scores"},
		{path: "/something", want: "other"},
	}

	for _, tt := range tests {
		if got := metricEndpoint(tt.path); got != tt.want {
			t.Errorf("metricEndpoint(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
