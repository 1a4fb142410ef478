package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/engine"
	"github.com/pickpulse/shiva/pkg/hoopdata"
	"github.com/pickpulse/shiva/pkg/picks"
	"github.com/pickpulse/shiva/pkg/store"
)

type fakeScorer struct {
	insight *core.Insight
	err     error
	lastRC  core.RunCtx
}

func (f *fakeScorer) Score(ctx context.Context, rc core.RunCtx) (*core.Insight, error) {
	f.lastRC = rc
	if f.err != nil {
		return nil, f.err
	}
	return f.insight, nil
}

type fakeStore struct {
	saved      []*core.Insight
	savedDates []string
	insight    *core.Insight
	insights   []core.Insight
	picksOut   []picks.Pick
	records    []picks.Record
	lastFilter store.PickFilter
	err        error
}

func (f *fakeStore) SaveInsight(ctx context.Context, insight *core.Insight, gameDate string) error {
	f.saved = append(f.saved, insight)
	f.savedDates = append(f.savedDates, gameDate)
	return f.err
}

func (f *fakeStore) GetInsight(ctx context.Context, runID string) (*core.Insight, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.insight == nil || f.insight.RunID != runID {
		return nil, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
	}
	return f.insight, nil
}

func (f *fakeStore) ListInsightsByDate(ctx context.Context, date string) ([]core.Insight, error) {
	return f.insights, f.err
}

func (f *fakeStore) ListPicks(ctx context.Context, filter store.PickFilter) ([]picks.Pick, error) {
	f.lastFilter = filter
	return f.picksOut, f.err
}

func (f *fakeStore) CapperRecords(ctx context.Context) ([]picks.Record, error) {
	return f.records, f.err
}

type fakeSchedule struct {
	games []core.Game
	err   error
}

func (f *fakeSchedule) DailyGames(ctx context.Context, date string) ([]core.Game, error) {
	return f.games, f.err
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	h := NewServer(Config{Engine: &fakeScorer{}}).Routes()

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "ok" || body.Version != engine.RegistryVersion {
		t.Errorf("body = %+v", body)
	}
	if body.Components["store"] != "disabled" {
		t.Errorf("store component = %v, want disabled", body.Components["store"])
	}
}

func TestFactorsEndpoint(t *testing.T) {
	h := NewServer(Config{Engine: &fakeScorer{}}).Routes()

	t.Run("context lookup", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/factors?sport=NBA&bet_type=TOTAL", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Factors []core.FactorMeta `json:"factors"`
			Count   int               `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 5 {
			t.Errorf("count = %d, want 5 TOTAL factors", body.Count)
		}
		keys := map[string]bool{}
		for _, m := range body.Factors {
			keys[m.Key] = true
		}
		if !keys["pace_index"] || !keys["whistle_env"] {
			t.Errorf("missing expected TOTAL factors: %v", keys)
		}
	})

	t.Run("full catalog without bet type", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/factors", "")
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 14 {
			t.Errorf("count = %d, want the full catalog", body.Count)
		}
	})

	t.Run("unknown sport is empty not error", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/factors?sport=NHL&bet_type=TOTAL", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 0 {
			t.Errorf("count = %d, want 0", body.Count)
		}
	})

	t.Run("bad bet type", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/factors?bet_type=PARLAY", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestScoreInsight(t *testing.T) {
	insight := &core.Insight{RunID: "run-9", GameID: "g1", BetType: core.BetTotal, Lean: core.SideOver}
	scorer := &fakeScorer{insight: insight}
	st := &fakeStore{}
	h := NewServer(Config{Engine: scorer, Store: st}).Routes()

	body := `{"game_id":"g1","away_team":"bos","home_team":"Los Angeles Lakers","bet_type":"total","game_date":"2025-01-15"}`
	rec := doRequest(t, h, http.MethodPost, "/api/v1/insights", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got core.Insight
	decodeBody(t, rec, &got)
	if got.RunID != "run-9" {
		t.Errorf("run_id = %s, want run-9", got.RunID)
	}

	// Teams resolve to tricodes, sport defaults, and the run is persisted.
	if scorer.lastRC.AwayTeam != "BOS" || scorer.lastRC.HomeTeam != "LAL" {
		t.Errorf("teams = %s/%s", scorer.lastRC.AwayTeam, scorer.lastRC.HomeTeam)
	}
	if scorer.lastRC.Sport != core.SportNBA || scorer.lastRC.BetType != core.BetTotal {
		t.Errorf("context = %s %s", scorer.lastRC.Sport, scorer.lastRC.BetType)
	}
	if len(st.saved) != 1 || st.savedDates[0] != "2025-01-15" {
		t.Errorf("persisted %d runs, dates %v", len(st.saved), st.savedDates)
	}
}

func TestScoreInsightValidation(t *testing.T) {
	h := NewServer(Config{Engine: &fakeScorer{insight: &core.Insight{}}}).Routes()

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing game id", `{"away_team":"BOS","home_team":"LAL","bet_type":"TOTAL"}`, "missing_game_id"},
		{"missing team", `{"game_id":"g1","away_team":"BOS","bet_type":"TOTAL"}`, "missing_team"},
		{"same team via alias", `{"game_id":"g1","away_team":"Celtics","home_team":"bos","bet_type":"TOTAL"}`, "invalid_matchup"},
		{"unknown team", `{"game_id":"g1","away_team":"ZZZ","home_team":"LAL","bet_type":"TOTAL"}`, "unknown_team"},
		{"bad bet type", `{"game_id":"g1","away_team":"BOS","home_team":"LAL","bet_type":"PARLAY"}`, "invalid_bet_type"},
		{"bad json", `{`, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/v1/insights", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body struct {
				Error string `json:"error"`
			}
			decodeBody(t, rec, &body)
			if body.Error != tt.wantCode {
				t.Errorf("error = %s, want %s", body.Error, tt.wantCode)
			}
		})
	}
}

func TestScoreInsightErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad weight", fmt.Errorf("%w: pace_index=-5", engine.ErrBadWeight), http.StatusBadRequest},
		{"no factors", fmt.Errorf("%w: MLB TOTAL", engine.ErrNoFactors), http.StatusUnprocessableEntity},
		{"fetch failure", fmt.Errorf("bundle: %w", &hoopdata.DataFetchError{Team: "BOS", Resource: "season", Err: errors.New("timeout")}), http.StatusBadGateway},
		{"anything else", errors.New("llm returned garbage"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(Config{Engine: &fakeScorer{err: tt.err}}).Routes()
			body := `{"game_id":"g1","away_team":"BOS","home_team":"LAL","bet_type":"TOTAL"}`
			rec := doRequest(t, h, http.MethodPost, "/api/v1/insights", body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetInsight(t *testing.T) {
	insight := &core.Insight{RunID: "run-1", GameID: "g1"}
	h := NewServer(Config{Engine: &fakeScorer{}, Store: &fakeStore{insight: insight}}).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/insights/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got core.Insight
	decodeBody(t, rec, &got)
	if got.RunID != "run-1" {
		t.Errorf("run_id = %s", got.RunID)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/insights/run-404", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	noStore := NewServer(Config{Engine: &fakeScorer{}}).Routes()
	rec = doRequest(t, noStore, http.MethodGet, "/api/v1/insights/run-1", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestListInsights(t *testing.T) {
	st := &fakeStore{insights: []core.Insight{{RunID: "a"}, {RunID: "b"}}}
	h := NewServer(Config{Engine: &fakeScorer{}, Store: st}).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/insights?date=2025-01-15", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Date != "2025-01-15" || body.Count != 2 {
		t.Errorf("body = %+v", body)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/insights?date=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed date", rec.Code)
	}
}

func TestSlate(t *testing.T) {
	sched := &fakeSchedule{games: []core.Game{
		{ID: "g1", AwayTeam: "BOS", HomeTeam: "LAL"},
		{ID: "g2", AwayTeam: "NYK", HomeTeam: "MIA"},
	}}
	st := &fakeStore{insights: []core.Insight{
		{RunID: "r1", GameID: "g1", BetType: core.BetTotal},
		{RunID: "r2", GameID: "g1", BetType: core.BetSpread},
	}}
	h := NewServer(Config{Engine: &fakeScorer{}, Store: st, Schedule: sched}).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/slate?date=2025-01-15", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Games []struct {
			ID            string   `json:"id"`
			ScoredMarkets []string `json:"scored_markets"`
		} `json:"games"`
		Count int `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	if len(body.Games[0].ScoredMarkets) != 2 {
		t.Errorf("g1 scored markets = %v, want TOTAL and SPREAD", body.Games[0].ScoredMarkets)
	}
	if body.Games[1].ScoredMarkets == nil || len(body.Games[1].ScoredMarkets) != 0 {
		t.Errorf("g2 scored markets = %v, want empty list", body.Games[1].ScoredMarkets)
	}

	sched.err = errors.New("provider down")
	rec = doRequest(t, h, http.MethodGet, "/api/v1/slate?date=2025-01-15", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestListPicksFilterPassthrough(t *testing.T) {
	st := &fakeStore{picksOut: []picks.Pick{{ID: "p1"}}}
	h := NewServer(Config{Engine: &fakeScorer{}, Store: st}).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/picks?status=pending&date=2025-01-15&capper=shiva-v1&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := store.PickFilter{Status: "pending", GameDate: "2025-01-15", Capper: "shiva-v1", Limit: 10}
	if st.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", st.lastFilter, want)
	}
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

func TestLeaderboard(t *testing.T) {
	st := &fakeStore{records: []picks.Record{
		{Capper: "shiva-v1", Wins: 12, Losses: 8, NetUnits: 6.4},
	}}
	h := NewServer(Config{Engine: &fakeScorer{}, Store: st}).Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/leaderboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Leaderboard []picks.Record `json:"leaderboard"`
	}
	decodeBody(t, rec, &body)
	if len(body.Leaderboard) != 1 || body.Leaderboard[0].Capper != "shiva-v1" {
		t.Errorf("leaderboard = %+v", body.Leaderboard)
	}
}
