package hoopdata

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pickpulse/shiva/core"
)

func fullStats(pace float64) wireStats {
	return wireStats{
		Pace:          pace,
		OffRating:     116.0,
		DefRating:     111.0,
		PtsPerGame:    115.0,
		OppPtsPerGame: 110.0,
		FgPct:         47.0,
		FtPct:         78.0,
		Fg3Pct:        36.5,
		OppFgPct:      46.2,
		OppFg3Pct:     35.9,
		EfgPct:        54.0,
		Fg3aRate:      0.41,
		FtaRate:       0.25,
		OrebPct:       0.27,
		DrebPct:       0.73,
		AstPerGame:    25.5,
		TovPerGame:    13.1,
		HomeOffRating: 117.0,
		HomeDefRating: 110.0,
		RoadOffRating: 114.0,
		RoadDefRating: 112.0,
	}
}

// newStatsServer serves team stats built by payload. A nil return becomes a
// 500 response.
func newStatsServer(t *testing.T, payload func(abbrev string, window Window) *wireStats) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		abbrev := strings.TrimPrefix(r.URL.Path, "/stats/team/")
		window := Window(r.URL.Query().Get("window"))

		stats := payload(abbrev, window)
		if stats == nil {
			http.Error(w, "window unavailable", http.StatusInternalServerError)
			return
		}

		resp := teamStatsResponse{
			Team:        teamRef{Abbreviation: abbrev},
			Window:      string(window),
			GamesPlayed: 40,
			Stats:       *stats,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestFetchBundleAssemblesAllWindows(t *testing.T) {
	ts := newStatsServer(t, func(abbrev string, window Window) *wireStats {
		pace := 102.0
		if abbrev == "LAL" {
			pace = 98.0
		}
		if window == WindowLast10 {
			pace += 1.0
		}
		stats := fullStats(pace)
		return &stats
	})
	defer ts.Close()

	fetcher := NewFetcher(newTestClient(ts), nil)
	bundle, err := fetcher.FetchBundle(context.Background(), "20260115-BOS-LAL", "BOS", "LAL")
	if err != nil {
		t.Fatalf("FetchBundle error: %v", err)
	}

	if bundle.Away.Abbrev != "BOS" || bundle.Home.Abbrev != "LAL" {
		t.Fatalf("teams = %s/%s", bundle.Away.Abbrev, bundle.Home.Abbrev)
	}
	if bundle.Away.Season.Pace != 102.0 {
		t.Errorf("away season pace = %f, want 102", bundle.Away.Season.Pace)
	}
	if bundle.Away.Last10.Pace != 103.0 {
		t.Errorf("away last10 pace = %f, want 103", bundle.Away.Last10.Pace)
	}
	if bundle.Home.Season.Pace != 98.0 {
		t.Errorf("home season pace = %f, want 98", bundle.Home.Season.Pace)
	}

	// Anchors average the two season windows.
	if math.Abs(bundle.Anchors.Pace-100.0) > 1e-9 {
		t.Errorf("anchor pace = %f, want 100", bundle.Anchors.Pace)
	}
	if math.Abs(bundle.Anchors.ThreeRate-0.41) > 1e-9 {
		t.Errorf("anchor three rate = %f, want 0.41", bundle.Anchors.ThreeRate)
	}

	if len(bundle.Fallbacks) != 0 {
		t.Errorf("unexpected fallbacks: %v", bundle.Fallbacks)
	}
	if bundle.FetchedAt.IsZero() {
		t.Error("FetchedAt not stamped")
	}
}

func TestFetchBundleAppliesFallbacks(t *testing.T) {
	ts := newStatsServer(t, func(abbrev string, window Window) *wireStats {
		stats := fullStats(100.0)
		if abbrev == "BOS" && window == WindowSeason {
			stats.FtPct = 0
			stats.Fg3aRate = 0
		}
		return &stats
	})
	defer ts.Close()

	fetcher := NewFetcher(newTestClient(ts), nil)
	bundle, err := fetcher.FetchBundle(context.Background(), "g1", "BOS", "LAL")
	if err != nil {
		t.Fatalf("FetchBundle error: %v", err)
	}

	if bundle.Away.Season.FTPct != 77.0 {
		t.Errorf("ft pct = %f, want fallback 77.0", bundle.Away.Season.FTPct)
	}
	if bundle.Away.Season.ThreeRate != 0.39 {
		t.Errorf("three rate = %f, want fallback 0.39", bundle.Away.Season.ThreeRate)
	}

	wantApplied := map[string]bool{
		"BOS.season.ft_pct":     false,
		"BOS.season.three_rate": false,
	}
	for _, f := range bundle.Fallbacks {
		if _, ok := wantApplied[f]; ok {
			wantApplied[f] = true
		} else {
			t.Errorf("unexpected fallback entry %q", f)
		}
	}
	for key, seen := range wantApplied {
		if !seen {
			t.Errorf("missing fallback entry %q", key)
		}
	}

	// Anchors use the substituted season rate.
	want := (0.39 + 0.41) / 2
	if math.Abs(bundle.Anchors.ThreeRate-want) > 1e-9 {
		t.Errorf("anchor three rate = %f, want %f", bundle.Anchors.ThreeRate, want)
	}
}

func TestFetchBundleFailsOnAnyWindow(t *testing.T) {
	ts := newStatsServer(t, func(abbrev string, window Window) *wireStats {
		if abbrev == "LAL" && window == WindowLast3 {
			return nil
		}
		stats := fullStats(100.0)
		return &stats
	})
	defer ts.Close()

	fetcher := NewFetcher(newTestClient(ts), nil)
	_, err := fetcher.FetchBundle(context.Background(), "g1", "BOS", "LAL")
	if err == nil {
		t.Fatal("expected fetch failure")
	}

	var fetchErr *DataFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type %T, want *DataFetchError", err)
	}
	if fetchErr.Team != "LAL" {
		t.Errorf("failed team = %q, want LAL", fetchErr.Team)
	}
	if fetchErr.Resource != "stats/last3" {
		t.Errorf("resource = %q, want stats/last3", fetchErr.Resource)
	}
}

func TestFetchBundleRejectsEmptyPayload(t *testing.T) {
	ts := newStatsServer(t, func(abbrev string, window Window) *wireStats {
		stats := fullStats(100.0)
		if abbrev == "BOS" && window == WindowSeason {
			stats.Pace = 0
		}
		return &stats
	})
	defer ts.Close()

	fetcher := NewFetcher(newTestClient(ts), nil)
	_, err := fetcher.FetchBundle(context.Background(), "g1", "BOS", "LAL")
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var fetchErr *DataFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type %T, want *DataFetchError", err)
	}
	if !strings.Contains(fetchErr.Error(), "missing pace") {
		t.Errorf("error = %v, want missing pace", fetchErr)
	}
}

func TestFetcherInjuriesWrapsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	fetcher := NewFetcher(newTestClient(ts), nil)
	_, err := fetcher.Injuries(context.Background(), "MIL")
	if err == nil {
		t.Fatal("expected error")
	}

	var fetchErr *DataFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type %T, want *DataFetchError", err)
	}
	if fetchErr.Resource != "injuries" {
		t.Errorf("resource = %q, want injuries", fetchErr.Resource)
	}
}

func TestCacheDegradesWhenRedisUnavailable(t *testing.T) {
	// No Redis at this address; lookups must report misses, not block.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	cache := NewCache(client, "2025-2026-regular", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, ok := cache.GetStats(ctx, "BOS", WindowSeason); ok {
		t.Error("expected miss from unavailable redis")
	}
	if _, ok := cache.GetInjuries(ctx, "BOS"); ok {
		t.Error("expected miss from unavailable redis")
	}

	// Writes swallow errors.
	cache.SetStats(ctx, "BOS", WindowSeason, &core.TeamWindowStats{Pace: 100})
	cache.SetInjuries(ctx, "BOS", nil)
}
