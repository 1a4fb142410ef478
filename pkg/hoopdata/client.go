// Package hoopdata fetches NBA team statistics, injury reports and daily
// schedules from the hoopdata REST API and assembles them into the stats
// bundle consumed by factor scoring.
package hoopdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/metrics"
)

const (
	// DefaultBaseURL is the hoopdata API base URL.
	DefaultBaseURL = "https://api.hoopdata.io/v2"

	// DefaultSeason is the stat season queried when none is configured.
	DefaultSeason = "2025-2026-regular"

	// Provider terms allow 2 rps sustained.
	defaultRateLimit = 2.0
	defaultBurst     = 4
)

// Client is a rate-limited, circuit-broken hoopdata API client.
type Client struct {
	baseURL    string
	apiKey     string
	season     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.EngineMetrics
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithSeason sets the stat season slug.
func WithSeason(season string) ClientOption {
	return func(c *Client) {
		c.season = season
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout on the client in use.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics attaches engine metrics to the client.
func WithMetrics(m *metrics.EngineMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new hoopdata API client. The API key is sent as the
// basic-auth username with the fixed password "MSF".
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		season:  DefaultSeason,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(breakerSettings(c))
	return c
}

func breakerSettings(c *Client) gobreaker.Settings {
	st := gobreaker.Settings{Name: "hoopdata"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("provider circuit state change")
		c.metrics.SetBreakerOpen(to == gobreaker.StateOpen)
	}
	return st
}

// TeamStats fetches one team's stats for one window.
func (c *Client) TeamStats(ctx context.Context, abbrev string, window Window) (*core.TeamWindowStats, error) {
	params := url.Values{}
	params.Set("window", string(window))
	params.Set("season", c.season)

	var resp teamStatsResponse
	if err := c.get(ctx, "/stats/team/"+abbrev, params, &resp); err != nil {
		return nil, err
	}

	stats := resp.toWindowStats()
	return &stats, nil
}

// Injuries fetches a team's current injury report.
func (c *Client) Injuries(ctx context.Context, abbrev string) ([]core.PlayerReport, error) {
	params := url.Values{}
	params.Set("team", abbrev)

	var resp injuriesResponse
	if err := c.get(ctx, "/injuries", params, &resp); err != nil {
		return nil, err
	}
	return resp.toReports(), nil
}

// DailyGames fetches the schedule for a date (YYYY-MM-DD).
func (c *Client) DailyGames(ctx context.Context, date string) ([]core.Game, error) {
	var resp gamesResponse
	if err := c.get(ctx, "/games/"+date, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toGames(), nil
}

// DailyScores fetches the final scores for a date (YYYY-MM-DD). Games that
// have not finished are omitted by the provider.
func (c *Client) DailyScores(ctx context.Context, date string) ([]core.Game, error) {
	var resp gamesResponse
	if err := c.get(ctx, "/scores/"+date, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toGames(), nil
}

// get performs a GET request with rate limiting and circuit breaking.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doGet(ctx, u, result)
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordFetch(metricEndpoint(path), status, time.Since(start).Seconds())
	return err
}

func (c *Client) doGet(ctx context.Context, u string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.apiKey, "MSF")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// metricEndpoint collapses parameterized paths onto stable metric labels.
func metricEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/stats/team/"):
		return "team_stats"
	case path == "/injuries":
		return "injuries"
	case strings.HasPrefix(path, "/games/"):
		return "games"
	case strings.HasPrefix(path, "/scores/"):
		return "scores"
	default:
		return "other"
	}
}
