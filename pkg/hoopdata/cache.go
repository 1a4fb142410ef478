package hoopdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/metrics"
)

// Default cache TTLs. Season aggregates move slowly; recent windows and
// injury reports churn during the day.
const (
	SeasonStatsTTL = 6 * time.Hour
	RecentStatsTTL = 1 * time.Hour
	InjuriesTTL    = 15 * time.Minute
)

// Cache is a Redis read-through cache for provider payloads. All methods
// treat Redis failures as misses so a cache outage degrades to direct
// provider fetches instead of failing bundle assembly.
type Cache struct {
	client  *redis.Client
	season  string
	metrics *metrics.EngineMetrics

	seasonTTL time.Duration
	recentTTL time.Duration
	injuryTTL time.Duration
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTLs overrides the default expirations. Zero values keep the defaults.
func WithTTLs(season, recent, injury time.Duration) CacheOption {
	return func(c *Cache) {
		if season > 0 {
			c.seasonTTL = season
		}
		if recent > 0 {
			c.recentTTL = recent
		}
		if injury > 0 {
			c.injuryTTL = injury
		}
	}
}

// NewCache creates a cache around an existing Redis client.
func NewCache(client *redis.Client, season string, m *metrics.EngineMetrics, opts ...CacheOption) *Cache {
	c := &Cache{
		client:    client,
		season:    season,
		metrics:   m,
		seasonTTL: SeasonStatsTTL,
		recentTTL: RecentStatsTTL,
		injuryTTL: InjuriesTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) statsKey(abbrev string, window Window) string {
	return fmt.Sprintf("hoopdata:stats:%s:%s:%s", c.season, abbrev, window)
}

func (c *Cache) injuriesKey(abbrev string) string {
	return fmt.Sprintf("hoopdata:injuries:%s", abbrev)
}

// GetStats returns cached window stats, reporting found=false on miss or
// cache error.
func (c *Cache) GetStats(ctx context.Context, abbrev string, window Window) (*core.TeamWindowStats, bool) {
	data, err := c.client.Get(ctx, c.statsKey(abbrev, window)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.RecordCache("stats", "miss")
		} else {
			c.metrics.RecordCache("stats", "error")
		}
		return nil, false
	}

	var stats core.TeamWindowStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		c.metrics.RecordCache("stats", "error")
		return nil, false
	}

	c.metrics.RecordCache("stats", "hit")
	return &stats, true
}

// SetStats stores window stats with a window-appropriate TTL. Errors are
// swallowed; the next lookup just misses.
func (c *Cache) SetStats(ctx context.Context, abbrev string, window Window, stats *core.TeamWindowStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}

	ttl := c.recentTTL
	if window == WindowSeason {
		ttl = c.seasonTTL
	}
	if err := c.client.Set(ctx, c.statsKey(abbrev, window), data, ttl).Err(); err != nil {
		c.metrics.RecordCache("stats", "error")
	}
}

// GetInjuries returns a cached injury report, reporting found=false on miss
// or cache error. An empty cached report is a valid hit.
func (c *Cache) GetInjuries(ctx context.Context, abbrev string) ([]core.PlayerReport, bool) {
	data, err := c.client.Get(ctx, c.injuriesKey(abbrev)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.RecordCache("injuries", "miss")
		} else {
			c.metrics.RecordCache("injuries", "error")
		}
		return nil, false
	}

	var reports []core.PlayerReport
	if err := json.Unmarshal([]byte(data), &reports); err != nil {
		c.metrics.RecordCache("injuries", "error")
		return nil, false
	}

	c.metrics.RecordCache("injuries", "hit")
	return reports, true
}

// SetInjuries stores a team's injury report.
func (c *Cache) SetInjuries(ctx context.Context, abbrev string, reports []core.PlayerReport) {
	data, err := json.Marshal(reports)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.injuriesKey(abbrev), data, c.injuryTTL).Err(); err != nil {
		c.metrics.RecordCache("injuries", "error")
	}
}
