// shivad is the NBA factor-scoring daemon. It serves the scoring API and
// WebSocket stream and runs the background slate loops that score each
// day's games and grade the picks they produce.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/api"
	"github.com/pickpulse/shiva/pkg/config"
	"github.com/pickpulse/shiva/pkg/engine"
	"github.com/pickpulse/shiva/pkg/hoopdata"
	"github.com/pickpulse/shiva/pkg/injury"
	"github.com/pickpulse/shiva/pkg/llm"
	"github.com/pickpulse/shiva/pkg/logging"
	"github.com/pickpulse/shiva/pkg/metrics"
	"github.com/pickpulse/shiva/pkg/odds"
	"github.com/pickpulse/shiva/pkg/orchestrator"
	"github.com/pickpulse/shiva/pkg/picks"
	"github.com/pickpulse/shiva/pkg/store"
	"github.com/pickpulse/shiva/pkg/stream"
)

var configPath = flag.String("config", "", "path to YAML config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("shivad exited")
	}
	log.Info().Msg("shivad stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	client := hoopdata.NewClient(cfg.Provider.APIKey,
		hoopdata.WithBaseURL(cfg.Provider.BaseURL),
		hoopdata.WithSeason(cfg.Provider.Season),
		hoopdata.WithRateLimit(cfg.Provider.RPS, cfg.Provider.Burst),
		hoopdata.WithTimeout(cfg.Provider.Timeout),
		hoopdata.WithMetrics(m),
	)

	var cache *hoopdata.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, running uncached")
		} else {
			cache = hoopdata.NewCache(rdb, cfg.Provider.Season, m,
				hoopdata.WithTTLs(cfg.Redis.SeasonTTL, cfg.Redis.RecentTTL, cfg.Redis.InjuryTTL))
			log.Info().Str("addr", cfg.Redis.Addr).Msg("stats cache attached")
		}
	}
	fetcher := hoopdata.NewFetcher(client, cache)

	var injuries engine.InjurySource
	switch cfg.Injury.Mode {
	case "llm":
		llmClient, err := llm.New(llm.Config{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, m)
		if err != nil {
			return fmt.Errorf("llm client: %w", err)
		}
		injuries = injury.NewLLMAnalyzer(fetcher, llmClient)
		log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("llm injury analysis enabled")
	default:
		injuries = injury.NewDeterministic(fetcher)
	}

	eng, err := engine.New(fetcher, injuries, m, engine.WithBundleDebug(cfg.Engine.DebugBundle))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	var st *store.Store
	if cfg.Postgres.DSN != "" {
		st, err = store.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		log.Info().Msg("postgres store attached")
	} else {
		log.Warn().Msg("postgres.dsn not set, runs and picks will not persist")
	}

	hub := stream.NewHub(m)
	go hub.Run(ctx)

	builder := picks.NewBuilder(&picks.Config{
		Capper:          cfg.Picks.Capper,
		PointsThreshold: cfg.Picks.MinPoints,
		MarginThreshold: cfg.Picks.MinMargin,
		DefaultOdds:     cfg.Picks.DefaultOdds,
		Sizer: &odds.SizerConfig{
			KellyFrac: cfg.Picks.KellyFraction,
			MinUnits:  cfg.Picks.MinUnits,
			MaxUnits:  cfg.Picks.MaxUnits,
		},
	}, m)

	var orch *orchestrator.Orchestrator
	if cfg.Slate.Enabled {
		orchCfg := orchestrator.Config{
			Engine:            eng,
			Schedule:          client,
			Hub:               hub,
			Builder:           builder,
			Metrics:           m,
			DiscoveryInterval: cfg.Slate.DiscoveryInterval,
			ScoringInterval:   cfg.Slate.ScoringInterval,
			GradingInterval:   cfg.Slate.GradingInterval,
			BetTypes:          slateBetTypes(cfg.Slate.BetTypes),
			Weights:           cfg.Engine.Weights,
		}
		if st != nil {
			orchCfg.Store = st
		}
		orch, err = orchestrator.NewOrchestrator(orchCfg)
		if err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		if err := orch.Start(ctx); err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		defer orch.Stop()
	} else {
		log.Info().Msg("slate loops disabled, scoring on demand only")
	}

	apiCfg := api.Config{
		Engine:         eng,
		Hub:            hub,
		Schedule:       client,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	if st != nil {
		apiCfg.Store = st
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(apiCfg).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info().Msg("shutting down")
	if orch != nil {
		orch.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// slateBetTypes maps configured market names onto bet types, dropping
// anything unparseable. Validate has already rejected unknown names.
func slateBetTypes(names []string) []core.BetType {
	var out []core.BetType
	for _, name := range names {
		bt, err := core.ParseBetType(name)
		if err != nil {
			log.Warn().Str("bet_type", name).Msg("skipping unknown slate market")
			continue
		}
		out = append(out, bt)
	}
	return out
}
