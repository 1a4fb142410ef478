// shiva-backtest replays settled picks against their stored scoring runs
// and reports per-factor hit rates. With -once it first runs a single
// discover/score/grade cycle, so a cron job can settle the day's slate
// without keeping the daemon up.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/backtest"
	"github.com/pickpulse/shiva/pkg/config"
	"github.com/pickpulse/shiva/pkg/engine"
	"github.com/pickpulse/shiva/pkg/hoopdata"
	"github.com/pickpulse/shiva/pkg/injury"
	"github.com/pickpulse/shiva/pkg/llm"
	"github.com/pickpulse/shiva/pkg/logging"
	"github.com/pickpulse/shiva/pkg/odds"
	"github.com/pickpulse/shiva/pkg/orchestrator"
	"github.com/pickpulse/shiva/pkg/picks"
	"github.com/pickpulse/shiva/pkg/store"
)

var (
	configPath = flag.String("config", "", "path to YAML config file")
	fromDate   = flag.String("from", "", "earliest game date to evaluate (YYYY-MM-DD)")
	toDate     = flag.String("to", "", "latest game date to evaluate (YYYY-MM-DD)")
	capper     = flag.String("capper", "", "only evaluate picks recorded by this capper")
	minSignal  = flag.Float64("min-signal", 0, "ignore factor legs with |signal| below this")
	outputFile = flag.String("output", "", "also write the result to a file (.json or .csv)")
	verbose    = flag.Bool("verbose", false, "print each settled pick above the factor table")
	once       = flag.Bool("once", false, "run one discover/score/grade cycle before evaluating")
)

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
	if cfg.Postgres.DSN == "" {
		fmt.Fprintln(os.Stderr, "postgres.dsn must be set: the backtest reads the picks ledger from the store")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("backtest exited")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	if *once {
		if err := runCycle(ctx, cfg, st); err != nil {
			return fmt.Errorf("slate cycle: %w", err)
		}
	}

	eval := backtest.New(backtest.Config{
		Capper:    *capper,
		FromDate:  *fromDate,
		ToDate:    *toDate,
		MinSignal: *minSignal,
	}, st)
	result, err := eval.Run(ctx)
	if err != nil {
		return err
	}

	printResult(result, *verbose)

	if *outputFile != "" {
		if err := export(result, *outputFile); err != nil {
			return err
		}
		log.Info().Str("file", *outputFile).Msg("result exported")
	}
	return nil
}

// runCycle wires a one-shot orchestrator the same way shivad does, minus
// the cache, hub, and metrics a short-lived process has no use for.
func runCycle(ctx context.Context, cfg *config.Config, st *store.Store) error {
	client := hoopdata.NewClient(cfg.Provider.APIKey,
		hoopdata.WithBaseURL(cfg.Provider.BaseURL),
		hoopdata.WithSeason(cfg.Provider.Season),
		hoopdata.WithRateLimit(cfg.Provider.RPS, cfg.Provider.Burst),
		hoopdata.WithTimeout(cfg.Provider.Timeout),
	)
	fetcher := hoopdata.NewFetcher(client, nil)

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
		}, nil)
		if err != nil {
			return fmt.Errorf("llm client: %w", err)
		}
		injuries = injury.NewLLMAnalyzer(fetcher, llmClient)
	default:
		injuries = injury.NewDeterministic(fetcher)
	}

	eng, err := engine.New(fetcher, injuries, nil)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

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
	}, nil)

	orch, err := orchestrator.NewOrchestrator(orchestrator.Config{
		Engine:   eng,
		Schedule: client,
		Store:    st,
		Builder:  builder,
		BetTypes: slateBetTypes(cfg.Slate.BetTypes),
		Weights:  cfg.Engine.Weights,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return orch.RunOnce(ctx)
}

func printResult(r *backtest.Result, verbose bool) {
	fmt.Println()
	fmt.Println("==================== FACTOR HIT RATES ====================")
	fmt.Println()
	if r.Capper != "" {
		fmt.Printf("  Capper:        %s\n", r.Capper)
	}
	if r.FromDate != "" || r.ToDate != "" {
		fmt.Printf("  Game dates:    %s to %s\n", orOpen(r.FromDate), orOpen(r.ToDate))
	}
	fmt.Printf("  Settled picks: %d (W %d / L %d / P %d)\n", r.Settled, r.Won, r.Lost, r.Pushed)
	if r.Pending > 0 || r.Voided > 0 {
		fmt.Printf("  Unsettled:     %d pending, %d void\n", r.Pending, r.Voided)
	}
	fmt.Printf("  Units staked:  %.1f\n", r.UnitsStaked)
	fmt.Printf("  Net units:     %+.2f (ROI %+.1f%%)\n", r.NetUnits, r.ROI*100)
	if r.MissingRuns > 0 {
		fmt.Printf("  Skipped:       %d picks with no stored run\n", r.MissingRuns)
	}
	fmt.Println()

	if verbose && len(r.Picks) > 0 {
		for _, o := range r.Picks {
			p := o.Pick
			fmt.Printf("  %s  %-9s %-16s %6.1f  %+4d  %.1fu  %-7s %+.2f\n",
				p.GameDate, o.Matchup, string(p.BetType)+" "+string(p.Side),
				p.Line, p.Odds, p.Units, p.Status, p.ProfitUnits)
		}
		fmt.Println()
	}

	if len(r.Factors) == 0 {
		fmt.Println("  No factor legs to evaluate.")
	} else {
		fmt.Printf("  %-20s %5s %5s %7s %10s\n", "FACTOR", "LEGS", "HITS", "HIT%", "|SIGNAL|")
		fmt.Println("  " + strings.Repeat("-", 51))
		for _, row := range r.Factors {
			fmt.Printf("  %-20s %5d %5d %6.1f%% %10.2f\n",
				row.Key, row.Legs, row.Hits, row.HitRate*100, row.AvgAbsSignal)
		}
	}
	fmt.Println()
	fmt.Println("===========================================================")
}

func orOpen(date string) string {
	if date == "" {
		return "open"
	}
	return date
}

func export(r *backtest.Result, filename string) error {
	if strings.HasSuffix(filename, ".csv") {
		file, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("create %s: %w", filename, err)
		}
		defer file.Close()
		return r.WriteCSV(file)
	}
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
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
