// Package orchestrator runs the background slate workflow: discover the
// day's games, score each open market, and grade pending picks as finals
// come in.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/metrics"
	"github.com/pickpulse/shiva/pkg/picks"
	"github.com/pickpulse/shiva/pkg/store"
)

// Stage names one step of the slate workflow.
type Stage string

const (
	StageSlateDiscovery Stage = "slate_discovery"
	StageGameScoring    Stage = "game_scoring"
	StagePickGrading    Stage = "pick_grading"
)

// StageResult holds the outcome of one stage execution.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Data      any           `json:"data,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Scorer produces an insight for one game context.
type Scorer interface {
	Score(ctx context.Context, rc core.RunCtx) (*core.Insight, error)
}

// Schedule supplies the day's games and, later, their final scores.
type Schedule interface {
	DailyGames(ctx context.Context, date string) ([]core.Game, error)
	DailyScores(ctx context.Context, date string) ([]core.Game, error)
}

// Storage persists scoring runs and picks.
type Storage interface {
	SaveInsight(ctx context.Context, insight *core.Insight, gameDate string) error
	ListInsightsByDate(ctx context.Context, date string) ([]core.Insight, error)
	SavePick(ctx context.Context, p *picks.Pick) error
	GradePick(ctx context.Context, p *picks.Pick) error
	ListPicks(ctx context.Context, f store.PickFilter) ([]picks.Pick, error)
}

// Broadcaster pushes workflow events to stream subscribers.
type Broadcaster interface {
	BroadcastSlate(date string, games []core.Game)
	BroadcastInsight(insight *core.Insight)
	BroadcastPick(p *picks.Pick)
	BroadcastGrade(p *picks.Pick)
	BroadcastStatus(status any)
}

// QuoteSource supplies market prices for pick generation. Without one,
// sides markets are written as pick'em at the builder's default odds and
// totals insights produce no picks.
type QuoteSource interface {
	Quote(ctx context.Context, game core.Game, betType core.BetType) (picks.Quote, bool)
}

// Config wires the orchestrator's collaborators and loop cadence. Engine and
// Schedule are required; everything else degrades gracefully when absent.
type Config struct {
	Engine   Scorer
	Schedule Schedule
	Store    Storage
	Hub      Broadcaster
	Quotes   QuoteSource
	Builder  *picks.Builder
	Metrics  *metrics.EngineMetrics

	DiscoveryInterval time.Duration
	ScoringInterval   time.Duration
	GradingInterval   time.Duration
	// BetTypes are the markets scored for each slate game.
	BetTypes []core.BetType
	// Weights are optional per-factor percent overrides applied to every
	// slate-initiated run.
	Weights map[string]float64
}

// Orchestrator coordinates the slate workflow.
type Orchestrator struct {
	engine   Scorer
	schedule Schedule
	store    Storage
	hub      Broadcaster
	quotes   QuoteSource
	builder  *picks.Builder
	metrics  *metrics.EngineMetrics

	discoveryInterval time.Duration
	scoringInterval   time.Duration
	gradingInterval   time.Duration
	betTypes          []core.BetType
	weights           map[string]float64

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	slateDate string
	slate     []core.Game
	scored    map[string]bool // gameID|betType, reset on date rollover

	onStageComplete func(*StageResult)
	onError         func(error)
}

// NewOrchestrator builds an orchestrator from cfg, filling zero-value
// cadence and market settings with production defaults.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Engine == nil {
		return nil, errors.New("orchestrator: engine is required")
	}
	if cfg.Schedule == nil {
		return nil, errors.New("orchestrator: schedule source is required")
	}

	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = 10 * time.Minute
	}
	if cfg.ScoringInterval <= 0 {
		cfg.ScoringInterval = 2 * time.Minute
	}
	if cfg.GradingInterval <= 0 {
		cfg.GradingInterval = 5 * time.Minute
	}
	if len(cfg.BetTypes) == 0 {
		cfg.BetTypes = []core.BetType{core.BetTotal, core.BetSpread}
	}
	if cfg.Builder == nil {
		cfg.Builder = picks.NewBuilder(nil, cfg.Metrics)
	}

	return &Orchestrator{
		engine:            cfg.Engine,
		schedule:          cfg.Schedule,
		store:             cfg.Store,
		hub:               cfg.Hub,
		quotes:            cfg.Quotes,
		builder:           cfg.Builder,
		metrics:           cfg.Metrics,
		discoveryInterval: cfg.DiscoveryInterval,
		scoringInterval:   cfg.ScoringInterval,
		gradingInterval:   cfg.GradingInterval,
		betTypes:          cfg.BetTypes,
		weights:           cfg.Weights,
		stopCh:            make(chan struct{}),
		scored:            make(map[string]bool),
	}, nil
}

// OnStageComplete sets a callback invoked after every stage execution.
func (o *Orchestrator) OnStageComplete(fn func(*StageResult)) {
	o.onStageComplete = fn
}

// OnError sets a callback for background loop failures.
func (o *Orchestrator) OnError(fn func(error)) {
	o.onError = fn
}

// Start runs an initial discovery and launches the background loops. The
// loops stop when ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	if err := o.runStage(ctx, StageSlateDiscovery); err != nil {
		o.handleError(fmt.Errorf("initial discovery: %w", err))
	}

	go o.loop(ctx, o.discoveryInterval, StageSlateDiscovery)
	go o.loop(ctx, o.scoringInterval, StageGameScoring)
	go o.loop(ctx, o.gradingInterval, StagePickGrading)

	log.Info().
		Dur("discovery", o.discoveryInterval).
		Dur("scoring", o.scoringInterval).
		Dur("grading", o.gradingInterval).
		Msg("slate orchestrator started")
	return nil
}

// Stop halts the background loops. Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		close(o.stopCh)
		o.running = false
	}
}

// IsRunning reports whether the background loops are active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// RunOnce executes one full discovery, scoring, grading cycle. Used by the
// backtest binary's single-shot mode and by tests.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	for _, stage := range []Stage{StageSlateDiscovery, StageGameScoring, StagePickGrading} {
		if err := o.runStage(ctx, stage); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return nil
}

func (o *Orchestrator) loop(ctx context.Context, interval time.Duration, stage Stage) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if err := o.runStage(ctx, stage); err != nil {
				o.handleError(fmt.Errorf("%s: %w", stage, err))
			}
		}
	}
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage) error {
	start := time.Now()
	var data any
	var err error

	switch stage {
	case StageSlateDiscovery:
		data, err = o.executeSlateDiscovery(ctx)
	case StageGameScoring:
		data, err = o.executeGameScoring(ctx)
	case StagePickGrading:
		data, err = o.executePickGrading(ctx)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}

	elapsed := time.Since(start)
	result := &StageResult{
		Stage:     stage,
		Success:   err == nil,
		Data:      data,
		Duration:  elapsed,
		Timestamp: time.Now().UTC(),
	}
	status := "ok"
	if err != nil {
		result.Error = err.Error()
		status = "error"
		log.Error().Err(err).Str("stage", string(stage)).Dur("elapsed", elapsed).Msg("stage failed")
	} else {
		log.Debug().Str("stage", string(stage)).Dur("elapsed", elapsed).Interface("data", data).Msg("stage complete")
	}
	o.metrics.RecordStage(string(stage), status, elapsed.Seconds())

	if o.hub != nil {
		o.hub.BroadcastStatus(result)
	}
	if o.onStageComplete != nil {
		o.onStageComplete(result)
	}
	return err
}

// executeSlateDiscovery refreshes today's slate. On a date rollover the
// suppression set resets; when a store is attached it is rehydrated from
// already-persisted runs so restarts do not re-score finished work.
func (o *Orchestrator) executeSlateDiscovery(ctx context.Context) (any, error) {
	date := time.Now().UTC().Format("2006-01-02")
	games, err := o.schedule.DailyGames(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("daily games: %w", err)
	}

	var prior []core.Insight
	if o.store != nil {
		prior, err = o.store.ListInsightsByDate(ctx, date)
		if err != nil {
			log.Warn().Err(err).Str("date", date).Msg("scored-run hydration failed")
			prior = nil
		}
	}

	o.mu.Lock()
	if date != o.slateDate {
		o.slateDate = date
		o.scored = make(map[string]bool)
	}
	o.slate = games
	for i := range prior {
		o.scored[scoreKey(prior[i].GameID, prior[i].BetType)] = true
	}
	o.mu.Unlock()

	counts := make(map[core.GameStatus]int)
	for _, g := range games {
		counts[g.Status]++
	}
	for _, st := range []core.GameStatus{core.GameScheduled, core.GameLive, core.GameFinal} {
		o.metrics.SetSlateGames(string(st), counts[st])
	}

	if o.hub != nil {
		o.hub.BroadcastSlate(date, games)
	}
	return map[string]any{"date": date, "games": len(games)}, nil
}

// executeGameScoring scores every (scheduled game, bet type) market not yet
// scored today. Individual run failures are retried on the next tick; the
// stage itself fails only when every attempted run fails.
func (o *Orchestrator) executeGameScoring(ctx context.Context) (any, error) {
	o.mu.RLock()
	date := o.slateDate
	slate := make([]core.Game, len(o.slate))
	copy(slate, o.slate)
	o.mu.RUnlock()

	if len(slate) == 0 {
		return nil, nil
	}

	var scored, failed, built int
	var lastErr error
	for _, game := range slate {
		if game.Status != core.GameScheduled {
			continue
		}
		sport := game.Sport
		if sport == "" {
			sport = core.SportNBA
		}

		for _, bt := range o.betTypes {
			key := scoreKey(game.ID, bt)
			if o.alreadyScored(key) {
				continue
			}

			insight, err := o.engine.Score(ctx, core.RunCtx{
				GameID:        game.ID,
				AwayTeam:      game.AwayTeam,
				HomeTeam:      game.HomeTeam,
				Sport:         sport,
				BetType:       bt,
				FactorWeights: o.weights,
			})
			if err != nil {
				failed++
				lastErr = err
				log.Warn().Err(err).
					Str("game_id", game.ID).
					Str("bet_type", string(bt)).
					Msg("scoring run failed")
				continue
			}
			o.markScored(key)
			scored++

			if o.store != nil {
				if err := o.store.SaveInsight(ctx, insight, date); err != nil {
					log.Error().Err(err).Str("run_id", insight.RunID).Msg("persist insight failed")
				}
			}
			if o.hub != nil {
				o.hub.BroadcastInsight(insight)
			}
			if o.buildPick(ctx, insight, game, bt) {
				built++
			}
		}
	}

	if scored == 0 && failed > 0 {
		return nil, fmt.Errorf("all %d scoring runs failed: %w", failed, lastErr)
	}
	return map[string]any{"scored": scored, "failed": failed, "picks": built}, nil
}

// buildPick runs the pick builder on a fresh insight and persists and
// broadcasts any pick it produces.
func (o *Orchestrator) buildPick(ctx context.Context, insight *core.Insight, game core.Game, bt core.BetType) bool {
	var quote picks.Quote
	if o.quotes != nil {
		if q, ok := o.quotes.Quote(ctx, game, bt); ok {
			quote = q
		}
	}

	pick, ok := o.builder.FromInsight(insight, game, quote)
	if !ok {
		return false
	}

	if o.store != nil {
		if err := o.store.SavePick(ctx, pick); err != nil {
			log.Error().Err(err).Str("pick_id", pick.ID).Msg("persist pick failed")
		}
	}
	if o.hub != nil {
		o.hub.BroadcastPick(pick)
	}
	return true
}

// executePickGrading settles pending picks whose games have gone final. One
// scores fetch per distinct pending game date.
func (o *Orchestrator) executePickGrading(ctx context.Context) (any, error) {
	if o.store == nil {
		return nil, nil
	}

	pending, err := o.store.ListPicks(ctx, store.PickFilter{Status: string(picks.StatusPending)})
	if err != nil {
		return nil, fmt.Errorf("list pending picks: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	finals := make(map[string]core.Game)
	for _, date := range pendingDates(pending) {
		scores, err := o.schedule.DailyScores(ctx, date)
		if err != nil {
			log.Warn().Err(err).Str("date", date).Msg("scores fetch failed")
			continue
		}
		for _, g := range scores {
			if g.Final() {
				finals[g.ID] = g
			}
		}
	}

	var graded int
	for i := range pending {
		p := &pending[i]
		game, ok := finals[p.GameID]
		if !ok {
			continue
		}
		if err := picks.Grade(p, game); err != nil {
			log.Warn().Err(err).Str("pick_id", p.ID).Msg("grading failed")
			continue
		}
		if err := o.store.GradePick(ctx, p); err != nil {
			log.Error().Err(err).Str("pick_id", p.ID).Msg("persist grade failed")
			continue
		}
		o.metrics.RecordGrade(string(p.Status))
		if o.hub != nil {
			o.hub.BroadcastGrade(p)
		}
		graded++
	}
	return map[string]any{"pending": len(pending), "graded": graded}, nil
}

func (o *Orchestrator) alreadyScored(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scored[key]
}

func (o *Orchestrator) markScored(key string) {
	o.mu.Lock()
	o.scored[key] = true
	o.mu.Unlock()
}

func (o *Orchestrator) handleError(err error) {
	if o.onError != nil {
		o.onError(err)
	}
}

func scoreKey(gameID string, bt core.BetType) string {
	return gameID + "|" + string(bt)
}

// pendingDates returns the distinct game dates among pending picks, sorted
// so grading fetches scores in a stable order.
func pendingDates(pending []picks.Pick) []string {
	seen := make(map[string]bool)
	var dates []string
	for i := range pending {
		d := pending[i].GameDate
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates
}

// Status is a point-in-time snapshot of the workflow.
type Status struct {
	Running       bool   `json:"running"`
	SlateDate     string `json:"slate_date"`
	SlateGames    int    `json:"slate_games"`
	ScoredMarkets int    `json:"scored_markets"`
}

// GetStatus returns the current workflow status.
func (o *Orchestrator) GetStatus() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return Status{
		Running:       o.running,
		SlateDate:     o.slateDate,
		SlateGames:    len(o.slate),
		ScoredMarkets: len(o.scored),
	}
}

// GetSlate returns a copy of the most recently discovered slate.
func (o *Orchestrator) GetSlate() []core.Game {
	o.mu.RLock()
	defer o.mu.RUnlock()

	slate := make([]core.Game, len(o.slate))
	copy(slate, o.slate)
	return slate
}
