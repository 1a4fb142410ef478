// Package backtest replays settled picks against their stored scoring runs
// and reports how often each factor sided with the eventual winner.
package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/picks"
	"github.com/pickpulse/shiva/pkg/store"
)

// Source supplies the picks ledger and the scoring runs behind it.
// *store.Store satisfies it.
type Source interface {
	ListPicks(ctx context.Context, f store.PickFilter) ([]picks.Pick, error)
	ListInsightsByDate(ctx context.Context, date string) ([]core.Insight, error)
}

// Config narrows the evaluation window. Zero fields are open.
type Config struct {
	// Capper restricts the ledger to one capper. Empty means all.
	Capper string
	// FromDate and ToDate bound the game dates evaluated, inclusive,
	// as YYYY-MM-DD strings.
	FromDate string
	ToDate   string
	// MinSignal drops factor legs whose |signal| falls below it, so the
	// table can be limited to legs that actually leaned somewhere.
	MinSignal float64
}

// Evaluator joins settled picks with the per-factor legs of the runs that
// produced them and aggregates hit rates per factor.
type Evaluator struct {
	cfg Config
	src Source
}

// New creates an Evaluator over the given pick source.
func New(cfg Config, src Source) *Evaluator {
	return &Evaluator{cfg: cfg, src: src}
}

// FactorRow aggregates one factor's legs across the evaluated picks. A leg
// is one FactorComputation inside a settled pick's run; it hits when its
// side matches the side that actually won the market.
type FactorRow struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	Legs         int     `json:"legs"`
	Hits         int     `json:"hits"`
	HitRate      float64 `json:"hit_rate"`
	AvgAbsSignal float64 `json:"avg_abs_signal"`

	sumAbsSignal float64
}

// PickOutcome is one settled pick joined with its run, kept for detail
// output. Winner is the side that won the market, not the side picked.
type PickOutcome struct {
	Pick    picks.Pick `json:"pick"`
	Matchup string     `json:"matchup"`
	Winner  core.Side  `json:"winner,omitempty"`
}

// Result is the evaluation summary. Pushed and voided picks count toward
// the ledger totals but contribute no factor legs, since neither side won.
type Result struct {
	Capper      string        `json:"capper,omitempty"`
	FromDate    string        `json:"from_date,omitempty"`
	ToDate      string        `json:"to_date,omitempty"`
	Settled     int           `json:"settled"`
	Won         int           `json:"won"`
	Lost        int           `json:"lost"`
	Pushed      int           `json:"pushed"`
	Pending     int           `json:"pending"`
	Voided      int           `json:"voided"`
	MissingRuns int           `json:"missing_runs,omitempty"`
	UnitsStaked float64       `json:"units_staked"`
	NetUnits    float64       `json:"net_units"`
	ROI         float64       `json:"roi"`
	Factors     []FactorRow   `json:"factors"`
	Picks       []PickOutcome `json:"picks,omitempty"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// Run loads the ledger, resolves each settled pick's run, and scores every
// factor leg against the market's winning side.
func (e *Evaluator) Run(ctx context.Context) (*Result, error) {
	ledger, err := e.src.ListPicks(ctx, store.PickFilter{Capper: e.cfg.Capper})
	if err != nil {
		return nil, fmt.Errorf("backtest: list picks: %w", err)
	}

	res := &Result{
		Capper:      e.cfg.Capper,
		FromDate:    e.cfg.FromDate,
		ToDate:      e.cfg.ToDate,
		EvaluatedAt: time.Now().UTC(),
	}

	var settled []picks.Pick
	for _, p := range ledger {
		if !e.inWindow(p.GameDate) {
			continue
		}
		switch p.Status {
		case picks.StatusPending:
			res.Pending++
			continue
		case picks.StatusVoid:
			res.Voided++
			continue
		case picks.StatusWon:
			res.Won++
		case picks.StatusLost:
			res.Lost++
		case picks.StatusPush:
			res.Pushed++
		default:
			log.Warn().Str("pick_id", p.ID).Str("status", string(p.Status)).Msg("backtest: skipping unknown pick status")
			continue
		}
		res.Settled++
		res.UnitsStaked += p.Units
		res.NetUnits += p.ProfitUnits
		settled = append(settled, p)
	}
	if res.UnitsStaked > 0 {
		res.ROI = res.NetUnits / res.UnitsStaked
	}

	runs := e.loadRuns(ctx, settled)

	acc := make(map[string]*FactorRow)
	for _, p := range settled {
		run, ok := runs[p.RunID]
		if !ok {
			res.MissingRuns++
			log.Warn().Str("pick_id", p.ID).Str("run_id", p.RunID).Msg("backtest: no stored run for pick")
			continue
		}

		outcome := PickOutcome{Pick: p, Matchup: run.AwayTeam + "@" + run.HomeTeam}
		winner, decided := winningSide(p)
		if decided {
			outcome.Winner = winner
		}
		res.Picks = append(res.Picks, outcome)
		if !decided {
			continue
		}

		for _, leg := range run.Factors {
			if math.Abs(leg.Signal) < e.cfg.MinSignal {
				continue
			}
			row, ok := acc[leg.Key]
			if !ok {
				row = &FactorRow{Key: leg.Key, Name: leg.Name}
				acc[leg.Key] = row
			}
			row.Legs++
			row.sumAbsSignal += math.Abs(leg.Signal)
			if leg.Side == winner {
				row.Hits++
			}
		}
	}

	res.Factors = make([]FactorRow, 0, len(acc))
	for _, row := range acc {
		row.HitRate = float64(row.Hits) / float64(row.Legs)
		row.AvgAbsSignal = row.sumAbsSignal / float64(row.Legs)
		res.Factors = append(res.Factors, *row)
	}
	slices.SortFunc(res.Factors, func(a, b FactorRow) int {
		switch {
		case a.HitRate > b.HitRate:
			return -1
		case a.HitRate < b.HitRate:
			return 1
		case a.Legs > b.Legs:
			return -1
		case a.Legs < b.Legs:
			return 1
		}
		return strings.Compare(a.Key, b.Key)
	})

	return res, nil
}

// loadRuns fetches the scoring runs behind the settled picks, one store
// query per distinct game date. A date that fails to load only costs the
// picks on that date; the rest of the evaluation proceeds.
func (e *Evaluator) loadRuns(ctx context.Context, settled []picks.Pick) map[string]*core.Insight {
	dates := make([]string, 0, len(settled))
	for _, p := range settled {
		dates = append(dates, p.GameDate)
	}
	slices.Sort(dates)
	dates = slices.Compact(dates)

	runs := make(map[string]*core.Insight)
	for _, date := range dates {
		insights, err := e.src.ListInsightsByDate(ctx, date)
		if err != nil {
			log.Warn().Err(err).Str("date", date).Msg("backtest: runs unavailable for date")
			continue
		}
		for i := range insights {
			runs[insights[i].RunID] = &insights[i]
		}
	}
	return runs
}

func (e *Evaluator) inWindow(date string) bool {
	if e.cfg.FromDate != "" && date < e.cfg.FromDate {
		return false
	}
	if e.cfg.ToDate != "" && date > e.cfg.ToDate {
		return false
	}
	return true
}

// winningSide reports which side of the pick's market won. A pick that won
// was on the winning side; a pick that lost was on the other one. Pushes
// have no winner.
func winningSide(p picks.Pick) (core.Side, bool) {
	switch p.Status {
	case picks.StatusWon:
		return p.Side, true
	case picks.StatusLost:
		return oppositeSide(p.Side), true
	}
	return "", false
}

func oppositeSide(s core.Side) core.Side {
	switch s {
	case core.SideAway:
		return core.SideHome
	case core.SideHome:
		return core.SideAway
	case core.SideOver:
		return core.SideUnder
	case core.SideUnder:
		return core.SideOver
	}
	return s
}

// WriteCSV writes the summary block followed by one row per factor.
func (r *Result) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	records := [][]string{
		{"metric", "value"},
		{"capper", r.Capper},
		{"from_date", r.FromDate},
		{"to_date", r.ToDate},
		{"settled", strconv.Itoa(r.Settled)},
		{"won", strconv.Itoa(r.Won)},
		{"lost", strconv.Itoa(r.Lost)},
		{"pushed", strconv.Itoa(r.Pushed)},
		{"pending", strconv.Itoa(r.Pending)},
		{"voided", strconv.Itoa(r.Voided)},
		{"units_staked", strconv.FormatFloat(r.UnitsStaked, 'f', 2, 64)},
		{"net_units", strconv.FormatFloat(r.NetUnits, 'f', 2, 64)},
		{"roi", strconv.FormatFloat(r.ROI, 'f', 4, 64)},
		{},
		{"factor", "name", "legs", "hits", "hit_rate", "avg_abs_signal"},
	}
	for _, row := range r.Factors {
		records = append(records, []string{
			row.Key,
			row.Name,
			strconv.Itoa(row.Legs),
			strconv.Itoa(row.Hits),
			strconv.FormatFloat(row.HitRate, 'f', 4, 64),
			strconv.FormatFloat(row.AvgAbsSignal, 'f', 4, 64),
		})
	}

	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("backtest: write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
