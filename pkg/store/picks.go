package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/pickpulse/shiva/pkg/picks"
)

const pickColumns = `id, run_id, game_id, game_date, capper, sport, bet_type, side, line, odds,
	units, edge_points, win_prob, status, profit_units, created_at, graded_at`

const insertPickQuery = `
	INSERT INTO picks (
		id, run_id, game_id, game_date, capper, sport, bet_type, side, line,
		odds, units, edge_points, win_prob, status, profit_units, created_at, graded_at
	) VALUES (
		:id, :run_id, :game_id, :game_date, :capper, :sport, :bet_type, :side, :line,
		:odds, :units, :edge_points, :win_prob, :status, :profit_units, :created_at, :graded_at
	)`

const capperRecordsQuery = `
	SELECT capper,
	       COUNT(*)                                AS picks,
	       COUNT(*) FILTER (WHERE status = 'WON')  AS wins,
	       COUNT(*) FILTER (WHERE status = 'LOST') AS losses,
	       COUNT(*) FILTER (WHERE status = 'PUSH') AS pushes,
	       COALESCE(SUM(units), 0)                 AS units_staked,
	       COALESCE(SUM(profit_units), 0)          AS net_units
	FROM picks
	WHERE status IN ('WON', 'LOST', 'PUSH')
	GROUP BY capper
	ORDER BY net_units DESC, capper`

// SavePick inserts a new pick.
func (s *Store) SavePick(ctx context.Context, p *picks.Pick) error {
	if p == nil {
		return fmt.Errorf("store: nil pick")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, insertPickQuery, p); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("store: pick %s already saved: %w", p.ID, err)
		}
		return fmt.Errorf("store: insert pick: %w", err)
	}
	return nil
}

// GradePick persists a settled pick's status, profit, and graded timestamp.
// Returns ErrNotFound when the pick does not exist.
func (s *Store) GradePick(ctx context.Context, p *picks.Pick) error {
	if p == nil {
		return fmt.Errorf("store: nil pick")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE picks SET status = $1, profit_units = $2, graded_at = $3 WHERE id = $4`,
		p.Status, p.ProfitUnits, p.GradedAt, p.ID)
	if err != nil {
		return fmt.Errorf("store: grade pick: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: grade pick: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("store: pick %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// PickFilter narrows ListPicks. Zero fields are ignored.
type PickFilter struct {
	Status   string
	GameDate string
	Capper   string
	Limit    int
}

// ListPicks returns picks matching the filter, newest first.
func (s *Store) ListPicks(ctx context.Context, f PickFilter) ([]picks.Pick, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + pickColumns + ` FROM picks`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, strings.ToUpper(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.GameDate != "" {
		args = append(args, f.GameDate)
		where = append(where, "game_date = $"+strconv.Itoa(len(args)))
	}
	if f.Capper != "" {
		args = append(args, f.Capper)
		where = append(where, "capper = $"+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	var out []picks.Pick
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("store: list picks: %w", err)
	}
	return out, nil
}

// CapperRecords aggregates settled picks into leaderboard rows, best net
// units first.
func (s *Store) CapperRecords(ctx context.Context) ([]picks.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var records []picks.Record
	if err := s.db.SelectContext(ctx, &records, capperRecordsQuery); err != nil {
		return nil, fmt.Errorf("store: capper records: %w", err)
	}
	for i := range records {
		records[i].Finalize()
	}
	return records, nil
}
