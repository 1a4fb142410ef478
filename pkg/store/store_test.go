package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/picks"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres"), timeout: time.Second}, mock
}

func sampleInsight() *core.Insight {
	return &core.Insight{
		RunID:           "run-1",
		GameID:          "0022500123",
		Sport:           core.SportNBA,
		BetType:         core.BetTotal,
		AwayTeam:        "BOS",
		HomeTeam:        "LAL",
		RegistryVersion: "shiva-v1",
		Factors: []core.FactorComputation{
			{
				Key:        "pace_index",
				Name:       "Pace Index",
				Signal:     0.56,
				Raw:        map[string]float64{"away_pace": 101.2},
				AwayPoints: 2.8,
				Side:       core.SideOver,
				MaxPoints:  5,
				WeightPct:  100,
			},
			{
				Key:       "whistle_env",
				Name:      "Whistle Environment",
				Signal:    0,
				Side:      core.SideNone,
				MaxPoints: 5,
				WeightPct: 100,
			},
		},
		AwayPoints:  2.8,
		HomePoints:  0,
		MaxPoints:   25,
		Lean:        core.SideOver,
		LeanMargin:  2.8,
		GeneratedAt: time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC),
	}
}

func TestEnsureSchemaRunsAllStatements(t *testing.T) {
	st, mock := newMockStore(t)
	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSaveInsightWritesRunAndLegsInOneTx(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO scoring_runs").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO factor_legs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO factor_legs").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := st.SaveInsight(context.Background(), sampleInsight(), "2025-01-15"); err != nil {
		t.Fatalf("SaveInsight: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSaveInsightRollsBackWhenLegInsertFails(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO scoring_runs").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO factor_legs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := st.SaveInsight(context.Background(), sampleInsight(), "2025-01-15"); err == nil {
		t.Fatal("expected an error when a leg insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

var runColumns = []string{
	"run_id", "game_id", "game_date", "sport", "bet_type", "away_team", "home_team",
	"registry_version", "away_points", "home_points", "max_points", "lean",
	"lean_margin", "debug", "generated_at",
}

var legColumns = []string{
	"run_id", "factor_key", "name", "signal", "raw", "parsed", "away_points",
	"home_points", "side", "max_points", "weight_pct", "cap_applied", "note",
}

func TestGetInsightReconstructsRun(t *testing.T) {
	st, mock := newMockStore(t)
	generated := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM scoring_runs WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runColumns).AddRow(
			"run-1", "0022500123", "2025-01-15", "NBA", "TOTAL", "BOS", "LAL",
			"shiva-v1", 2.8, 0.0, 25.0, "OVER", 2.8,
			[]byte(`{"factor_keys":["pace_index"],"fetch_ms":42,"score_ms":1}`), generated,
		))
	mock.ExpectQuery("SELECT (.+) FROM factor_legs WHERE run_id").
		WillReturnRows(sqlmock.NewRows(legColumns).AddRow(
			"run-1", "pace_index", "Pace Index", 0.56,
			[]byte(`{"away_pace":101.2}`), nil, 2.8, 0.0, "OVER", 5.0, 100.0, false, "",
		))

	insight, err := st.GetInsight(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetInsight: %v", err)
	}

	if insight.RunID != "run-1" || insight.BetType != core.BetTotal || insight.Lean != core.SideOver {
		t.Errorf("unexpected run fields: %+v", insight)
	}
	if !insight.GeneratedAt.Equal(generated) {
		t.Errorf("generated at = %v, want %v", insight.GeneratedAt, generated)
	}
	if insight.Debug == nil || insight.Debug.FetchMillis != 42 {
		t.Errorf("debug not decoded: %+v", insight.Debug)
	}
	if len(insight.Factors) != 1 {
		t.Fatalf("got %d factors, want 1", len(insight.Factors))
	}
	leg := insight.Factors[0]
	if leg.Key != "pace_index" || leg.Signal != 0.56 || leg.Side != core.SideOver {
		t.Errorf("unexpected leg: %+v", leg)
	}
	if leg.Raw["away_pace"] != 101.2 {
		t.Errorf("raw not decoded: %+v", leg.Raw)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGetInsightNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM scoring_runs WHERE run_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runColumns))

	_, err := st.GetInsight(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListInsightsByDateFetchesLegsInOneQuery(t *testing.T) {
	st, mock := newMockStore(t)
	generated := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM scoring_runs WHERE game_date").
		WithArgs("2025-01-15").
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("run-2", "g2", "2025-01-15", "NBA", "TOTAL", "NYK", "MIA",
				"shiva-v1", 1.0, 3.0, 25.0, "UNDER", 2.0, nil, generated).
			AddRow("run-1", "g1", "2025-01-15", "NBA", "TOTAL", "BOS", "LAL",
				"shiva-v1", 2.8, 0.0, 25.0, "OVER", 2.8, nil, generated))
	mock.ExpectQuery("SELECT (.+) FROM factor_legs WHERE run_id").
		WillReturnRows(sqlmock.NewRows(legColumns).
			AddRow("run-1", "pace_index", "Pace Index", 0.56, nil, nil, 2.8, 0.0, "OVER", 5.0, 100.0, false, "").
			AddRow("run-2", "pace_index", "Pace Index", -0.4, nil, nil, 0.0, 2.0, "UNDER", 5.0, 100.0, false, ""))

	insights, err := st.ListInsightsByDate(context.Background(), "2025-01-15")
	if err != nil {
		t.Fatalf("ListInsightsByDate: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("got %d insights, want 2", len(insights))
	}
	if insights[0].RunID != "run-2" || insights[1].RunID != "run-1" {
		t.Errorf("order = [%s %s], want [run-2 run-1]", insights[0].RunID, insights[1].RunID)
	}
	if len(insights[1].Factors) != 1 || insights[1].Factors[0].Signal != 0.56 {
		t.Errorf("legs not joined to run-1: %+v", insights[1].Factors)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSavePick(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO picks").WillReturnResult(sqlmock.NewResult(1, 1))

	p := &picks.Pick{
		ID: "pick-1", RunID: "run-1", GameID: "g1", GameDate: "2025-01-15",
		Capper: "shiva-v1", Sport: core.SportNBA, BetType: core.BetTotal,
		Side: core.SideOver, Line: 224.5, Odds: -110, Units: 1.3,
		EdgePoints: 2.8, WinProb: 0.55, Status: picks.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.SavePick(context.Background(), p); err != nil {
		t.Fatalf("SavePick: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGradePick(t *testing.T) {
	st, mock := newMockStore(t)
	graded := time.Now().UTC()
	p := &picks.Pick{ID: "pick-1", Status: picks.StatusWon, ProfitUnits: 0.91, GradedAt: &graded}

	mock.ExpectExec("UPDATE picks SET").
		WithArgs(picks.StatusWon, 0.91, &graded, "pick-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.GradePick(context.Background(), p); err != nil {
		t.Fatalf("GradePick: %v", err)
	}

	mock.ExpectExec("UPDATE picks SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.GradePick(context.Background(), p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestListPicksAppliesFilters(t *testing.T) {
	st, mock := newMockStore(t)
	query := `SELECT ` + pickColumns + ` FROM picks WHERE status = $1 AND game_date = $2 ORDER BY created_at DESC LIMIT $3`

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("WON", "2025-01-15", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "run_id", "game_id", "game_date", "capper", "sport", "bet_type",
			"side", "line", "odds", "units", "edge_points", "win_prob", "status",
			"profit_units", "created_at", "graded_at",
		}).AddRow(
			"pick-1", "run-1", "g1", "2025-01-15", "shiva-v1", "NBA", "TOTAL",
			"OVER", 224.5, -110, 1.3, 2.8, 0.55, "WON", 1.18, time.Now(), time.Now(),
		))

	out, err := st.ListPicks(context.Background(), PickFilter{Status: "won", GameDate: "2025-01-15", Limit: 50})
	if err != nil {
		t.Fatalf("ListPicks: %v", err)
	}
	if len(out) != 1 || out[0].ID != "pick-1" || out[0].Status != picks.StatusWon {
		t.Errorf("unexpected picks: %+v", out)
	}
	if out[0].GradedAt == nil {
		t.Error("graded_at not scanned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestCapperRecordsFinalizesRates(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT capper").
		WillReturnRows(sqlmock.NewRows([]string{
			"capper", "picks", "wins", "losses", "pushes", "units_staked", "net_units",
		}).AddRow("shiva-v1", 3, 2, 1, 0, 4.0, 1.82))

	records, err := st.CapperRecords(context.Background())
	if err != nil {
		t.Fatalf("CapperRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Wins != 2 || rec.Losses != 1 {
		t.Errorf("counts = %+v", rec)
	}
	if rec.ROI != 1.82/4.0 {
		t.Errorf("roi = %.4f, want %.4f", rec.ROI, 1.82/4.0)
	}
	if rec.WinRate != 2.0/3.0 {
		t.Errorf("win rate = %.4f, want %.4f", rec.WinRate, 2.0/3.0)
	}
}
