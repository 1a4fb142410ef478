package injury

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pickpulse/shiva/core"
)

type fakeSource struct {
	reports map[string][]core.PlayerReport
	errs    map[string]error
}

func (f *fakeSource) Injuries(_ context.Context, team string) ([]core.PlayerReport, error) {
	if err, ok := f.errs[team]; ok {
		return nil, err
	}
	return f.reports[team], nil
}

func TestDeterministicSinglePlayerOut(t *testing.T) {
	// (20/10 + 24/48*2) * 1.0 = 2 + 1 = 3.0
	src := &fakeSource{reports: map[string][]core.PlayerReport{
		"BOS": {{Name: "A", Team: "BOS", Status: core.InjuryOut, PPG: 20, MPG: 24}},
		"LAL": {},
	}}

	impact, err := NewDeterministic(src).Assess(context.Background(), "BOS", "LAL")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if math.Abs(impact.AwayLoss-3.0) > 1e-9 {
		t.Errorf("AwayLoss = %v, want 3.0", impact.AwayLoss)
	}
	wantBounded := math.Tanh(3.0 / 5.0)
	if math.Abs(impact.Away-wantBounded) > 1e-3 {
		t.Errorf("Away = %v, want %v", impact.Away, wantBounded)
	}
	if math.Abs(impact.Net-3.0) > 1e-9 {
		t.Errorf("Net = %v, want 3.0", impact.Net)
	}
	if impact.AwayInjuries != 1 || impact.HomeInjuries != 0 {
		t.Errorf("counts = %d/%d, want 1/0", impact.AwayInjuries, impact.HomeInjuries)
	}
	if impact.Source != "deterministic" {
		t.Errorf("Source = %q, want deterministic", impact.Source)
	}
}

func TestDeterministicStatusMultiplier(t *testing.T) {
	// Same player questionable halves the loss: 3.0 * 0.5 = 1.5.
	src := &fakeSource{reports: map[string][]core.PlayerReport{
		"BOS": {{Name: "A", Team: "BOS", Status: core.InjuryQuestionable, PPG: 20, MPG: 24}},
		"LAL": {},
	}}

	impact, err := NewDeterministic(src).Assess(context.Background(), "BOS", "LAL")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if math.Abs(impact.AwayLoss-1.5) > 1e-9 {
		t.Errorf("AwayLoss = %v, want 1.5", impact.AwayLoss)
	}
}

func TestDeterministicTeamMultipliers(t *testing.T) {
	out := func(name string) core.PlayerReport {
		return core.PlayerReport{Name: name, Team: "BOS", Status: core.InjuryOut, PPG: 20, MPG: 24}
	}

	tests := []struct {
		name    string
		reports []core.PlayerReport
		want    float64
	}{
		{"two out", []core.PlayerReport{out("A"), out("B")}, 6.0 * 1.3},
		{"three out", []core.PlayerReport{out("A"), out("B"), out("C")}, 9.0 * 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{reports: map[string][]core.PlayerReport{
				"BOS": tt.reports,
				"LAL": {},
			}}
			impact, err := NewDeterministic(src).Assess(context.Background(), "BOS", "LAL")
			if err != nil {
				t.Fatalf("Assess: %v", err)
			}
			if math.Abs(impact.AwayLoss-tt.want) > 1e-9 {
				t.Errorf("AwayLoss = %v, want %v", impact.AwayLoss, tt.want)
			}
		})
	}
}

func TestDeterministicSkipsLowMinutes(t *testing.T) {
	src := &fakeSource{reports: map[string][]core.PlayerReport{
		"BOS": {{Name: "A", Team: "BOS", Status: core.InjuryOut, PPG: 9, MPG: 14.9}},
		"LAL": {},
	}}

	impact, err := NewDeterministic(src).Assess(context.Background(), "BOS", "LAL")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if impact.AwayLoss != 0 || impact.AwayInjuries != 0 {
		t.Errorf("loss=%v count=%d, want both zero for sub-15 mpg", impact.AwayLoss, impact.AwayInjuries)
	}
}

func TestDeterministicSkipsAvailable(t *testing.T) {
	// An available player never counts, even at heavy minutes, so the
	// team multiplier stays off.
	src := &fakeSource{reports: map[string][]core.PlayerReport{
		"BOS": {
			{Name: "A", Team: "BOS", Status: core.InjuryOut, PPG: 20, MPG: 24},
			{Name: "B", Team: "BOS", Status: core.InjuryAvailable, PPG: 25, MPG: 36},
		},
		"LAL": {},
	}}

	impact, err := NewDeterministic(src).Assess(context.Background(), "BOS", "LAL")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if math.Abs(impact.AwayLoss-3.0) > 1e-9 {
		t.Errorf("AwayLoss = %v, want 3.0 with no team multiplier", impact.AwayLoss)
	}
	if impact.AwayInjuries != 1 {
		t.Errorf("AwayInjuries = %d, want 1", impact.AwayInjuries)
	}
}

func TestDeterministicNetIsAwayMinusHome(t *testing.T) {
	src := &fakeSource{reports: map[string][]core.PlayerReport{
		"BOS": {{Name: "A", Team: "BOS", Status: core.InjuryOut, PPG: 20, MPG: 24}},
		"LAL": {{Name: "B", Team: "LAL", Status: core.InjuryQuestionable, PPG: 20, MPG: 24}},
	}}

	impact, err := NewDeterministic(src).Assess(context.Background(), "BOS", "LAL")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if math.Abs(impact.Net-1.5) > 1e-9 {
		t.Errorf("Net = %v, want 3.0 - 1.5 = 1.5", impact.Net)
	}
}

func TestDeterministicSourceError(t *testing.T) {
	wantErr := errors.New("feed down")
	src := &fakeSource{
		reports: map[string][]core.PlayerReport{"BOS": {}},
		errs:    map[string]error{"LAL": wantErr},
	}

	_, err := NewDeterministic(src).Assess(context.Background(), "BOS", "LAL")
	if !errors.Is(err, wantErr) {
		t.Errorf("Assess error = %v, want wrap of %v", err, wantErr)
	}
}
