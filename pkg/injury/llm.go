package injury

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pickpulse/shiva/core"
	"github.com/pickpulse/shiva/pkg/llm"
)

// LLMError marks a failed completion call. The scoring run fails with it;
// there is no deterministic fallback in LLM mode.
type LLMError struct {
	Team string
	Err  error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm injury assessment for %s: %v", e.Team, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// ParseError marks a model response that was not the required JSON shape.
type ParseError struct {
	Team string
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse llm injury assessment for %s: %v", e.Team, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// lossScale maps bounded model scores back onto the production-loss scale
// the availability factor divides by.
const lossScale = 5.0

const systemPrompt = "You are an NBA injury analyst. Respond with a single JSON object and nothing else."

const promptTemplate = `Assess the impact of the following injury report for %s.

Injury report:
%s

Respond with exactly this JSON shape:
{
  "key_absences": ["players whose absence materially weakens the team"],
  "minutes_limits": ["players returning on a minutes restriction"],
  "defense_impact_score": <number between -1 and 1; 1 means severely weakened, negative means healthier than usual>
}`

// llmAssessment is the strict response contract. DefenseImpactScore is a
// pointer so a missing field is distinguishable from zero.
type llmAssessment struct {
	KeyAbsences        []string `json:"key_absences"`
	MinutesLimits      []string `json:"minutes_limits"`
	DefenseImpactScore *float64 `json:"defense_impact_score"`
}

// LLMAnalyzer scores injuries with one completion call per team, issued
// concurrently.
type LLMAnalyzer struct {
	source ReportSource
	client llm.Client
}

// NewLLMAnalyzer creates the opt-in analyzer.
func NewLLMAnalyzer(source ReportSource, client llm.Client) *LLMAnalyzer {
	return &LLMAnalyzer{source: source, client: client}
}

// Assess fetches both reports, asks the model about each team, and folds the
// clamped scores into one impact. Any call or parse failure aborts the run.
func (a *LLMAnalyzer) Assess(ctx context.Context, away, home string) (*core.InjuryImpact, error) {
	awayReports, homeReports, err := fetchBoth(ctx, a.source, away, home)
	if err != nil {
		return nil, err
	}

	type teamResult struct {
		team       string
		assessment *llmAssessment
		err        error
	}

	teams := []struct {
		name    string
		reports []core.PlayerReport
	}{
		{away, awayReports},
		{home, homeReports},
	}

	results := make(chan teamResult, len(teams))
	var wg sync.WaitGroup
	for _, t := range teams {
		wg.Add(1)
		go func(team string, reports []core.PlayerReport) {
			defer wg.Done()
			assessment, err := a.assessTeam(ctx, team, reports)
			results <- teamResult{team: team, assessment: assessment, err: err}
		}(t.name, t.reports)
	}
	wg.Wait()
	close(results)

	var awayScore, homeScore float64
	var awayAbsences, homeAbsences int
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		score := clamp(*r.assessment.DefenseImpactScore, -1, 1)
		if r.team == away {
			awayScore = score
			awayAbsences = len(r.assessment.KeyAbsences)
		} else {
			homeScore = score
			homeAbsences = len(r.assessment.KeyAbsences)
		}
	}

	return &core.InjuryImpact{
		Away:         awayScore,
		Home:         homeScore,
		AwayLoss:     awayScore * lossScale,
		HomeLoss:     homeScore * lossScale,
		Net:          (awayScore - homeScore) * lossScale,
		AwayInjuries: awayAbsences,
		HomeInjuries: homeAbsences,
		Source:       "llm",
	}, nil
}

func (a *LLMAnalyzer) assessTeam(ctx context.Context, team string, reports []core.PlayerReport) (*llmAssessment, error) {
	prompt := fmt.Sprintf(promptTemplate, team, formatReports(reports))

	raw, err := a.client.Complete(ctx, prompt, systemPrompt)
	if err != nil {
		return nil, &LLMError{Team: team, Err: err}
	}

	jsonStr := llm.ExtractJSON(llm.StripCodeFences(raw))
	if jsonStr == "" {
		return nil, &ParseError{Team: team, Raw: raw, Err: fmt.Errorf("no JSON object in response")}
	}

	var assessment llmAssessment
	if err := json.Unmarshal([]byte(jsonStr), &assessment); err != nil {
		return nil, &ParseError{Team: team, Raw: raw, Err: err}
	}
	if assessment.DefenseImpactScore == nil {
		return nil, &ParseError{Team: team, Raw: raw, Err: fmt.Errorf("defense_impact_score missing")}
	}

	return &assessment, nil
}

func formatReports(reports []core.PlayerReport) string {
	if len(reports) == 0 {
		return "No players listed."
	}

	var sb strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&sb, "- %s (%s): %s, %.1f ppg, %.1f mpg", r.Name, r.Position, r.Status, r.PPG, r.MPG)
		if r.Note != "" {
			fmt.Fprintf(&sb, " (%s)", r.Note)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
