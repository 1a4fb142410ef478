// Package injury turns provider injury reports into the bounded impact
// scores the availability factor reads. The deterministic analyzer is the
// production default; the LLM analyzer is opt-in and fails hard.
package injury

import (
	"strings"

	"github.com/pickpulse/shiva/core"
)

// newsEdgeCap bounds the aggregate news edge.
const newsEdgeCap = 3.0

// Finding is one scored observation about a player's availability.
type Finding struct {
	Player     string            `json:"player"`
	Team       string            `json:"team"`
	Role       core.PlayerRole   `json:"role"`
	Status     core.InjuryStatus `json:"status"`
	Restricted bool              `json:"restricted"`
	Impact     float64           `json:"impact"`
	Note       string            `json:"note,omitempty"`
}

// NewsEdge sums finding impacts, capped at exactly ±3.0.
func NewsEdge(findings []Finding) float64 {
	total := 0.0
	for _, f := range findings {
		total += f.Impact
	}
	return clamp(total, -newsEdgeCap, newsEdgeCap)
}

// MinutesImpact estimates the signed edge impact of one player's
// availability line. A returning player on a minutes restriction is a mild
// positive regardless of designation.
func MinutesImpact(status core.InjuryStatus, role core.PlayerRole, restricted bool) float64 {
	base := roleBase(role)
	if restricted {
		return 0.25 * base
	}
	return statusSeverity(status) * base
}

func roleBase(role core.PlayerRole) float64 {
	switch role {
	case core.RoleStar:
		return 2.0
	case core.RoleStarter:
		return 1.2
	case core.RoleRotation:
		return 0.6
	default:
		return 0.25
	}
}

func statusSeverity(status core.InjuryStatus) float64 {
	switch status {
	case core.InjuryOut:
		return -1.0
	case core.InjuryDoubtful:
		return -0.75
	case core.InjuryQuestionable:
		return -0.5
	case core.InjuryProbable:
		return -0.25
	default:
		return 0
	}
}

// RoleFor buckets a player by production numbers.
func RoleFor(ppg, mpg float64) core.PlayerRole {
	switch {
	case ppg >= 20:
		return core.RoleStar
	case mpg >= 28:
		return core.RoleStarter
	case mpg >= 15:
		return core.RoleRotation
	default:
		return core.RoleBench
	}
}

// FindingsFromReports scores each report line into a finding.
func FindingsFromReports(reports []core.PlayerReport) []Finding {
	findings := make([]Finding, 0, len(reports))
	for _, r := range reports {
		role := RoleFor(r.PPG, r.MPG)
		restricted := restrictedNote(r.Note)
		findings = append(findings, Finding{
			Player:     r.Name,
			Team:       r.Team,
			Role:       role,
			Status:     r.Status,
			Restricted: restricted,
			Impact:     MinutesImpact(r.Status, role, restricted),
			Note:       r.Note,
		})
	}
	return findings
}

func restrictedNote(note string) bool {
	lower := strings.ToLower(note)
	return strings.Contains(lower, "restriction") || strings.Contains(lower, "minutes limit")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
