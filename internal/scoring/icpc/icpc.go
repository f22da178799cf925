// Package icpc implements the ICPC-style scoring strategy: first solve
// wins, each wrong submission before the first accepted one on a problem
// costs a fixed penalty, and teams rank by problems solved then by total
// penalty minutes ascending.
package icpc

import (
	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/scoring"
)

// PenaltyPerWrongAttempt is the standard ICPC penalty, in minutes, charged
// for each rejected submission preceding the accepted one on a problem.
// Submissions after the first AC don't count; a team stops attempting a
// solved problem.
const PenaltyPerWrongAttempt = 20

// Strategy is the ICPC scoring strategy.
type Strategy struct{}

// New constructs an ICPC Strategy.
func New() *Strategy { return &Strategy{} }

func (s *Strategy) Name() string { return "icpc" }

func (s *Strategy) Apply(current scoring.ProblemScore, outcome scoring.SubmissionOutcome) scoring.ProblemScore {
	if current.Solved {
		// Already solved; further submissions are no-ops for scoring,
		// matching the teacher's idempotent-on-finalized pattern.
		return current
	}

	if outcome.Verdict == judge.VerdictCompileError {
		// A submission that never compiled never attempted the
		// problem: no attempt, no penalty.
		return current
	}

	current.Attempts++

	if outcome.Verdict != judge.VerdictAccepted {
		current.PenaltyMinutes += PenaltyPerWrongAttempt
		return current
	}

	current.Solved = true
	current.BestTestsPassed = outcome.TestsPassed

	elapsedMinutes := int64(outcome.SubmittedAt.Sub(outcome.ContestStart).Minutes())
	if elapsedMinutes < 0 {
		elapsedMinutes = 0
	}
	current.PenaltyMinutes += elapsedMinutes

	t := outcome.SubmittedAt
	current.FirstSolvedAt = &t

	return current
}

// Compare ranks by problems solved descending, then total penalty minutes
// ascending, then last-solve time ascending (the team that locked in its
// standing earlier ranks higher on a tie, the ICPC tiebreak rule).
func (s *Strategy) Compare(a, b scoring.TeamStanding) bool {
	if a.ProblemsSolved != b.ProblemsSolved {
		return a.ProblemsSolved > b.ProblemsSolved
	}
	if a.TotalPenalty != b.TotalPenalty {
		return a.TotalPenalty < b.TotalPenalty
	}
	return a.LastSolvedAt.Before(b.LastSolvedAt)
}
