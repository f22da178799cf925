// Package hackathon implements partial-credit scoring: a team earns
// points proportional to the fraction of test cases passed, keeping its
// best submission per problem, with no attempt penalty.
package hackathon

import (
	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/scoring"
)

// Strategy is the Hackathon partial-credit scoring strategy.
type Strategy struct{}

// New constructs a Hackathon Strategy.
func New() *Strategy { return &Strategy{} }

func (s *Strategy) Name() string { return "hackathon" }

// Apply keeps the best-scoring submission per problem; a resubmission
// that scores lower than a prior one never regresses a team's standing.
func (s *Strategy) Apply(current scoring.ProblemScore, outcome scoring.SubmissionOutcome) scoring.ProblemScore {
	if outcome.Verdict == judge.VerdictCompileError {
		// A submission that never compiled never attempted the
		// problem: no attempt, no points.
		return current
	}

	current.Attempts++

	if outcome.TestsTotal == 0 {
		return current
	}

	fraction := float64(outcome.TestsPassed) / float64(outcome.TestsTotal)
	if fraction <= current.PointsEarned && current.Attempts > 1 {
		return current
	}

	current.PointsEarned = fraction
	current.BestTestsPassed = outcome.TestsPassed
	if outcome.TestsPassed == outcome.TestsTotal {
		current.Solved = true
		t := outcome.SubmittedAt
		current.FirstSolvedAt = &t
	}

	return current
}

// Compare ranks by total points descending, then by last-solved time
// ascending as a tiebreak so an earlier string of full solves outranks a
// later one at equal points.
func (s *Strategy) Compare(a, b scoring.TeamStanding) bool {
	if a.TotalPoints != b.TotalPoints {
		return a.TotalPoints > b.TotalPoints
	}
	return a.LastSolvedAt.Before(b.LastSolvedAt)
}
