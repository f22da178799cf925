// Package scoring defines the Strategy interface shared by the ICPC and
// Hackathon scoring modes, collapsing what would otherwise be two nearly
// duplicate engines into one judging pipeline plus a pluggable strategy.
package scoring

import (
	"time"

	"github.com/google/uuid"
	"github.com/judgeboard/platform/internal/judge"
)

// SubmissionOutcome is a finalized judging result plus the contest timing
// context a scoring Strategy needs to compute its contribution.
type SubmissionOutcome struct {
	SubmissionID  uuid.UUID
	TeamID        uuid.UUID
	ProblemID     uuid.UUID
	Verdict       judge.Verdict
	TestsPassed   int
	TestsTotal    int
	SubmittedAt   time.Time
	ContestStart  time.Time
	AttemptNumber int // 1-indexed prior attempts on this problem by this team, this one included
}

// ProblemScore is one team's accumulated standing on one problem. A
// Strategy's Apply takes it by value and returns the updated copy, in the
// same spirit as the ledger's lock-row/compute/write pattern: the caller
// (store.UpsertTeamScore) locks the persisted row FOR UPDATE, calls Apply,
// and writes the result back in the same transaction.
type ProblemScore struct {
	Solved           bool
	Attempts         int
	PenaltyMinutes   int64   // ICPC
	PointsEarned     float64 // Hackathon, 0-1 fraction of max problem points scaled by caller
	FirstSolvedAt    *time.Time
	BestTestsPassed  int
}

// Strategy computes a problem score's contribution from one submission
// outcome. It is pure and side-effect free; persistence and concurrency
// control live in internal/store.
type Strategy interface {
	// Name identifies the strategy for display and for the contest row
	// that pins it at creation time.
	Name() string

	// Apply folds outcome into the running ProblemScore for this
	// team/problem pair and returns the updated score.
	Apply(current ProblemScore, outcome SubmissionOutcome) ProblemScore

	// Compare orders two teams' total standings; it returns true if a
	// should rank strictly better than b.
	Compare(a, b TeamStanding) bool
}

// TeamStanding is one team's contest-wide aggregate used for ranking.
type TeamStanding struct {
	TeamID         uuid.UUID
	ProblemsSolved int
	TotalPenalty   int64   // ICPC, minutes
	TotalPoints    float64 // Hackathon
	LastSolvedAt   time.Time
}
