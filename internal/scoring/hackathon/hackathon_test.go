package hackathon

import (
	"testing"
	"time"

	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/scoring"
)

func TestApplyKeepsBestScore(t *testing.T) {
	s := New()
	now := time.Now()

	var score scoring.ProblemScore
	score = s.Apply(score, scoring.SubmissionOutcome{TestsPassed: 3, TestsTotal: 10, SubmittedAt: now})
	if score.PointsEarned != 0.3 {
		t.Fatalf("points = %v, want 0.3", score.PointsEarned)
	}

	// A worse resubmission must not regress the team's standing.
	score = s.Apply(score, scoring.SubmissionOutcome{TestsPassed: 1, TestsTotal: 10, SubmittedAt: now})
	if score.PointsEarned != 0.3 {
		t.Fatalf("points regressed to %v after a worse resubmission", score.PointsEarned)
	}

	// A better resubmission should improve it.
	score = s.Apply(score, scoring.SubmissionOutcome{TestsPassed: 10, TestsTotal: 10, SubmittedAt: now})
	if score.PointsEarned != 1.0 {
		t.Fatalf("points = %v, want 1.0", score.PointsEarned)
	}
	if !score.Solved {
		t.Fatal("a full-score submission should mark the problem solved")
	}
}

func TestApplyExcludesCompileErrorFromAttempts(t *testing.T) {
	s := New()
	now := time.Now()

	var score scoring.ProblemScore
	score = s.Apply(score, scoring.SubmissionOutcome{
		Verdict:     judge.VerdictCompileError,
		TestsPassed: 0,
		TestsTotal:  5,
		SubmittedAt: now,
	})

	if score.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0 (compile error must not count)", score.Attempts)
	}
	if score.PointsEarned != 0 {
		t.Fatalf("points = %v, want 0 after a compile error", score.PointsEarned)
	}
}

func TestApplyHandlesZeroTestsTotal(t *testing.T) {
	s := New()
	var score scoring.ProblemScore
	got := s.Apply(score, scoring.SubmissionOutcome{TestsPassed: 0, TestsTotal: 0})
	if got.PointsEarned != 0 {
		t.Fatalf("expected no points change for a zero-test problem, got %v", got.PointsEarned)
	}
}

func TestCompareRanksByPoints(t *testing.T) {
	s := New()
	now := time.Now()
	a := scoring.TeamStanding{TotalPoints: 120.5, LastSolvedAt: now}
	b := scoring.TeamStanding{TotalPoints: 99.0, LastSolvedAt: now}
	if !s.Compare(a, b) {
		t.Fatal("higher total points should rank better")
	}
}
