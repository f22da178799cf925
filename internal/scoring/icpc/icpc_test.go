package icpc

import (
	"testing"
	"time"

	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/scoring"
)

func TestApplyAccumulatesPenaltyUntilSolved(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New()

	var score scoring.ProblemScore

	score = s.Apply(score, scoring.SubmissionOutcome{
		Verdict:      judge.VerdictWrongAnswer,
		SubmittedAt:  start.Add(5 * time.Minute),
		ContestStart: start,
	})
	if score.Solved {
		t.Fatal("should not be solved after a wrong answer")
	}
	if score.PenaltyMinutes != PenaltyPerWrongAttempt {
		t.Fatalf("penalty = %d, want %d", score.PenaltyMinutes, PenaltyPerWrongAttempt)
	}

	score = s.Apply(score, scoring.SubmissionOutcome{
		Verdict:      judge.VerdictAccepted,
		SubmittedAt:  start.Add(35 * time.Minute),
		ContestStart: start,
		TestsPassed:  10,
	})
	if !score.Solved {
		t.Fatal("should be solved after an AC")
	}
	want := int64(PenaltyPerWrongAttempt) + 35
	if score.PenaltyMinutes != want {
		t.Fatalf("penalty = %d, want %d", score.PenaltyMinutes, want)
	}
	if score.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", score.Attempts)
	}
}

func TestApplyExcludesCompileErrorFromAttempts(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New()

	var score scoring.ProblemScore
	score = s.Apply(score, scoring.SubmissionOutcome{
		Verdict:      judge.VerdictWrongAnswer,
		SubmittedAt:  start.Add(5 * time.Minute),
		ContestStart: start,
	})
	score = s.Apply(score, scoring.SubmissionOutcome{
		Verdict:      judge.VerdictCompileError,
		SubmittedAt:  start.Add(10 * time.Minute),
		ContestStart: start,
	})
	score = s.Apply(score, scoring.SubmissionOutcome{
		Verdict:      judge.VerdictAccepted,
		SubmittedAt:  start.Add(35 * time.Minute),
		ContestStart: start,
	})

	if score.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (compile error must not count)", score.Attempts)
	}
	want := int64(PenaltyPerWrongAttempt) + 35
	if score.PenaltyMinutes != want {
		t.Fatalf("penalty = %d, want %d (compile error must not add penalty)", score.PenaltyMinutes, want)
	}
}

func TestApplyIsNoOpOnceSolved(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New()

	score := scoring.ProblemScore{Solved: true, PenaltyMinutes: 40, Attempts: 2}
	next := s.Apply(score, scoring.SubmissionOutcome{
		Verdict:      judge.VerdictWrongAnswer,
		SubmittedAt:  start.Add(50 * time.Minute),
		ContestStart: start,
	})

	if next != score {
		t.Fatalf("expected no-op on already-solved problem, got %+v", next)
	}
}

func TestCompareRanksBySolvedThenPenalty(t *testing.T) {
	s := New()
	now := time.Now()

	a := scoring.TeamStanding{ProblemsSolved: 3, TotalPenalty: 100, LastSolvedAt: now}
	b := scoring.TeamStanding{ProblemsSolved: 2, TotalPenalty: 10, LastSolvedAt: now}
	if !s.Compare(a, b) {
		t.Fatal("team with more solves should rank better regardless of penalty")
	}

	c := scoring.TeamStanding{ProblemsSolved: 3, TotalPenalty: 50, LastSolvedAt: now}
	d := scoring.TeamStanding{ProblemsSolved: 3, TotalPenalty: 100, LastSolvedAt: now}
	if !s.Compare(c, d) {
		t.Fatal("on equal solves, lower penalty should rank better")
	}
}
