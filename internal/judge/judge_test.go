package judge

import (
	"testing"

	"github.com/google/uuid"
)

func TestTestsPassedCountsAllAcceptedEvenAfterAFailure(t *testing.T) {
	result := JudgeResult{
		TestResults: []TestCaseResult{
			{Verdict: VerdictWrongAnswer},
			{Verdict: VerdictAccepted},
			{Verdict: VerdictAccepted},
		},
	}

	if got := result.TestsPassed(); got != 2 {
		t.Fatalf("TestsPassed() = %d, want 2", got)
	}
}

func TestGradedTotalsExcludesSampleCases(t *testing.T) {
	sample := uuid.New()
	hidden1 := uuid.New()
	hidden2 := uuid.New()

	cases := []TestCase{
		{ID: sample, IsSample: true},
		{ID: hidden1},
		{ID: hidden2},
	}
	result := JudgeResult{
		TestResults: []TestCaseResult{
			{TestCaseID: sample, Verdict: VerdictAccepted},
			{TestCaseID: hidden1, Verdict: VerdictAccepted},
			{TestCaseID: hidden2, Verdict: VerdictWrongAnswer},
		},
	}

	passed, total := result.GradedTotals(cases)
	if passed != 1 || total != 2 {
		t.Fatalf("GradedTotals() = (%d, %d), want (1, 2)", passed, total)
	}
}

func TestFinalVerdictAcceptedWhenEveryCasePasses(t *testing.T) {
	results := []TestCaseResult{{Verdict: VerdictAccepted}, {Verdict: VerdictAccepted}}
	if got := finalVerdict(results); got != VerdictAccepted {
		t.Fatalf("finalVerdict() = %s, want AC", got)
	}
}

func TestFinalVerdictReturnsModalFailure(t *testing.T) {
	results := []TestCaseResult{
		{Verdict: VerdictAccepted},
		{Verdict: VerdictWrongAnswer},
		{Verdict: VerdictWrongAnswer},
		{Verdict: VerdictRuntimeError},
	}
	if got := finalVerdict(results); got != VerdictWrongAnswer {
		t.Fatalf("finalVerdict() = %s, want WA (most frequent failure)", got)
	}
}

func TestFinalVerdictBreaksTiesByPriority(t *testing.T) {
	results := []TestCaseResult{
		{Verdict: VerdictWrongAnswer},
		{Verdict: VerdictTimeLimitExceeded},
	}
	if got := finalVerdict(results); got != VerdictTimeLimitExceeded {
		t.Fatalf("finalVerdict() = %s, want TLE to win an equal-count tie over WA", got)
	}
}
