package queue

import (
	"testing"
	"time"
)

func TestComputePriorityRecencyDecaysOverFirstHour(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	atStart := ComputePriority(PriorityInputs{ContestStart: start, SubmittedAt: start})
	atHalfHour := ComputePriority(PriorityInputs{ContestStart: start, SubmittedAt: start.Add(30 * time.Minute)})
	atHour := ComputePriority(PriorityInputs{ContestStart: start, SubmittedAt: start.Add(time.Hour)})

	if !(atStart > atHalfHour && atHalfHour > atHour) {
		t.Fatalf("expected strictly decaying recency bonus, got %d, %d, %d", atStart, atHalfHour, atHour)
	}
	if atHour != teamFairnessBase {
		t.Fatalf("expected recency bonus to reach 0 after an hour, leaving only the team fairness bonus %d, got %d", teamFairnessBase, atHour)
	}
}

func TestComputePriorityContestUrgencyBonus(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	urgent := ComputePriority(PriorityInputs{SubmittedAt: now, ContestEnd: now.Add(10 * time.Minute)})
	notUrgent := ComputePriority(PriorityInputs{SubmittedAt: now, ContestEnd: now.Add(time.Hour)})

	if urgent <= notUrgent {
		t.Fatalf("expected urgency bonus when contest ends soon: urgent=%d notUrgent=%d", urgent, notUrgent)
	}
	if urgent-notUrgent != contestUrgencyBonus {
		t.Fatalf("expected urgency delta of %d, got %d", contestUrgencyBonus, urgent-notUrgent)
	}
}

func TestComputePriorityTeamFairnessDecaysAndFloors(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	fresh := ComputePriority(PriorityInputs{SubmittedAt: now, TeamRecentSubmissions: 0})
	busy := ComputePriority(PriorityInputs{SubmittedAt: now, TeamRecentSubmissions: 3})
	saturated := ComputePriority(PriorityInputs{SubmittedAt: now, TeamRecentSubmissions: 10})

	if !(fresh > busy) {
		t.Fatalf("expected team fairness bonus to shrink with more recent submissions")
	}
	if saturated != 0 {
		t.Fatalf("expected team fairness bonus to floor at 0, got %d", saturated)
	}
}

func TestComputePriorityAdminOverrideDominates(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	normal := ComputePriority(PriorityInputs{SubmittedAt: now})
	overridden := ComputePriority(PriorityInputs{SubmittedAt: now, AdminOverride: true})

	if overridden-normal != adminOverrideBonus {
		t.Fatalf("expected admin override to add exactly %d, got delta %d", adminOverrideBonus, overridden-normal)
	}
}

func TestComputePriorityIsDeterministic(t *testing.T) {
	in := PriorityInputs{
		ContestStart:          time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		ContestEnd:            time.Date(2026, 1, 1, 17, 0, 0, 0, time.UTC),
		SubmittedAt:           time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC),
		TeamRecentSubmissions: 2,
		CompiledLanguage:      true,
	}

	a := ComputePriority(in)
	b := ComputePriority(in)
	if a != b {
		t.Fatalf("expected deterministic priority, got %d and %d", a, b)
	}
}
