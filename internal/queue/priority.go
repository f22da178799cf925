package queue

import "time"

// PriorityInputs holds every signal ComputePriority combines. Priority is
// computed once at enqueue time, not recomputed while a job waits, so a
// submission's position in the queue is decided by conditions at the
// moment it was accepted.
type PriorityInputs struct {
	ContestStart         time.Time
	ContestEnd           time.Time
	SubmittedAt          time.Time
	TeamRecentSubmissions int // submissions by this team in the last few minutes
	AdminOverride        bool
	CompiledLanguage     bool
}

const (
	recencyBonusMax      = 100
	recencyWindow        = time.Hour
	contestUrgencyBonus  = 50
	contestUrgencyWindow = 30 * time.Minute
	teamFairnessBase     = 25
	teamFairnessPerSub   = 5
	adminOverrideBonus   = 1000
	compiledLanguageBias = 5
)

// ComputePriority folds the five bonuses the spec defines into a single
// nonnegative integer priority, higher running first.
func ComputePriority(in PriorityInputs) int64 {
	var priority int64

	priority += recencyBonus(in.ContestStart, in.SubmittedAt)

	if !in.ContestEnd.IsZero() && in.ContestEnd.Sub(in.SubmittedAt) <= contestUrgencyWindow && in.ContestEnd.After(in.SubmittedAt) {
		priority += contestUrgencyBonus
	}

	fairness := teamFairnessBase - teamFairnessPerSub*in.TeamRecentSubmissions
	if fairness > 0 {
		priority += int64(fairness)
	}

	if in.AdminOverride {
		priority += adminOverrideBonus
	}

	if in.CompiledLanguage {
		priority += compiledLanguageBias
	}

	if priority < 0 {
		priority = 0
	}
	return priority
}

// recencyBonus rewards submissions made early in a contest, linearly
// decaying to zero an hour after the contest started; this keeps judging
// latency lowest right when participants are calibrating against the
// judge, and degrades gracefully for contests where start time is unknown.
func recencyBonus(contestStart, submittedAt time.Time) int64 {
	if contestStart.IsZero() {
		return 0
	}
	elapsed := submittedAt.Sub(contestStart)
	if elapsed < 0 {
		return recencyBonusMax
	}
	if elapsed >= recencyWindow {
		return 0
	}
	remaining := float64(recencyWindow-elapsed) / float64(recencyWindow)
	return int64(recencyBonusMax * remaining)
}
