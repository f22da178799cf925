package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/judgeboard/platform/internal/logging"
)

type fakeStore struct {
	contests []Contest
	phases   map[uuid.UUID]Phase
}

func (f *fakeStore) LoadActiveContests(ctx context.Context) ([]Contest, error) {
	return f.contests, nil
}

func (f *fakeStore) SetPhase(ctx context.Context, contestID uuid.UUID, phase Phase) error {
	if f.phases == nil {
		f.phases = make(map[uuid.UUID]Phase)
	}
	f.phases[contestID] = phase
	for i := range f.contests {
		if f.contests[i].ID == contestID {
			f.contests[i].Phase = phase
		}
	}
	return nil
}

type fakeLeaderboard struct {
	frozen []uuid.UUID
}

func (f *fakeLeaderboard) Freeze(ctx context.Context, contestID uuid.UUID) error {
	f.frozen = append(f.frozen, contestID)
	return nil
}

func TestNextPhaseTransitions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input Contest
		want  Phase
		ok    bool
	}{
		{
			name:  "not started becomes running at start time",
			input: Contest{Phase: PhaseNotStarted, StartsAt: now.Add(-time.Minute)},
			want:  PhaseRunning,
			ok:    true,
		},
		{
			name:  "not started stays before start time",
			input: Contest{Phase: PhaseNotStarted, StartsAt: now.Add(time.Minute)},
			ok:    false,
		},
		{
			name:  "running freezes at freeze time",
			input: Contest{Phase: PhaseRunning, FreezeAt: now.Add(-time.Second), EndsAt: now.Add(time.Hour)},
			want:  PhaseFrozen,
			ok:    true,
		},
		{
			name:  "running moves straight to ending with no freeze configured",
			input: Contest{Phase: PhaseRunning, EndsAt: now.Add(-time.Second)},
			want:  PhaseEnding,
			ok:    true,
		},
		{
			name:  "frozen moves to ending at end time",
			input: Contest{Phase: PhaseFrozen, EndsAt: now.Add(-time.Second)},
			want:  PhaseEnding,
			ok:    true,
		},
		{
			name:  "ending waits out grace period",
			input: Contest{Phase: PhaseEnding, EndsAt: now.Add(-time.Minute), GracePeriod: 5 * time.Minute},
			ok:    false,
		},
		{
			name:  "ending becomes ended after grace period",
			input: Contest{Phase: PhaseEnding, EndsAt: now.Add(-10 * time.Minute), GracePeriod: 5 * time.Minute},
			want:  PhaseEnded,
			ok:    true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := nextPhase(tc.input, now)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("phase = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSchedulerTickOnlyActsAsLeader(t *testing.T) {
	contestID := uuid.New()
	store := &fakeStore{contests: []Contest{
		{ID: contestID, Phase: PhaseNotStarted, StartsAt: time.Now().Add(-time.Minute)},
	}}
	lb := &fakeLeaderboard{}

	nonLeader := nonLeaderElector{}
	s := NewScheduler(store, lb, nonLeader, nil, logging.Nop(), time.Second)
	s.tick(context.Background())

	if len(store.phases) != 0 {
		t.Fatal("a non-leader replica must not perform phase transitions")
	}

	leader := SingleProcessElector{}
	s = NewScheduler(store, lb, leader, nil, logging.Nop(), time.Second)
	s.tick(context.Background())

	if store.phases[contestID] != PhaseRunning {
		t.Fatalf("expected leader to transition contest to running, got %v", store.phases[contestID])
	}
}

type nonLeaderElector struct{}

func (nonLeaderElector) IsLeader() bool { return false }
