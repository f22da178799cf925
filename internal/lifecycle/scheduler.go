// Package lifecycle drives a contest through its phases and guarantees
// exactly one serve replica performs each transition via etcd leader
// election.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/judgeboard/platform/pkg/messaging"
)

// Phase is a contest lifecycle state.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseRunning    Phase = "running"
	PhaseFrozen     Phase = "frozen"
	PhaseEnding     Phase = "ending"
	PhaseEnded      Phase = "ended"
)

// Contest is the lifecycle-relevant subset of a contest row.
type Contest struct {
	ID          uuid.UUID
	Phase       Phase
	StartsAt    time.Time
	EndsAt      time.Time
	FreezeAt    time.Time // standings freeze point before EndsAt
	GracePeriod time.Duration
}

// Store is the persistence surface the scheduler needs: load contests due
// for a transition and persist the new phase.
type Store interface {
	LoadActiveContests(ctx context.Context) ([]Contest, error)
	SetPhase(ctx context.Context, contestID uuid.UUID, phase Phase) error
}

// Leaderboard is the subset of the leaderboard controller the scheduler
// drives directly on the freeze transition.
type Leaderboard interface {
	Freeze(ctx context.Context, contestID uuid.UUID) error
}

// Elector reports whether this process currently holds the lock that
// entitles it to drive contest transitions.
type Elector interface {
	IsLeader() bool
}

// Scheduler polls for due phase transitions once a minute, the same
// ticker-plus-select-loop shape the teacher's alert engine used to watch
// prices, and drives contests through not_started -> running -> frozen ->
// ending -> ended.
type Scheduler struct {
	store       Store
	leaderboard Leaderboard
	elector     Elector
	msg         *messaging.Client
	logger      *zap.Logger

	tickInterval time.Duration
	stopCh       chan struct{}
}

// NewScheduler constructs a Scheduler. tickInterval is normally one
// minute; tests use a shorter interval.
func NewScheduler(store Store, leaderboard Leaderboard, elector Elector, msg *messaging.Client, logger *zap.Logger, tickInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:        store,
		leaderboard:  leaderboard,
		elector:      elector,
		msg:          msg,
		logger:       logger,
		tickInterval: tickInterval,
		stopCh:       make(chan struct{}),
	}
}

// Run polls for phase transitions until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts Run.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.elector.IsLeader() {
		return
	}

	contests, err := s.store.LoadActiveContests(ctx)
	if err != nil {
		s.logger.Error("lifecycle: load active contests failed", zap.Error(err))
		return
	}

	now := time.Now()
	for _, c := range contests {
		next, ok := nextPhase(c, now)
		if !ok {
			continue
		}
		s.transition(ctx, c, next)
	}
}

// nextPhase computes the phase a contest should be in right now, given
// its timestamps and current phase. It never skips the frozen phase even
// if FreezeAt and EndsAt are close together, since downstream clients
// depend on having seen a freeze event before an ending one.
func nextPhase(c Contest, now time.Time) (Phase, bool) {
	switch c.Phase {
	case PhaseNotStarted:
		if !now.Before(c.StartsAt) {
			return PhaseRunning, true
		}
	case PhaseRunning:
		if !c.FreezeAt.IsZero() && !now.Before(c.FreezeAt) {
			return PhaseFrozen, true
		}
		if !now.Before(c.EndsAt) {
			return PhaseEnding, true
		}
	case PhaseFrozen:
		if !now.Before(c.EndsAt) {
			return PhaseEnding, true
		}
	case PhaseEnding:
		// Ending waits out GracePeriod for in-flight submissions before
		// becoming final; the wait is this check repeated on later ticks,
		// so ended is reached on the first tick at or after
		// EndsAt+GracePeriod.
		if now.Sub(c.EndsAt) >= c.GracePeriod {
			return PhaseEnded, true
		}
	}
	return "", false
}

func (s *Scheduler) transition(ctx context.Context, c Contest, next Phase) {
	if next == PhaseFrozen && s.leaderboard != nil {
		if err := s.leaderboard.Freeze(ctx, c.ID); err != nil {
			s.logger.Error("lifecycle: freeze leaderboard failed", zap.String("contest_id", c.ID.String()), zap.Error(err))
			return
		}
	}

	if err := s.store.SetPhase(ctx, c.ID, next); err != nil {
		s.logger.Error("lifecycle: persist phase failed", zap.String("contest_id", c.ID.String()), zap.Error(err))
		return
	}

	s.logger.Info("contest phase transition", zap.String("contest_id", c.ID.String()), zap.String("phase", string(next)))

	if s.msg != nil {
		event := messaging.ContestPhaseEvent{ContestID: c.ID, Phase: string(next), At: time.Now()}
		if err := s.msg.Publish(ctx, messaging.EventTypeContestPhase, event); err != nil {
			s.logger.Warn("lifecycle: publish phase event failed", zap.Error(err))
		}
	}
}

// WaitForGrace blocks until a contest's grace period has elapsed or ctx is
// cancelled, polling every 5 seconds rather than sleeping the whole
// duration in one call so a cancelled context returns promptly.
func WaitForGrace(ctx context.Context, endsAt time.Time, grace time.Duration) error {
	deadline := endsAt.Add(grace)
	poll := time.NewTicker(5 * time.Second)
	defer poll.Stop()

	for {
		if !time.Now().Before(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lifecycle: grace wait cancelled: %w", ctx.Err())
		case <-poll.C:
		}
	}
}
