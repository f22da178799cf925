// Package leaderboard computes and serves contest standings, coalescing
// concurrent recompute requests for the same contest and supporting a
// freeze/unfreeze snapshot for the final minutes of a contest.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/judgeboard/platform/internal/scoring"
	"github.com/judgeboard/platform/pkg/messaging"
)

// StandingsSource loads the raw per-team aggregates a Controller ranks.
// internal/store implements this against Postgres.
type StandingsSource interface {
	LoadStandings(ctx context.Context, contestID uuid.UUID) ([]scoring.TeamStanding, error)
}

// Ranked is one team's position after a recompute.
type Ranked struct {
	Rank     int
	Standing scoring.TeamStanding
}

// Controller owns the recompute/freeze lifecycle for every contest's
// leaderboard. A dirty mark plus a periodic tick, instead of recomputing
// on every single score update, batches bursts of submissions the way the
// teacher's matching engine batched order processing onto a 100ms tick.
type Controller struct {
	source          StandingsSource
	defaultStrategy scoring.Strategy
	msg             *messaging.Client
	logger          *zap.Logger

	sf singleflight.Group

	mu         sync.RWMutex
	strategies map[uuid.UUID]scoring.Strategy // per-contest, fixed at creation
	dirty      map[uuid.UUID]bool
	frozen     map[uuid.UUID]bool
	snapshots  map[uuid.UUID][]Ranked // frozen-at-freeze-time snapshot
	live       map[uuid.UUID][]Ranked // latest recomputed standings

	tickInterval time.Duration
	shutdown     chan struct{}
	wg           sync.WaitGroup
}

// NewController constructs a Controller. tickInterval controls how often
// dirty contests are recomputed; the spec's default is 2 seconds.
// defaultStrategy is used for any contest that never called
// RegisterContest, which is only expected in tests.
func NewController(source StandingsSource, defaultStrategy scoring.Strategy, msg *messaging.Client, logger *zap.Logger, tickInterval time.Duration) *Controller {
	return &Controller{
		source:          source,
		defaultStrategy: defaultStrategy,
		msg:             msg,
		logger:          logger,
		strategies:      make(map[uuid.UUID]scoring.Strategy),
		dirty:           make(map[uuid.UUID]bool),
		frozen:          make(map[uuid.UUID]bool),
		snapshots:       make(map[uuid.UUID][]Ranked),
		live:            make(map[uuid.UUID][]Ranked),
		tickInterval:    tickInterval,
		shutdown:        make(chan struct{}),
	}
}

// RegisterContest pins a contest's scoring strategy, fixed for its
// lifetime; there is no mid-contest strategy switch.
func (c *Controller) RegisterContest(contestID uuid.UUID, strategy scoring.Strategy) {
	c.mu.Lock()
	c.strategies[contestID] = strategy
	c.mu.Unlock()
}

func (c *Controller) strategyFor(contestID uuid.UUID) scoring.Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.strategies[contestID]; ok {
		return s
	}
	return c.defaultStrategy
}

// MarkDirty flags a contest for recompute on the next tick. Safe to call
// from any goroutine handling a finalized submission.
func (c *Controller) MarkDirty(contestID uuid.UUID) {
	c.mu.Lock()
	c.dirty[contestID] = true
	c.mu.Unlock()
}

// Start runs the recompute tick loop until ctx is cancelled or Stop is
// called.
func (c *Controller) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.recomputeDirty(ctx)
			case <-ctx.Done():
				return
			case <-c.shutdown:
				return
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (c *Controller) Stop() {
	close(c.shutdown)
	c.wg.Wait()
}

func (c *Controller) recomputeDirty(ctx context.Context) {
	c.mu.Lock()
	toRecompute := make([]uuid.UUID, 0, len(c.dirty))
	for id := range c.dirty {
		if !c.frozen[id] {
			toRecompute = append(toRecompute, id)
		}
		delete(c.dirty, id)
	}
	c.mu.Unlock()

	for _, contestID := range toRecompute {
		if _, err := c.Recompute(ctx, contestID); err != nil {
			c.logger.Error("leaderboard recompute failed", zap.String("contest_id", contestID.String()), zap.Error(err))
		}
	}
}

// Recompute loads fresh standings and ranks them under the contest's
// scoring strategy. Concurrent calls for the same contest ID are
// coalesced into one underlying load via singleflight, so a burst of
// finalized submissions triggers one query instead of one per
// submission.
func (c *Controller) Recompute(ctx context.Context, contestID uuid.UUID) ([]Ranked, error) {
	v, err, _ := c.sf.Do(contestID.String(), func() (interface{}, error) {
		standings, err := c.source.LoadStandings(ctx, contestID)
		if err != nil {
			return nil, fmt.Errorf("leaderboard: load standings: %w", err)
		}

		ranked := rank(standings, c.strategyFor(contestID))

		c.mu.Lock()
		c.live[contestID] = ranked
		c.mu.Unlock()

		c.publish(ctx, contestID, ranked, false)
		return ranked, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Ranked), nil
}

// Standings returns the leaderboard a client should see right now: the
// frozen snapshot if the contest is frozen, otherwise the latest live
// recompute.
func (c *Controller) Standings(contestID uuid.UUID) ([]Ranked, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.frozen[contestID] {
		snap, ok := c.snapshots[contestID]
		return snap, ok
	}
	live, ok := c.live[contestID]
	return live, ok
}

// Freeze locks the leaderboard at its current standings. Submissions
// after this point keep being judged and scored, but do not change what
// teams see until Unfreeze.
func (c *Controller) Freeze(ctx context.Context, contestID uuid.UUID) error {
	c.mu.Lock()
	if c.frozen[contestID] {
		c.mu.Unlock()
		return nil
	}
	snapshot := c.live[contestID]
	c.frozen[contestID] = true
	c.snapshots[contestID] = snapshot
	c.mu.Unlock()

	c.publish(ctx, contestID, snapshot, true)
	return nil
}

// Unfreeze releases the frozen snapshot and immediately recomputes so
// clients see every score finalized during the freeze window at once.
func (c *Controller) Unfreeze(ctx context.Context, contestID uuid.UUID) error {
	c.mu.Lock()
	c.frozen[contestID] = false
	delete(c.snapshots, contestID)
	c.mu.Unlock()

	_, err := c.Recompute(ctx, contestID)
	return err
}

// IsFrozen reports whether a contest's leaderboard is currently frozen.
func (c *Controller) IsFrozen(contestID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen[contestID]
}

func rank(standings []scoring.TeamStanding, strategy scoring.Strategy) []Ranked {
	sorted := make([]scoring.TeamStanding, len(standings))
	copy(sorted, standings)

	sort.SliceStable(sorted, func(i, j int) bool {
		return strategy.Compare(sorted[i], sorted[j])
	})

	ranked := make([]Ranked, len(sorted))
	for i, s := range sorted {
		ranked[i] = Ranked{Rank: i + 1, Standing: s}
	}
	return ranked
}

func (c *Controller) publish(ctx context.Context, contestID uuid.UUID, ranked []Ranked, frozen bool) {
	if c.msg == nil {
		return
	}

	entries := make([]messaging.StandingsEntry, len(ranked))
	for i, r := range ranked {
		penaltyOrPoints := fmt.Sprintf("%d", r.Standing.TotalPenalty)
		if r.Standing.TotalPoints != 0 {
			penaltyOrPoints = fmt.Sprintf("%.2f", r.Standing.TotalPoints)
		}
		entries[i] = messaging.StandingsEntry{
			TeamID:       r.Standing.TeamID,
			Rank:         r.Rank,
			Solved:       r.Standing.ProblemsSolved,
			PenaltyOrPts: penaltyOrPoints,
		}
	}

	event := messaging.LeaderboardEvent{
		ContestID: contestID,
		Frozen:    frozen,
		Standings: entries,
	}

	eventType := messaging.EventTypeLeaderboardUpdate
	if frozen {
		eventType = messaging.EventTypeLeaderboardFreeze
	}

	if err := c.msg.Publish(ctx, eventType, event); err != nil {
		c.logger.Warn("publish leaderboard event failed", zap.Error(err))
	}
}
