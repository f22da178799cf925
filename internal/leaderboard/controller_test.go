package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/judgeboard/platform/internal/logging"
	"github.com/judgeboard/platform/internal/scoring"
	"github.com/judgeboard/platform/internal/scoring/icpc"
)

type fakeSource struct {
	standings []scoring.TeamStanding
}

func (f *fakeSource) LoadStandings(ctx context.Context, contestID uuid.UUID) ([]scoring.TeamStanding, error) {
	return f.standings, nil
}

func TestRecomputeRanksByStrategy(t *testing.T) {
	contestID := uuid.New()
	teamA := uuid.New()
	teamB := uuid.New()

	source := &fakeSource{standings: []scoring.TeamStanding{
		{TeamID: teamA, ProblemsSolved: 2, TotalPenalty: 100},
		{TeamID: teamB, ProblemsSolved: 3, TotalPenalty: 200},
	}}

	c := NewController(source, icpc.New(), nil, logging.Nop(), time.Second)
	ranked, err := c.Recompute(context.Background(), contestID)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}

	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked teams, got %d", len(ranked))
	}
	if ranked[0].Standing.TeamID != teamB {
		t.Fatalf("expected team with more solves to rank first")
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Fatalf("unexpected rank assignment: %+v", ranked)
	}
}

func TestFreezeLocksStandingsUntilUnfreeze(t *testing.T) {
	contestID := uuid.New()
	teamA := uuid.New()

	source := &fakeSource{standings: []scoring.TeamStanding{
		{TeamID: teamA, ProblemsSolved: 1, TotalPenalty: 50},
	}}

	c := NewController(source, icpc.New(), nil, logging.Nop(), time.Second)
	ctx := context.Background()

	if _, err := c.Recompute(ctx, contestID); err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if err := c.Freeze(ctx, contestID); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}
	if !c.IsFrozen(contestID) {
		t.Fatal("expected contest to be frozen")
	}

	// Standings change underneath, but the frozen snapshot should not move.
	source.standings[0].ProblemsSolved = 5
	frozenStandings, ok := c.Standings(contestID)
	if !ok {
		t.Fatal("expected frozen standings to be present")
	}
	if frozenStandings[0].Standing.ProblemsSolved != 1 {
		t.Fatalf("frozen standing leaked live update: %+v", frozenStandings[0])
	}

	if err := c.Unfreeze(ctx, contestID); err != nil {
		t.Fatalf("unfreeze failed: %v", err)
	}
	if c.IsFrozen(contestID) {
		t.Fatal("expected contest to be unfrozen")
	}

	liveStandings, ok := c.Standings(contestID)
	if !ok {
		t.Fatal("expected live standings after unfreeze")
	}
	if liveStandings[0].Standing.ProblemsSolved != 5 {
		t.Fatalf("expected unfreeze to pick up updated standings, got %+v", liveStandings[0])
	}
}
