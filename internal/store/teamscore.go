package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/judgeboard/platform/internal/scoring"
)

// UpsertTeamScore folds a finalized submission outcome into the
// (contest, team, problem) score row, the same lock-row, compute,
// write, commit shape the teacher's ledger used for balance updates:
// the row is locked FOR UPDATE inside a transaction, the strategy
// computes the new value in memory, and the row is written back in the
// same transaction so two submissions for the same team/problem never
// race each other's attempt count.
func (s *Store) UpsertTeamScore(ctx context.Context, contestID, teamID, problemID uuid.UUID, strategy scoring.Strategy, outcome scoring.SubmissionOutcome) (scoring.ProblemScore, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scoring.ProblemScore{}, fmt.Errorf("store: begin team score tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO team_scores (contest_id, team_id, problem_id, solved, attempts, penalty, first_solve, updated_at)
		 VALUES ($1, $2, $3, false, 0, 0, false, $4)
		 ON CONFLICT (contest_id, team_id, problem_id) DO NOTHING`,
		contestID, teamID, problemID, time.Now(),
	)
	if err != nil {
		return scoring.ProblemScore{}, fmt.Errorf("store: seed team score row: %w", err)
	}

	var current scoring.ProblemScore
	var solveTime sql.NullTime
	var firstSolve bool
	var pointsEarned sql.NullFloat64
	err = tx.QueryRowContext(ctx,
		`SELECT solved, attempts, penalty, first_solve, solve_time, points_value
		 FROM team_scores WHERE contest_id = $1 AND team_id = $2 AND problem_id = $3 FOR UPDATE`,
		contestID, teamID, problemID,
	).Scan(&current.Solved, &current.Attempts, &current.PenaltyMinutes, &firstSolve, &solveTime, &pointsEarned)
	if err != nil {
		return scoring.ProblemScore{}, fmt.Errorf("store: lock team score row: %w", err)
	}
	if firstSolve && solveTime.Valid {
		t := solveTime.Time
		current.FirstSolvedAt = &t
	}
	if pointsEarned.Valid {
		current.PointsEarned = pointsEarned.Float64
	}

	updated := strategy.Apply(current, outcome)

	var firstSolvedAt interface{}
	var firstSolveFlag bool
	if updated.FirstSolvedAt != nil {
		firstSolvedAt = *updated.FirstSolvedAt
		firstSolveFlag = true
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE team_scores
		 SET solved = $1, attempts = $2, penalty = $3, first_solve = $4, solve_time = $5,
		     points_value = $6, updated_at = $7
		 WHERE contest_id = $8 AND team_id = $9 AND problem_id = $10`,
		updated.Solved, updated.Attempts, updated.PenaltyMinutes, firstSolveFlag, firstSolvedAt,
		updated.PointsEarned, time.Now(), contestID, teamID, problemID,
	)
	if err != nil {
		return scoring.ProblemScore{}, fmt.Errorf("store: write team score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return scoring.ProblemScore{}, fmt.Errorf("store: commit team score: %w", err)
	}

	return updated, nil
}
