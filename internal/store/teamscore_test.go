package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/scoring"
	"github.com/judgeboard/platform/internal/scoring/icpc"
)

func TestUpsertTeamScoreAppliesStrategyUnderRowLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	contestID := uuid.New()
	teamID := uuid.New()
	problemID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO team_scores").
		WithArgs(contestID, teamID, problemID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT solved, attempts, penalty, first_solve, solve_time, points_value").
		WithArgs(contestID, teamID, problemID).
		WillReturnRows(sqlmock.NewRows([]string{"solved", "attempts", "penalty", "first_solve", "solve_time", "points_value"}).
			AddRow(false, 0, int64(0), false, nil, nil))
	mock.ExpectExec("UPDATE team_scores").
		WithArgs(false, 1, int64(20), false, nil, float64(0), sqlmock.AnyArg(), contestID, teamID, problemID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome := scoring.SubmissionOutcome{
		SubmissionID:  uuid.New(),
		TeamID:        teamID,
		ProblemID:     problemID,
		Verdict:       judge.VerdictWrongAnswer,
		SubmittedAt:   time.Now(),
		ContestStart:  time.Now().Add(-10 * time.Minute),
		AttemptNumber: 1,
	}

	updated, err := s.UpsertTeamScore(context.Background(), contestID, teamID, problemID, icpc.New(), outcome)
	require.NoError(t, err)
	assert.False(t, updated.Solved)
	assert.Equal(t, 1, updated.Attempts)
	assert.Equal(t, int64(20), updated.PenaltyMinutes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTeamScoreMarksSolvedOnAccept(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	contestID := uuid.New()
	teamID := uuid.New()
	problemID := uuid.New()
	contestStart := time.Now().Add(-15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO team_scores").
		WithArgs(contestID, teamID, problemID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT solved, attempts, penalty, first_solve, solve_time, points_value").
		WithArgs(contestID, teamID, problemID).
		WillReturnRows(sqlmock.NewRows([]string{"solved", "attempts", "penalty", "first_solve", "solve_time", "points_value"}).
			AddRow(false, 1, int64(20), false, nil, nil))
	mock.ExpectExec("UPDATE team_scores").
		WithArgs(true, 2, sqlmock.AnyArg(), true, sqlmock.AnyArg(), float64(0), sqlmock.AnyArg(), contestID, teamID, problemID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome := scoring.SubmissionOutcome{
		SubmissionID:  uuid.New(),
		TeamID:        teamID,
		ProblemID:     problemID,
		Verdict:       judge.VerdictAccepted,
		SubmittedAt:   contestStart.Add(16 * time.Minute),
		ContestStart:  contestStart,
		AttemptNumber: 2,
	}

	updated, err := s.UpsertTeamScore(context.Background(), contestID, teamID, problemID, icpc.New(), outcome)
	require.NoError(t, err)
	assert.True(t, updated.Solved)
	assert.Equal(t, 2, updated.Attempts)
	require.NotNil(t, updated.FirstSolvedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}
