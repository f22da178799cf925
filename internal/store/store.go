// Package store is the Postgres persistence layer: hand-written SQL
// against database/sql and lib/pq, no ORM, mirroring the teacher's
// ledger package rather than introducing a query builder.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/leaderboard"
	"github.com/judgeboard/platform/internal/lifecycle"
	"github.com/judgeboard/platform/internal/scoring"
)

// Store is the shared database handle every persistence-backed component
// is constructed against.
type Store struct {
	db *sql.DB
}

// Open opens a Postgres connection pool at dsn and verifies it with Ping.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB, for tests with sqlmock or an
// alternate driver.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection pool, for components (auth) that
// need direct database/sql access alongside the higher-level Store
// methods rather than opening a second pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Contest is the full persisted contest row, a superset of
// lifecycle.Contest with the fields the spec's schema carries for
// display and admin control.
type Contest struct {
	ID              uuid.UUID
	Name            string
	RegistrationCode string
	StartTime       time.Time
	Duration        time.Duration
	FreezeTime      time.Duration
	IsActive        bool
	IsFrozen        bool
	FrozenAt        *time.Time
	EndedAt         *time.Time
	ScoringType     string
	ManualControl   bool
	Phase           lifecycle.Phase
}

// GetContest loads a single contest by ID.
func (s *Store) GetContest(ctx context.Context, contestID uuid.UUID) (Contest, error) {
	var c Contest
	var durationSeconds, freezeSeconds int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, contest_name, registration_code, start_time, duration, freeze_time,
		        is_active, is_frozen, frozen_at, ended_at, scoring_type, manual_control, phase
		 FROM contests WHERE id = $1`,
		contestID,
	).Scan(&c.ID, &c.Name, &c.RegistrationCode, &c.StartTime, &durationSeconds, &freezeSeconds,
		&c.IsActive, &c.IsFrozen, &c.FrozenAt, &c.EndedAt, &c.ScoringType, &c.ManualControl, &c.Phase)
	if err != nil {
		return Contest{}, fmt.Errorf("store: get contest: %w", err)
	}
	c.Duration = time.Duration(durationSeconds) * time.Second
	c.FreezeTime = time.Duration(freezeSeconds) * time.Second
	return c, nil
}

// LoadActiveContests implements lifecycle.Store: every contest not yet in
// its terminal phase and not under manual control, for the scheduler to
// evaluate on each tick.
func (s *Store) LoadActiveContests(ctx context.Context) ([]lifecycle.Contest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phase, start_time, start_time + (duration || ' seconds')::interval,
		        CASE WHEN freeze_time > 0 THEN start_time + (duration - freeze_time || ' seconds')::interval END,
		        manual_control
		 FROM contests WHERE phase != $1 AND manual_control = false`,
		lifecycle.PhaseEnded,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load active contests: %w", err)
	}
	defer rows.Close()

	const gracePeriod = 2 * time.Minute

	var contests []lifecycle.Contest
	for rows.Next() {
		var c lifecycle.Contest
		var freezeAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Phase, &c.StartsAt, &c.EndsAt, &freezeAt, new(bool)); err != nil {
			return nil, fmt.Errorf("store: scan contest: %w", err)
		}
		if freezeAt.Valid {
			c.FreezeAt = freezeAt.Time
		}
		c.GracePeriod = gracePeriod
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

// SetPhase implements lifecycle.Store, persisting a phase transition and
// the side-effect columns (is_active/is_frozen/frozen_at/ended_at) the
// rest of the schema's readers depend on.
func (s *Store) SetPhase(ctx context.Context, contestID uuid.UUID, phase lifecycle.Phase) error {
	now := time.Now()

	switch phase {
	case lifecycle.PhaseRunning:
		_, err := s.db.ExecContext(ctx,
			`UPDATE contests SET phase = $1, is_active = true WHERE id = $2`,
			phase, contestID)
		return err
	case lifecycle.PhaseFrozen:
		_, err := s.db.ExecContext(ctx,
			`UPDATE contests SET phase = $1, is_frozen = true, frozen_at = $2 WHERE id = $3`,
			phase, now, contestID)
		return err
	case lifecycle.PhaseEnding:
		_, err := s.db.ExecContext(ctx,
			`UPDATE contests SET phase = $1 WHERE id = $2`,
			phase, contestID)
		return err
	case lifecycle.PhaseEnded:
		_, err := s.db.ExecContext(ctx,
			`UPDATE contests SET phase = $1, is_active = false, ended_at = $2 WHERE id = $3`,
			phase, now, contestID)
		return err
	default:
		_, err := s.db.ExecContext(ctx,
			`UPDATE contests SET phase = $1 WHERE id = $2`,
			phase, contestID)
		return err
	}
}

// GetProblem loads the judging parameters for a problem.
func (s *Store) GetProblem(ctx context.Context, problemID uuid.UUID) (judge.Problem, error) {
	var p judge.Problem
	var timeLimitMs int64
	var compareMode string
	err := s.db.QueryRowContext(ctx,
		`SELECT time_limit, memory_limit, compare_mode, float_tolerance, points_value FROM problems WHERE id = $1`,
		problemID,
	).Scan(&timeLimitMs, &p.MemoryLimitMB, &compareMode, &p.FloatTolerance, &p.PointsValue)
	if err != nil {
		return judge.Problem{}, fmt.Errorf("store: get problem: %w", err)
	}
	p.TimeLimit = time.Duration(timeLimitMs) * time.Millisecond
	p.Compare = judge.CompareMode(compareMode)
	return p, nil
}

// LoadTestCases loads every test case for a problem, ordered the way the
// judge must run them.
func (s *Store) LoadTestCases(ctx context.Context, problemID uuid.UUID) ([]judge.TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, expected_output, is_sample FROM test_cases WHERE problem_id = $1 ORDER BY ordinal ASC`,
		problemID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load test cases: %w", err)
	}
	defer rows.Close()

	var cases []judge.TestCase
	for rows.Next() {
		var tc judge.TestCase
		if err := rows.Scan(&tc.ID, &tc.Input, &tc.Expected, &tc.IsSample); err != nil {
			return nil, fmt.Errorf("store: scan test case: %w", err)
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

// Submission is the persisted row for one judged attempt.
type Submission struct {
	ID               uuid.UUID
	TeamID           uuid.UUID
	ProblemID        uuid.UUID
	ContestID        uuid.UUID
	Language         string
	SourceCode       string
	SubmissionTime   time.Time
	Status           string
	JudgedAt         *time.Time
	ExecutionTimeMS  int64
	MemoryUsedKB     int64
	PointsEarned     string
	TestCasesPassed  int
	TotalTestCases   int
	JudgeOutput      string
}

// InsertSubmission writes a freshly queued submission row.
func (s *Store) InsertSubmission(ctx context.Context, sub Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, team_id, problem_id, contest_id, language, source_code,
		                          submission_time, status, test_cases_passed, total_test_cases)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`,
		sub.ID, sub.TeamID, sub.ProblemID, sub.ContestID, sub.Language, sub.SourceCode,
		sub.SubmissionTime, "pending", sub.TotalTestCases,
	)
	if err != nil {
		return fmt.Errorf("store: insert submission: %w", err)
	}
	return nil
}

// GetSubmission loads one submission row by ID.
func (s *Store) GetSubmission(ctx context.Context, submissionID uuid.UUID) (Submission, error) {
	var sub Submission
	err := s.db.QueryRowContext(ctx,
		`SELECT id, team_id, problem_id, contest_id, language, source_code, submission_time,
		        status, judged_at, execution_time, memory_used, points_earned,
		        test_cases_passed, total_test_cases, judge_output
		 FROM submissions WHERE id = $1`,
		submissionID,
	).Scan(&sub.ID, &sub.TeamID, &sub.ProblemID, &sub.ContestID, &sub.Language, &sub.SourceCode,
		&sub.SubmissionTime, &sub.Status, &sub.JudgedAt, &sub.ExecutionTimeMS, &sub.MemoryUsedKB,
		&sub.PointsEarned, &sub.TestCasesPassed, &sub.TotalTestCases, &sub.JudgeOutput)
	if err != nil {
		return Submission{}, fmt.Errorf("store: get submission: %w", err)
	}
	return sub, nil
}

// CountRecentSubmissions counts a team's submissions within the last
// window, fed into the priority queue's team-fairness bonus.
func (s *Store) CountRecentSubmissions(ctx context.Context, teamID uuid.UUID, window time.Duration) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE team_id = $1 AND submission_time > $2`,
		teamID, time.Now().Add(-window),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count recent submissions: %w", err)
	}
	return count, nil
}

// verdictStatus maps a judge.Verdict onto the spec's wire vocabulary for
// the submissions.status column.
func verdictStatus(v judge.Verdict) string {
	switch v {
	case judge.VerdictAccepted:
		return "accepted"
	case judge.VerdictWrongAnswer:
		return "wrong_answer"
	case judge.VerdictTimeLimitExceeded:
		return "time_limit_exceeded"
	case judge.VerdictMemoryLimitExceeded:
		return "memory_limit_exceeded"
	case judge.VerdictRuntimeError:
		return "runtime_error"
	case judge.VerdictCompileError:
		return "compilation_error"
	case judge.VerdictOutputLimitExceeded:
		return "runtime_error"
	case judge.VerdictSystemError:
		return "system_error"
	default:
		return "system_error"
	}
}

// FinalizeJudgment persists a judge result and, when the problem is scored
// partial-credit, the fractional points earned. Admin re-judge appends the
// prior judge_output onto the new one instead of overwriting it, so the
// history of a resubmitted verdict survives.
func (s *Store) FinalizeJudgment(ctx context.Context, submissionID uuid.UUID, result judge.JudgeResult, execTime time.Duration, memoryUsedKB int64, pointsEarned string, testsPassed int, isRejudge bool) error {
	now := time.Now()
	status := verdictStatus(result.FinalVerdict)
	if pointsEarned != "" && pointsEarned != "0" && pointsEarned != "0.00" && result.FinalVerdict != judge.VerdictAccepted {
		status = "partial_credit"
	}

	judgeOutput := result.CompileLog
	if isRejudge {
		var prior sql.NullString
		if err := s.db.QueryRowContext(ctx, `SELECT judge_output FROM submissions WHERE id = $1`, submissionID).Scan(&prior); err == nil && prior.Valid && prior.String != "" {
			judgeOutput = prior.String + "\n---rejudged---\n" + judgeOutput
		}
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET status = $1, judged_at = $2, execution_time = $3, memory_used = $4,
		     points_earned = $5, test_cases_passed = $6, judge_output = $7
		 WHERE id = $8`,
		status, now, execTime.Milliseconds(), memoryUsedKB, pointsEarned, testsPassed, judgeOutput, submissionID,
	)
	if err != nil {
		return fmt.Errorf("store: finalize judgment: %w", err)
	}
	return nil
}

// LoadStandings implements leaderboard.StandingsSource, aggregating
// team_scores rows into the per-team totals the leaderboard ranks.
func (s *Store) LoadStandings(ctx context.Context, contestID uuid.UUID) ([]scoring.TeamStanding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts.team_id,
		        COUNT(*) FILTER (WHERE ts.solved),
		        COALESCE(SUM(ts.penalty) FILTER (WHERE ts.solved), 0),
		        COALESCE(SUM(ts.points_value * CASE WHEN p.points_value > 0 THEN p.points_value ELSE 1 END), 0),
		        COALESCE(MAX(ts.solve_time) FILTER (WHERE ts.solved), '1970-01-01'::timestamptz)
		 FROM team_scores ts JOIN problems p ON p.id = ts.problem_id
		 WHERE ts.contest_id = $1 GROUP BY ts.team_id`,
		contestID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load standings: %w", err)
	}
	defer rows.Close()

	var standings []scoring.TeamStanding
	for rows.Next() {
		var st scoring.TeamStanding
		if err := rows.Scan(&st.TeamID, &st.ProblemsSolved, &st.TotalPenalty, &st.TotalPoints, &st.LastSolvedAt); err != nil {
			return nil, fmt.Errorf("store: scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}

// PersistContestResults upserts one contest_results row per ranked team,
// writing back the rank the leaderboard controller just computed.
func (s *Store) PersistContestResults(ctx context.Context, contestID uuid.UUID, ranked []leaderboard.Ranked) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, r := range ranked {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO contest_results (contest_id, team_id, problems_solved, penalty_time, total_points, rank, last_submission_time, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (contest_id, team_id) DO UPDATE SET
			   problems_solved = EXCLUDED.problems_solved,
			   penalty_time = EXCLUDED.penalty_time,
			   total_points = EXCLUDED.total_points,
			   rank = EXCLUDED.rank,
			   last_submission_time = EXCLUDED.last_submission_time,
			   updated_at = EXCLUDED.updated_at`,
			contestID, r.Standing.TeamID, r.Standing.ProblemsSolved, r.Standing.TotalPenalty,
			r.Standing.TotalPoints, r.Rank, r.Standing.LastSolvedAt, now,
		)
		if err != nil {
			return fmt.Errorf("store: upsert contest result: %w", err)
		}
	}

	return tx.Commit()
}
