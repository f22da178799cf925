package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/judgeboard/platform/internal/config"
	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/queue"
	"github.com/judgeboard/platform/internal/scoring"
	"github.com/judgeboard/platform/internal/store"
	"github.com/judgeboard/platform/pkg/messaging"
	"github.com/judgeboard/platform/pkg/scoredecimal"
)

func runWorker(cfg config.Config, logger *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(cfg, "judgeboard-worker", logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return exitStartupErr
	}
	defer d.Close()

	w := &worker{deps: d}
	pool := queue.NewPool(d.rq, w.handle, logger, cfg.JudgeWorkers)

	logger.Info("judgeboard worker starting", zap.Int("workers", cfg.JudgeWorkers))
	if err := pool.Run(ctx); err != nil {
		logger.Error("worker pool exited with error", zap.Error(err))
		return exitStartupErr
	}

	if ctx.Err() != nil {
		return exitSignal
	}
	return exitOK
}

// worker judges one submission to completion: load, judge, score, persist,
// publish. registerOnce collapses concurrent RegisterContest calls for the
// same contest onto one; a later job for the same contest registers the
// same strategy again.
type worker struct {
	deps *deps

	registerOnce singleflight.Group
}

func (w *worker) handle(ctx context.Context, job *queue.Job) error {
	d := w.deps

	sub, err := d.store.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}

	problem, err := d.store.GetProblem(ctx, sub.ProblemID)
	if err != nil {
		return fmt.Errorf("load problem: %w", err)
	}

	cases, err := d.store.LoadTestCases(ctx, sub.ProblemID)
	if err != nil {
		return fmt.Errorf("load test cases: %w", err)
	}

	contest, err := d.store.GetContest(ctx, sub.ContestID)
	if err != nil {
		return fmt.Errorf("load contest: %w", err)
	}

	strategy, err := w.strategyFor(contest.ID.String(), contest.ScoringType)
	if err != nil {
		return err
	}

	problem.RunAllCases = strategy.Name() == "hackathon"

	w.publishJudging(ctx, sub)

	start := time.Now()
	result, err := d.engine.Judge(ctx, judge.Submission{
		ID:       sub.ID,
		Language: sub.Language,
		Source:   sub.SourceCode,
	}, cases, problem)
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}
	judgeDuration := time.Since(start)

	// Hackathon's points_earned formula excludes sample test cases from
	// both the numerator and denominator; ICPC only cares about
	// solved/not-solved and is unaffected by samples either way.
	testsPassed, testsTotal := result.TestsPassed(), len(cases)
	if problem.RunAllCases {
		testsPassed, testsTotal = result.GradedTotals(cases)
	}

	outcome := scoring.SubmissionOutcome{
		SubmissionID: sub.ID,
		TeamID:       sub.TeamID,
		ProblemID:    sub.ProblemID,
		Verdict:      result.FinalVerdict,
		TestsPassed:  testsPassed,
		TestsTotal:   testsTotal,
		SubmittedAt:  sub.SubmissionTime,
		ContestStart: contest.StartTime,
	}

	score, err := d.store.UpsertTeamScore(ctx, sub.ContestID, sub.TeamID, sub.ProblemID, strategy, outcome)
	if err != nil {
		return fmt.Errorf("upsert team score: %w", err)
	}

	var maxRSS int64
	for _, tc := range result.TestResults {
		if tc.MemoryKB > maxRSS {
			maxRSS = tc.MemoryKB
		}
	}

	maxPoints := problem.PointsValue
	if maxPoints == 0 {
		maxPoints = 1
	}
	pointsEarned := scoredecimal.NewPointsFromFloat(score.PointsEarned, maxPoints).String()
	if err := d.store.FinalizeJudgment(ctx, sub.ID, result, judgeDuration, maxRSS, pointsEarned, testsPassed, sub.JudgedAt != nil); err != nil {
		return fmt.Errorf("finalize judgment: %w", err)
	}

	d.leaderboard.MarkDirty(sub.ContestID)

	if d.metrics != nil {
		d.metrics.JudgeLatency(sub.ContestID.String(), sub.Language, string(result.FinalVerdict), judgeDuration)
		d.metrics.SubmissionResult(sub.ContestID.String(), sub.ProblemID.String(), string(result.FinalVerdict))
	}

	w.publishVerdict(ctx, sub, result, pointsEarned, testsPassed, testsTotal)

	return nil
}

// strategyFor pins a contest's scoring strategy on the leaderboard
// controller for every job it handles. singleflight collapses concurrent
// calls for the same contest across this process's workers onto a single
// RegisterContest call; repeat registrations, from this process or
// another worker process, are harmless since the derived strategy is a
// pure function of the immutable scoring_type column.
func (w *worker) strategyFor(contestID, scoringType string) (scoring.Strategy, error) {
	strategy := strategyForContest(scoringType)
	_, err, _ := w.registerOnce.Do(contestID, func() (interface{}, error) {
		id, err := uuid.Parse(contestID)
		if err != nil {
			return nil, err
		}
		w.deps.leaderboard.RegisterContest(id, strategy)
		return nil, nil
	})
	return strategy, err
}

func (w *worker) publishJudging(ctx context.Context, sub store.Submission) {
	if w.deps.msg == nil {
		return
	}
	event := messaging.SubmissionEvent{
		SubmissionID: sub.ID,
		ContestID:    sub.ContestID,
		TeamID:       sub.TeamID,
		ProblemID:    sub.ProblemID,
		Language:     sub.Language,
		Status:       "judging",
	}
	if err := w.deps.msg.Publish(ctx, messaging.EventTypeSubmissionJudging, event); err != nil {
		w.deps.logger.Warn("failed to publish judging event", zap.Error(err))
	}
}

func (w *worker) publishVerdict(ctx context.Context, sub store.Submission, result judge.JudgeResult, pointsEarned string, testsPassed, testsTotal int) {
	if w.deps.msg == nil {
		return
	}
	event := messaging.VerdictEvent{
		SubmissionID: sub.ID,
		ContestID:    sub.ContestID,
		TeamID:       sub.TeamID,
		ProblemID:    sub.ProblemID,
		Verdict:      string(result.FinalVerdict),
		PointsEarned: pointsEarned,
		TestsPassed:  testsPassed,
		TestsTotal:   testsTotal,
		JudgedAt:     time.Now(),
	}
	if err := w.deps.msg.Publish(ctx, messaging.EventTypeSubmissionVerdict, event); err != nil {
		w.deps.logger.Warn("failed to publish verdict event", zap.Error(err))
	}
}
