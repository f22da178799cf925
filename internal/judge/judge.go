// Package judge implements the judging engine: given a submission, its
// test cases, and the problem's comparison mode, it compiles (if needed),
// runs each test case under the sandbox, and classifies the result into a
// single verdict.
package judge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/judgeboard/platform/internal/sandbox"
)

// Verdict is a tagged variant, never a thrown error: every outcome a
// judged submission can reach is a valid Verdict value.
type Verdict string

const (
	VerdictAccepted             Verdict = "AC"
	VerdictWrongAnswer          Verdict = "WA"
	VerdictTimeLimitExceeded    Verdict = "TLE"
	VerdictMemoryLimitExceeded  Verdict = "MLE"
	VerdictRuntimeError         Verdict = "RTE"
	VerdictCompileError         Verdict = "CE"
	VerdictOutputLimitExceeded  Verdict = "OLE"
	VerdictSystemError          Verdict = "SE"
)

// CompareMode selects how a test case's expected output is checked
// against the submission's actual output.
type CompareMode string

const (
	CompareExact      CompareMode = "exact"
	CompareStructured CompareMode = "structured_json"
	CompareFloat      CompareMode = "float_tolerance"
)

// Submission is the judge's input: a single piece of source code in one
// language, to be judged against a problem's test cases.
type Submission struct {
	ID       uuid.UUID
	Language string
	Source   string
}

// TestCase is one input/expected-output pair. IsSample marks a sample
// case shown to teams ahead of time; Hackathon's partial-credit formula
// excludes sample cases from both the numerator and denominator.
type TestCase struct {
	ID       uuid.UUID
	Input    string
	Expected string
	IsSample bool
}

// Problem carries the limits, comparison mode, and scoring parameters
// every test case is judged under.
type Problem struct {
	TimeLimit      time.Duration
	MemoryLimitMB  int64
	Compare        CompareMode
	FloatTolerance float64

	// PointsValue is the maximum partial-credit points this problem is
	// worth; only meaningful under the Hackathon strategy.
	PointsValue float64

	// RunAllCases selects Hackathon's judging policy: run every test
	// case regardless of earlier failures, instead of stopping at the
	// first one that isn't Accepted.
	RunAllCases bool
}

// TestCaseResult is the per-test-case outcome within a JudgeResult.
type TestCaseResult struct {
	TestCaseID  uuid.UUID
	Verdict     Verdict
	WallTime    time.Duration
	MemoryKB    int64
	Stderr      string
}

// JudgeResult is the full outcome of judging one submission. ICPC stops
// at the first non-accepted test case, so TestResults only ever holds
// its leading run; Hackathon (Problem.RunAllCases) runs every case and
// TestResults covers the whole problem.
type JudgeResult struct {
	SubmissionID uuid.UUID
	FinalVerdict Verdict
	TestResults  []TestCaseResult
	CompileLog   string
}

// TestsPassed counts every Accepted entry in TestResults. For an ICPC
// run this is the same as counting leading entries, since the loop
// never continues past the first failure; for a Hackathon run, where
// a later case can pass after an earlier one failed, it is not.
func (r JudgeResult) TestsPassed() int {
	n := 0
	for _, tc := range r.TestResults {
		if tc.Verdict == VerdictAccepted {
			n++
		}
	}
	return n
}

// GradedTotals reports passed/total counts over only the non-sample
// cases in cases, for Hackathon's points_earned formula, which excludes
// sample test cases from grading entirely.
func (r JudgeResult) GradedTotals(cases []TestCase) (passed, total int) {
	samples := make(map[uuid.UUID]bool, len(cases))
	for _, tc := range cases {
		if tc.IsSample {
			samples[tc.ID] = true
		}
	}
	for _, tc := range r.TestResults {
		if samples[tc.TestCaseID] {
			continue
		}
		total++
		if tc.Verdict == VerdictAccepted {
			passed++
		}
	}
	return passed, total
}

// Engine orchestrates sandboxed compile/run calls and classifies their
// results into verdicts. It holds no per-submission state between calls;
// a single Engine is shared by every worker.
type Engine struct {
	executor *sandbox.Executor
}

// NewEngine constructs a judging Engine backed by the given executor.
func NewEngine(executor *sandbox.Executor) *Engine {
	return &Engine{executor: executor}
}

// Judge compiles the submission once, then runs it against each test case
// in order. Under ICPC (problem.RunAllCases false) it stops at the first
// test case that does not get AC, matching the strategy's binary
// solved/not-solved scoring. Under Hackathon (problem.RunAllCases true)
// it keeps going through every case, since points_earned needs the full
// pass count. Per-case verdict classification follows a fixed priority:
// compile error beats everything, then for each test case timeout beats
// memory-exceeded beats runtime-error beats output-limit-exceeded beats
// wrong-answer.
func (e *Engine) Judge(ctx context.Context, sub Submission, cases []TestCase, problem Problem) (JudgeResult, error) {
	result := JudgeResult{SubmissionID: sub.ID}

	limits := sandbox.ResourceLimits{
		WallTime: problem.TimeLimit,
		CPUTime:  problem.TimeLimit,
		MemoryMB: problem.MemoryLimitMB,
	}

	workDir, compileRes, err := e.executor.Compile(ctx, sub.ID.String(), sub.Language, sub.Source, limits)
	if err != nil {
		return JudgeResult{}, fmt.Errorf("judge: compile: %w", err)
	}
	defer e.executor.CleanWorkDir(workDir)

	if compileRes.ExitCode != 0 {
		result.FinalVerdict = VerdictCompileError
		result.CompileLog = compileRes.Stderr
		return result, nil
	}

	for _, tc := range cases {
		runRes, err := e.executor.RunKeepDir(ctx, sub.Language, workDir, tc.Input, limits)
		if err != nil {
			result.TestResults = append(result.TestResults, TestCaseResult{
				TestCaseID: tc.ID,
				Verdict:    VerdictSystemError,
			})
			result.FinalVerdict = VerdictSystemError
			return result, nil
		}

		verdict := classify(runRes, tc.Expected, problem)
		result.TestResults = append(result.TestResults, TestCaseResult{
			TestCaseID: tc.ID,
			Verdict:    verdict,
			WallTime:   runRes.WallTime,
			MemoryKB:   runRes.MaxRSSKB,
			Stderr:     runRes.Stderr,
		})

		if verdict != VerdictAccepted && !problem.RunAllCases {
			result.FinalVerdict = verdict
			return result, nil
		}
	}

	result.FinalVerdict = finalVerdict(result.TestResults)
	return result, nil
}

// verdictPriority orders the failure verdicts a full Hackathon run can
// produce, most severe first; it breaks ties in finalVerdict the same
// way classify breaks ties within a single test case.
var verdictPriority = []Verdict{
	VerdictSystemError,
	VerdictTimeLimitExceeded,
	VerdictMemoryLimitExceeded,
	VerdictRuntimeError,
	VerdictOutputLimitExceeded,
	VerdictWrongAnswer,
}

// finalVerdict reduces a full run's per-case verdicts to one: Accepted
// if every case passed, otherwise the modal failure verdict, with
// verdictPriority breaking ties between equally common failures.
func finalVerdict(results []TestCaseResult) Verdict {
	counts := make(map[Verdict]int, len(verdictPriority))
	allAccepted := true
	for _, tc := range results {
		if tc.Verdict != VerdictAccepted {
			allAccepted = false
			counts[tc.Verdict]++
		}
	}
	if allAccepted {
		return VerdictAccepted
	}

	best := verdictPriority[0]
	bestCount := 0
	for _, v := range verdictPriority {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

// classify turns one sandbox ExecResult into a Verdict, in the priority
// order the spec mandates: resource violations take precedence over
// output comparison, since an OLE or TLE process's output is unreliable.
func classify(res sandbox.ExecResult, expected string, problem Problem) Verdict {
	if res.TimedOut {
		return VerdictTimeLimitExceeded
	}
	if res.MemoryExceeded {
		return VerdictMemoryLimitExceeded
	}
	if res.Signaled || res.ExitCode != 0 {
		return VerdictRuntimeError
	}
	if res.OutputTruncated {
		return VerdictOutputLimitExceeded
	}
	if compareOutput(res.Stdout, expected, problem) {
		return VerdictAccepted
	}
	return VerdictWrongAnswer
}
