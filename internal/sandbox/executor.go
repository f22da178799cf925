// Package sandbox runs untrusted submission binaries under wall-time, CPU,
// memory, and output-size limits, and reports what happened without ever
// trusting the child process's exit behavior.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/judgeboard/platform/pkg/circuit"
)

// ResourceLimits bounds a single compile or run invocation.
type ResourceLimits struct {
	WallTime  time.Duration
	CPUTime   time.Duration
	MemoryMB  int64
	MaxOutput int64 // bytes; default applied if zero
}

const defaultMaxOutput = 8 * 1024 * 1024

// ExecResult is what the sandbox observed about one process execution. It
// never panics or returns partial data on resource exhaustion; instead it
// reports the relevant flag and lets the caller (the judging engine)
// decide the verdict.
type ExecResult struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	WallTime        time.Duration
	CPUTime         time.Duration
	MaxRSSKB        int64
	TimedOut        bool
	MemoryExceeded  bool
	OutputTruncated bool
	Signaled        bool
}

// Executor compiles and runs submissions in a fresh temporary directory
// per invocation, wrapped in a per-language circuit breaker so a broken
// toolchain (missing compiler, runaway fork bomb) degrades gracefully
// instead of burning every worker on every submission.
type Executor struct {
	root     string
	breakers *circuit.BreakerGroup
	logger   *zap.Logger
}

// NewExecutor creates an Executor rooted at root, creating it if needed.
// logger may be nil in tests; production callers always supply one so a
// toolchain tripping its breaker shows up in the logs before anyone
// notices from the admin health endpoint.
func NewExecutor(root string, logger *zap.Logger) (*Executor, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create root %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{root: root, logger: logger}
	e.breakers = circuit.NewBreakerGroup(circuit.Config{
		MaxFailures:   5,
		Timeout:       30 * time.Second,
		HalfOpenMax:   2,
		OnStateChange: e.logBreakerTransition,
	})
	return e, nil
}

// logBreakerTransition reports every toolchain breaker state change at a
// severity matching its operational impact: opening loses a whole
// language's submissions until the timeout elapses, so it logs louder
// than closing or probing.
func (e *Executor) logBreakerTransition(name string, from, to circuit.State) {
	fields := []zap.Field{zap.String("toolchain", name), zap.Stringer("from", from), zap.Stringer("to", to)}
	if to == circuit.StateOpen {
		e.logger.Warn("toolchain circuit breaker opened", fields...)
		return
	}
	e.logger.Info("toolchain circuit breaker transitioned", fields...)
}

// ToolchainHealth reports every toolchain operation's breaker state,
// keyed the same way as the breaker names ("compile:python",
// "run:java", ...), for the admin health endpoint.
func (e *Executor) ToolchainHealth() map[string]string {
	states := e.breakers.States()
	out := make(map[string]string, len(states))
	for name, state := range states {
		out[name] = state.String()
	}
	return out
}

// Compile builds source under lang's compile command, returning the
// compiled work directory. If lang.CompileEnabled is false this is a
// no-op that just writes the source file.
func (e *Executor) Compile(ctx context.Context, submissionID, langID, source string, limits ResourceLimits) (workDir string, res ExecResult, err error) {
	lang, ok := Resolve(langID)
	if !ok {
		return "", ExecResult{}, fmt.Errorf("sandbox: unknown language %q", langID)
	}

	workDir, err = os.MkdirTemp(e.root, "sub-"+sanitize(submissionID)+"-")
	if err != nil {
		return "", ExecResult{}, fmt.Errorf("sandbox: mktemp: %w", err)
	}
	cleanup := func() {
		_ = os.RemoveAll(workDir)
	}

	srcPath := filepath.Join(workDir, lang.SourceFile)
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		cleanup()
		return "", ExecResult{}, fmt.Errorf("sandbox: write source: %w", err)
	}

	if !lang.CompileEnabled {
		return workDir, ExecResult{ExitCode: 0}, nil
	}

	args := substitute(lang.CompileCmdTpl, templateVars(workDir, srcPath, filepath.Join(workDir, lang.BinaryFile)))

	// A non-zero compile exit is a normal judging outcome (compile error
	// verdict), not an executor failure, so it must not trip the breaker.
	// Only a process-launch failure (missing binary, permissions) counts
	// as a breaker failure.
	var runErr error
	breakerErr := e.breakers.Execute(ctx, "compile:"+langID, func() error {
		res, runErr = e.runProcess(ctx, workDir, args, "", limits)
		return runErr
	})

	if errors.Is(breakerErr, circuit.ErrCircuitOpen) || errors.Is(breakerErr, circuit.ErrTooManyRequests) {
		cleanup()
		return "", ExecResult{}, fmt.Errorf("sandbox: compiler for %s unavailable: %w", langID, breakerErr)
	}
	if runErr != nil {
		cleanup()
		return "", ExecResult{}, runErr
	}

	return workDir, res, nil
}

// Run executes the compiled (or interpreted) submission against a single
// test case's stdin, within limits scaled by the language's multipliers.
// It always removes workDir before returning; callers must not reuse it
// across test cases when isolation matters, but a judging engine running
// many test cases against the same compiled binary may call Run
// repeatedly on the same workDir by using RunKeepDir instead.
func (e *Executor) Run(ctx context.Context, langID, workDir, stdin string, limits ResourceLimits) (ExecResult, error) {
	defer e.CleanWorkDir(workDir)
	res, err := e.RunKeepDir(ctx, langID, workDir, stdin, limits)
	return res, err
}

// RunKeepDir is Run without removing workDir afterward, for judging
// engines that execute multiple test cases against one compiled binary.
func (e *Executor) RunKeepDir(ctx context.Context, langID, workDir, stdin string, limits ResourceLimits) (ExecResult, error) {
	lang, ok := Resolve(langID)
	if !ok {
		return ExecResult{}, fmt.Errorf("sandbox: unknown language %q", langID)
	}

	scaled := limits
	scaled.WallTime = time.Duration(float64(limits.WallTime) * lang.TimeMultiplier)
	scaled.CPUTime = time.Duration(float64(limits.CPUTime) * lang.TimeMultiplier)
	scaled.MemoryMB = int64(float64(limits.MemoryMB) * lang.MemoryMultiplier)

	args := substitute(lang.RunCmdTpl, templateVars(workDir, filepath.Join(workDir, lang.SourceFile), filepath.Join(workDir, lang.BinaryFile)))

	var res ExecResult
	var runErr error
	breakerErr := e.breakers.Execute(ctx, "run:"+langID, func() error {
		res, runErr = e.runProcess(ctx, workDir, args, stdin, scaled)
		return runErr
	})
	if errors.Is(breakerErr, circuit.ErrCircuitOpen) || errors.Is(breakerErr, circuit.ErrTooManyRequests) {
		return ExecResult{}, fmt.Errorf("sandbox: runtime for %s unavailable: %w", langID, breakerErr)
	}
	if runErr != nil {
		return ExecResult{}, runErr
	}
	return res, nil
}

// CleanWorkDir removes a compile work directory. Callers must call this
// exactly once per Compile call, on every exit path including judging
// errors, to avoid leaking disk across thousands of submissions.
func (e *Executor) CleanWorkDir(workDir string) {
	_ = os.RemoveAll(workDir)
}

// cappedBuffer stops accepting bytes past its limit but reports whether it
// did, instead of silently growing without bound on a submission that
// prints gigabytes of output.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int64(c.buf.Len()) >= c.limit {
		c.truncated = true
		return len(p), nil
	}
	remaining := c.limit - int64(c.buf.Len())
	if int64(len(p)) > remaining {
		c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (e *Executor) runProcess(ctx context.Context, dir string, args []string, stdin string, limits ResourceLimits) (ExecResult, error) {
	if len(args) == 0 {
		return ExecResult{}, errors.New("sandbox: empty command")
	}

	maxOutput := limits.MaxOutput
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if limits.WallTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limits.WallTime)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	stdout := &cappedBuffer{limit: maxOutput}
	stderr := &cappedBuffer{limit: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	wall := time.Since(start)

	res := ExecResult{
		WallTime:        wall,
		OutputTruncated: stdout.truncated || stderr.truncated,
	}

	stdout.mu.Lock()
	res.Stdout = stdout.buf.String()
	stdout.mu.Unlock()
	stderr.mu.Lock()
	res.Stderr = stderr.buf.String()
	stderr.mu.Unlock()

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		if cmd.Process != nil {
			// Kill the whole process group; a submission that forks
			// should not survive past its own wall-time limit.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
		if rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
			res.CPUTime = time.Duration(rusage.Utime.Sec)*time.Second +
				time.Duration(rusage.Utime.Usec)*time.Microsecond
			res.MaxRSSKB = rusage.Maxrss
		}
		ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
		if ok && ws.Signaled() {
			res.Signaled = true
		}
	}

	if limits.MemoryMB > 0 && res.MaxRSSKB > limits.MemoryMB*1024 {
		res.MemoryExceeded = true
	}
	if limits.CPUTime > 0 && res.CPUTime > limits.CPUTime {
		res.TimedOut = true
	}

	if res.TimedOut {
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}
		return res, fmt.Errorf("sandbox: run %s: %w", args[0], err)
	}

	return res, nil
}

func templateVars(workDir, src, bin string) map[string]string {
	return map[string]string{
		"workdir": workDir,
		"src":     src,
		"bin":     bin,
	}
}

func substitute(tpl []string, vars map[string]string) []string {
	out := make([]string, len(tpl))
	for i, tok := range tpl {
		for k, v := range vars {
			tok = strings.ReplaceAll(tok, "{"+k+"}", v)
		}
		out[i] = tok
	}
	return out
}

func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
