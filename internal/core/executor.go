package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// RunResult is what a task behavior reports back from one attempt.
type RunResult struct {
	Outcome      Outcome
	Output       string
	Error        string
	PeakRSSBytes int64
}

// Runner executes the behavior of one task kind. Run must observe ctx
// cancellation at safe points and return promptly with OutcomeCancelled;
// logf is a non-blocking sink for progress lines.
type Runner interface {
	Validate(params map[string]any) error
	Run(ctx context.Context, t *Task, logf func(format string, args ...any)) RunResult
}

// maxCapturedOutput bounds the output/error summary carried in a run record.
const maxCapturedOutput = 8 << 10

// Executor drives a single task attempt: wall-clock timeout, cooperative
// cancellation with a bounded grace period, panic containment, and
// resource accounting. It imposes no concurrency bound of its own; the
// scheduler's worker admission does that.
type Executor struct {
	runners map[Kind]Runner
	logger  *slog.Logger

	// grace is how long a cancelled behavior gets to come back before the
	// attempt is abandoned and recorded as timed out.
	grace time.Duration
}

func NewExecutor(runners map[Kind]Runner, logger *slog.Logger) *Executor {
	return &Executor{
		runners: runners,
		logger:  logger,
		grace:   5 * time.Second,
	}
}

// SetGrace overrides the post-cancel grace period.
func (e *Executor) SetGrace(d time.Duration) { e.grace = d }

// Runner returns the runner registered for the kind, if any.
func (e *Executor) Runner(k Kind) (Runner, bool) {
	r, ok := e.runners[k]
	return r, ok
}

// Execute runs one attempt of the task and always returns a complete run
// record; behavior errors and panics never escape. ctx carries
// user-initiated cancellation; the task's own timeout is applied here.
func (e *Executor) Execute(ctx context.Context, t *Task, attempt int, scheduledAt time.Time) *RunRecord {
	started := time.Now().UTC()
	rec := &RunRecord{
		ID:          NewID(),
		TaskID:      t.ID,
		Attempt:     attempt,
		ScheduledAt: scheduledAt,
		StartedAt:   &started,
	}

	runner, ok := e.runners[t.Kind]
	if !ok {
		e.finish(rec, RunResult{Outcome: OutcomeFailure, Error: fmt.Sprintf("no runner for kind %q", t.Kind)})
		return rec
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan RunResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("task behavior panicked",
					"task_id", t.ID, "attempt", attempt, "panic", r,
					"stack", string(debug.Stack()))
				results <- RunResult{Outcome: OutcomeFailure, Error: fmt.Sprintf("panic: %v", r)}
			}
		}()
		results <- runner.Run(runCtx, t, e.logf(t, attempt))
	}()

	var timeout <-chan time.Time
	if t.Timeout > 0 {
		timer := time.NewTimer(t.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-results:
		e.finish(rec, res)
	case <-timeout:
		e.logger.Warn("task exceeded timeout, requesting cancellation",
			"task_id", t.ID, "attempt", attempt, "timeout", t.Timeout)
		cancel()
		res := e.awaitGrace(results)
		res.Outcome = OutcomeTimeout
		if res.Error == "" {
			res.Error = fmt.Sprintf("timed out after %s", t.Timeout)
		}
		e.finish(rec, res)
	case <-ctx.Done():
		cancel()
		res := e.awaitGrace(results)
		res.Outcome = OutcomeCancelled
		if res.Error == "" {
			res.Error = "cancelled"
		}
		e.finish(rec, res)
	}
	return rec
}

// awaitGrace gives a cancelled behavior a bounded window to return its
// partial result. Behaviors that do not cooperate are abandoned; for
// process-backed tasks the runner has already killed the child's process
// group as part of context cancellation.
func (e *Executor) awaitGrace(results <-chan RunResult) RunResult {
	if e.grace <= 0 {
		return RunResult{}
	}
	select {
	case res := <-results:
		return res
	case <-time.After(e.grace):
		return RunResult{Error: "behavior did not stop within grace period"}
	}
}

func (e *Executor) finish(rec *RunRecord, res RunResult) {
	ended := time.Now().UTC()
	rec.EndedAt = &ended
	rec.Outcome = res.Outcome
	rec.Output = truncate(res.Output, maxCapturedOutput)
	rec.Error = truncate(res.Error, maxCapturedOutput)
	rec.PeakRSSBytes = res.PeakRSSBytes
	if rec.StartedAt != nil {
		rec.Duration = ended.Sub(*rec.StartedAt)
	}
}

func (e *Executor) logf(t *Task, attempt int) func(format string, args ...any) {
	return func(format string, args ...any) {
		e.logger.Debug("task output",
			"task_id", t.ID, "attempt", attempt, "line", fmt.Sprintf(format, args...))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}

// Backoff returns the delay before the given retry attempt (attempt is
// the number of the attempt that just failed): base * 2^(attempt-1),
// capped.
func Backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
