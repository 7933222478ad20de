package core

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcRunner struct {
	validate func(map[string]any) error
	run      func(ctx context.Context, t *Task, logf func(string, ...any)) RunResult
}

func (f *funcRunner) Validate(params map[string]any) error {
	if f.validate == nil {
		return nil
	}
	return f.validate(params)
}

func (f *funcRunner) Run(ctx context.Context, t *Task, logf func(string, ...any)) RunResult {
	return f.run(ctx, t, logf)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(kind Kind, r Runner) *Executor {
	return NewExecutor(map[Kind]Runner{kind: r}, testLogger())
}

func TestExecuteSuccess(t *testing.T) {
	exec := newTestExecutor("test", &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess, Output: "done"}
		},
	})
	task := &Task{ID: "t1", Kind: "test", Timeout: time.Second}
	scheduled := time.Now().UTC()

	rec := exec.Execute(context.Background(), task, 1, scheduled)

	assert.Equal(t, OutcomeSuccess, rec.Outcome)
	assert.Equal(t, "done", rec.Output)
	assert.Equal(t, "t1", rec.TaskID)
	assert.Equal(t, 1, rec.Attempt)
	assert.Equal(t, scheduled, rec.ScheduledAt)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.EndedAt)
	assert.GreaterOrEqual(t, rec.Duration, time.Duration(0))
}

func TestExecutePanicBecomesFailure(t *testing.T) {
	exec := newTestExecutor("test", &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			panic("boom")
		},
	})
	rec := exec.Execute(context.Background(), &Task{ID: "t1", Kind: "test"}, 1, time.Now())

	assert.Equal(t, OutcomeFailure, rec.Outcome)
	assert.Contains(t, rec.Error, "panic: boom")
	require.NotNil(t, rec.EndedAt)
}

func TestExecuteTimeout(t *testing.T) {
	exec := newTestExecutor("test", &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			<-ctx.Done()
			return RunResult{Outcome: OutcomeCancelled, Output: "partial"}
		},
	})
	task := &Task{ID: "t1", Kind: "test", Timeout: 50 * time.Millisecond}

	start := time.Now()
	rec := exec.Execute(context.Background(), task, 1, time.Now())
	elapsed := time.Since(start)

	assert.Equal(t, OutcomeTimeout, rec.Outcome)
	assert.Equal(t, "partial", rec.Output, "partial output survives the timeout")
	assert.Less(t, elapsed, 2*time.Second, "timeout overshoot must stay bounded")
}

func TestExecuteTimeoutUncooperative(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	exec := newTestExecutor("test", &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			<-block
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	exec.SetGrace(50 * time.Millisecond)
	task := &Task{ID: "t1", Kind: "test", Timeout: 50 * time.Millisecond}

	rec := exec.Execute(context.Background(), task, 1, time.Now())

	assert.Equal(t, OutcomeTimeout, rec.Outcome)
	assert.Contains(t, rec.Error, "grace period")
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := newTestExecutor("test", &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			cancel()
			<-ctx.Done()
			return RunResult{Outcome: OutcomeCancelled}
		},
	})
	rec := exec.Execute(ctx, &Task{ID: "t1", Kind: "test", Timeout: time.Minute}, 1, time.Now())

	assert.Equal(t, OutcomeCancelled, rec.Outcome)
}

func TestExecuteUnknownKind(t *testing.T) {
	exec := NewExecutor(map[Kind]Runner{}, testLogger())
	rec := exec.Execute(context.Background(), &Task{ID: "t1", Kind: "nope"}, 1, time.Now())

	assert.Equal(t, OutcomeFailure, rec.Outcome)
	assert.Contains(t, rec.Error, "no runner")
}

func TestExecuteTruncatesOutput(t *testing.T) {
	exec := newTestExecutor("test", &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess, Output: strings.Repeat("x", maxCapturedOutput+100)}
		},
	})
	rec := exec.Execute(context.Background(), &Task{ID: "t1", Kind: "test"}, 1, time.Now())

	assert.Len(t, rec.Output, maxCapturedOutput+len("... (truncated)"))
	assert.True(t, strings.HasSuffix(rec.Output, "(truncated)"))
}
