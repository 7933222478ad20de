package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for scheduler tests. recCh signals every
// appended record so tests can wait without polling.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	recs  []*RunRecord
	recCh chan *RunRecord
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[string]*Task),
		recCh: make(chan *RunRecord, 64),
	}
}

func (m *memStore) LoadAllTasks(ctx context.Context) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) SaveTask(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *memStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memStore) AppendRunRecord(ctx context.Context, rec *RunRecord) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	select {
	case m.recCh <- rec:
	default:
	}
	return nil
}

func (m *memStore) LoadRunHistory(ctx context.Context, taskID string, limit int) ([]*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*RunRecord
	for i := len(m.recs) - 1; i >= 0; i-- {
		if m.recs[i].TaskID == taskID {
			out = append(out, m.recs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) records() []*RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*RunRecord(nil), m.recs...)
}

func waitRecord(t *testing.T, st *memStore, timeout time.Duration) *RunRecord {
	t.Helper()
	select {
	case rec := <-st.recCh:
		return rec
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a run record")
		return nil
	}
}

func testConfig() Config {
	return Config{
		PollInterval:   20 * time.Millisecond,
		MaxConcurrent:  4,
		DefaultTimeout: 5 * time.Second,
	}
}

func startScheduler(t *testing.T, cfg Config, st Store, runner Runner) (*Scheduler, context.CancelFunc) {
	t.Helper()
	exec := NewExecutor(map[Kind]Runner{"test": runner}, testLogger())
	exec.SetGrace(100 * time.Millisecond)
	sched := NewScheduler(cfg, st, exec, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	t.Cleanup(func() {
		cancel()
		select {
		case <-sched.Done():
		case <-time.After(5 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
	return sched, cancel
}

func oneShotTask(id string, fireAt time.Time) *Task {
	return &Task{
		ID:      id,
		Name:    id,
		Kind:    "test",
		Trigger: Trigger{Type: TriggerOneShot, FireAt: &fireAt},
		Enabled: true,
		Timeout: 5 * time.Second,
	}
}

func futureOneShot(id string) *Task {
	return oneShotTask(id, time.Now().Add(time.Hour))
}

func dueOneShot(id string) *Task {
	return oneShotTask(id, time.Now().Add(-time.Second))
}

func TestPollingStatsDoesNotStarvePollCycle(t *testing.T) {
	st := newMemStore()
	cfg := testConfig()
	cfg.PollInterval = 100 * time.Millisecond
	sched, _ := startScheduler(t, cfg, st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, dueOneShot("a")))

	// Hammer the read path faster than the poll interval. The timer must
	// keep ticking regardless, so the due task still fires.
	stop := make(chan struct{})
	var pollers sync.WaitGroup
	pollers.Add(1)
	go func() {
		defer pollers.Done()
		for {
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
				_, _ = sched.Stats(ctx)
			}
		}
	}()

	rec := waitRecord(t, st, 2*time.Second)
	close(stop)
	pollers.Wait()
	assert.Equal(t, "a", rec.TaskID)
	assert.Equal(t, OutcomeSuccess, rec.Outcome)
}

func TestOneShotFiresExactlyOnce(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, dueOneShot("a")))

	rec := waitRecord(t, st, 2*time.Second)
	assert.Equal(t, "a", rec.TaskID)
	assert.Equal(t, OutcomeSuccess, rec.Outcome)

	// Give the loop a few more cycles; the firing must not repeat.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, st.records(), 1)

	view, err := sched.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.True(t, view.State.Exhausted)
	assert.Equal(t, PhaseIdle, view.State.Phase)
}

func TestRunNowBypassesTrigger(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess, Output: "manual"}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, futureOneShot("a")))
	require.NoError(t, sched.RunNow(ctx, "a"))

	rec := waitRecord(t, st, 2*time.Second)
	assert.Equal(t, "a", rec.TaskID)
	assert.Equal(t, "manual", rec.Output)
}

func TestRunNowWhileRunningRejected(t *testing.T) {
	release := make(chan struct{})
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, futureOneShot("a")))
	require.NoError(t, sched.RunNow(ctx, "a"))

	// Wait until the run is actually in flight.
	require.Eventually(t, func() bool {
		view, err := sched.GetTask(ctx, "a")
		return err == nil && view.State.Phase == PhaseRunning
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, sched.RunNow(ctx, "a"), ErrAlreadyRunning)
	close(release)
	waitRecord(t, st, 2*time.Second)
}

func TestPriorityOrderUnderSingleSlot(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Hour // manual control only
	cfg.MaxConcurrent = 1

	var mu sync.Mutex
	var order []string
	release := map[string]chan struct{}{
		"hold": make(chan struct{}),
		"low":  make(chan struct{}),
		"high": make(chan struct{}),
	}
	st := newMemStore()
	sched, _ := startScheduler(t, cfg, st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			mu.Lock()
			order = append(order, task.ID)
			mu.Unlock()
			select {
			case <-release[task.ID]:
			case <-ctx.Done():
			}
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	hold := futureOneShot("hold")
	low := futureOneShot("low")
	low.Priority = 1
	high := futureOneShot("high")
	high.Priority = 5
	require.NoError(t, sched.AddTask(ctx, hold))
	require.NoError(t, sched.AddTask(ctx, low))
	require.NoError(t, sched.AddTask(ctx, high))

	// Occupy the single slot, then queue both contenders.
	require.NoError(t, sched.RunNow(ctx, "hold"))
	require.Eventually(t, func() bool {
		view, err := sched.GetTask(ctx, "hold")
		return err == nil && view.State.Phase == PhaseRunning
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, sched.RunNow(ctx, "low"))
	require.NoError(t, sched.RunNow(ctx, "high"))

	close(release["hold"])
	waitRecord(t, st, 2*time.Second)
	close(release["high"])
	waitRecord(t, st, 2*time.Second)
	close(release["low"])
	waitRecord(t, st, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hold", "high", "low"}, order)
}

func TestRetriesStopAtBudget(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeFailure, Error: "always fails"}
		},
	})
	ctx := context.Background()

	task := dueOneShot("a")
	task.MaxRetries = 2
	task.RetryBackoff = 5 * time.Millisecond
	require.NoError(t, sched.AddTask(ctx, task))

	attempts := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := waitRecord(t, st, 3*time.Second)
		assert.Equal(t, OutcomeFailure, rec.Outcome)
		attempts = append(attempts, rec.Attempt)
	}
	assert.Equal(t, []int{1, 2, 3}, attempts)

	// Budget exhausted: no fourth attempt.
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, st.records(), 3)

	view, err := sched.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, view.State.ConsecutiveFailures)
	assert.Equal(t, PhaseIdle, view.State.Phase)
}

func TestDependencyChainRunsDownstream(t *testing.T) {
	// A slow poll keeps both admissions inside the same scheduling cycle.
	cfg := testConfig()
	cfg.PollInterval = 100 * time.Millisecond
	st := newMemStore()
	sched, _ := startScheduler(t, cfg, st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	up := dueOneShot("up")
	require.NoError(t, sched.AddTask(ctx, up))
	down := dueOneShot("down")
	down.DependsOn = []Dependency{{TaskID: "up", Relation: RelationOnSuccess}}
	require.NoError(t, sched.AddTask(ctx, down))

	seen := map[string]Outcome{}
	for i := 0; i < 2; i++ {
		rec := waitRecord(t, st, 3*time.Second)
		seen[rec.TaskID] = rec.Outcome
	}
	assert.Equal(t, OutcomeSuccess, seen["up"])
	assert.Equal(t, OutcomeSuccess, seen["down"])
}

func TestDependencyUnmetSkips(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 100 * time.Millisecond
	st := newMemStore()
	sched, _ := startScheduler(t, cfg, st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			if task.ID == "up" {
				return RunResult{Outcome: OutcomeFailure, Error: "broken"}
			}
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, dueOneShot("up")))
	down := dueOneShot("down")
	down.DependsOn = []Dependency{{TaskID: "up", Relation: RelationOnSuccess}}
	require.NoError(t, sched.AddTask(ctx, down))

	seen := map[string]Outcome{}
	for i := 0; i < 2; i++ {
		rec := waitRecord(t, st, 3*time.Second)
		seen[rec.TaskID] = rec.Outcome
	}
	assert.Equal(t, OutcomeFailure, seen["up"])
	assert.Equal(t, OutcomeSkippedDependency, seen["down"],
		"a firing whose gate never opened is skipped, not run")
}

func TestPausePreventsDispatch(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	anchor := time.Now()
	task := &Task{
		ID:      "tick",
		Name:    "tick",
		Kind:    "test",
		Trigger: Trigger{Type: TriggerInterval, Period: 30 * time.Millisecond, Anchor: &anchor},
		Enabled: true,
		Timeout: time.Second,
	}
	require.NoError(t, sched.AddTask(ctx, task))
	waitRecord(t, st, 2*time.Second)

	require.NoError(t, sched.PauseTask(ctx, "tick"))
	view, err := sched.GetTask(ctx, "tick")
	require.NoError(t, err)
	assert.Equal(t, PhaseDisabled, view.State.Phase)

	before := len(st.records())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, before, len(st.records()), "paused task must not fire")

	require.NoError(t, sched.ResumeTask(ctx, "tick"))
	waitRecord(t, st, 2*time.Second)
}

func TestAddTaskRejectsInvalid(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	bad := futureOneShot("a")
	bad.Kind = "teleport"
	assert.ErrorIs(t, sched.AddTask(ctx, bad), ErrUnknownKind)

	badTrigger := &Task{ID: "b", Name: "b", Kind: "test", Enabled: true,
		Trigger: Trigger{Type: TriggerCron, Expr: "not a cron"}}
	assert.ErrorIs(t, sched.AddTask(ctx, badTrigger), ErrInvalidTrigger)

	selfDep := futureOneShot("c")
	selfDep.DependsOn = []Dependency{{TaskID: "c", Relation: RelationOnSuccess}}
	assert.ErrorIs(t, sched.AddTask(ctx, selfDep), ErrSelfDependency)
}

func TestUpdateTaskRejectsCycle(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	a := futureOneShot("a")
	require.NoError(t, sched.AddTask(ctx, a))
	b := futureOneShot("b")
	b.DependsOn = []Dependency{{TaskID: "a", Relation: RelationOnSuccess}}
	require.NoError(t, sched.AddTask(ctx, b))

	edited := futureOneShot("a")
	edited.DependsOn = []Dependency{{TaskID: "b", Relation: RelationOnSuccess}}
	assert.ErrorIs(t, sched.UpdateTask(ctx, edited), ErrCycleDetected)

	// The rejected edit must not have clobbered the graph.
	view, err := sched.GetTask(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, view.Task.DependsOn, 1)
}

func TestRemoveTaskDetachesDependents(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, futureOneShot("up")))
	down := futureOneShot("down")
	down.DependsOn = []Dependency{{TaskID: "up", Relation: RelationOnSuccess}}
	require.NoError(t, sched.AddTask(ctx, down))

	require.NoError(t, sched.RemoveTask(ctx, "up"))
	assert.ErrorIs(t, sched.RemoveTask(ctx, "up"), ErrTaskNotFound)

	view, err := sched.GetTask(ctx, "down")
	require.NoError(t, err)
	assert.Empty(t, view.Task.DependsOn, "dependents lose the edge, not the task")
}

func TestSyncLoadsPersistedTasks(t *testing.T) {
	st := newMemStore()
	st.tasks["a"] = futureOneShot("a")
	st.tasks["broken"] = &Task{ID: "broken", Kind: "test", Enabled: true,
		Trigger: Trigger{Type: TriggerCron, Expr: "bad expr"}}

	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()
	require.NoError(t, sched.Sync(ctx))

	views, err := sched.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1, "invalid persisted tasks are skipped, not fatal")
	assert.Equal(t, "a", views[0].Task.ID)
}

func TestCancelRun(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			<-ctx.Done()
			return RunResult{Outcome: OutcomeCancelled, Error: "cancelled"}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, futureOneShot("a")))
	assert.ErrorIs(t, sched.CancelRun(ctx, "a"), ErrNotRunning)

	require.NoError(t, sched.RunNow(ctx, "a"))
	require.Eventually(t, func() bool {
		view, err := sched.GetTask(ctx, "a")
		return err == nil && view.State.Phase == PhaseRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sched.CancelRun(ctx, "a"))
	rec := waitRecord(t, st, 2*time.Second)
	assert.Equal(t, OutcomeCancelled, rec.Outcome)
}

func TestStats(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	require.NoError(t, sched.AddTask(ctx, futureOneShot("a")))
	require.NoError(t, sched.AddTask(ctx, futureOneShot("b")))

	status, err := sched.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Tasks)
	assert.False(t, status.UnsavedState)
	assert.Equal(t, 4, status.Config.MaxConcurrent)
}

func TestApplyConfig(t *testing.T) {
	st := newMemStore()
	sched, _ := startScheduler(t, testConfig(), st, &funcRunner{
		run: func(ctx context.Context, task *Task, logf func(string, ...any)) RunResult {
			return RunResult{Outcome: OutcomeSuccess}
		},
	})
	ctx := context.Background()

	next := testConfig()
	next.MaxConcurrent = 9
	require.NoError(t, sched.ApplyConfig(ctx, next))

	status, err := sched.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, status.Config.MaxConcurrent)
}
