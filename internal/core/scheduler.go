package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecodeclub/ekit"
	"github.com/ecodeclub/ekit/queue"
)

// Store abstracts the persistence layer used by the scheduler. Failures
// are treated as retryable I/O errors: scheduling continues on in-memory
// state and the dirty flag is raised.
type Store interface {
	LoadAllTasks(ctx context.Context) ([]*Task, error)
	SaveTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
	AppendRunRecord(ctx context.Context, rec *RunRecord) error
	LoadRunHistory(ctx context.Context, taskID string, limit int) ([]*RunRecord, error)
}

// Notifier receives one event per terminal run record. Delivery is out of
// scope here; the scheduler only emits and never blocks on it.
type Notifier interface {
	TaskFinished(ctx context.Context, taskID string, outcome Outcome, summary string) error
}

// Config is the scheduler's slice of runtime configuration. It can be
// re-applied to a running loop without restart.
type Config struct {
	PollInterval      time.Duration
	MaxConcurrent     int
	DefaultTimeout    time.Duration
	DefaultMaxRetries int
}

const maxRetryBackoff = 30 * time.Minute

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = time.Hour
	}
	if c.DefaultMaxRetries < 0 {
		c.DefaultMaxRetries = 0
	}
	return c
}

// entry is the control loop's view of one task: definition, compiled
// trigger, run state, and in-flight bookkeeping.
type entry struct {
	task    *Task
	trigger *CompiledTrigger
	state   RunState

	// cancel is non-nil while an attempt is outstanding.
	cancel context.CancelFunc

	// pendingDisable defers a disable edit until the in-flight run completes.
	pendingDisable bool

	// Deferred retry of the current firing, observed by the next poll.
	retryAt          time.Time
	retryAttempt     int
	retryScheduledAt time.Time
}

// firing is one queued occurrence of a task becoming due. It competes for
// worker slots by priority, then earliest due time, then task ID.
type firing struct {
	taskID      string
	priority    int
	dueAt       time.Time
	scheduledAt time.Time
	attempt     int
	cycle       uint64

	// ready is set once the dependency gate has passed for this firing;
	// after that, only a free worker slot is awaited.
	ready bool
}

func compareFirings(a, b *firing) int {
	if a.priority != b.priority {
		if a.priority > b.priority {
			return -1
		}
		return 1
	}
	if !a.dueAt.Equal(b.dueAt) {
		if a.dueAt.Before(b.dueAt) {
			return -1
		}
		return 1
	}
	switch {
	case a.taskID < b.taskID:
		return -1
	case a.taskID > b.taskID:
		return 1
	}
	return 0
}

type completion struct {
	taskID string
	rec    *RunRecord
}

type editRequest struct {
	apply func() error
	reply chan error
}

type notification struct {
	taskID  string
	outcome Outcome
	summary string
}

// Scheduler owns all mutable scheduling state: task run states, the
// dependency graph, and the ready queue. A single control loop mutates
// that state; workers report back through the completion channel, and
// external callers (API, MCP) submit edits that are applied between poll
// cycles.
type Scheduler struct {
	store    Store
	exec     *Executor
	notifier Notifier
	logger   *slog.Logger

	edits       chan editRequest
	completions chan completion
	notifyCh    chan notification

	baseCtx context.Context
	done    chan struct{}
	workers sync.WaitGroup
	dirty   atomic.Bool
	started atomic.Bool

	// Control-loop-owned state. Never touched outside the loop goroutine.
	cfg     Config
	entries map[string]*entry
	graph   *DepGraph
	ready   *queue.ConcurrentPriorityQueue[*firing]
	cycle   uint64
	running int
}

func NewScheduler(cfg Config, store Store, exec *Executor, notifier Notifier, logger *slog.Logger) *Scheduler {
	var comparator ekit.Comparator[*firing] = compareFirings
	return &Scheduler{
		store:       store,
		exec:        exec,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		edits:       make(chan editRequest),
		completions: make(chan completion),
		notifyCh:    make(chan notification, 64),
		done:        make(chan struct{}),
		entries:     make(map[string]*entry),
		graph:       NewDepGraph(),
		ready:       queue.NewConcurrentPriorityQueue[*firing](0, comparator),
	}
}

// Start launches the control loop and the notification forwarder. The
// loop runs until ctx is cancelled, then drains in-flight work.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.baseCtx = ctx
	go s.forwardNotifications()
	go s.run(ctx)
}

// Done is closed once the control loop has stopped and in-flight attempts
// have been cancelled and collected.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Dirty reports whether a persistence failure left state unsaved; the
// outer surface uses it to warn the user.
func (s *Scheduler) Dirty() bool { return s.dirty.Load() }

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	interval := s.cfg.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case c := <-s.completions:
			s.handleCompletion(c)
			s.dispatchReady(time.Now())
		case req := <-s.edits:
			req.reply <- req.apply()
			// Resetting the ticker postpones the next cycle, so only a
			// changed poll interval may do it.
			if s.cfg.PollInterval != interval {
				interval = s.cfg.PollInterval
				ticker.Reset(interval)
			}
		case <-ticker.C:
			s.pollCycle(time.Now())
		}
	}
}

// pollCycle is one turn of the control loop: advance the cycle counter,
// queue due firings and ripe retries, then dispatch under the worker cap.
func (s *Scheduler) pollCycle(now time.Time) {
	s.cycle++

	for id, ent := range s.entries {
		switch ent.state.Phase {
		case PhaseIdle:
			if !ent.task.Enabled {
				continue
			}
			if !ent.trigger.Due(&ent.state, now) {
				continue
			}
			due := now
			if ent.state.NextFire != nil {
				due = *ent.state.NextFire
			} else if ent.task.Trigger.Type == TriggerOneShot && ent.task.Trigger.FireAt != nil {
				due = *ent.task.Trigger.FireAt
			}
			s.queueFiring(ent, &firing{
				taskID:      id,
				priority:    ent.task.Priority,
				dueAt:       due,
				scheduledAt: due,
				attempt:     1,
				cycle:       s.cycle,
			})
		case PhaseRetrying:
			if now.Before(ent.retryAt) {
				continue
			}
			s.queueFiring(ent, &firing{
				taskID:      id,
				priority:    ent.task.Priority,
				dueAt:       ent.retryAt,
				scheduledAt: ent.retryScheduledAt,
				attempt:     ent.retryAttempt,
				cycle:       s.cycle,
				ready:       true, // the firing already passed its gate
			})
		}
	}

	s.dispatchReady(now)
}

func (s *Scheduler) queueFiring(ent *entry, f *firing) {
	ent.state.Phase = PhaseQueued
	if ent.task.Trigger.Type == TriggerOneShot {
		// The firing is consumed even if it ends up skipped; one-shot
		// retries happen only within this firing.
		ent.state.Exhausted = true
	}
	if err := s.ready.Enqueue(f); err != nil {
		s.logger.Error("enqueue firing", "task_id", f.taskID, "err", err)
	}
	s.logger.Debug("task queued", "task_id", f.taskID, "attempt", f.attempt, "due_at", f.dueAt)
}

// dispatchReady pops queued firings in priority order, resolves the
// dependency gate, and hands ready firings to workers while slots remain.
// Firings whose gate stayed unmet past their cycle are recorded as
// skipped; the rest are requeued.
func (s *Scheduler) dispatchReady(now time.Time) {
	var keep []*firing
	for {
		f, err := s.ready.Dequeue()
		if err != nil {
			break
		}
		ent, ok := s.entries[f.taskID]
		if !ok || ent.state.Phase != PhaseQueued {
			// Deleted or disabled while queued: the firing is dropped.
			continue
		}
		if !f.ready {
			f.ready = s.graph.Ready(f.taskID, s.freshOutcome)
		}
		if !f.ready {
			if f.cycle < s.cycle {
				s.skipFiring(ent, f, now)
				continue
			}
			keep = append(keep, f)
			continue
		}
		if s.running >= s.cfg.MaxConcurrent {
			keep = append(keep, f)
			continue
		}
		s.dispatch(ent, f)
	}
	for _, f := range keep {
		if err := s.ready.Enqueue(f); err != nil {
			s.logger.Error("requeue firing", "task_id", f.taskID, "err", err)
		}
	}
}

// freshOutcome yields a dependency's most recent outcome only if it was
// recorded during the current scheduling cycle; older outcomes never
// satisfy the gate.
func (s *Scheduler) freshOutcome(depID string) (Outcome, bool) {
	dep, ok := s.entries[depID]
	if !ok || dep.state.LastOutcome == "" || dep.state.LastOutcomeCycle != s.cycle {
		return "", false
	}
	return dep.state.LastOutcome, true
}

func (s *Scheduler) skipFiring(ent *entry, f *firing, now time.Time) {
	rec := &RunRecord{
		ID:          NewID(),
		TaskID:      f.taskID,
		Attempt:     f.attempt,
		ScheduledAt: f.scheduledAt,
		Outcome:     OutcomeSkippedDependency,
		Error:       "dependency not satisfied",
	}
	s.logger.Info("task skipped, dependency unmet", "task_id", f.taskID, "scheduled_at", f.scheduledAt)
	s.recordAndFinish(ent, rec, now)
}

func (s *Scheduler) dispatch(ent *entry, f *firing) {
	ent.state.Phase = PhaseRunning
	s.running++
	runCtx, cancel := context.WithCancel(s.baseCtx)
	ent.cancel = cancel
	task := ent.task

	s.logger.Info("task dispatched",
		"task_id", task.ID, "kind", task.Kind, "attempt", f.attempt, "priority", task.Priority)

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer cancel()
		rec := s.exec.Execute(runCtx, task, f.attempt, f.scheduledAt)
		s.completions <- completion{taskID: task.ID, rec: rec}
	}()
}

func (s *Scheduler) handleCompletion(c completion) {
	now := time.Now()
	s.running--
	ent, ok := s.entries[c.taskID]
	if !ok {
		// Deleted mid-run; still keep the history.
		s.appendRecord(c.rec)
		return
	}
	ent.cancel = nil

	s.logger.Info("task completed",
		"task_id", c.taskID, "attempt", c.rec.Attempt,
		"outcome", c.rec.Outcome, "duration", c.rec.Duration)

	if c.rec.Outcome == OutcomeFailure && c.rec.Attempt <= ent.task.MaxRetries {
		s.appendRecord(c.rec)
		s.emit(ent.task.ID, c.rec)
		ent.state.LastOutcome = c.rec.Outcome
		ent.state.LastOutcomeCycle = s.cycle
		ent.state.ConsecutiveFailures++
		ent.state.Phase = PhaseRetrying
		backoff := Backoff(ent.task.RetryBackoff, c.rec.Attempt, maxRetryBackoff)
		ent.retryAt = now.Add(backoff)
		ent.retryAttempt = c.rec.Attempt + 1
		ent.retryScheduledAt = c.rec.ScheduledAt
		s.logger.Info("task retry scheduled",
			"task_id", c.taskID, "attempt", ent.retryAttempt, "backoff", backoff)
		return
	}

	s.recordAndFinish(ent, c.rec, now)
}

// recordAndFinish persists the terminal record of a firing, emits the
// notification, and returns the task to Idle (or Disabled) with a fresh
// next fire time.
func (s *Scheduler) recordAndFinish(ent *entry, rec *RunRecord, now time.Time) {
	s.appendRecord(rec)
	s.emit(ent.task.ID, rec)

	ent.state.LastOutcome = rec.Outcome
	ent.state.LastOutcomeCycle = s.cycle
	switch rec.Outcome {
	case OutcomeSuccess:
		ent.state.ConsecutiveFailures = 0
	case OutcomeFailure, OutcomeTimeout:
		ent.state.ConsecutiveFailures++
	}

	if ent.pendingDisable || !ent.task.Enabled {
		ent.pendingDisable = false
		ent.state.Phase = PhaseDisabled
	} else {
		ent.state.Phase = PhaseIdle
	}
	ent.state.NextFire = ent.trigger.Next(&ent.state, now)
}

func (s *Scheduler) appendRecord(rec *RunRecord) {
	rec.CreatedAt = time.Now().UTC()
	// Not the loop context: records written during shutdown drain must
	// still reach the store.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.AppendRunRecord(ctx, rec); err != nil {
		s.logger.Error("append run record", "task_id", rec.TaskID, "err", err)
		s.dirty.Store(true)
	}
}

func (s *Scheduler) emit(taskID string, rec *RunRecord) {
	summary := rec.Output
	if rec.Error != "" {
		summary = rec.Error
	}
	select {
	case s.notifyCh <- notification{taskID: taskID, outcome: rec.Outcome, summary: summary}:
	default:
		s.logger.Warn("notification dropped, channel full", "task_id", taskID)
	}
}

func (s *Scheduler) forwardNotifications() {
	for {
		select {
		case <-s.done:
			return
		case n := <-s.notifyCh:
			if s.notifier == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.notifier.TaskFinished(ctx, n.taskID, n.outcome, n.summary); err != nil {
				s.logger.Warn("notify", "task_id", n.taskID, "err", err)
			}
			cancel()
		}
	}
}

// drain cancels outstanding attempts and collects their completions so
// every dispatched firing still produces a run record.
func (s *Scheduler) drain() {
	for _, ent := range s.entries {
		if ent.cancel != nil {
			ent.cancel()
		}
	}
	for s.running > 0 {
		select {
		case c := <-s.completions:
			s.handleCompletion(c)
		case <-time.After(30 * time.Second):
			s.logger.Warn("shutdown drain timed out", "still_running", s.running)
			return
		}
	}
}

// do submits an edit to the control loop and waits for it to be applied
// between cycles.
func (s *Scheduler) do(ctx context.Context, apply func() error) error {
	req := editRequest{apply: apply, reply: make(chan error, 1)}
	select {
	case s.edits <- req:
	case <-s.done:
		return ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync loads every persisted task and admits it into the scheduler,
// replacing any in-memory definitions. Invalid persisted tasks are
// logged and left out rather than failing startup.
func (s *Scheduler) Sync(ctx context.Context) error {
	tasks, err := s.store.LoadAllTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	return s.do(ctx, func() error {
		for _, t := range tasks {
			if err := s.admit(t, false); err != nil {
				s.logger.Error("skip persisted task", "task_id", t.ID, "err", err)
			}
		}
		return nil
	})
}

// AddTask validates and admits a new task, persists it, and schedules its
// first firing. Configuration-time failures (bad params, bad trigger,
// dependency cycle) reject the task without admitting it.
func (s *Scheduler) AddTask(ctx context.Context, t *Task) error {
	return s.do(ctx, func() error {
		if _, exists := s.entries[t.ID]; exists {
			return fmt.Errorf("task %s already exists", t.ID)
		}
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = now, now
		if err := s.admit(t, true); err != nil {
			return err
		}
		return nil
	})
}

// UpdateTask applies an edited definition atomically between poll cycles.
// A running task is not interrupted: a disable edit takes effect when the
// in-flight run completes, any other change applies to later firings.
func (s *Scheduler) UpdateTask(ctx context.Context, t *Task) error {
	return s.do(ctx, func() error {
		ent, ok := s.entries[t.ID]
		if !ok {
			return ErrTaskNotFound
		}
		trigger, err := s.validate(t)
		if err != nil {
			return err
		}
		if err := s.graph.SetEdges(t.ID, t.DependsOn); err != nil {
			return err
		}
		t.CreatedAt = ent.task.CreatedAt
		t.UpdatedAt = time.Now().UTC()

		triggerChanged := !triggerEqual(ent.task.Trigger, t.Trigger)
		wasRunning := ent.state.Phase == PhaseRunning
		ent.task = t
		ent.trigger = trigger
		if triggerChanged {
			ent.state.Exhausted = false
		}

		switch {
		case !t.Enabled && wasRunning:
			ent.pendingDisable = true
		case !t.Enabled:
			ent.state.Phase = PhaseDisabled
		case ent.state.Phase == PhaseDisabled:
			ent.state.Phase = PhaseIdle
		}
		if !wasRunning {
			// The cached next fire time is invalid after an edit.
			ent.state.NextFire = trigger.Next(&ent.state, time.Now())
		}
		s.persist(t)
		return nil
	})
}

// RemoveTask deletes the task, cancels any in-flight run, and detaches
// its dependents (their edges are dropped, the tasks remain).
func (s *Scheduler) RemoveTask(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		ent, ok := s.entries[id]
		if !ok {
			return ErrTaskNotFound
		}
		if ent.cancel != nil {
			ent.cancel()
		}
		s.graph.RemoveTask(id)
		for _, other := range s.entries {
			other.task.DependsOn = dropDep(other.task.DependsOn, id)
		}
		delete(s.entries, id)
		delCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.store.DeleteTask(delCtx, id); err != nil {
			s.logger.Error("delete task", "task_id", id, "err", err)
			s.dirty.Store(true)
		}
		return nil
	})
}

// PauseTask prevents the next dispatch without touching an in-flight run.
func (s *Scheduler) PauseTask(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, false)
}

// ResumeTask re-enables scheduling and recomputes the next fire time.
func (s *Scheduler) ResumeTask(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, true)
}

func (s *Scheduler) setEnabled(ctx context.Context, id string, enabled bool) error {
	return s.do(ctx, func() error {
		ent, ok := s.entries[id]
		if !ok {
			return ErrTaskNotFound
		}
		ent.task.Enabled = enabled
		ent.task.UpdatedAt = time.Now().UTC()
		switch {
		case !enabled && ent.state.Phase == PhaseRunning:
			ent.pendingDisable = true
		case !enabled:
			ent.state.Phase = PhaseDisabled
		case ent.state.Phase == PhaseDisabled:
			ent.state.Phase = PhaseIdle
			ent.state.NextFire = ent.trigger.Next(&ent.state, time.Now())
		}
		s.persist(ent.task)
		return nil
	})
}

// RunNow queues a manual firing that bypasses the trigger and the
// dependency gate but still competes for a worker slot.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		ent, ok := s.entries[id]
		if !ok {
			return ErrTaskNotFound
		}
		switch ent.state.Phase {
		case PhaseRunning, PhaseQueued, PhaseRetrying:
			return ErrAlreadyRunning
		}
		now := time.Now()
		f := &firing{
			taskID:      id,
			priority:    ent.task.Priority,
			dueAt:       now,
			scheduledAt: now,
			attempt:     1,
			cycle:       s.cycle,
			ready:       true,
		}
		ent.state.Phase = PhaseQueued
		if err := s.ready.Enqueue(f); err != nil {
			return err
		}
		s.dispatchReady(now)
		return nil
	})
}

// CancelRun requests cooperative cancellation of the task's in-flight
// attempt. The behavior observes it at its next safe point; process
// tasks escalate to killing the child process group.
func (s *Scheduler) CancelRun(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		ent, ok := s.entries[id]
		if !ok {
			return ErrTaskNotFound
		}
		if ent.cancel == nil {
			return ErrNotRunning
		}
		s.logger.Info("cancelling task run", "task_id", id)
		ent.cancel()
		return nil
	})
}

// ApplyConfig swaps the runtime configuration between cycles.
func (s *Scheduler) ApplyConfig(ctx context.Context, cfg Config) error {
	return s.do(ctx, func() error {
		s.cfg = cfg.withDefaults()
		s.logger.Info("scheduler config applied",
			"poll_interval", s.cfg.PollInterval, "max_concurrent", s.cfg.MaxConcurrent)
		return nil
	})
}

// TaskView is a read-only snapshot of one task and its scheduling state.
type TaskView struct {
	Task  Task     `json:"task"`
	State RunState `json:"state"`
}

// GetTask snapshots a single task.
func (s *Scheduler) GetTask(ctx context.Context, id string) (*TaskView, error) {
	var view *TaskView
	err := s.do(ctx, func() error {
		ent, ok := s.entries[id]
		if !ok {
			return ErrTaskNotFound
		}
		v := s.viewOf(ent)
		view = &v
		return nil
	})
	return view, err
}

// ListTasks snapshots every task, unordered.
func (s *Scheduler) ListTasks(ctx context.Context) ([]TaskView, error) {
	var views []TaskView
	err := s.do(ctx, func() error {
		views = make([]TaskView, 0, len(s.entries))
		for _, ent := range s.entries {
			views = append(views, s.viewOf(ent))
		}
		return nil
	})
	return views, err
}

// Status is a point-in-time picture of the control loop.
type Status struct {
	Tasks        int    `json:"tasks"`
	Running      int    `json:"running"`
	Queued       int    `json:"queued"`
	Cycle        uint64 `json:"cycle"`
	UnsavedState bool   `json:"unsaved_state"`
	Config       Config `json:"config"`
}

func (s *Scheduler) Stats(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() error {
		st = Status{
			Tasks:        len(s.entries),
			Running:      s.running,
			Queued:       s.ready.Len(),
			Cycle:        s.cycle,
			UnsavedState: s.dirty.Load(),
			Config:       s.cfg,
		}
		return nil
	})
	return st, err
}

func (s *Scheduler) viewOf(ent *entry) TaskView {
	t := *ent.task
	return TaskView{Task: t, State: ent.state}
}

// validate runs configuration-time checks: known kind, valid params,
// compilable trigger, defaulted budgets.
func (s *Scheduler) validate(t *Task) (*CompiledTrigger, error) {
	runner, ok := s.exec.Runner(t.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}
	if err := runner.Validate(t.Params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	trigger, err := CompileTrigger(t.Trigger)
	if err != nil {
		return nil, err
	}
	if t.Timeout <= 0 {
		t.Timeout = s.cfg.DefaultTimeout
	}
	if t.MaxRetries < 0 {
		t.MaxRetries = s.cfg.DefaultMaxRetries
	}
	return trigger, nil
}

// admit installs a task into the loop state. persist controls whether the
// definition is written back to the store (Sync loads already-persisted
// rows).
func (s *Scheduler) admit(t *Task, persist bool) error {
	trigger, err := s.validate(t)
	if err != nil {
		return err
	}
	if err := s.graph.SetEdges(t.ID, t.DependsOn); err != nil {
		return err
	}
	ent := &entry{task: t, trigger: trigger}
	if !t.Enabled {
		ent.state.Phase = PhaseDisabled
	} else {
		ent.state.Phase = PhaseIdle
	}
	ent.state.NextFire = trigger.Next(&ent.state, time.Now())
	s.entries[t.ID] = ent
	if persist {
		s.persist(t)
	}
	return nil
}

func (s *Scheduler) persist(t *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.SaveTask(ctx, t); err != nil {
		s.logger.Error("save task", "task_id", t.ID, "err", err)
		s.dirty.Store(true)
	}
}

func triggerEqual(a, b Trigger) bool {
	return a.Type == b.Type &&
		timePtrEqual(a.FireAt, b.FireAt) &&
		a.Period == b.Period &&
		timePtrEqual(a.Anchor, b.Anchor) &&
		a.Expr == b.Expr
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func dropDep(deps []Dependency, id string) []Dependency {
	out := deps[:0]
	for _, d := range deps {
		if d.TaskID != id {
			out = append(out, d)
		}
	}
	return out
}
