package core

import (
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Kind tags the behavior a task executes.
type Kind string

const (
	KindHTTP     Kind = "http"
	KindProcess  Kind = "process"
	KindFile     Kind = "file"
	KindSystem   Kind = "system"
	KindDatabase Kind = "database"
)

// Relation describes how a dependency edge is satisfied.
type Relation string

const (
	RelationOnSuccess    Relation = "on_success"
	RelationOnFailure    Relation = "on_failure"
	RelationOnCompletion Relation = "on_completion"
)

// Dependency is one ordered entry of a task's dependency list: the task
// carrying it waits on TaskID according to Relation.
type Dependency struct {
	TaskID   string   `json:"task_id"`
	Relation Relation `json:"relation"`
}

// TriggerType selects the active trigger variant.
type TriggerType string

const (
	TriggerOneShot  TriggerType = "oneshot"
	TriggerInterval TriggerType = "interval"
	TriggerCron     TriggerType = "cron"
)

// Trigger is a closed variant over the three trigger kinds. Exactly one
// variant is active, selected by Type; the other variants' fields are
// ignored.
type Trigger struct {
	Type TriggerType `json:"type"`

	// OneShot
	FireAt *time.Time `json:"fire_at,omitempty"`

	// Interval
	Period time.Duration `json:"period,omitempty"`
	Anchor *time.Time    `json:"anchor,omitempty"`

	// Cron
	Expr string `json:"expr,omitempty"`
}

// Task is a persisted unit of scheduled work. Params are opaque to the
// scheduler and validated by the kind's runner at admission time.
type Task struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         Kind           `json:"kind"`
	Params       map[string]any `json:"params"`
	Trigger      Trigger        `json:"trigger"`
	Priority     int            `json:"priority"`
	Enabled      bool           `json:"enabled"`
	MaxRetries   int            `json:"max_retries"`
	RetryBackoff time.Duration  `json:"retry_backoff"`
	Timeout      time.Duration  `json:"timeout"`
	GroupID      *string        `json:"group_id,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	DependsOn    []Dependency   `json:"depends_on,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Outcome is the terminal result of one execution attempt.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeFailure           Outcome = "failure"
	OutcomeTimeout           Outcome = "timeout"
	OutcomeCancelled         Outcome = "cancelled"
	OutcomeSkippedDependency Outcome = "skipped_dependency"
)

// Terminal reports whether the outcome completes an attempt for
// dependency-gating purposes.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeTimeout, OutcomeCancelled:
		return true
	}
	return false
}

// RunRecord captures a single execution attempt. Immutable once appended.
type RunRecord struct {
	ID           string        `json:"id"`
	TaskID       string        `json:"task_id"`
	Attempt      int           `json:"attempt"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Outcome      Outcome       `json:"outcome"`
	Output       string        `json:"output,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	PeakRSSBytes int64         `json:"peak_rss_bytes,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Phase is the scheduler-owned lifecycle state of a task.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseQueued   Phase = "queued"
	PhaseRunning  Phase = "running"
	PhaseRetrying Phase = "retrying"
	PhaseDisabled Phase = "disabled"
)

// RunState is the mutable per-task scheduling state, owned exclusively by
// the scheduler's control loop.
type RunState struct {
	Phase               Phase      `json:"phase"`
	LastOutcome         Outcome    `json:"last_outcome,omitempty"`
	LastOutcomeCycle    uint64     `json:"-"`
	NextFire            *time.Time `json:"next_fire,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`

	// Exhausted marks a one-shot trigger that already produced its firing.
	Exhausted bool `json:"exhausted,omitempty"`
}

// NewID returns a short unique identifier for tasks and run records.
func NewID() string {
	return shortuuid.New()
}
