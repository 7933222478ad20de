package core

import "errors"

var (
	// ErrInvalidParameters rejects a task whose type-specific params fail
	// the kind runner's validation.
	ErrInvalidParameters = errors.New("invalid task parameters")
	// ErrInvalidTrigger rejects a trigger spec that cannot be compiled.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrCycleDetected rejects a dependency edge that would close a cycle.
	ErrCycleDetected = errors.New("dependency cycle detected")
	// ErrSelfDependency rejects a task depending on itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")
	// ErrUnknownKind rejects a task whose kind has no registered runner.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrTaskNotFound reports an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrAlreadyRunning rejects a manual firing while an attempt is outstanding.
	ErrAlreadyRunning = errors.New("task is already running")
	// ErrNotRunning reports a cancel request for a task with no outstanding attempt.
	ErrNotRunning = errors.New("task is not running")
	// ErrSchedulerStopped reports an operation against a stopped control loop.
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)
