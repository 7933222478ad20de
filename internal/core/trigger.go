package core

import (
	"fmt"
	"time"

	"taskdeck/internal/cronx"
)

// CompiledTrigger is a validated trigger policy. It answers "is the task
// due" and "when does it fire next" without mutating anything; one-shot
// exhaustion lives in RunState.
type CompiledTrigger struct {
	trig  Trigger
	sched *cronx.Schedule
}

// CompileTrigger validates the trigger spec and pre-parses cron
// expressions so evaluation never fails on syntax.
func CompileTrigger(t Trigger) (*CompiledTrigger, error) {
	switch t.Type {
	case TriggerOneShot:
		if t.FireAt == nil {
			return nil, fmt.Errorf("%w: oneshot requires fire_at", ErrInvalidTrigger)
		}
	case TriggerInterval:
		if t.Period <= 0 {
			return nil, fmt.Errorf("%w: interval requires a positive period", ErrInvalidTrigger)
		}
		if t.Anchor == nil {
			return nil, fmt.Errorf("%w: interval requires an anchor", ErrInvalidTrigger)
		}
	case TriggerCron:
		sched, err := cronx.Parse(t.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		return &CompiledTrigger{trig: t, sched: sched}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTrigger, t.Type)
	}
	return &CompiledTrigger{trig: t}, nil
}

// Due reports whether the task should fire at now given its run state.
func (c *CompiledTrigger) Due(st *RunState, now time.Time) bool {
	if c.trig.Type == TriggerOneShot {
		return !st.Exhausted && !now.Before(*c.trig.FireAt)
	}
	return st.NextFire != nil && !now.Before(*st.NextFire)
}

// Next returns the earliest future fire instant strictly after now, or
// nil when the trigger can never fire again. One-shot exhaustion is the
// caller's bookkeeping: Next for an unexhausted one-shot in the past
// still reports the original fire time as due-immediately.
func (c *CompiledTrigger) Next(st *RunState, now time.Time) *time.Time {
	switch c.trig.Type {
	case TriggerOneShot:
		if st != nil && st.Exhausted {
			return nil
		}
		fireAt := *c.trig.FireAt
		return &fireAt
	case TriggerInterval:
		next := nextInterval(*c.trig.Anchor, c.trig.Period, now)
		return &next
	case TriggerCron:
		next, err := c.sched.Next(now)
		if err != nil {
			// Parse succeeded but no instant exists within the horizon
			// (e.g. "0 0 30 2 *"): the task simply never becomes due.
			return nil
		}
		return &next
	}
	return nil
}

// nextInterval computes anchor + k*period for the smallest k with a
// result strictly after now. Missed periods are skipped, never queued:
// the result is always the single next future boundary.
func nextInterval(anchor time.Time, period time.Duration, now time.Time) time.Time {
	if now.Before(anchor) {
		return anchor
	}
	elapsed := now.Sub(anchor)
	k := elapsed/period + 1
	return anchor.Add(k * period)
}
