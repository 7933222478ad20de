package notify

import (
	"context"
	"fmt"

	"taskdeck/internal/core"
)

// EventNotifier adapts a Notifier to the scheduler's completion callback.
// Only non-success outcomes are delivered unless All is set.
type EventNotifier struct {
	Notifier Notifier
	All      bool
}

func (e *EventNotifier) TaskFinished(ctx context.Context, taskID string, outcome core.Outcome, summary string) error {
	if outcome == core.OutcomeSuccess && !e.All {
		return nil
	}
	title := fmt.Sprintf("task %s: %s", taskID, outcome)
	return e.Notifier.Send(ctx, title, summary)
}
