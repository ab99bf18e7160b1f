// Package scheduler is the host side of background execution: it holds at
// most one pending sync request and, when it comes due, hands the handler a
// Task with a bounded execution budget.
package scheduler

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Task is one granted execution slot.
type Task interface {
	// Context is cancelled when the budget runs out or the task completes.
	Context() context.Context
	// Expired is closed shortly before the budget runs out.
	Expired() <-chan struct{}
	// Complete reports the outcome to the host. Only the first call counts.
	Complete(success bool)
}

// Scheduler accepts background execution requests.
type Scheduler interface {
	// Submit requests a run no earlier than after from now, replacing any
	// pending request.
	Submit(after time.Duration) error
	// CancelAll drops pending requests.
	CancelAll()
}

// Handler runs a delivered task.
type Handler func(Task)
