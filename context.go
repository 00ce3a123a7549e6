package nanoio

import (
	"context"
)

// taskContextKey is a unique type used as a key for storing Task
// values in a context.
type taskContextKey struct{}

// withTaskContext creates a new context with the task value stored in
// it. This allows the task to be retrieved from the context later.
func withTaskContext(ctx context.Context, task *Task) context.Context {
	return context.WithValue(ctx, taskContextKey{}, task)
}

// TaskFromContext retrieves the Task stored in ctx. Returns the task
// and a boolean indicating whether a task was found.
func TaskFromContext(ctx context.Context) (*Task, bool) {
	val, ok := ctx.Value(taskContextKey{}).(*Task)
	return val, ok
}

// runningTask returns the task carried by ctx, provided its loop is
// currently stepping it. Every suspending operation goes through here.
func runningTask(ctx context.Context) (*Task, error) {
	task, ok := TaskFromContext(ctx)
	if !ok {
		return nil, ErrNoTask
	}
	if task.loop.current != task {
		return nil, ErrNotRunning
	}
	return task, nil
}
