package nanoio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTask is returned by operations that must be called from
	// inside a running task when the context carries no task.
	ErrNoTask = errors.New("nanoio: no task in context")

	// ErrNotRunning is returned when a task's context is used while
	// some other task, or no task at all, is being stepped.
	ErrNotRunning = errors.New("nanoio: task is not running")

	// ErrLoopClosed is returned by Loop.Run when the loop already ran,
	// and is the error of tasks spawned on it afterwards.
	ErrLoopClosed = errors.New("nanoio: loop already ran")

	// ErrStalled is returned by Loop.Run when the main task has not
	// finished but no task is ready and none is waiting for I/O.
	ErrStalled = errors.New("nanoio: main task cannot make progress")

	// ErrAlreadyWaiting is returned when a second task waits on a file
	// descriptor and direction that already has a waiter.
	ErrAlreadyWaiting = errors.New("nanoio: fd already has a waiter in this direction")

	// ErrInvalidArgument is returned for out of range sizes and empty
	// delimiters.
	ErrInvalidArgument = errors.New("nanoio: invalid argument")
)

// PanicError is the error a task fails with when its function panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("nanoio: task panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
