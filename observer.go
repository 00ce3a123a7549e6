package nanoio

import "time"

// Observer receives loop events. All methods are called from the
// loop's thread of control and must not call back into the loop.
type Observer interface {
	// TaskSpawned is called when a task is queued for the first time.
	TaskSpawned(task *Task)
	// TaskFinished is called once a task is done or failed.
	TaskFinished(task *Task)
	// TrapYielded is called for every trap a task yields.
	TrapYielded(kind TrapKind)
	// Polled is called after each reactor poll with the number of
	// tasks it woke and the time spent blocked.
	Polled(woken int, wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) TaskSpawned(*Task)         {}
func (nopObserver) TaskFinished(*Task)        {}
func (nopObserver) TrapYielded(TrapKind)      {}
func (nopObserver) Polled(int, time.Duration) {}
