package nanoio

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"

	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "nanoio-loop"
	taskTraceRegionType = "nanoio-task"
	taskTraceCategory   = "nanoio"
)

// Func is the body of a task. The context carries the task and must
// be passed to the package's suspending operations.
type Func func(ctx context.Context) (any, error)

// State is the lifecycle state of a Task.
type State uint8

const (
	// StateReady means the task is queued to be stepped.
	StateReady State = iota
	// StateWaiting means the task is parked on a reactor interest.
	StateWaiting
	// StateDone means the task returned without error.
	StateDone
	// StateFailed means the task returned an error or panicked.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateWaiting:
		return "waiting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Task is one invocation of a Func driven by a Loop.
type Task struct {
	id     uint64
	ctx    context.Context
	loop   *Loop
	yield  func(trap) wake
	resume func(wake) (trap, bool)
	cancel func()
	next   wake
	state  State
	fd     int
	dir    direction
	main   bool
	gone   bool
	result any
	err    error
}

func newTask(l *Loop, fn Func) *Task {
	l.seq++
	task := &Task{
		id:    l.seq,
		loop:  l,
		state: StateReady,
		fd:    -1,
	}

	task.ctx = withTaskContext(l.ctx, task)

	resume, cancel := coro.New(
		func(yield func(trap) wake, _ func() wake) (z trap) {
			region := trace.StartRegion(task.ctx, taskTraceRegionType)
			defer region.End()

			// A panic fails the task with its original value. An
			// abandoned task is unwinding for coro and is left alone.
			defer func() {
				if p := recover(); p != nil {
					if task.gone {
						panic(p)
					}
					task.result, task.err = nil, &PanicError{Value: p}
				}
			}()

			task.yield = yield
			task.result, task.err = fn(task.ctx)

			return
		},
	)

	task.resume = resume
	task.cancel = cancel
	return task
}

// ID returns the task's sequence number within its loop, starting at 1.
func (t *Task) ID() uint64 {
	return t.id
}

// Loop returns the loop that owns the task.
func (t *Task) Loop() *Loop {
	return t.loop
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	return t.state
}

// Result returns the value and error the task finished with. Both are
// zero while the task is still ready or waiting.
func (t *Task) Result() (any, error) {
	return t.result, t.err
}

func (t *Task) finished() bool {
	return t.state == StateDone || t.state == StateFailed
}

// trap yields tr to the loop and returns the loop's answer.
func (t *Task) trap(tr trap) (any, error) {
	t.Logf("TRAP %v", tr.kind)
	w := t.yield(tr)
	return w.val, w.err
}

func (t *Task) wait(kind TrapKind, fd int) error {
	_, err := t.trap(trap{kind: kind, fd: fd})
	return err
}

func (t *Task) retire() {
	if t.err != nil {
		t.state = StateFailed
	} else {
		t.state = StateDone
	}
	t.cancel()
	t.Log("RETIRE")
}

// abandon releases the coroutine of a task that will never be stepped
// again.
func (t *Task) abandon() {
	t.Log("ABANDON")
	t.gone = true
	t.cancel()
}

// Log writes msg to the execution trace when tracing is enabled.
func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

// Logf is like Log with fmt.Sprintf formatting.
func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func taskpath(sb *strings.Builder, t *Task) {
	fmt.Fprintf(sb, "%p|%d", t.loop, t.id)
	if t.main {
		sb.WriteString("|main")
	}
}
