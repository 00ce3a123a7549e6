package nanoio

import (
	"context"
	"fmt"
	"runtime/trace"
	"time"

	"github.com/gammazero/deque"
)

// Loop schedules tasks on a single thread of control. It holds the
// FIFO ready queue, the reactor that parks tasks on socket readiness
// and, while Run is driving it, the designated main task.
//
// A Loop runs once. When Run returns, tasks that have not finished are
// abandoned: their coroutines are released but the sockets they were
// using are left open.
type Loop struct {
	noCopy  noCopy
	ctx     context.Context
	tracer  *trace.Task
	opts    options
	ready   deque.Deque[*Task]
	reactor reactor
	current *Task
	main    *Task
	seq     uint64
	ran     bool
	closed  bool
}

// New creates an idle Loop. No system resources are acquired until a
// task first waits for I/O.
func New(optFns ...Option) *Loop {
	l := &Loop{opts: defaultOptions()}
	for _, fn := range optFns {
		fn(&l.opts)
	}
	l.ctx, l.tracer = trace.NewTask(l.opts.ctx, taskTraceTaskType)
	return l
}

// Run creates a fresh Loop, runs fn as its main task and returns the
// main task's result. Other tasks fn spawns are abandoned once fn
// finishes.
func Run[T any](ctx context.Context, fn func(context.Context) (T, error), optFns ...Option) (T, error) {
	var zero T

	l := New(append([]Option{WithContext(ctx)}, optFns...)...)
	v, err := l.Run(func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}

	if r, ok := v.(T); ok {
		return r, nil
	}
	return zero, nil
}

// Spawn queues fn as a new ready task. It may be called before Run or
// from inside a task of this loop; from inside a task the package
// level Spawn is equivalent. Once Run has returned, Spawn returns a
// task that already failed with ErrLoopClosed and never runs fn.
func (l *Loop) Spawn(fn Func) *Task {
	if l.closed {
		l.seq++
		task := &Task{id: l.seq, loop: l, fd: -1, state: StateFailed, err: ErrLoopClosed}
		task.ctx = withTaskContext(l.ctx, task)
		return task
	}

	task := newTask(l, fn)
	l.ready.PushBack(task)
	l.opts.obs.TaskSpawned(task)
	task.Log("SPAWN")
	l.opts.log.Debug().Uint64("task", task.id).Msg("task spawned")
	return task
}

// Run drives the loop. With a nil main it returns once no task is
// ready and none is waiting for I/O. Otherwise main becomes the main
// task and Run returns its result or error as soon as it finishes,
// whatever the state of the other tasks.
func (l *Loop) Run(main Func) (any, error) {
	if l.ran {
		return nil, ErrLoopClosed
	}
	l.ran = true
	defer l.close()

	trace.Log(l.ctx, taskTraceCategory, "LOOP")

	if main != nil {
		l.main = l.Spawn(main)
		l.main.main = true
	}

	for {
		for l.ready.Len() > 0 {
			l.step(l.ready.PopFront())
			if l.main != nil && l.main.finished() {
				trace.Log(l.ctx, taskTraceCategory, "LOOP DONE")
				return l.main.Result()
			}
		}

		if l.reactor == nil || l.reactor.len() == 0 {
			if l.main != nil {
				return nil, ErrStalled
			}
			trace.Log(l.ctx, taskTraceCategory, "LOOP DONE")
			return nil, nil
		}

		trace.Logf(l.ctx, taskTraceCategory, "LOOP POLL %v", l.reactor.len())
		start := time.Now()
		tasks, err := l.reactor.poll()
		if err != nil {
			return nil, fmt.Errorf("nanoio: poll: %w", err)
		}
		l.opts.obs.Polled(len(tasks), time.Since(start))

		for _, task := range tasks {
			task.Log("IO READY")
			task.state = StateReady
			l.ready.PushBack(task)
		}
	}
}

// step resumes task until it parks on the reactor or finishes.
// Synchronous traps are answered in place, so no other task runs in
// between.
func (l *Loop) step(task *Task) {
	w := task.next
	task.next = wake{}

	for {
		l.current = task
		tr, ok := task.resume(w)
		l.current = nil

		if !ok {
			l.retire(task)
			return
		}

		l.opts.obs.TrapYielded(tr.kind)

		switch tr.kind {
		case TrapSpawn:
			w = wake{val: l.Spawn(tr.fn)}

		case TrapCurrentLoop:
			w = wake{val: l}

		case TrapWaitReadable, TrapWaitWritable:
			dir := trapDirection(tr.kind)
			if err := l.wait(tr.fd, dir, task); err != nil {
				w = wake{err: err}
				continue
			}
			task.state = StateWaiting
			task.fd, task.dir = tr.fd, dir
			return

		default:
			panic(fmt.Sprintf("nanoio: unknown trap %v", tr.kind))
		}
	}
}

func (l *Loop) wait(fd int, dir direction, task *Task) error {
	if l.reactor == nil {
		r, err := newReactor()
		if err != nil {
			return fmt.Errorf("nanoio: reactor: %w", err)
		}
		l.reactor = r
	}
	return l.reactor.wait(fd, dir, task)
}

func (l *Loop) retire(task *Task) {
	task.retire()
	l.opts.obs.TaskFinished(task)

	if task.err == nil || task.main {
		l.opts.log.Debug().Uint64("task", task.id).Msg("task finished")
		return
	}

	l.opts.log.Debug().
		Err(task.err).
		Uint64("task", task.id).
		Msg("background task failed")
}

func (l *Loop) close() {
	l.closed = true

	for l.ready.Len() > 0 {
		l.ready.PopFront().abandon()
	}

	if l.reactor != nil {
		for _, task := range l.reactor.drain() {
			task.abandon()
		}
		if err := l.reactor.close(); err != nil {
			l.opts.log.Warn().Err(err).Msg("reactor close")
		}
		l.reactor = nil
	}

	l.tracer.End()
}

// Spawn starts fn as a new task on the loop running the caller and
// returns its handle. The caller keeps running; fn is stepped after
// the tasks already queued.
func Spawn(ctx context.Context, fn Func) (*Task, error) {
	task, err := runningTask(ctx)
	if err != nil {
		return nil, err
	}

	v, err := task.trap(trap{kind: TrapSpawn, fn: fn})
	if err != nil {
		return nil, err
	}
	return v.(*Task), nil
}

// CurrentLoop returns the loop running the caller.
func CurrentLoop(ctx context.Context) (*Loop, error) {
	task, err := runningTask(ctx)
	if err != nil {
		return nil, err
	}

	v, err := task.trap(trap{kind: TrapCurrentLoop})
	if err != nil {
		return nil, err
	}
	return v.(*Loop), nil
}
