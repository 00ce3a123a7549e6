package nanoio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errBoo = errors.New("boo")

func TestRun(t *testing.T) {
	r := require.New(t)

	boo := func(fail bool) func(context.Context) (int, error) {
		return func(context.Context) (int, error) {
			if fail {
				return 0, errBoo
			}
			return 10, nil
		}
	}

	v, err := Run(context.Background(), boo(false))
	r.NoError(err)
	r.Equal(10, v)

	_, err = Run(context.Background(), boo(true))
	r.ErrorIs(err, errBoo)
}

func TestRunNilInterfaceResult(t *testing.T) {
	r := require.New(t)

	v, err := Run(context.Background(), func(context.Context) (error, error) {
		return nil, nil
	})
	r.NoError(err)
	r.Nil(v)
}

func TestRunPanic(t *testing.T) {
	r := require.New(t)

	_, err := Run(context.Background(), func(context.Context) (int, error) {
		panic("UH OH")
	})

	var pe *PanicError
	r.ErrorAs(err, &pe)
	r.Equal("UH OH", pe.Value)
}

func TestBackgroundFailuresDoNotPropagate(t *testing.T) {
	r := require.New(t)

	loop := New()
	var result []any

	foo := func(value int) Func {
		return func(context.Context) (any, error) {
			result = append(result, value)
			return nil, errBoo
		}
	}

	boo := func(value int) Func {
		return func(ctx context.Context) (any, error) {
			if _, err := Spawn(ctx, foo(value)); err != nil {
				return nil, err
			}
			l, err := CurrentLoop(ctx)
			if err != nil {
				return nil, err
			}
			result = append(result, l)
			return nil, nil
		}
	}

	loop.Spawn(boo(1))
	loop.Spawn(boo(2))

	v, err := runLoop(t, loop, nil)
	r.NoError(err)
	r.Nil(v)
	r.Equal([]any{loop, loop, 1, 2}, result)
}

func TestSynchronousTrapsDoNotInterleave(t *testing.T) {
	r := require.New(t)

	var order []string
	_, err := runLoop(t, New(), func(ctx context.Context) (any, error) {
		if _, err := Spawn(ctx, func(context.Context) (any, error) {
			order = append(order, "child")
			return nil, nil
		}); err != nil {
			return nil, err
		}
		for i := 0; i < 3; i++ {
			if _, err := CurrentLoop(ctx); err != nil {
				return nil, err
			}
			order = append(order, "parent")
		}
		return nil, nil
	})
	r.NoError(err)
	r.Equal([]string{"parent", "parent", "parent"}, order)
}

func TestMainReturnsBeforeBackgroundRuns(t *testing.T) {
	r := require.New(t)

	ran := false
	v, err := runLoop(t, New(), func(ctx context.Context) (any, error) {
		_, err := Spawn(ctx, func(context.Context) (any, error) {
			ran = true
			return nil, nil
		})
		return "main", err
	})
	r.NoError(err)
	r.Equal("main", v)
	r.False(ran)
}

func TestEmptyRun(t *testing.T) {
	r := require.New(t)

	v, err := runLoop(t, New(), nil)
	r.NoError(err)
	r.Nil(v)
}

func TestRunTwice(t *testing.T) {
	r := require.New(t)

	loop := New()
	_, err := runLoop(t, loop, nil)
	r.NoError(err)

	_, err = loop.Run(nil)
	r.ErrorIs(err, ErrLoopClosed)
}

func TestSpawnAfterRun(t *testing.T) {
	r := require.New(t)

	loop := New()
	_, err := runLoop(t, loop, func(context.Context) (any, error) { return nil, nil })
	r.NoError(err)

	ran := false
	late := loop.Spawn(func(context.Context) (any, error) {
		ran = true
		return nil, nil
	})

	_, err = late.Result()
	r.ErrorIs(err, ErrLoopClosed)
	r.Equal(StateFailed, late.State())
	r.Same(loop, late.Loop())
	r.False(ran)
}

func TestOutsideTask(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	_, err := Spawn(ctx, func(context.Context) (any, error) { return nil, nil })
	r.ErrorIs(err, ErrNoTask)

	_, err = CurrentLoop(ctx)
	r.ErrorIs(err, ErrNoTask)

	var escaped context.Context
	_, err = Run(ctx, func(ctx context.Context) (int, error) {
		escaped = ctx
		return 0, nil
	})
	r.NoError(err)

	task, ok := TaskFromContext(escaped)
	r.True(ok)
	r.Equal(StateDone, task.State())

	_, err = CurrentLoop(escaped)
	r.ErrorIs(err, ErrNotRunning)
}

func TestTaskHandles(t *testing.T) {
	r := require.New(t)

	loop := New()
	var child *Task

	v, err := runLoop(t, loop, func(ctx context.Context) (any, error) {
		self, _ := TaskFromContext(ctx)

		var err error
		child, err = Spawn(ctx, func(context.Context) (any, error) {
			return nil, errBoo
		})
		if err != nil {
			return nil, err
		}
		return self.ID(), nil
	})
	r.NoError(err)
	r.Equal(uint64(1), v)

	r.Equal(uint64(2), child.ID())
	r.Same(loop, child.Loop())
	r.Equal(StateReady, child.State())
}

func TestBackgroundTaskResult(t *testing.T) {
	r := require.New(t)

	loop := New()
	ok := loop.Spawn(func(context.Context) (any, error) { return 42, nil })
	bad := loop.Spawn(func(context.Context) (any, error) { return nil, errBoo })
	boom := loop.Spawn(func(context.Context) (any, error) { panic(errBoo) })

	_, err := runLoop(t, loop, nil)
	r.NoError(err)

	v, err := ok.Result()
	r.Equal(StateDone, ok.State())
	r.NoError(err)
	r.Equal(42, v)

	_, err = bad.Result()
	r.Equal(StateFailed, bad.State())
	r.ErrorIs(err, errBoo)

	_, err = boom.Result()
	r.Equal(StateFailed, boom.State())
	var pe *PanicError
	r.ErrorAs(err, &pe)
	r.Same(errBoo, pe.Value)
	r.ErrorIs(err, errBoo)
}

func TestAbandonedTasks(t *testing.T) {
	r := require.New(t)

	a, _ := socketpair(t)

	loop := New()
	waiter := loop.Spawn(func(ctx context.Context) (any, error) {
		_, err := Recv(ctx, a, 16)
		return nil, err
	})

	v, err := runLoop(t, loop, func(context.Context) (any, error) {
		return "done", nil
	})
	r.NoError(err)
	r.Equal("done", v)
	r.Equal(StateWaiting, waiter.State())
}

type recordingObserver struct {
	spawned  int
	finished int
	traps    map[TrapKind]int
	polls    int
}

func (o *recordingObserver) TaskSpawned(*Task)  { o.spawned++ }
func (o *recordingObserver) TaskFinished(*Task) { o.finished++ }

func (o *recordingObserver) TrapYielded(kind TrapKind) {
	if o.traps == nil {
		o.traps = make(map[TrapKind]int)
	}
	o.traps[kind]++
}

func (o *recordingObserver) Polled(woken int, _ time.Duration) {
	o.polls++
}

func TestObserver(t *testing.T) {
	r := require.New(t)

	a, b := socketpair(t)
	obs := new(recordingObserver)
	loop := New(WithObserver(obs))

	loop.Spawn(func(ctx context.Context) (any, error) {
		return nil, SendAll(ctx, a, []byte("ping"))
	})

	_, err := runLoop(t, loop, func(ctx context.Context) (any, error) {
		if _, err := CurrentLoop(ctx); err != nil {
			return nil, err
		}
		if _, err := Spawn(ctx, func(context.Context) (any, error) { return nil, nil }); err != nil {
			return nil, err
		}
		if _, err := Recv(ctx, b, 4); err != nil {
			return nil, err
		}
		return nil, nil
	})
	r.NoError(err)

	r.Equal(3, obs.spawned)
	r.Equal(1, obs.traps[TrapSpawn])
	r.Equal(1, obs.traps[TrapCurrentLoop])
	r.GreaterOrEqual(obs.finished, 2)
}

func TestLoggerReportsBackgroundFailures(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	loop := New(WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	loop.Spawn(func(context.Context) (any, error) { return nil, errBoo })

	_, err := runLoop(t, loop, nil)
	r.NoError(err)
	r.Contains(buf.String(), "background task failed")
	r.Contains(buf.String(), errBoo.Error())
}

func TestWithContextValues(t *testing.T) {
	r := require.New(t)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")

	v, err := Run(ctx, func(ctx context.Context) (any, error) {
		return ctx.Value(key{}), nil
	})
	r.NoError(err)
	r.Equal("value", v)
}

func TestTrapKindString(t *testing.T) {
	r := require.New(t)

	r.Equal("spawn", TrapSpawn.String())
	r.Equal("current_loop", TrapCurrentLoop.String())
	r.Equal("wait_readable", TrapWaitReadable.String())
	r.Equal("wait_writable", TrapWaitWritable.String())
	r.Equal("TrapKind(9)", TrapKind(9).String())
	r.Equal("failed", StateFailed.String())
}
