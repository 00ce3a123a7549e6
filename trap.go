package nanoio

import "fmt"

// TrapKind identifies what a suspended task asks of its loop.
type TrapKind uint8

const (
	// TrapSpawn asks the loop to create a new task. Answered
	// synchronously with the new *Task.
	TrapSpawn TrapKind = iota + 1
	// TrapCurrentLoop asks for the loop stepping the task. Answered
	// synchronously.
	TrapCurrentLoop
	// TrapWaitReadable parks the task until its fd is readable.
	TrapWaitReadable
	// TrapWaitWritable parks the task until its fd is writable.
	TrapWaitWritable
)

func (k TrapKind) String() string {
	switch k {
	case TrapSpawn:
		return "spawn"
	case TrapCurrentLoop:
		return "current_loop"
	case TrapWaitReadable:
		return "wait_readable"
	case TrapWaitWritable:
		return "wait_writable"
	default:
		return fmt.Sprintf("TrapKind(%d)", uint8(k))
	}
}

// trap is the value a task yields to its loop.
type trap struct {
	kind TrapKind
	fd   int
	fn   Func
}

// wake is the value a task is resumed with.
type wake struct {
	val any
	err error
}

// direction is the readiness a reactor interest waits for.
type direction uint8

const (
	dirRead direction = iota
	dirWrite
)

func (d direction) String() string {
	if d == dirWrite {
		return "write"
	}
	return "read"
}

func trapDirection(k TrapKind) direction {
	if k == TrapWaitWritable {
		return dirWrite
	}
	return dirRead
}
