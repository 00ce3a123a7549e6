package nanoio

import (
	"cmp"
	"slices"
)

// reactor parks tasks on file descriptor readiness. Each (fd,
// direction) pair has at most one waiting task, and a task is handed
// back by poll exactly once per wait.
type reactor interface {
	// wait records that task is waiting for fd to be ready in dir.
	wait(fd int, dir direction, task *Task) error
	// poll blocks until at least one interest is ready and returns the
	// tasks waiting on them, with their interests cleared.
	poll() ([]*Task, error)
	// len returns the number of registered interests.
	len() int
	// drain removes and returns every waiting task.
	drain() []*Task
	close() error
}

// waitSet is the bookkeeping shared by the platform reactors.
type waitSet struct {
	fds map[int]*[2]*Task
	n   int
}

func (w *waitSet) add(fd int, dir direction, task *Task) error {
	if w.fds == nil {
		w.fds = make(map[int]*[2]*Task)
	}

	slot, ok := w.fds[fd]
	if !ok {
		slot = new([2]*Task)
		w.fds[fd] = slot
	}
	if slot[dir] != nil {
		return ErrAlreadyWaiting
	}

	slot[dir] = task
	w.n++
	return nil
}

func (w *waitSet) remove(fd int, dir direction) {
	slot, ok := w.fds[fd]
	if !ok || slot[dir] == nil {
		return
	}
	slot[dir] = nil
	w.n--
	if slot[dirRead] == nil && slot[dirWrite] == nil {
		delete(w.fds, fd)
	}
}

// wants reports which directions fd has waiters for.
func (w *waitSet) wants(fd int) (read, write bool) {
	slot, ok := w.fds[fd]
	if !ok {
		return false, false
	}
	return slot[dirRead] != nil, slot[dirWrite] != nil
}

// wake appends the waiters of fd selected by read and write to out and
// removes their interests.
func (w *waitSet) wake(fd int, read, write bool, out []*Task) []*Task {
	slot, ok := w.fds[fd]
	if !ok {
		return out
	}
	if read && slot[dirRead] != nil {
		out = append(out, slot[dirRead])
		w.remove(fd, dirRead)
	}
	if write && slot[dirWrite] != nil {
		out = append(out, slot[dirWrite])
		w.remove(fd, dirWrite)
	}
	return out
}

// sorted returns the registered descriptors in ascending order.
func (w *waitSet) sorted() []int {
	fds := make([]int, 0, len(w.fds))
	for fd := range w.fds {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	return fds
}

func (w *waitSet) drain() []*Task {
	var tasks []*Task
	for _, fd := range w.sorted() {
		tasks = w.wake(fd, true, true, tasks)
	}
	return tasks
}

func (w *waitSet) len() int {
	return w.n
}

// sortBatch orders tasks woken by one poll by descriptor, readers
// before writers, so that a batch is resumed in a stable order.
func sortBatch(tasks []*Task) {
	slices.SortFunc(tasks, func(a, b *Task) int {
		if c := cmp.Compare(a.fd, b.fd); c != 0 {
			return c
		}
		return cmp.Compare(a.dir, b.dir)
	})
}
