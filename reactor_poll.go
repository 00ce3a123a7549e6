//go:build unix && !linux

package nanoio

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// pollReactor rebuilds a poll(2) set from the wait set on every poll.
type pollReactor struct {
	waiters waitSet
	fds     []unix.PollFd
}

func newReactor() (reactor, error) {
	return new(pollReactor), nil
}

func (r *pollReactor) wait(fd int, dir direction, task *Task) error {
	return r.waiters.add(fd, dir, task)
}

func (r *pollReactor) poll() ([]*Task, error) {
	for {
		r.fds = r.fds[:0]
		for _, fd := range r.waiters.sorted() {
			var events int16
			read, write := r.waiters.wants(fd)
			if read {
				events |= unix.POLLIN
			}
			if write {
				events |= unix.POLLOUT
			}
			r.fds = append(r.fds, unix.PollFd{Fd: int32(fd), Events: events})
		}

		_, err := unix.Poll(r.fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}

		var ready []*Task
		for _, pfd := range r.fds {
			if pfd.Revents == 0 {
				continue
			}
			broken := pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0
			ready = r.waiters.wake(
				int(pfd.Fd),
				broken || pfd.Revents&unix.POLLIN != 0,
				broken || pfd.Revents&unix.POLLOUT != 0,
				ready,
			)
		}

		if len(ready) > 0 {
			sortBatch(ready)
			return ready, nil
		}
	}
}

func (r *pollReactor) len() int {
	return r.waiters.len()
}

func (r *pollReactor) drain() []*Task {
	return r.waiters.drain()
}

func (r *pollReactor) close() error {
	return nil
}
