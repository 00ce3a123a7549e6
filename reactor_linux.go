//go:build linux

package nanoio

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const epollMaxEvents = 128

// epollReactor is a level-triggered epoll(7) reactor. The epoll
// interest set mirrors the wait set: a descriptor is registered for
// exactly the directions it has waiters for and removed once it has
// none.
type epollReactor struct {
	epfd       int
	waiters    waitSet
	registered map[int]uint32
	events     [epollMaxEvents]unix.EpollEvent
}

func newReactor() (reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{
		epfd:       epfd,
		registered: make(map[int]uint32),
	}, nil
}

func (r *epollReactor) wait(fd int, dir direction, task *Task) error {
	if err := r.waiters.add(fd, dir, task); err != nil {
		return err
	}
	if err := r.sync(fd); err != nil {
		r.waiters.remove(fd, dir)
		return err
	}
	return nil
}

// sync brings the epoll registration of fd in line with its waiters.
func (r *epollReactor) sync(fd int) error {
	var want uint32
	read, write := r.waiters.wants(fd)
	if read {
		want |= unix.EPOLLIN
	}
	if write {
		want |= unix.EPOLLOUT
	}

	have, ok := r.registered[fd]
	switch {
	case want == 0 && !ok:
		return nil

	case want == 0:
		delete(r.registered, fd)
		// The descriptor may already be closed, which removed it from
		// the epoll set.
		err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
			return fmt.Errorf("epoll ctl del: %w", err)
		}
		return nil

	case want == have:
		return nil
	}

	ev := unix.EpollEvent{Events: want, Fd: int32(fd)}
	op := unix.EPOLL_CTL_MOD
	if !ok {
		op = unix.EPOLL_CTL_ADD
	}

	err := unix.EpollCtl(r.epfd, op, fd, &ev)
	switch {
	case op == unix.EPOLL_CTL_MOD && errors.Is(err, unix.ENOENT):
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	case op == unix.EPOLL_CTL_ADD && errors.Is(err, unix.EEXIST):
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	if err != nil {
		return fmt.Errorf("epoll ctl: %w", err)
	}

	r.registered[fd] = want
	return nil
}

func (r *epollReactor) poll() ([]*Task, error) {
	for {
		n, err := unix.EpollWait(r.epfd, r.events[:], -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll wait: %w", err)
		}

		var ready []*Task
		for _, ev := range r.events[:n] {
			fd := int(ev.Fd)
			broken := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
			ready = r.waiters.wake(
				fd,
				broken || ev.Events&unix.EPOLLIN != 0,
				broken || ev.Events&unix.EPOLLOUT != 0,
				ready,
			)
			if err := r.sync(fd); err != nil {
				return nil, err
			}
		}

		if len(ready) > 0 {
			sortBatch(ready)
			return ready, nil
		}
	}
}

func (r *epollReactor) len() int {
	return r.waiters.len()
}

func (r *epollReactor) drain() []*Task {
	tasks := r.waiters.drain()
	for fd := range r.registered {
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	clear(r.registered)
	return tasks
}

func (r *epollReactor) close() error {
	return unix.Close(r.epfd)
}
