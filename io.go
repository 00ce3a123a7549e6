package nanoio

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Accept accepts a connection on the listening socket s, suspending
// the calling task until one is pending. The returned socket is
// close-on-exec and in the system's default (blocking) mode.
func Accept(ctx context.Context, s *Socket) (*Socket, net.Addr, error) {
	task, err := runningTask(ctx)
	if err != nil {
		return nil, nil, err
	}

	for {
		fd, sa, err := unix.Accept(s.fd)
		switch {
		case err == nil:
			unix.CloseOnExec(fd)
			return NewSocket(fd), netAddr(sa), nil

		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):

		case errors.Is(err, unix.EAGAIN):
			if err := task.wait(TrapWaitReadable, s.fd); err != nil {
				return nil, nil, err
			}

		default:
			return nil, nil, fmt.Errorf("nanoio: accept: %w", err)
		}
	}
}

// Recv reads up to n bytes from s, suspending the calling task until
// s is readable if no data is available. An empty, non-nil result
// means the peer has shut down its sending side.
func Recv(ctx context.Context, s *Socket, n int) ([]byte, error) {
	task, err := runningTask(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: recv size %d", ErrInvalidArgument, n)
	}

	buf := make([]byte, n)
	for {
		m, err := unix.Read(s.fd, buf)
		switch {
		case err == nil:
			return buf[:m], nil

		case errors.Is(err, unix.EINTR):

		case errors.Is(err, unix.EAGAIN):
			if err := task.wait(TrapWaitReadable, s.fd); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("nanoio: recv: %w", err)
		}
	}
}

// Send writes data to s with a single write, suspending the calling
// task until s is writable if its buffer is full. It returns the
// number of bytes written, which may be less than len(data).
func Send(ctx context.Context, s *Socket, data []byte) (int, error) {
	task, err := runningTask(ctx)
	if err != nil {
		return 0, err
	}

	for {
		n, err := unix.Write(s.fd, data)
		switch {
		case err == nil:
			return n, nil

		case errors.Is(err, unix.EINTR):

		case errors.Is(err, unix.EAGAIN):
			if err := task.wait(TrapWaitWritable, s.fd); err != nil {
				return 0, err
			}

		default:
			return 0, fmt.Errorf("nanoio: send: %w", err)
		}
	}
}

// SendAll writes all of data to s, calling Send until nothing is
// left.
func SendAll(ctx context.Context, s *Socket, data []byte) error {
	if _, err := runningTask(ctx); err != nil {
		return err
	}

	for off := 0; off < len(data); {
		n, err := Send(ctx, s, data[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}
