package nanoio

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Socket is a caller-owned stream socket. The runtime never changes
// its blocking mode; the suspending operations require it to be
// non-blocking (see SetNonblock).
//
// A Socket also holds the bytes RecvUntil read past the last
// delimiter, so it must be shared by pointer.
type Socket struct {
	noCopy noCopy
	fd     int
	rbuf   []byte
}

// NewSocket wraps an open stream socket descriptor.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// Socketpair returns a pair of connected Unix domain stream sockets in
// blocking mode.
func Socketpair() (*Socket, *Socket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("nanoio: socketpair: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return NewSocket(fds[0]), NewSocket(fds[1]), nil
}

// Listen creates a TCP socket bound to addr ("host:port" with a
// literal IP) with SO_REUSEADDR set and listening with the given
// backlog. The socket is in blocking mode.
func Listen(addr string, backlog int) (*Socket, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, fmt.Errorf("nanoio: listen %s: %w", addr, err)
	}

	s, err := newTCPSocket(ap)
	if err != nil {
		return nil, fmt.Errorf("nanoio: listen %s: %w", addr, err)
	}

	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("nanoio: listen %s: setsockopt: %w", addr, err)
	}
	if err := unix.Bind(s.fd, sockaddr(ap)); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("nanoio: listen %s: bind: %w", addr, err)
	}
	if err := unix.Listen(s.fd, backlog); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("nanoio: listen %s: %w", addr, err)
	}
	return s, nil
}

// Dial connects a new TCP socket to addr, blocking until the
// connection is established. The socket is left in blocking mode.
func Dial(addr string) (*Socket, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, fmt.Errorf("nanoio: dial %s: %w", addr, err)
	}

	s, err := newTCPSocket(ap)
	if err != nil {
		return nil, fmt.Errorf("nanoio: dial %s: %w", addr, err)
	}

	for {
		err = unix.Connect(s.fd, sockaddr(ap))
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("nanoio: dial %s: %w", addr, err)
	}
	return s, nil
}

func newTCPSocket(ap netip.AddrPort) (*Socket, error) {
	family := unix.AF_INET6
	if ap.Addr().Unmap().Is4() {
		family = unix.AF_INET
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return NewSocket(fd), nil
}

func sockaddr(ap netip.AddrPort) unix.Sockaddr {
	if addr := ap.Addr().Unmap(); addr.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
}

// netAddr converts a socket address into a net.Addr, or nil for
// families that have no net equivalent.
func netAddr(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]).To16(), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append(net.IP(nil), sa.Addr[:]...), Port: sa.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: sa.Name, Net: "unix"}
	default:
		return nil
	}
}

// Fd returns the socket's file descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

// SetNonblock switches the socket's blocking mode.
func (s *Socket) SetNonblock(nonblocking bool) error {
	if err := unix.SetNonblock(s.fd, nonblocking); err != nil {
		return fmt.Errorf("nanoio: set nonblock: %w", err)
	}
	return nil
}

// SetSendBuffer sets SO_SNDBUF.
func (s *Socket) SetSendBuffer(bytes int) error {
	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bytes); err != nil {
		return fmt.Errorf("nanoio: set send buffer: %w", err)
	}
	return nil
}

// SetRecvBuffer sets SO_RCVBUF.
func (s *Socket) SetRecvBuffer(bytes int) error {
	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes); err != nil {
		return fmt.Errorf("nanoio: set recv buffer: %w", err)
	}
	return nil
}

// ShutdownWrite shuts down the sending side; the peer reads EOF.
func (s *Socket) ShutdownWrite() error {
	if err := unix.Shutdown(s.fd, unix.SHUT_WR); err != nil {
		return fmt.Errorf("nanoio: shutdown: %w", err)
	}
	return nil
}

// ShutdownRead shuts down the receiving side.
func (s *Socket) ShutdownRead() error {
	if err := unix.Shutdown(s.fd, unix.SHUT_RD); err != nil {
		return fmt.Errorf("nanoio: shutdown: %w", err)
	}
	return nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() (net.Addr, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, fmt.Errorf("nanoio: getsockname: %w", err)
	}
	return netAddr(sa), nil
}

// Buffered returns the number of bytes RecvUntil holds for the next
// call.
func (s *Socket) Buffered() int {
	return len(s.rbuf)
}

// Close closes the descriptor and drops any buffered bytes. A task
// still waiting on the socket is not woken.
func (s *Socket) Close() error {
	s.rbuf = nil
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("nanoio: close: %w", err)
	}
	return nil
}
