package nanoio

import (
	"bytes"
	"context"
	"fmt"
)

// RecvUntil reads from s until delim is seen, maxSize bytes have been
// buffered or the peer shuts down, reading at most chunkSize bytes at
// a time.
//
// If delim is found at offset i, RecvUntil returns the bytes up to and
// including delim together with i, and keeps whatever was read past
// delim for the next call on the same socket. Otherwise it returns
// everything buffered and -1, leaving nothing behind.
//
// Bytes read before the call returns, including those of a call whose
// task is abandoned while it waits, stay on s for the next call.
func RecvUntil(ctx context.Context, s *Socket, delim []byte, maxSize, chunkSize int) ([]byte, int, error) {
	if _, err := runningTask(ctx); err != nil {
		return nil, -1, err
	}
	if len(delim) == 0 || chunkSize <= 0 {
		return nil, -1, fmt.Errorf("%w: delimiter %q, chunk size %d", ErrInvalidArgument, delim, chunkSize)
	}

	i := bytes.Index(s.rbuf, delim)
	for i < 0 && len(s.rbuf) < maxSize {
		chunk, err := Recv(ctx, s, chunkSize)
		if err != nil {
			return nil, -1, err
		}
		if len(chunk) == 0 {
			break
		}

		// Only the tail can hold a match that the new chunk completes.
		from := max(0, len(s.rbuf)-len(delim)+1)
		s.rbuf = append(s.rbuf, chunk...)
		if j := bytes.Index(s.rbuf[from:], delim); j >= 0 {
			i = from + j
		}
	}

	buf := s.rbuf
	s.rbuf = nil

	if i < 0 {
		if buf == nil {
			buf = []byte{}
		}
		return buf, -1, nil
	}

	end := i + len(delim)
	if end < len(buf) {
		s.rbuf = bytes.Clone(buf[end:])
	}
	return buf[:end:end], i, nil
}
