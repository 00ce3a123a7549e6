package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/webriots/nanoio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHandleEchoesUntilEOF(t *testing.T) {
	r := require.New(t)

	a, b, err := nanoio.Socketpair()
	r.NoError(err)
	defer a.Close()
	r.NoError(a.SetNonblock(true))
	r.NoError(b.SetNonblock(true))

	srv := &server{readSize: 3, log: zerolog.New(zerolog.NewTestWriter(t))}

	got, err := nanoio.Run(context.Background(), func(ctx context.Context) ([]byte, error) {
		if _, err := nanoio.Spawn(ctx, srv.handle(b, nil)); err != nil {
			return nil, err
		}
		if err := nanoio.SendAll(ctx, a, []byte("hello, world")); err != nil {
			return nil, err
		}
		if err := a.ShutdownWrite(); err != nil {
			return nil, err
		}

		var out []byte
		for {
			data, err := nanoio.Recv(ctx, a, 64)
			if err != nil {
				return nil, err
			}
			if len(data) == 0 {
				return out, nil
			}
			out = append(out, data...)
		}
	})
	r.NoError(err)
	r.Equal("hello, world", string(got))
}

func TestServeStopsAfterMaxConns(t *testing.T) {
	r := require.New(t)

	ln, err := nanoio.Listen("127.0.0.1:0", 16)
	r.NoError(err)
	defer ln.Close()
	r.NoError(ln.SetNonblock(true))

	addr, err := ln.LocalAddr()
	r.NoError(err)

	msgs := [][]byte{
		[]byte("hello"),
		bytes.Repeat([]byte("x"), 1<<16),
		[]byte("bye\n"),
	}

	srv := &server{
		ln:       ln,
		readSize: 7,
		maxConns: len(msgs),
		log:      zerolog.New(zerolog.NewTestWriter(t)),
	}

	var g errgroup.Group
	g.Go(func() error {
		loop := nanoio.New()
		loop.Spawn(srv.serve)
		_, err := loop.Run(nil)
		return err
	})

	for _, msg := range msgs {
		g.Go(func() error {
			return echo(addr.String(), msg)
		})
	}

	r.NoError(g.Wait())
}

func echo(addr string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	tcp := conn.(*net.TCPConn)
	if err := tcp.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}

	werr := make(chan error, 1)
	go func() {
		_, err := tcp.Write(msg)
		if err == nil {
			err = tcp.CloseWrite()
		}
		werr <- err
	}()

	got, err := io.ReadAll(tcp)
	if err := <-werr; err != nil {
		return err
	}
	if err != nil {
		return err
	}
	if !bytes.Equal(got, msg) {
		return fmt.Errorf("echoed %d bytes, sent %d", len(got), len(msg))
	}
	return nil
}

func TestRunStopsAfterMaxConns(t *testing.T) {
	r := require.New(t)

	free, err := net.Listen("tcp", "127.0.0.1:0")
	r.NoError(err)
	addr := free.Addr().String()
	r.NoError(free.Close())

	cfg := config{Addr: addr, Backlog: 4, ReadSize: 16, MaxConns: 1, LogLevel: zerolog.Disabled}

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), cfg, zerolog.Nop()) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		err = echo(addr, []byte("ping\n"))
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.NoError(err)

	select {
	case err := <-done:
		r.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	_, err = net.DialTimeout("tcp", addr, time.Second)
	r.Error(err)
}
