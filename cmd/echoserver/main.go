// Command echoserver is a TCP echo server running on a single nanoio
// loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/webriots/nanoio"
	"github.com/webriots/nanoio/metrics"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "echoserver:", err)
		os.Exit(2)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("echo server stopped")
	}
}

// run serves until the loop finishes, a signal arrives or the metrics
// endpoint fails. The loop cannot be interrupted, so in the last two
// cases run returns without waiting for it and the process is expected
// to exit. The listener is closed only by the loop goroutine, after
// the loop has stopped polling it.
func run(ctx context.Context, cfg config, log zerolog.Logger) error {
	ln, err := nanoio.Listen(cfg.Addr, cfg.Backlog)
	if err != nil {
		return err
	}

	if err := ln.SetNonblock(true); err != nil {
		_ = ln.Close()
		return err
	}

	collector := metrics.New("nanoio")
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	srv := &server{ln: ln, readSize: cfg.ReadSize, maxConns: cfg.MaxConns, log: log}
	g.Go(func() error {
		defer cancel()
		defer close(loopDone)
		defer ln.Close()

		log.Info().Str("addr", cfg.Addr).Msg("echo server listening")
		loop := nanoio.New(nanoio.WithLogger(log), nanoio.WithObserver(collector))
		loop.Spawn(srv.serve)
		_, err := loop.Run(nil)
		return err
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, reg, log)
		})
	}

	<-gctx.Done()
	select {
	case <-loopDone:
		return g.Wait()
	default:
	}

	if err := context.Cause(gctx); !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shutting down")
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listening")
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
