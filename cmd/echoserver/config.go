package main

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

const envPrefix = "NANOIO_"

type config struct {
	Addr        string
	Backlog     int
	ReadSize    int
	MaxConns    int
	MetricsAddr string
	LogLevel    zerolog.Level
}

// loadConfig reads flags from args. Every flag defaults to the
// matching NANOIO_ environment variable when set.
func loadConfig(args []string, getenv func(string) string) (config, error) {
	var cfg config

	env := func(name, def string) string {
		if v := getenv(envPrefix + name); v != "" {
			return v
		}
		return def
	}
	envInt := func(name string, def int) (int, error) {
		v := getenv(envPrefix + name)
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		return n, nil
	}

	backlog, err := envInt("BACKLOG", 100)
	if err != nil {
		return cfg, err
	}
	readSize, err := envInt("READ_SIZE", 200)
	if err != nil {
		return cfg, err
	}
	maxConns, err := envInt("MAX_CONNS", 0)
	if err != nil {
		return cfg, err
	}

	fs := flag.NewFlagSet("echoserver", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", env("ADDR", "127.0.0.1:25000"), "listen address (literal IP and port)")
	fs.IntVar(&cfg.Backlog, "backlog", backlog, "listen backlog")
	fs.IntVar(&cfg.ReadSize, "read-size", readSize, "bytes read per receive")
	fs.IntVar(&cfg.MaxConns, "max-conns", maxConns, "stop accepting after this many connections (0 is unlimited)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", env("METRICS_ADDR", ""), "serve Prometheus metrics on this address")
	level := fs.String("log-level", env("LOG_LEVEL", "info"), "log level")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.LogLevel, err = zerolog.ParseLevel(*level); err != nil {
		return cfg, err
	}
	if cfg.Backlog <= 0 {
		return cfg, fmt.Errorf("backlog must be positive, got %d", cfg.Backlog)
	}
	if cfg.ReadSize <= 0 {
		return cfg, fmt.Errorf("read size must be positive, got %d", cfg.ReadSize)
	}
	if cfg.MaxConns < 0 {
		return cfg, fmt.Errorf("max conns must not be negative, got %d", cfg.MaxConns)
	}
	return cfg, nil
}
