package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loqalabs/codecbench/internal/config"
	"github.com/loqalabs/codecbench/internal/engine"
	"github.com/loqalabs/codecbench/internal/runtime"
)

var version = "0.1.0-dev"

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults plus CODECBENCH_* env when empty)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := newLogger("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger = newLogger(cfg.Telemetry.LogLevel)

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		if engine.IsInterrupted(err) {
			logger.Warn("evaluation interrupted")
			stop()
			os.Exit(exitInterrupted)
		}
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}

	logger.Info("evaluation complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
