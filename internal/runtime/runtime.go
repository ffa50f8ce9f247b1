package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/codecbench/internal/bus"
	"github.com/loqalabs/codecbench/internal/codec"
	"github.com/loqalabs/codecbench/internal/config"
	"github.com/loqalabs/codecbench/internal/engine"
	"github.com/loqalabs/codecbench/internal/natsserver"
	"github.com/loqalabs/codecbench/internal/noise"
	"github.com/loqalabs/codecbench/internal/report"
	"github.com/loqalabs/codecbench/internal/resultstore"
)

type codecFactory func(config.CodecConfig, *slog.Logger) (codec.Client, error)

// Runtime wires configuration, telemetry, persistence and the evaluation
// engine into one run.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
	newCodec   codecFactory
	results    *engine.Results
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		newCodec: codec.New,
	}
}

// Results returns what the last Start produced, or nil.
func (r *Runtime) Results() *engine.Results {
	return r.results
}

// Start runs one full evaluation. Interruption returns the context error
// after the completed groups have been reported.
func (r *Runtime) Start(ctx context.Context) error {
	defs, err := noise.FromConfig(r.cfg.Noise)
	if err != nil {
		return fmt.Errorf("invalid noise catalogue: %w", err)
	}
	cases, err := noise.Expand(defs)
	if err != nil {
		return fmt.Errorf("invalid noise catalogue: %w", err)
	}
	r.logger.Info("test matrix ready", slog.Int("cases", len(cases)), slog.Int("definitions", len(defs)))

	shutdownTelemetry, metricHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	if r.cfg.HTTP.Enabled {
		r.startHTTP(metricHandler)
		defer r.stopHTTP()
	}

	store, err := resultstore.Open(ctx, r.cfg.ResultStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.logger.Warn("result store close error", slog.String("error", err.Error()))
		}
	}()

	observers := []engine.Observer{
		engine.LogObserver(r.logger, r.cfg.Evaluation.Verbose),
		store.Observer(ctx),
	}

	if r.cfg.Bus.Enabled {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return err
		}
		defer embedded.Shutdown()

		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return err
		}
		defer client.Close()
		observers = append(observers, bus.NewPublisher(client.Conn(), busCfg.SubjectPrefix, r.logger))
	}

	client, err := r.newCodec(r.cfg.Codec, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create codec client: %w", err)
	}
	defer func() {
		if err := codec.Close(context.Background(), client); err != nil {
			r.logger.Warn("codec close error", slog.String("error", err.Error()))
		}
	}()
	interval := time.Duration(r.cfg.Codec.PingIntervalMS) * time.Millisecond
	if err := codec.WaitReady(ctx, client, r.cfg.Codec.PingAttempts, interval, r.logger); err != nil {
		return err
	}
	r.ready.Store(true)
	defer r.ready.Store(false)

	eng := engine.New(client, cases, engine.Options{
		Seed:       r.cfg.Evaluation.Seed,
		Workers:    r.cfg.Evaluation.Workers,
		SampleRate: r.cfg.Codec.SampleRate,
		Logger:     r.logger,
		Observers:  observers,
	})

	res, runErr := eng.Run(ctx, r.cfg.Evaluation.Groups, r.cfg.Evaluation.StringsPerGroup)
	r.results = res
	if res == nil {
		return runErr
	}

	report.LogSummary(r.logger, res)
	if err := report.WriteAll(r.cfg.Report, res, r.logger); err != nil {
		if runErr != nil {
			return errors.Join(runErr, err)
		}
		return err
	}
	return runErr
}

func (r *Runtime) startHTTP(metrics http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("http server started", slog.String("addr", addr))
}

func (r *Runtime) stopHTTP() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
