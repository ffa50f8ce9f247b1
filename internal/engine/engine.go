package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/codecbench/internal/codec"
	"github.com/loqalabs/codecbench/internal/noise"
	"github.com/loqalabs/codecbench/internal/payload"
	"github.com/loqalabs/codecbench/internal/waveform"
)

type Options struct {
	// Seed fixes payloads and stochastic noise; 0 picks a random seed.
	Seed uint64
	// Workers bounds concurrent noise cases per payload. Values below 2 keep
	// evaluation strictly sequential.
	Workers    int
	SampleRate int
	Logger     *slog.Logger
	Observers  []Observer
}

// Engine evaluates a codec against a fixed test matrix.
type Engine struct {
	codec     codec.Codec
	cases     []noise.TestCase
	opts      Options
	log       *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics
	observers []Observer
}

func New(c codec.Codec, cases []noise.TestCase, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = waveform.SampleRate
	}
	if opts.Seed == 0 {
		opts.Seed = payload.RandomSeed()
	}
	log := opts.Logger.With(slog.String("component", "engine"))
	return &Engine{
		codec:     c,
		cases:     cases,
		opts:      opts,
		log:       log,
		tracer:    otel.Tracer("github.com/loqalabs/codecbench/engine"),
		metrics:   newMetrics(log),
		observers: opts.Observers,
	}
}

// Cases returns the test matrix the engine runs for every payload.
func (e *Engine) Cases() []noise.TestCase { return e.cases }

// Run evaluates perGroup payloads for each length in groups, in order. On
// cancellation it returns the groups that completed, with Interrupted set,
// together with the context error.
func (e *Engine) Run(ctx context.Context, groups []int, perGroup int) (*Results, error) {
	res := &Results{
		RunID:     uuid.NewString(),
		Seed:      e.opts.Seed,
		StartedAt: time.Now().UTC(),
		CaseCount: len(e.cases),
	}
	root := rand.New(rand.NewPCG(e.opts.Seed, e.opts.Seed>>1|1))
	payloads := payload.New(root.Uint64())
	noiseRng := rand.New(rand.NewPCG(root.Uint64(), root.Uint64()))

	e.log.Info("evaluation started",
		slog.String("run_id", res.RunID),
		slog.Uint64("seed", res.Seed),
		slog.Int("groups", len(groups)),
		slog.Int("strings_per_group", perGroup),
		slog.Int("cases", len(e.cases)))
	e.emit(Event{Kind: EventRunStarted, RunID: res.RunID, Results: res})

	for _, length := range groups {
		group, err := e.runGroup(ctx, res.RunID, length, payloads.Fork().Generate(length, perGroup), noiseRng)
		if err != nil {
			res.Interrupted = true
			res.FinishedAt = time.Now().UTC()
			e.log.Warn("evaluation interrupted",
				slog.String("run_id", res.RunID),
				slog.Int("group", length),
				slog.Int("completed_groups", len(res.Groups)))
			e.emit(Event{Kind: EventRunInterrupted, RunID: res.RunID, Group: length, Results: res})
			return res, err
		}
		res.Groups = append(res.Groups, group)
	}

	res.FinishedAt = time.Now().UTC()
	e.emit(Event{Kind: EventRunCompleted, RunID: res.RunID, Results: res})
	return res, nil
}

func (e *Engine) runGroup(ctx context.Context, runID string, length int, texts []string, noiseRng *rand.Rand) (GroupResult, error) {
	ctx, span := e.tracer.Start(ctx, "evaluate.group", trace.WithAttributes(
		attribute.Int("group.length", length),
		attribute.Int("group.payloads", len(texts)),
	))
	defer span.End()

	e.emit(Event{Kind: EventGroupStarted, RunID: runID, Group: length})
	trials := make([]Trial, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return GroupResult{}, err
		}
		trial, err := e.runTrial(ctx, runID, length, i, text, noiseRng)
		if err != nil {
			span.RecordError(err)
			return GroupResult{}, err
		}
		trials = append(trials, trial)
		e.emit(Event{Kind: EventTrialCompleted, RunID: runID, Group: length, PayloadIndex: i, Original: text, Trial: &trial})
	}

	group := Aggregate(length, trials)
	span.SetAttributes(
		attribute.Int("group.total_tests", group.TotalTests),
		attribute.Int("group.successful_tests", group.SuccessfulTests),
	)
	e.emit(Event{Kind: EventGroupCompleted, RunID: runID, Group: length, GroupResult: &group})
	return group, nil
}

// runTrial evaluates one payload. Codec and transform failures become error
// records; only cancellation aborts the trial.
func (e *Engine) runTrial(ctx context.Context, runID string, length, index int, text string, noiseRng *rand.Rand) (Trial, error) {
	ctx, span := e.tracer.Start(ctx, "evaluate.payload", trace.WithAttributes(
		attribute.Int("group.length", length),
		attribute.Int("payload.index", index),
	))
	defer span.End()

	// Every case gets its own source, drawn in matrix order, so results do
	// not depend on the worker count.
	rngs := make([]*rand.Rand, len(e.cases))
	for i := range rngs {
		rngs[i] = rand.New(rand.NewPCG(noiseRng.Uint64(), noiseRng.Uint64()))
	}

	trial := Trial{Index: index, Original: text, Cases: make([]CaseResult, len(e.cases))}
	emitRecord := func(caseIndex int, tc *noise.TestCase, rec Record) {
		e.metrics.record(ctx, length, tc, rec)
		e.emit(Event{
			Kind: EventRecord, RunID: runID, Group: length, PayloadIndex: index,
			CaseIndex: caseIndex, Original: text, TestCase: tc, Record: &rec,
		})
	}

	clean, blob, err := e.encode(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Trial{}, ctxErr
		}
		// Without clean audio no case can run; each still counts as attempted.
		trial.Clean = failed(err)
		emitRecord(CleanCase, nil, trial.Clean)
		for i := range e.cases {
			trial.Cases[i] = CaseResult{TestCase: e.cases[i], Record: failed(fmt.Errorf("clean audio unavailable: %w", err))}
			emitRecord(i, &trial.Cases[i].TestCase, trial.Cases[i].Record)
		}
		return trial, nil
	}

	decoded, err := e.codec.Decode(ctx, blob)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Trial{}, ctxErr
		}
		trial.Clean = failed(err)
	} else {
		trial.Clean = scored(text, decoded)
	}
	emitRecord(CleanCase, nil, trial.Clean)

	if e.opts.Workers > 1 {
		if err := e.runCasesParallel(ctx, text, clean, rngs, trial.Cases); err != nil {
			return Trial{}, err
		}
		for i := range trial.Cases {
			emitRecord(i, &trial.Cases[i].TestCase, trial.Cases[i].Record)
		}
		return trial, nil
	}

	for i := range e.cases {
		rec, err := e.evaluateCase(ctx, text, clean, e.cases[i], rngs[i])
		if err != nil {
			return Trial{}, err
		}
		trial.Cases[i] = CaseResult{TestCase: e.cases[i], Record: rec}
		emitRecord(i, &trial.Cases[i].TestCase, rec)
	}
	return trial, nil
}

func (e *Engine) runCasesParallel(ctx context.Context, text string, clean waveform.PCM, rngs []*rand.Rand, out []CaseResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range e.cases {
		g.Go(func() error {
			rec, err := e.evaluateCase(gctx, text, clean, e.cases[i], rngs[i])
			if err != nil {
				return err
			}
			out[i] = CaseResult{TestCase: e.cases[i], Record: rec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// encode fetches the clean audio and parses its WAV envelope.
func (e *Engine) encode(ctx context.Context, text string) (waveform.PCM, string, error) {
	blob, err := e.codec.Encode(ctx, text)
	if err != nil {
		return waveform.PCM{}, "", err
	}
	pcm, err := waveform.DecodeBase64(blob)
	if err != nil {
		return waveform.PCM{}, "", &codec.TransportError{Op: "encode", Err: err}
	}
	if pcm.SampleRate <= 0 {
		pcm.SampleRate = e.opts.SampleRate
	}
	return pcm, blob, nil
}

// evaluateCase impairs an independent copy of clean and decodes it. The
// returned error is non-nil only when ctx is done.
func (e *Engine) evaluateCase(ctx context.Context, text string, clean waveform.PCM, tc noise.TestCase, rng *rand.Rand) (rec Record, err error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			rec, err = failed(fmt.Errorf("transform %s panicked: %v", tc.Model, r)), nil
		}
	}()

	impaired := noise.Apply(clean.Normalize(), tc.Params, rng)
	blob, encErr := waveform.EncodeBase64(waveform.FromSignal(impaired, clean.SampleRate))
	if encErr != nil {
		return failed(encErr), nil
	}
	decoded, decErr := e.codec.Decode(ctx, blob)
	if decErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Record{}, ctxErr
		}
		return failed(decErr), nil
	}
	return scored(text, decoded), nil
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	for _, o := range e.observers {
		o.Observe(ev)
	}
}

// IsInterrupted reports whether err came from cancelling the run.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
