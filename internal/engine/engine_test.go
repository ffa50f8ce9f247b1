package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/codecbench/internal/codec"
	"github.com/loqalabs/codecbench/internal/noise"
	"github.com/loqalabs/codecbench/internal/waveform"
)

func defaultCases(t *testing.T) []noise.TestCase {
	t.Helper()
	cases, err := noise.Expand(noise.DefaultCatalogue())
	require.NoError(t, err)
	return cases
}

func toneBlob(t *testing.T, n int) string {
	t.Helper()
	sig := make(waveform.Signal, n)
	for i := range sig {
		sig[i] = 0.25
	}
	blob, err := waveform.EncodeBase64(waveform.FromSignal(sig, waveform.SampleRate))
	require.NoError(t, err)
	return blob
}

// echoCodec answers every decode with the text of the last encode.
type echoCodec struct {
	mu   sync.Mutex
	last string
	blob string
}

func (c *echoCodec) Encode(_ context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = text
	return c.blob, nil
}

func (c *echoCodec) Decode(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

type mockCodec struct {
	mock.Mock
}

func (m *mockCodec) Encode(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *mockCodec) Decode(ctx context.Context, blob string) (string, error) {
	args := m.Called(ctx, blob)
	return args.String(0), args.Error(1)
}

func TestRunWithEchoCodec(t *testing.T) {
	cases := defaultCases(t)
	eng := New(&echoCodec{blob: toneBlob(t, 2000)}, cases, Options{Seed: 1})

	res, err := eng.Run(context.Background(), []int{1, 10}, 3)
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)
	assert.False(t, res.Interrupted)
	assert.NotEmpty(t, res.RunID)

	for _, g := range res.Groups {
		assert.Equal(t, 3*(1+len(cases)), g.TotalTests)
		assert.Equal(t, g.TotalTests, g.SuccessfulTests)
		assert.Equal(t, 1.0, g.SuccessRate)
		require.Len(t, g.Trials, 3)
		for _, trial := range g.Trials {
			assert.Len(t, trial.Original, g.Length)
			assert.Equal(t, 1.0, trial.Clean.Similarity)
			assert.True(t, trial.Clean.Success)
			require.Len(t, trial.Cases, len(cases))
			for i, c := range trial.Cases {
				assert.Equal(t, cases[i].Index, c.TestCase.Index)
			}
		}
	}

	g, ok := res.Group(10)
	require.True(t, ok)
	assert.Equal(t, 10, g.Length)
	_, ok = res.Group(100)
	assert.False(t, ok)
}

func TestRunWhenDecodeAlwaysFails(t *testing.T) {
	cases := defaultCases(t)
	m := &mockCodec{}
	m.On("Encode", mock.Anything, mock.Anything).Return(toneBlob(t, 500), nil)
	m.On("Decode", mock.Anything, mock.Anything).Return("", &codec.TransportError{Op: "decode", Err: errors.New("connection reset")})

	eng := New(m, cases, Options{Seed: 2})
	res, err := eng.Run(context.Background(), []int{5}, 2)
	require.NoError(t, err)

	g := res.Groups[0]
	assert.Equal(t, 2*(1+len(cases)), g.TotalTests)
	assert.Equal(t, 0, g.SuccessfulTests)
	assert.Equal(t, 0.0, g.SuccessRate)
	for _, trial := range g.Trials {
		assert.True(t, trial.Clean.Failed())
		assert.Contains(t, trial.Clean.Err, "connection reset")
		for _, c := range trial.Cases {
			assert.True(t, c.Record.Failed())
			assert.Empty(t, c.Record.Decoded)
		}
	}
	m.AssertNumberOfCalls(t, "Encode", 2)
	m.AssertNumberOfCalls(t, "Decode", 2*(1+len(cases)))
}

func TestRunWhenEncodeFails(t *testing.T) {
	cases := defaultCases(t)
	m := &mockCodec{}
	m.On("Encode", mock.Anything, mock.Anything).Return("", errors.New("encoder offline"))

	res, err := New(m, cases, Options{Seed: 3}).Run(context.Background(), []int{4}, 3)
	require.NoError(t, err)

	g := res.Groups[0]
	assert.Equal(t, 3*(1+len(cases)), g.TotalTests)
	assert.Equal(t, 0, g.SuccessfulTests)
	for _, trial := range g.Trials {
		assert.Contains(t, trial.Clean.Err, "encoder offline")
		for _, c := range trial.Cases {
			assert.Contains(t, c.Record.Err, "clean audio unavailable")
		}
	}
	m.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything)
}

func TestRunWithMalformedEncodeResponse(t *testing.T) {
	m := &mockCodec{}
	m.On("Encode", mock.Anything, mock.Anything).Return("bm90IGEgd2F2", nil)

	res, err := New(m, defaultCases(t), Options{Seed: 3}).Run(context.Background(), []int{2}, 1)
	require.NoError(t, err)
	trial := res.Groups[0].Trials[0]
	assert.True(t, trial.Clean.Failed())
	assert.Equal(t, 22, res.Groups[0].TotalTests)
}

func TestRunWithLoopbackCodec(t *testing.T) {
	cases := defaultCases(t)
	eng := New(codec.NewLoopbackCodec(waveform.SampleRate), cases, Options{Seed: 4})
	res, err := eng.Run(context.Background(), []int{3}, 2)
	require.NoError(t, err)

	g := res.Groups[0]
	assert.Equal(t, 2*(1+len(cases)), g.TotalTests)
	for _, trial := range g.Trials {
		assert.Equal(t, 1.0, trial.Clean.Similarity)
		// Mild gaussian noise leaves the loopback modem intact.
		assert.True(t, trial.Cases[0].Record.Success)
		for _, c := range trial.Cases {
			assert.False(t, c.Record.Failed())
		}
	}
}

func TestWorkersDoNotChangeResults(t *testing.T) {
	cases := defaultCases(t)
	run := func(workers int) *Results {
		eng := New(codec.NewLoopbackCodec(waveform.SampleRate), cases, Options{Seed: 99, Workers: workers})
		res, err := eng.Run(context.Background(), []int{2, 6}, 2)
		require.NoError(t, err)
		return res
	}
	seq := run(1)
	par := run(4)
	require.Len(t, par.Groups, len(seq.Groups))
	for i := range seq.Groups {
		assert.Equal(t, seq.Groups[i].Trials, par.Groups[i].Trials)
		assert.Equal(t, seq.Groups[i].TotalTests, par.Groups[i].TotalTests)
		assert.Equal(t, seq.Groups[i].SuccessfulTests, par.Groups[i].SuccessfulTests)
	}
}

// capturingCodec records the first sample of every audio it is asked to decode.
type capturingCodec struct {
	blob   string
	firsts []float64
}

func (c *capturingCodec) Encode(context.Context, string) (string, error) { return c.blob, nil }

func (c *capturingCodec) Decode(_ context.Context, blob string) (string, error) {
	pcm, err := waveform.DecodeBase64(blob)
	if err != nil {
		return "", err
	}
	c.firsts = append(c.firsts, pcm.Normalize()[0])
	return "", nil
}

func TestCasesSeeUntouchedCleanSignal(t *testing.T) {
	defs := []noise.Definition{{
		Name:           "Offset",
		Model:          noise.ModelGaussian,
		ParameterNames: []string{"mean", "sigma"},
		Cases: []noise.Case{
			{Values: []float64{0.1, 0}},
			{Values: []float64{0.1, 0}},
			{Values: []float64{0.1, 0}},
		},
	}}
	cases, err := noise.Expand(defs)
	require.NoError(t, err)

	c := &capturingCodec{blob: toneBlob(t, 64)}
	_, err = New(c, cases, Options{Seed: 5}).Run(context.Background(), []int{1}, 1)
	require.NoError(t, err)

	require.Len(t, c.firsts, 4)
	assert.InDelta(t, 0.25, c.firsts[0], 1e-4)
	for _, v := range c.firsts[1:] {
		assert.InDelta(t, 0.35, v, 1e-4)
	}
}

// cancellingCodec cancels the run after a number of decodes.
type cancellingCodec struct {
	echoCodec
	cancel  context.CancelFunc
	after   int
	decodes int
}

func (c *cancellingCodec) Decode(ctx context.Context, blob string) (string, error) {
	c.decodes++
	if c.decodes == c.after {
		c.cancel()
		return "", ctx.Err()
	}
	return c.echoCodec.Decode(ctx, blob)
}

func TestRunInterruptedKeepsOnlyCompletedGroups(t *testing.T) {
	cases := defaultCases(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	perTrial := 1 + len(cases)
	c := &cancellingCodec{echoCodec: echoCodec{blob: toneBlob(t, 100)}, cancel: cancel, after: 2*perTrial + 5}

	var kinds []EventKind
	obs := ObserverFunc(func(ev Event) {
		if ev.Kind != EventRecord {
			kinds = append(kinds, ev.Kind)
		}
	})
	res, err := New(c, cases, Options{Seed: 6, Observers: []Observer{obs}}).Run(ctx, []int{1, 2}, 2)
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
	require.NotNil(t, res)
	assert.True(t, res.Interrupted)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, 1, res.Groups[0].Length)
	assert.Equal(t, EventRunInterrupted, kinds[len(kinds)-1])
	assert.NotContains(t, kinds, EventRunCompleted)
}

func TestEventOrdering(t *testing.T) {
	cases := defaultCases(t)
	var events []Event
	obs := ObserverFunc(func(ev Event) { events = append(events, ev) })

	_, err := New(&echoCodec{blob: toneBlob(t, 100)}, cases, Options{Seed: 7, Workers: 3, Observers: []Observer{obs}}).
		Run(context.Background(), []int{2}, 2)
	require.NoError(t, err)

	assert.Equal(t, EventRunStarted, events[0].Kind)
	assert.Equal(t, EventGroupStarted, events[1].Kind)
	assert.Equal(t, EventRunCompleted, events[len(events)-1].Kind)
	assert.Equal(t, EventGroupCompleted, events[len(events)-2].Kind)

	var records []Event
	for _, ev := range events {
		if ev.Kind == EventRecord {
			records = append(records, ev)
		}
	}
	require.Len(t, records, 2*(1+len(cases)))
	for p := 0; p < 2; p++ {
		trial := records[p*(1+len(cases)) : (p+1)*(1+len(cases))]
		assert.Equal(t, CleanCase, trial[0].CaseIndex)
		assert.Nil(t, trial[0].TestCase)
		for i, ev := range trial[1:] {
			assert.Equal(t, p, ev.PayloadIndex)
			assert.Equal(t, i, ev.CaseIndex)
			assert.Equal(t, cases[i].Name, ev.TestCase.Name)
		}
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	trials := make([]Trial, 12)
	for i := range trials {
		trials[i] = Trial{Index: i, Clean: Record{Success: rng.IntN(2) == 0}}
		for j := 0; j < 5; j++ {
			rec := Record{Success: rng.IntN(3) == 0}
			if rng.IntN(7) == 0 {
				rec = Record{Err: "boom"}
			}
			trials[i].Cases = append(trials[i].Cases, CaseResult{Record: rec})
		}
	}
	want := Aggregate(10, trials)
	assert.Equal(t, 12*6, want.TotalTests)

	for k := 0; k < 20; k++ {
		shuffled := append([]Trial(nil), trials...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := Aggregate(10, shuffled)
		assert.Equal(t, want.TotalTests, got.TotalTests)
		assert.Equal(t, want.SuccessfulTests, got.SuccessfulTests)
	}

	empty := Aggregate(3, nil)
	assert.Equal(t, 0.0, empty.SuccessRate)
}

func TestRecordJSONShape(t *testing.T) {
	ok, err := Record{Decoded: "12", Similarity: 0.5}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"decoded":"12","similarity":0.5,"success":false}`, string(ok))

	bad, err := Record{Err: "timeout"}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"timeout"}`, string(bad))

	var back Record
	require.NoError(t, back.UnmarshalJSON(ok))
	assert.Equal(t, Record{Decoded: "12", Similarity: 0.5}, back)
}

func TestEmptyErrorStillFailsRecord(t *testing.T) {
	rec := failed(errors.New(""))
	assert.True(t, rec.Failed())
	assert.Equal(t, "unknown error", rec.Err)

	data, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"unknown error"}`, string(data))
}
