package codec

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/codecbench/internal/config"
	"github.com/loqalabs/codecbench/internal/waveform"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/encode", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]string{"data": "enc:" + req["text"]})
	})
	mux.HandleFunc("/decode", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "dec:" + req["data"]})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCodecRoundTrip(t *testing.T) {
	srv := echoServer(t)
	c := NewHTTPCodec(srv.URL+"/", time.Second)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	blob, err := c.Encode(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, "enc:123", blob)

	text, err := c.Decode(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "dec:enc:123", text)
}

func TestHTTPCodecErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/encode", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/decode", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected": true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewHTTPCodec(srv.URL, time.Second)
	ctx := context.Background()

	var te *TransportError
	err := c.Ping(ctx)
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "ping", te.Op)

	_, err = c.Encode(ctx, "1")
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "encode", te.Op)
	assert.Contains(t, err.Error(), "500")

	_, err = c.Decode(ctx, "x")
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "missing")
}

func TestHTTPCodecMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPCodec(srv.URL, time.Second).Decode(context.Background(), "x")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestLoopbackRoundTrip(t *testing.T) {
	c := NewLoopbackCodec(waveform.SampleRate)
	ctx := context.Background()
	for _, text := range []string{"7", "0123456789", "hello, world"} {
		blob, err := c.Encode(ctx, text)
		require.NoError(t, err)
		pcm, err := waveform.DecodeBase64(blob)
		require.NoError(t, err)
		assert.Len(t, pcm.Samples, len(text)*8*loopbackSamplesPerBit)

		decoded, err := c.Decode(ctx, blob)
		require.NoError(t, err)
		assert.Equal(t, text, decoded)
	}
}

func TestLoopbackRejectsBadAudio(t *testing.T) {
	_, err := NewLoopbackCodec(0).Decode(context.Background(), "%%%")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestExecCodec(t *testing.T) {
	c, err := NewExecCodec(`sh -c 'cat >/dev/null; echo "{\"data\":\"abc\",\"text\":\"42\"}"'`, 5*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	blob, err := c.Encode(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "abc", blob)
	text, err := c.Decode(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "42", text)
}

func TestExecCodecFailure(t *testing.T) {
	c, err := NewExecCodec(`sh -c 'echo nope >&2; exit 3'`, 5*time.Second)
	require.NoError(t, err)
	_, err = c.Decode(context.Background(), "x")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "nope")

	_, err = NewExecCodec("   ", time.Second)
	assert.Error(t, err)
}

type flakyPinger struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyPinger) Ping(context.Context) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReadyRetries(t *testing.T) {
	p := &flakyPinger{failures: 2}
	err := WaitReady(context.Background(), p, 5, time.Millisecond, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestWaitReadyGivesUp(t *testing.T) {
	p := &flakyPinger{failures: 100}
	err := WaitReady(context.Background(), p, 3, time.Millisecond, discardLogger())
	require.Error(t, err)
	assert.Equal(t, int32(3), p.calls.Load())
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWaitReadyHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitReady(ctx, &flakyPinger{failures: 100}, 5, time.Hour, discardLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default().Codec
	cfg.Mode = "mock"
	c, err := New(cfg, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &loopbackCodec{}, c)

	cfg.Mode = "grpc"
	_, err = New(cfg, discardLogger())
	assert.Error(t, err)
}
