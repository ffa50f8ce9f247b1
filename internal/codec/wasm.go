package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// wasmCodec runs a WASI command module once per call. It speaks the same
// stdin/stdout JSON protocol as the exec backend, without leaving the process.
type wasmCodec struct {
	rt       wazero.Runtime
	compiled wazero.CompiledModule
	timeout  time.Duration
}

// NewWasmCodec compiles the module at path. Close releases the runtime.
func NewWasmCodec(ctx context.Context, path string, timeout time.Duration) (Client, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}
	c, err := newWasmCodec(ctx, wasmBytes, timeout)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newWasmCodec(ctx context.Context, wasmBytes []byte, timeout time.Duration) (*wasmCodec, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("compile module: %w", err)
	}
	return &wasmCodec{rt: rt, compiled: compiled, timeout: timeout}, nil
}

func (w *wasmCodec) Encode(ctx context.Context, text string) (string, error) {
	return encodeWith(ctx, w.run, text)
}

func (w *wasmCodec) Decode(ctx context.Context, blob string) (string, error) {
	return decodeWith(ctx, w.run, blob)
}

// Ping succeeds once the module compiled.
func (w *wasmCodec) Ping(ctx context.Context) error {
	if w.compiled == nil {
		return transportErr("ping", errors.New("wasm module not loaded"))
	}
	return transportErr("ping", ctx.Err())
}

func (w *wasmCodec) Close(ctx context.Context) error {
	if w == nil || w.rt == nil {
		return nil
	}
	return w.rt.Close(ctx)
}

func (w *wasmCodec) run(ctx context.Context, req execRequest) (execResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return execResponse{}, err
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithArgs("codec", req.Op).
		WithStdin(bytes.NewReader(data)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := w.rt.InstantiateModule(ctx, w.compiled, moduleConfig)
	if mod != nil {
		defer mod.Close(context.Background())
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return execResponse{}, fmt.Errorf("wasm codec failed: %w: %s", err, stderr.String())
		}
	}
	return parseResponse(stdout.Bytes())
}
