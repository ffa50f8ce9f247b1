package codec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/codecbench/internal/config"
)

// Codec is the remote text<->audio service under test. Audio blobs are
// base64-encoded WAV files.
type Codec interface {
	Encode(ctx context.Context, text string) (string, error)
	Decode(ctx context.Context, blob string) (string, error)
}

// Pinger is the liveness probe used before a run starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client is a codec backend that can also be probed.
type Client interface {
	Codec
	Pinger
}

// Close releases backends that hold resources, such as a compiled wasm
// module. Other backends are left alone.
func Close(ctx context.Context, c Codec) error {
	if closer, ok := c.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}
	return nil
}

// TransportError wraps every failure of a single codec call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// New builds the backend selected by cfg.Mode.
func New(cfg config.CodecConfig, log *slog.Logger) (Client, error) {
	switch cfg.Mode {
	case "http":
		return NewHTTPCodec(cfg.Endpoint, time.Duration(cfg.TimeoutMS)*time.Millisecond), nil
	case "exec":
		return NewExecCodec(cfg.Command, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	case "wasm":
		return NewWasmCodec(context.Background(), cfg.Module, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	case "mock":
		log.Warn("using loopback codec; results do not reflect a real service")
		return NewLoopbackCodec(cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("unsupported codec mode %q", cfg.Mode)
	}
}
