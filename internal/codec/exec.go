package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

// execCodec runs an external command once per call. The command receives a
// JSON request on stdin and must print a single JSON object on stdout.
type execCodec struct {
	cmd     []string
	timeout time.Duration
}

type execRequest struct {
	Op   string `json:"op"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

type execResponse struct {
	Data  *string `json:"data"`
	Text  *string `json:"text"`
	Error string  `json:"error"`
}

func NewExecCodec(command string, timeout time.Duration) (Client, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse codec command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("codec command empty")
	}
	return &execCodec{cmd: args, timeout: timeout}, nil
}

func (e *execCodec) Encode(ctx context.Context, text string) (string, error) {
	return encodeWith(ctx, e.run, text)
}

func (e *execCodec) Decode(ctx context.Context, blob string) (string, error) {
	return decodeWith(ctx, e.run, blob)
}

// Ping only checks that the command can be found.
func (e *execCodec) Ping(context.Context) error {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return transportErr("ping", err)
	}
	return nil
}

func (e *execCodec) run(ctx context.Context, req execRequest) (execResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return execResponse{}, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = bytes.NewReader(data)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return execResponse{}, fmt.Errorf("codec command failed: %w: %s", err, stderr.String())
	}

	return parseResponse(stdout.Bytes())
}

// runFunc performs one JSON request/response exchange with a codec process.
type runFunc func(context.Context, execRequest) (execResponse, error)

func encodeWith(ctx context.Context, run runFunc, text string) (string, error) {
	resp, err := run(ctx, execRequest{Op: "encode", Text: text})
	if err != nil {
		return "", transportErr("encode", err)
	}
	if resp.Data == nil {
		return "", transportErr("encode", errors.New("response missing \"data\""))
	}
	return *resp.Data, nil
}

func decodeWith(ctx context.Context, run runFunc, blob string) (string, error) {
	resp, err := run(ctx, execRequest{Op: "decode", Data: blob})
	if err != nil {
		return "", transportErr("decode", err)
	}
	if resp.Text == nil {
		return "", transportErr("decode", errors.New("response missing \"text\""))
	}
	return *resp.Text, nil
}

func parseResponse(out []byte) (execResponse, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return execResponse{}, errors.New("codec produced no output")
	}
	var resp execResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return execResponse{}, fmt.Errorf("decode codec response: %w", err)
	}
	if resp.Error != "" {
		return execResponse{}, errors.New(resp.Error)
	}
	return resp, nil
}
