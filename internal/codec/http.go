package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type httpCodec struct {
	endpoint string
	client   *http.Client
}

// NewHTTPCodec talks to the JSON API: POST /encode, POST /decode, GET /ping.
func NewHTTPCodec(endpoint string, timeout time.Duration) Client {
	return &httpCodec{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type encodeRequest struct {
	Text string `json:"text"`
}

type encodeResponse struct {
	Data *string `json:"data"`
}

type decodeRequest struct {
	Data string `json:"data"`
}

type decodeResponse struct {
	Text *string `json:"text"`
}

func (c *httpCodec) Encode(ctx context.Context, text string) (string, error) {
	var resp encodeResponse
	if err := c.post(ctx, "/encode", encodeRequest{Text: text}, &resp); err != nil {
		return "", transportErr("encode", err)
	}
	if resp.Data == nil {
		return "", transportErr("encode", errors.New("response missing \"data\""))
	}
	return *resp.Data, nil
}

func (c *httpCodec) Decode(ctx context.Context, blob string) (string, error) {
	var resp decodeResponse
	if err := c.post(ctx, "/decode", decodeRequest{Data: blob}, &resp); err != nil {
		return "", transportErr("decode", err)
	}
	if resp.Text == nil {
		return "", transportErr("decode", errors.New("response missing \"text\""))
	}
	return *resp.Text, nil
}

func (c *httpCodec) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/ping", nil)
	if err != nil {
		return transportErr("ping", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return transportErr("ping", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return transportErr("ping", fmt.Errorf("server returned status %s", resp.Status))
	}
	return nil
}

func (c *httpCodec) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
