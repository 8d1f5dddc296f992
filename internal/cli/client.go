package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrRejected is returned when the server refuses a submission because the
// queue is full or draining.
var ErrRejected = errors.New("betctl: submission rejected")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// client is a thin JSON client over the /api/v1 routes.
type client struct {
	base string
	http *http.Client
}

func newClient(opts *RootOptions) *client {
	return &client{
		base: strings.TrimRight(opts.Addr, "/"),
		http: &http.Client{Timeout: opts.Timeout},
	}
}

// do sends body (if non-nil) as JSON and decodes a 2xx response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		apiErr := &APIError{Status: resp.StatusCode, Message: e.Error}
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrRejected, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
