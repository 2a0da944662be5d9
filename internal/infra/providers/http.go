package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	maxBodyBytes   = 8 << 20
	defaultBackoff = 500 * time.Millisecond
	userAgent      = "viruslens/1.0"
)

// Options dipakai semua adapter HTTP
type Options struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Retries int           // total attempts, <=0 means 1
	Backoff time.Duration // initial backoff, doubles per attempt
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

func (o Options) attempts() int {
	if o.Retries <= 0 {
		return 1
	}
	return o.Retries
}

func (o Options) backoff() time.Duration {
	if o.Backoff <= 0 {
		return defaultBackoff
	}
	return o.Backoff
}

// statusError is a non-2xx provider answer.
type statusError struct {
	Code int
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d", e.Code) }

// retryable: rate limits, server errors and transient network failures.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// getJSON performs a GET and decodes a JSON object body, retrying transient failures.
func getJSON(ctx context.Context, o Options, url string, headers map[string]string) (map[string]any, error) {
	return retry(ctx, o.attempts(), o.backoff(), func() (map[string]any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for k, v := range headers {
			if v != "" {
				req.Header.Set(k, v)
			}
		}

		resp, err := o.client().Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &statusError{Code: resp.StatusCode}
		}
		return decodeObject(body)
	})
}

func decodeObject(body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// reason renders an error as a short message for summary["error"].
func reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	return err.Error()
}
