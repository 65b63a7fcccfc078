package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobchange-cli/internal/resilience"
)

const defaultRetryAfter = 30 * time.Second

// client is the shared HTTP plumbing for vendor gateways. It classifies
// responses into the retry taxonomy: 429 becomes a RateLimitError carrying
// the Retry-After hint, 408/5xx become TransientError, and every other 4xx is
// permanent.
type client struct {
	name   string
	http   *http.Client
	header http.Header
}

func newClient(name string, timeout time.Duration, header http.Header) *client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &client{
		name: name,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		header: header,
	}
}

func (c *client) getJSON(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *client) postJSON(ctx context.Context, url string, body, out any) error {
	return c.do(ctx, http.MethodPost, url, body, out)
}

func (c *client) do(ctx context.Context, method, url string, body, out any) error {
	_, payload, err := c.roundTrip(ctx, method, url, body)
	if err != nil {
		return err
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return eris.Wrapf(err, "%s: decode response", c.name)
		}
	}
	return nil
}

// roundTrip performs the request and classifies the response. On 2xx it
// returns the status code and body so callers can distinguish 200 from 202
// (async APIs use 202 for "still processing").
func (c *client) roundTrip(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, eris.Wrapf(err, "%s: encode request", c.name)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "%s: create request", c.name)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range c.header {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "%s: %s %s", c.name, method, url)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, nil, resilience.NewTransientError(eris.Wrapf(err, "%s: read response", c.name), resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, nil, &resilience.RateLimitError{
			Provider:   c.name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resp.StatusCode, nil, resilience.NewTransientError(
			eris.Errorf("%s: http %d: %s", c.name, resp.StatusCode, truncate(payload, 200)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, nil, &apiError{name: c.name, status: resp.StatusCode, body: truncate(payload, 200)}
	}

	return resp.StatusCode, payload, nil
}

// apiError is a permanent (non-retryable) vendor response.
type apiError struct {
	name   string
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.name, e.status, e.body)
}

// isNotFound reports whether err is a vendor 404, which means "no data for
// this contact" rather than a failure.
func isNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.status == http.StatusNotFound
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
