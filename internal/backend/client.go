// Package backend talks to the escalations API that supplies flagged calls,
// call detail and accepts coaching feedback.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-review-go/internal/types"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
}

// Temporary reports whether a retry could help.
func (e *StatusError) Temporary() bool { return e.Code >= 500 }

// ErrNotSuccess is returned when the backend answers 2xx with status != "success".
var ErrNotSuccess = errors.New("backend reported failure")

type Client struct {
	base         string
	http         *http.Client
	maxRetryTime time.Duration
	log          *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithMaxRetryTime bounds the backoff used for idempotent detail reads.
func WithMaxRetryTime(d time.Duration) Option { return func(c *Client) { c.maxRetryTime = d } }

func New(baseURL string, timeout time.Duration, log *logrus.Entry, opts ...Option) *Client {
	c := &Client{
		base:         strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: timeout},
		maxRetryTime: 12 * time.Second,
		log:          log.WithField("component", "backend"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListEscalations fetches the current flagged-call feed. One attempt only:
// the poller's next tick is the retry.
func (c *Client) ListEscalations(ctx context.Context) (types.EscalationsResponse, error) {
	var out types.EscalationsResponse
	err := c.doJSON(ctx, http.MethodGet, "/escalations/monitor", nil, &out)
	return out, err
}

// GetCallDetail returns a flagged call with its transcript. Idempotent, so
// transient failures are retried with backoff.
func (c *Client) GetCallDetail(ctx context.Context, callID string) (types.CallDetail, error) {
	var out types.CallDetail
	err := c.retry(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, "/calls/"+url.PathEscape(callID), nil, &out)
	})
	return out, err
}

// WorstCall returns the lowest scoring call for an agent.
func (c *Client) WorstCall(ctx context.Context, agentName string) (types.CallDetail, error) {
	var out types.CallDetail
	err := c.retry(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, "/worst-call/"+url.PathEscape(agentName), nil, &out)
	})
	return out, err
}

// SubmitFeedback posts one coaching remark. Exactly one request is made;
// delivery beyond it is not guaranteed.
func (c *Client) SubmitFeedback(ctx context.Context, req types.FeedbackRequest) (types.FeedbackResponse, error) {
	var out types.FeedbackResponse
	if err := c.doJSON(ctx, http.MethodPost, "/submit-feedback", req, &out); err != nil {
		return out, err
	}
	if out.Status != types.StatusSuccess {
		return out, fmt.Errorf("%w: status=%q message=%q", ErrNotSuccess, out.Status, out.Message)
	}
	return out, nil
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetryTime
	return backoff.Retry(func() error {
		err := op()
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if err != nil {
			c.log.WithError(err).Warn("backend request failed, retrying")
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, target any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	c.log.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"http_status": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("backend call")

	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if len(raw) == 0 {
		return fmt.Errorf("empty body from %s", path)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("json decode error: %w body=%s", err, truncate(string(raw), 512))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
