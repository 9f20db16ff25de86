// Package client provides an HTTP client for the coinfolio API as consumed by
// the sync client: profile fetches, authentication and wallet actions.
package client

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

	"github.com/sony/gobreaker"

	apperrors "coinfolio/internal/errors"
)

// HeaderSource supplies authentication headers; an empty header means there
// is no session.
type HeaderSource interface {
	GetAuthHeader() http.Header
}

// StatusError carries the HTTP status of an unexpected response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("unexpected status %d (%s: %s)", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Client talks to the coinfolio API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       HeaderSource
	breaker    *gobreaker.CircuitBreaker
}

// New creates a client for the API at baseURL. auth may be nil for clients
// that only call public endpoints.
func New(baseURL string, httpClient *http.Client, auth HeaderSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
		breaker:    newBreaker("coinfolio-api"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
	})
}

// countsAsFailure reports whether err says the server is unhealthy rather
// than that this request was wrong.
func countsAsFailure(err error) bool {
	if errors.Is(err, apperrors.ErrTransport) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= http.StatusInternalServerError
}

// BreakerState exposes the circuit breaker state for diagnostics.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

type request struct {
	method string
	path   string
	body   any
	authed bool
}

// do executes req through the circuit breaker and decodes a 2xx JSON body
// into out (which may be nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	var header http.Header
	if req.authed {
		if c.auth != nil {
			header = c.auth.GetAuthHeader()
		}
		if len(header) == 0 {
			return apperrors.ErrUnauthenticated
		}
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, req, header, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Wrap(apperrors.ErrTransport, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, req request, header http.Header, out any) error {
	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, fmt.Errorf("%s %s: %w", req.method, req.path, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.Wrap(apperrors.ErrUpstreamStatus, statusError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.ErrTransport, ctx.Err())
		}
		return apperrors.Wrap(apperrors.ErrMalformedResponse, fmt.Errorf("%s %s: %w", req.method, req.path, err))
	}
	return nil
}

// statusError reads the API's {"error":{"code","message"}} envelope if present.
func statusError(resp *http.Response) *StatusError {
	se := &StatusError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && json.Unmarshal(raw, &envelope) == nil {
		se.Code = envelope.Error.Code
		se.Message = envelope.Error.Message
	}
	return se
}

// IsStatus reports whether err is an unexpected-status error with the given code.
func IsStatus(err error, statusCode int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == statusCode
}
