// Package push listens to the API's server-sent-events update stream.
package push

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/logger"
)

// EventProfileUpdate is emitted whenever the user's balance, holdings or
// transactions change. It carries no required payload.
const EventProfileUpdate = "profile_update"

const (
	streamPath     = "/api/updates/stream"
	maxBackoff     = 30 * time.Second
	defaultBackoff = time.Second
)

// Event is one dispatched server-sent event.
type Event struct {
	Name string
	Data string
}

// HeaderSource supplies the Authorization header for the stream request.
type HeaderSource interface {
	GetAuthHeader() http.Header
}

// Listener reads an SSE stream.
type Listener struct {
	baseURL        string
	httpClient     *http.Client
	auth           HeaderSource
	initialBackoff time.Duration
	logger         *zap.Logger
}

// Option configures a Listener.
type Option func(*Listener)

// WithInitialBackoff sets the first reconnect delay.
func WithInitialBackoff(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.initialBackoff = d
		}
	}
}

// WithLogger sets the listener's logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Listener) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewListener creates a listener for the API at baseURL. httpClient must not
// have a Timeout, since the stream is long-lived.
func NewListener(baseURL string, httpClient *http.Client, auth HeaderSource, opts ...Option) *Listener {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	l := &Listener{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     httpClient,
		auth:           auth,
		initialBackoff: defaultBackoff,
		logger:         logger.Get().Desugar().Named("push"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StreamPath returns the update stream path for userID.
func StreamPath(userID string) string {
	return streamPath + "?userId=" + url.QueryEscape(userID)
}

// Listen connects to path and calls handler for every event until the stream
// ends or ctx is cancelled.
func (l *Listener) Listen(ctx context.Context, path string, handler func(Event)) error {
	var header http.Header
	if l.auth != nil {
		header = l.auth.GetAuthHeader()
	}
	if len(header) == 0 {
		return apperrors.ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create SSE request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, fmt.Errorf("SSE connection failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Wrap(apperrors.ErrUpstreamStatus, fmt.Errorf("SSE connection failed with status: %d", resp.StatusCode))
	}
	l.logger.Info("connected to update stream", zap.String("path", path))

	scanner := bufio.NewScanner(resp.Body)
	var name string
	var data strings.Builder
	pending := false

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if pending {
				handler(Event{Name: name, Data: data.String()})
			}
			name, pending = "", false
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			pending = true
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			pending = true
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, fmt.Errorf("SSE read: %w", err))
	}
	return nil
}

// ListenWithReconnect keeps Listen running until ctx is cancelled. Lost or
// refused connections are retried with exponential backoff capped at 30s;
// the backoff resets once a connection has delivered an event.
func (l *Listener) ListenWithReconnect(ctx context.Context, path string, handler func(Event)) {
	backoff := l.initialBackoff
	for {
		delivered := false
		err := l.Listen(ctx, path, func(e Event) {
			delivered = true
			handler(e)
		})
		if ctx.Err() != nil {
			return
		}
		if delivered {
			backoff = l.initialBackoff
		}

		l.logger.Warn("update stream lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Subscribe calls onUpdate for every profile_update on userID's stream until
// ctx is cancelled. It blocks; run it in its own goroutine.
func Subscribe(ctx context.Context, l *Listener, userID string, onUpdate func()) {
	l.ListenWithReconnect(ctx, StreamPath(userID), func(e Event) {
		if e.Name == EventProfileUpdate {
			onUpdate()
		}
	})
}
