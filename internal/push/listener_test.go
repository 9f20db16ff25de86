package push

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "coinfolio/internal/errors"
)

type bearer string

func (b bearer) GetAuthHeader() http.Header {
	if b == "" {
		return http.Header{}
	}
	return http.Header{"Authorization": []string{"Bearer " + string(b)}}
}

func newListener(t *testing.T, h http.HandlerFunc, token string) *Listener {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewListener(srv.URL, srv.Client(), bearer(token),
		WithInitialBackoff(5*time.Millisecond), WithLogger(zap.NewNop()))
}

func TestListen_ParsesFrames(t *testing.T) {
	l := newListener(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "u-1", r.URL.Query().Get("userId"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: profile_update\n\n")
		fmt.Fprint(w, "event: price\ndata: {\"a\":1}\ndata: more\n\n")
		fmt.Fprint(w, "data: orphan\n\n")
	}, "tok")

	var events []Event
	err := l.Listen(context.Background(), StreamPath("u-1"), func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	assert.Equal(t, []Event{
		{Name: "profile_update"},
		{Name: "price", Data: "{\"a\":1}\nmore"},
		{Data: "orphan"},
	}, events)
}

func TestListen_Errors(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		var hits atomic.Int32
		l := newListener(t, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }, "")
		err := l.Listen(context.Background(), StreamPath("u"), func(Event) {})
		assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
		assert.Zero(t, hits.Load())
	})

	t.Run("bad status", func(t *testing.T) {
		l := newListener(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}, "tok")
		err := l.Listen(context.Background(), StreamPath("u"), func(Event) {})
		assert.ErrorIs(t, err, apperrors.ErrUpstreamStatus)
	})
}

func TestSubscribe_ReconnectsAndFilters(t *testing.T) {
	var conns atomic.Int32
	l := newListener(t, func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "event: heartbeat\n\nevent: profile_update\ndata: {}\n\n")
	}, "tok")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	updates := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		Subscribe(ctx, l, "u-1", func() {
			mu.Lock()
			updates++
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return updates >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	assert.GreaterOrEqual(t, conns.Load(), int32(3))
}
