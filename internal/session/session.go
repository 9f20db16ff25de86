// Package session holds the client's authentication token. Claims are read
// without verification: the server is the only party that checks signatures,
// the client just needs the user id and the expiry.
package session

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"coinfolio/internal/kvstore"
	"coinfolio/internal/logger"
)

// KeyToken is the persistence key of the bearer token.
const KeyToken = "session.token"

// Session is an authenticated session.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Holder owns the current session, if any.
type Holder struct {
	mu        sync.RWMutex
	current   *Session
	listeners []func()

	kv  kvstore.Store
	now func() time.Time
	log *zap.SugaredLogger
}

// Option configures a Holder.
type Option func(*Holder)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(h *Holder) { h.now = now }
}

// WithLogger sets the holder's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Holder) { h.log = logger.OrNop(l) }
}

// NewHolder creates a holder and resumes a persisted session when one is
// stored in kv and still parses.
func NewHolder(kv kvstore.Store, opts ...Option) *Holder {
	if kv == nil {
		kv = kvstore.NewMemory()
	}
	h := &Holder{kv: kv, now: time.Now, log: logger.Named("session")}
	for _, opt := range opts {
		opt(h)
	}
	if token, ok := kv.Get(KeyToken); ok && token != "" {
		s, err := parse(token)
		if err != nil {
			h.log.Warnw("discarding unreadable persisted token", "error", err)
			_ = kv.Remove(KeyToken)
		} else {
			h.current = s
		}
	}
	return h
}

// Login installs token as the current session and persists it.
func (h *Holder) Login(token string) (*Session, error) {
	s, err := parse(token)
	if err != nil {
		return nil, err
	}
	if !s.ExpiresAt.IsZero() && !h.now().Before(s.ExpiresAt) {
		return nil, fmt.Errorf("token expired at %s", s.ExpiresAt.Format(time.RFC3339))
	}

	h.mu.Lock()
	h.current = s
	err = h.kv.Set(KeyToken, token)
	h.mu.Unlock()

	if err != nil {
		h.log.Warnw("failed to persist token", "error", err)
	}
	h.log.Infow("session started", "user_id", s.UserID)
	out := *s
	return &out, nil
}

// Logout drops the session and notifies OnLogout listeners. Logging out with
// no session is a no-op.
func (h *Holder) Logout() {
	h.mu.RLock()
	s := h.current
	h.mu.RUnlock()
	if s != nil {
		h.end(s, "session ended")
	}
}

// OnLogout registers fn to run after every transition to logged out, whether
// by Logout or by the token expiring. Listeners run on the goroutine that
// observed the transition and must not hold locks that other session callers
// take.
func (h *Holder) OnLogout(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// IsAuthenticated reports whether a session exists and has not expired.
func (h *Holder) IsAuthenticated() bool {
	_, ok := h.active()
	return ok
}

// GetToken returns the bearer token, or "" when unauthenticated.
func (h *Holder) GetToken() string {
	s, ok := h.active()
	if !ok {
		return ""
	}
	return s.Token
}

// UserID returns the session's user id, or "" when unauthenticated.
func (h *Holder) UserID() string {
	s, ok := h.active()
	if !ok {
		return ""
	}
	return s.UserID
}

// GetAuthHeader returns the Authorization header for the current session.
// The header is empty when unauthenticated.
func (h *Holder) GetAuthHeader() http.Header {
	header := http.Header{}
	if token := h.GetToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

// active returns the current session. A session found past its expiry is
// ended on the spot, so expiry notifies listeners exactly like Logout.
func (h *Holder) active() (Session, bool) {
	h.mu.RLock()
	s := h.current
	h.mu.RUnlock()
	if s == nil {
		return Session{}, false
	}
	if !s.ExpiresAt.IsZero() && !h.now().Before(s.ExpiresAt) {
		h.end(s, "session expired")
		return Session{}, false
	}
	return *s, true
}

// end clears s if it is still the current session, erases the persisted
// token and runs the listeners. Only the caller that clears s notifies.
func (h *Holder) end(s *Session, reason string) {
	h.mu.Lock()
	if h.current != s {
		h.mu.Unlock()
		return
	}
	h.current = nil
	listeners := append([]func(){}, h.listeners...)
	err := h.kv.Remove(KeyToken)
	h.mu.Unlock()

	if err != nil {
		h.log.Warnw("failed to erase persisted token", "error", err)
	}
	h.log.Infow(reason, "user_id", s.UserID)
	for _, fn := range listeners {
		fn()
	}
}

func parse(token string) (*Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	s := &Session{Token: token, UserID: claimString(claims["user_id"])}
	if s.UserID == "" {
		s.UserID, _ = claims.GetSubject()
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("parsing token: no user_id or sub claim")
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
