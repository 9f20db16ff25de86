// Package balancesync decides when the displayed balance can be trusted and
// when it has to be refetched, and pushes server truth into the portfolio
// store.
//
// Every refresh source (the poll timer, the push channel, a local mutation
// such as a deposit) funnels into Invalidate. Concurrent readers share one
// in-flight fetch, and a fetch that started before ClearAll is discarded when
// it completes.
package balancesync

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"coinfolio/internal/client"
	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/logger"
	"coinfolio/internal/portfolio"
)

// Defaults.
const (
	DefaultTTL          = 3 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// State is the controller's cache state.
type State int

// Cache states.
const (
	StateUninitialized State = iota
	StateSynced
	StateStale
	StateSyncing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateSynced:
		return "SYNCED"
	case StateStale:
		return "STALE"
	case StateSyncing:
		return "SYNCING"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Trigger names the source of an invalidation.
type Trigger string

// Invalidation sources.
const (
	TriggerPoll          Trigger = "poll"
	TriggerPush          Trigger = "push"
	TriggerLocalMutation Trigger = "local_mutation"
	TriggerManual        Trigger = "manual"
)

// ProfileFetcher fetches the authoritative profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (*client.Profile, error)
}

// Authenticator reports whether a session is active.
type Authenticator interface {
	IsAuthenticated() bool
}

// View is what renderers draw.
type View struct {
	Snapshot portfolio.Snapshot
	State    State
	LastSync time.Time
}

// Stale reports whether the view should carry a staleness marker.
func (v View) Stale() bool {
	return v.State != StateSynced
}

// Renderer projects a View onto some output.
type Renderer interface {
	Render(View)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(View)

// Render calls f(v).
func (f RendererFunc) Render(v View) { f(v) }

// Controller owns the balance cache envelope for one client session.
type Controller struct {
	mu         sync.Mutex
	state      State
	cached     *decimal.Decimal
	lastSync   time.Time
	generation uint64
	renderers  []Renderer
	observers  []func(*client.Profile)

	group singleflight.Group

	bgMu     sync.Mutex
	bgCancel context.CancelFunc
	bgDone   chan struct{}

	store         *portfolio.Store
	fetcher       ProfileFetcher
	auth          Authenticator
	ttl           time.Duration
	fetchTimeout  time.Duration
	refreshPrices bool
	now           func() time.Time
	log           *zap.SugaredLogger
}

// Option configures a Controller.
type Option func(*Controller)

// WithTTL sets how long a fetched balance is trusted.
func WithTTL(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithFetchTimeout bounds each profile fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the controller's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.log = logger.OrNop(l) }
}

// WithPriceRefresh makes Invalidate revalue holdings after a successful
// balance refresh and before rendering.
func WithPriceRefresh() Option {
	return func(c *Controller) { c.refreshPrices = true }
}

// New creates a controller in StateUninitialized.
func New(store *portfolio.Store, fetcher ProfileFetcher, auth Authenticator, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		fetcher:      fetcher,
		auth:         auth,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		log:          logger.Named("balancesync"),
	}
	for _, opt := range opts {
		opt(c)
	}
	syncState.Set(float64(StateUninitialized))
	return c
}

// AddRenderer registers r to receive a View after every invalidation.
func (c *Controller) AddRenderer(r Renderer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderers = append(c.renderers, r)
}

// OnProfile registers fn to receive every applied server profile. fn runs
// while the controller applies the result, so it must not call back into the
// Controller.
func (c *Controller) OnProfile(fn func(*client.Profile)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current cache state. A SYNCED cache whose TTL has
// elapsed is reported, and recorded, as STALE.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return c.state
}

// LastSync returns when the balance was last fetched successfully.
func (c *Controller) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// GetBalance returns the cached balance when it is fresh and fetches it
// otherwise. ok is false when there is no session, or when the fetch failed
// and nothing was cached. A failed fetch with a cached value returns that
// value.
func (c *Controller) GetBalance(ctx context.Context) (balance decimal.Decimal, ok bool) {
	if !c.auth.IsAuthenticated() {
		return decimal.Zero, false
	}

	c.mu.Lock()
	c.expireLocked()
	if c.state == StateSynced && c.cached != nil {
		v := *c.cached
		c.mu.Unlock()
		cacheHits.Inc()
		return v, true
	}
	c.mu.Unlock()

	return c.fetch(ctx)
}

// RefreshBalance discards the cache and fetches, with GetBalance's failure
// contract.
func (c *Controller) RefreshBalance(ctx context.Context) (decimal.Decimal, bool) {
	if !c.auth.IsAuthenticated() {
		return decimal.Zero, false
	}
	c.mu.Lock()
	if c.state == StateSynced {
		c.setStateLocked(StateStale)
	}
	c.mu.Unlock()

	return c.fetch(ctx)
}

// Initialize performs the first fetch of a session and renders the result.
func (c *Controller) Initialize(ctx context.Context) bool {
	_, ok := c.GetBalance(ctx)
	if ok && c.refreshPrices {
		c.store.RefreshPrices(ctx)
	}
	c.render()
	return ok
}

// Invalidate handles a refresh signal from any source: it refetches, then
// pushes the new view to every renderer.
func (c *Controller) Invalidate(ctx context.Context, trigger Trigger) {
	invalidations.WithLabelValues(string(trigger)).Inc()
	c.log.Debugw("invalidated", "trigger", trigger)

	_, ok := c.RefreshBalance(ctx)
	if ok && c.refreshPrices {
		c.store.RefreshPrices(ctx)
	}
	c.render()
}

// ClearAll drops the cache and the store's contents and returns the
// controller to StateUninitialized. Fetches in flight are ignored when they
// complete.
func (c *Controller) ClearAll() {
	c.mu.Lock()
	c.generation++
	c.cached = nil
	c.lastSync = time.Time{}
	c.setStateLocked(StateUninitialized)
	c.store.ClearAll()
	c.mu.Unlock()

	c.render()
}

// View returns the current view without fetching.
func (c *Controller) View() View {
	c.mu.Lock()
	c.expireLocked()
	state, lastSync := c.state, c.lastSync
	c.mu.Unlock()
	return View{Snapshot: c.store.Snapshot(), State: state, LastSync: lastSync}
}

type fetchResult struct {
	balance decimal.Decimal
}

// fetch joins or starts the in-flight fetch of the current generation. The
// fetch itself ignores the caller's cancellation so one impatient caller
// cannot fail it for the others.
func (c *Controller) fetch(ctx context.Context) (decimal.Decimal, bool) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.runFetch(context.WithoutCancel(ctx), gen)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(fetchResult).balance, true
		}
		if apperrors.CodeOf(res.Err) == apperrors.ErrSessionChanged.Code {
			return decimal.Zero, false
		}
	case <-ctx.Done():
	}
	return c.fallback()
}

func (c *Controller) runFetch(ctx context.Context, gen uint64) (any, error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil, apperrors.ErrSessionChanged
	}
	c.setStateLocked(StateSyncing)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	profile, err := c.fetcher.FetchProfile(ctx)
	fetchDuration.Observe(time.Since(start).Seconds())

	// Checked before taking mu: noticing an expired session runs the logout
	// listeners, and ClearAll takes mu.
	authenticated := c.auth.IsAuthenticated()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || !authenticated {
		fetches.WithLabelValues("discarded").Inc()
		c.log.Infow("discarding profile fetched for an ended session", "generation", gen)
		if gen == c.generation {
			c.setStateLocked(StateStale)
		}
		return nil, apperrors.ErrSessionChanged
	}
	if err != nil {
		fetches.WithLabelValues("failure").Inc()
		c.log.Warnw("balance fetch failed", "code", apperrors.CodeOf(err), "error", err)
		c.setStateLocked(StateStale)
		return nil, err
	}

	fetches.WithLabelValues("success").Inc()
	c.store.SetBalance(profile.Balance)
	if profile.PortfolioValue != nil {
		c.store.SetTotalValueHint(*profile.PortfolioValue)
	}
	balance := profile.Balance
	c.cached = &balance
	c.lastSync = c.now()
	c.setStateLocked(StateSynced)
	for _, fn := range c.observers {
		fn(profile)
	}
	return fetchResult{balance: balance}, nil
}

// fallback returns the last cached balance, if any, after a failed fetch.
func (c *Controller) fallback() (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil {
		return decimal.Zero, false
	}
	return *c.cached, true
}

func (c *Controller) render() {
	c.mu.Lock()
	renderers := append([]Renderer(nil), c.renderers...)
	c.mu.Unlock()
	if len(renderers) == 0 {
		return
	}
	view := c.View()
	for _, r := range renderers {
		r.Render(view)
	}
}

func (c *Controller) expireLocked() {
	if c.state == StateSynced && c.now().Sub(c.lastSync) >= c.ttl {
		c.setStateLocked(StateStale)
	}
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	syncState.Set(float64(s))
}
