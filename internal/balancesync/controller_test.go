package balancesync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinfolio/internal/client"
	"coinfolio/internal/portfolio"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type fakeAuth struct{ authed atomic.Bool }

func newFakeAuth(authed bool) *fakeAuth {
	a := &fakeAuth{}
	a.authed.Store(authed)
	return a
}

func (a *fakeAuth) IsAuthenticated() bool { return a.authed.Load() }

// fakeFetcher answers FetchProfile from fn and counts calls.
type fakeFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (*client.Profile, error)
}

func (f *fakeFetcher) FetchProfile(ctx context.Context) (*client.Profile, error) {
	f.calls.Add(1)
	return f.fn(ctx)
}

func balanceFetcher(balance string) *fakeFetcher {
	return &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		return &client.Profile{Balance: decimal.RequireFromString(balance)}, nil
	}}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newController(t *testing.T, fetcher ProfileFetcher, auth Authenticator, opts ...Option) (*Controller, *portfolio.Store) {
	t.Helper()
	store := portfolio.NewStore(nil, nil, nil)
	c := New(store, fetcher, auth, opts...)
	t.Cleanup(c.StopBackgroundSync)
	return c, store
}

func TestGetBalance_FreshLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"balance":1000}}`))
	}))
	defer srv.Close()
	api := client.New(srv.URL, srv.Client(), headerFunc(func() http.Header {
		return http.Header{"Authorization": []string{"Bearer t"}}
	}))

	c, store := newController(t, api, newFakeAuth(true))
	require.Equal(t, StateUninitialized, c.State())

	balance, ok := c.GetBalance(context.Background())

	require.True(t, ok)
	assert.True(t, balance.Equal(d("1000")))
	assert.Equal(t, StateSynced, c.State())
	assert.True(t, store.Balance().Equal(d("1000")))
}

type headerFunc func() http.Header

func (f headerFunc) GetAuthHeader() http.Header { return f() }

func TestGetBalance_CacheFreshness(t *testing.T) {
	clock := newFakeClock()
	fetcher := balanceFetcher("10")
	c, _ := newController(t, fetcher, newFakeAuth(true), WithTTL(3*time.Second), WithClock(clock.Now))

	_, ok := c.GetBalance(context.Background())
	require.True(t, ok)
	clock.Advance(2 * time.Second)
	_, ok = c.GetBalance(context.Background())
	require.True(t, ok)
	assert.EqualValues(t, 1, fetcher.calls.Load(), "second read within TTL is served from cache")

	clock.Advance(1500 * time.Millisecond)
	_, ok = c.GetBalance(context.Background())
	require.True(t, ok)
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestState_ExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	c, _ := newController(t, balanceFetcher("1"), newFakeAuth(true), WithClock(clock.Now))

	c.GetBalance(context.Background())
	assert.Equal(t, StateSynced, c.State())

	clock.Advance(DefaultTTL)
	assert.Equal(t, StateStale, c.State())
}

func TestGetBalance_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		once.Do(func() { close(entered) })
		<-release
		return &client.Profile{Balance: d("77")}, nil
	}}
	c, _ := newController(t, fetcher, newFakeAuth(true))

	results := make([]decimal.Decimal, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = c.GetBalance(context.Background())
	}()
	<-entered
	assert.Equal(t, StateSyncing, c.State())
	go func() {
		defer wg.Done()
		results[1], _ = c.GetBalance(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, fetcher.calls.Load())
	assert.True(t, results[0].Equal(d("77")))
	assert.True(t, results[1].Equal(d("77")))
}

func TestGetBalance_FailOpenOnTransportError(t *testing.T) {
	clock := newFakeClock()
	var fail atomic.Bool
	fetcher := &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		if fail.Load() {
			return nil, errors.New("connection reset")
		}
		return &client.Profile{Balance: d("250.00")}, nil
	}}
	c, store := newController(t, fetcher, newFakeAuth(true), WithClock(clock.Now))

	balance, ok := c.GetBalance(context.Background())
	require.True(t, ok)
	require.True(t, balance.Equal(d("250")))

	fail.Store(true)
	clock.Advance(5 * time.Second)

	balance, ok = c.GetBalance(context.Background())
	assert.True(t, ok)
	assert.True(t, balance.Equal(d("250")))
	assert.Equal(t, StateStale, c.State())
	assert.True(t, store.Balance().Equal(d("250")), "store untouched")
}

func TestGetBalance_FailureWithNothingCached(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		return nil, errors.New("boom")
	}}
	c, _ := newController(t, fetcher, newFakeAuth(true))

	_, ok := c.GetBalance(context.Background())
	assert.False(t, ok)
	assert.Equal(t, StateStale, c.State())
}

func TestGetBalance_Unauthenticated(t *testing.T) {
	fetcher := balanceFetcher("1")
	c, _ := newController(t, fetcher, newFakeAuth(false))

	_, ok := c.GetBalance(context.Background())
	assert.False(t, ok)
	_, ok = c.RefreshBalance(context.Background())
	assert.False(t, ok)
	assert.Zero(t, fetcher.calls.Load())
	assert.Equal(t, StateUninitialized, c.State())
}

func TestFetchTimeoutIsAFailure(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(ctx context.Context) (*client.Profile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c, _ := newController(t, fetcher, newFakeAuth(true), WithFetchTimeout(20*time.Millisecond))

	_, ok := c.GetBalance(context.Background())
	assert.False(t, ok)
	assert.Equal(t, StateStale, c.State())
}

func TestCallerCancellationDoesNotCancelSharedFetch(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(ctx context.Context) (*client.Profile, error) {
		select {
		case <-release:
			return &client.Profile{Balance: d("5")}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	c, _ := newController(t, fetcher, newFakeAuth(true))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, ok := c.GetBalance(ctx)
	assert.False(t, ok, "impatient caller gives up")

	close(release)
	require.Eventually(t, func() bool { return c.State() == StateSynced }, time.Second, 5*time.Millisecond)
}

func TestRefreshBalance_AlwaysFetches(t *testing.T) {
	fetcher := balanceFetcher("3")
	c, _ := newController(t, fetcher, newFakeAuth(true))

	c.GetBalance(context.Background())
	c.RefreshBalance(context.Background())

	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestLogoutRace(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		close(entered)
		<-release
		return &client.Profile{Balance: d("999"), PortfolioValue: ptr(d("50"))}, nil
	}}
	c, store := newController(t, fetcher, newFakeAuth(true))

	type result struct {
		balance decimal.Decimal
		ok      bool
	}
	done := make(chan result, 1)
	go func() {
		b, ok := c.GetBalance(context.Background())
		done <- result{b, ok}
	}()

	<-entered
	c.ClearAll()
	close(release)
	res := <-done

	assert.False(t, res.ok)
	assert.True(t, store.Balance().IsZero())
	assert.True(t, store.TotalValue().IsZero())
	assert.Equal(t, StateUninitialized, c.State())
}

func TestSessionEndedMidFetch_LeavesSyncing(t *testing.T) {
	auth := newFakeAuth(true)
	fetcher := &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		auth.authed.Store(false)
		return &client.Profile{Balance: d("500")}, nil
	}}
	c, store := newController(t, fetcher, auth)

	_, ok := c.GetBalance(context.Background())

	assert.False(t, ok)
	assert.True(t, store.Balance().IsZero(), "the discarded profile is not applied")
	assert.Equal(t, StateStale, c.State())
}

// expiringAuth ends its session on the first check after expire is called
// and, like session.Holder, notifies onEnd from inside IsAuthenticated.
type expiringAuth struct {
	expired atomic.Bool
	ended   atomic.Bool
	onEnd   func()
}

func (a *expiringAuth) IsAuthenticated() bool {
	if !a.expired.Load() {
		return true
	}
	if a.ended.CompareAndSwap(false, true) && a.onEnd != nil {
		a.onEnd()
	}
	return false
}

func TestExpiryMidFetch_ClearsThroughLogoutListener(t *testing.T) {
	auth := &expiringAuth{}
	fetcher := &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		auth.expired.Store(true)
		return &client.Profile{Balance: d("500"), PortfolioValue: ptr(d("40"))}, nil
	}}
	c, store := newController(t, fetcher, auth)
	auth.onEnd = c.ClearAll
	store.SetBalance(d("123"))

	done := make(chan bool, 1)
	go func() {
		_, ok := c.GetBalance(context.Background())
		done <- ok
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("GetBalance did not return; expiry listener deadlocked against the fetch")
	}
	assert.True(t, auth.ended.Load())
	assert.True(t, store.Balance().IsZero())
	assert.True(t, store.TotalValue().IsZero())
	assert.Equal(t, StateUninitialized, c.State())
}

func TestClearAll_ResetsController(t *testing.T) {
	c, store := newController(t, balanceFetcher("10"), newFakeAuth(true))
	c.GetBalance(context.Background())
	store.SetHoldings([]portfolio.HoldingInput{{Symbol: "BTC", Amount: d("1")}})

	c.ClearAll()
	c.ClearAll()

	assert.Equal(t, StateUninitialized, c.State())
	assert.True(t, c.LastSync().IsZero())
	assert.Empty(t, store.Holdings())
	assert.True(t, store.Balance().IsZero())
}

func TestInvalidate_RefreshesAndRenders(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(context.Context) (*client.Profile, error) {
		return &client.Profile{
			Balance:  d("42"),
			Holdings: []client.HoldingAmount{{Symbol: "ETH", Amount: d("2")}},
		}, nil
	}}
	c, store := newController(t, fetcher, newFakeAuth(true))

	var profiles []*client.Profile
	c.OnProfile(func(p *client.Profile) { profiles = append(profiles, p) })

	var views []View
	c.AddRenderer(RendererFunc(func(v View) { views = append(views, v) }))

	c.Invalidate(context.Background(), TriggerPush)

	assert.EqualValues(t, 1, fetcher.calls.Load())
	require.Len(t, views, 1)
	assert.Equal(t, StateSynced, views[0].State)
	assert.False(t, views[0].Stale())
	assert.True(t, views[0].Snapshot.Balance.Equal(d("42")))
	require.Len(t, profiles, 1)
	assert.Equal(t, "ETH", profiles[0].Holdings[0].Symbol)
	assert.True(t, store.Balance().Equal(d("42")))
}

func TestInvalidate_BypassesFreshCache(t *testing.T) {
	fetcher := balanceFetcher("1")
	c, _ := newController(t, fetcher, newFakeAuth(true))

	c.GetBalance(context.Background())
	c.Invalidate(context.Background(), TriggerLocalMutation)

	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestBackgroundSync_StartIsIdempotent(t *testing.T) {
	fetcher := balanceFetcher("1")
	c, _ := newController(t, fetcher, newFakeAuth(true))

	c.StartBackgroundSync(10 * time.Millisecond)
	c.StartBackgroundSync(10 * time.Millisecond)
	assert.True(t, c.BackgroundSyncRunning())

	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	c.StopBackgroundSync()
	assert.False(t, c.BackgroundSyncRunning())
	time.Sleep(20 * time.Millisecond)
	stopped := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, fetcher.calls.Load(), "no loop survives a single stop")
}

func TestBackgroundSync_RendersEveryTick(t *testing.T) {
	c, _ := newController(t, balanceFetcher("1"), newFakeAuth(true))

	var renders atomic.Int32
	c.AddRenderer(RendererFunc(func(View) { renders.Add(1) }))

	c.StartBackgroundSync(10 * time.Millisecond)
	require.Eventually(t, func() bool { return renders.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }
