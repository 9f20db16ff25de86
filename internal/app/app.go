// Package app wires the sync client together: session, persistence, store,
// API client, controller, push subscription and renderers.
package app

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinfolio/internal/balancesync"
	"coinfolio/internal/client"
	"coinfolio/internal/config"
	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/kvstore"
	"coinfolio/internal/logger"
	"coinfolio/internal/portfolio"
	"coinfolio/internal/pricing"
	"coinfolio/internal/push"
	"coinfolio/internal/session"
)

// Deps are optional collaborators; zero values get production defaults.
type Deps struct {
	// KV overrides the SQLite state file at cfg.StatePath.
	KV kvstore.Store
	// HTTPClient is used for API and price calls.
	HTTPClient *http.Client
	// StreamClient is used for the long-lived update stream.
	StreamClient *http.Client
	Renderers    []balancesync.Renderer
	Logger       *zap.SugaredLogger
	// Now overrides the clock used for session expiry.
	Now func() time.Time
}

// App is one client session context.
type App struct {
	Session    *session.Holder
	Store      *portfolio.Store
	API        *client.Client
	Controller *balancesync.Controller

	cfg      *config.Client
	listener *push.Listener
	closer   io.Closer
	log      *zap.SugaredLogger

	mu         sync.Mutex
	pushCancel context.CancelFunc
	pushDone   chan struct{}
}

// New builds an App from cfg.
func New(cfg *config.Client, deps Deps) (*App, error) {
	log := deps.Logger
	if log == nil {
		log = logger.Named("app")
	}

	kv := deps.KV
	var closer io.Closer
	if kv == nil {
		g, err := kvstore.OpenSQLite(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		kv, closer = g, g
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.FetchTimeout}
	}

	sessOpts := []session.Option{session.WithLogger(log.Named("session"))}
	if deps.Now != nil {
		sessOpts = append(sessOpts, session.WithClock(deps.Now))
	}
	sess := session.NewHolder(kv, sessOpts...)
	ids := pricing.DefaultSymbolIDs()
	store := portfolio.NewStore(kv, pricing.NewAPIClient(cfg.APIURL, httpClient), ids,
		portfolio.WithLogger(log.Named("portfolio")),
		portfolio.WithPriceTimeout(cfg.PriceTimeout),
	)
	api := client.New(cfg.APIURL, httpClient, sess)
	ctrl := balancesync.New(store, api, sess,
		balancesync.WithTTL(cfg.CacheTTL),
		balancesync.WithFetchTimeout(cfg.FetchTimeout),
		balancesync.WithPriceRefresh(),
		balancesync.WithLogger(log.Named("balancesync")),
	)

	a := &App{
		Session:    sess,
		Store:      store,
		API:        api,
		Controller: ctrl,
		cfg:        cfg,
		listener: push.NewListener(cfg.APIURL, deps.StreamClient, sess,
			push.WithLogger(log.Desugar().Named("push"))),
		closer: closer,
		log:    log,
	}

	ctrl.OnProfile(a.applyServerHoldings)
	for _, r := range deps.Renderers {
		ctrl.AddRenderer(r)
	}
	// Runs on Logout and when the token is found expired.
	sess.OnLogout(ctrl.ClearAll)
	return a, nil
}

// Login authenticates with credentials and installs the returned token.
func (a *App) Login(ctx context.Context, email, password string) error {
	resp, err := a.API.Login(ctx, email, password)
	if err != nil {
		return err
	}
	_, err = a.Session.Login(resp.Token)
	return err
}

// Start performs the initial sync, then starts polling and the push
// subscription. It requires an active session.
func (a *App) Start(ctx context.Context) error {
	if !a.Session.IsAuthenticated() {
		return apperrors.ErrUnauthenticated
	}
	if !a.Controller.Initialize(ctx) {
		a.log.Warn("initial balance sync failed, showing cached state")
	}
	a.Controller.StartBackgroundSync(a.cfg.PollInterval)
	a.startPush()
	return nil
}

func (a *App) startPush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pushCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.pushCancel, a.pushDone = cancel, done

	userID := a.Session.UserID()
	go func() {
		defer close(done)
		push.Subscribe(ctx, a.listener, userID, func() {
			a.Controller.Invalidate(ctx, balancesync.TriggerPush)
		})
	}()
}

// Stop halts polling and the push subscription.
func (a *App) Stop() {
	a.Controller.StopBackgroundSync()

	a.mu.Lock()
	cancel, done := a.pushCancel, a.pushDone
	a.pushCancel, a.pushDone = nil, nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Logout stops syncing and ends the session, which clears all cached state.
func (a *App) Logout() {
	a.Stop()
	a.Session.Logout()
}

// Deposit files a deposit request and refreshes the displayed state.
func (a *App) Deposit(ctx context.Context, amount decimal.Decimal) (*client.Transaction, error) {
	tx, err := a.API.Deposit(ctx, amount)
	if err != nil {
		return nil, err
	}
	a.Controller.Invalidate(ctx, balancesync.TriggerLocalMutation)
	return tx, nil
}

// Withdraw files a withdrawal request and refreshes the displayed state.
func (a *App) Withdraw(ctx context.Context, amount decimal.Decimal, address string) (*client.Transaction, error) {
	tx, err := a.API.RequestWithdrawal(ctx, amount, address)
	if err != nil {
		return nil, err
	}
	a.Controller.Invalidate(ctx, balancesync.TriggerLocalMutation)
	return tx, nil
}

// Close stops the app and releases the state file.
func (a *App) Close() error {
	a.Stop()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// applyServerHoldings replaces the store's holdings when the server reports
// a different set. Names are kept from the existing holdings.
func (a *App) applyServerHoldings(p *client.Profile) {
	if p.Holdings == nil {
		return
	}
	current := a.Store.Holdings()
	if sameHoldings(current, p.Holdings) {
		return
	}

	names := make(map[string]string, len(current))
	for _, h := range current {
		names[h.Symbol] = h.Name
	}
	inputs := make([]portfolio.HoldingInput, len(p.Holdings))
	for i, h := range p.Holdings {
		inputs[i] = portfolio.HoldingInput{Symbol: h.Symbol, Name: names[h.Symbol], Amount: h.Amount}
	}
	a.Store.SetHoldings(inputs)
	a.log.Debugw("holdings updated from server", "count", len(inputs))
}

func sameHoldings(current []portfolio.Holding, server []client.HoldingAmount) bool {
	if len(current) != len(server) {
		return false
	}
	for i := range server {
		if current[i].Symbol != server[i].Symbol || !current[i].Amount.Equal(server[i].Amount) {
			return false
		}
	}
	return true
}
