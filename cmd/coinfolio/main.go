package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"coinfolio/internal/app"
	"coinfolio/internal/balancesync"
	"coinfolio/internal/config"
	"coinfolio/internal/logger"
	"coinfolio/internal/render"
)

const usage = `usage: coinfolio [watch | balance | deposit <amount> | withdraw <amount> <address> | quote <amount> | logout]`

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(os.Args[1:]); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run(args []string) error {
	log := logger.Get()

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := app.New(cfg, app.Deps{
		Renderers: []balancesync.Renderer{
			render.NewCard(os.Stdout, render.DefaultTheme),
			render.NewLogRenderer(nil),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build client: %w", err)
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "watch"
	if len(args) > 0 {
		command = args[0]
	}
	if command == "logout" {
		a.Logout()
		log.Info("Logged out")
		return nil
	}

	if err := ensureSession(ctx, a, cfg); err != nil {
		return err
	}

	switch command {
	case "watch":
		return watch(ctx, a, cfg)

	case "balance":
		if !a.Controller.Initialize(ctx) {
			return errors.New("balance unavailable")
		}
		return nil

	case "deposit":
		amount, err := amountArg(args, 1)
		if err != nil {
			return err
		}
		tx, err := a.Deposit(ctx, amount)
		if err != nil {
			return fmt.Errorf("deposit failed: %w", err)
		}
		log.Infof("Deposit %s of %s is %s", tx.ID, render.FormatMoney(tx.Amount), tx.Status)

	case "withdraw":
		amount, err := amountArg(args, 1)
		if err != nil {
			return err
		}
		if len(args) < 3 {
			return errors.New(usage)
		}
		tx, err := a.Withdraw(ctx, amount, args[2])
		if err != nil {
			return fmt.Errorf("withdrawal failed: %w", err)
		}
		log.Infof("Withdrawal %s of %s (fee %s) is %s", tx.ID, render.FormatMoney(tx.Amount), render.FormatMoney(tx.Fee), tx.Status)

	case "quote":
		amount, err := amountArg(args, 1)
		if err != nil {
			return err
		}
		q, err := a.API.QuoteWithdrawal(ctx, amount)
		if err != nil {
			return fmt.Errorf("quote failed: %w", err)
		}
		fmt.Printf("amount %s  fee %s  total %s\n",
			render.FormatMoney(q.Amount), render.FormatMoney(q.Fee), render.FormatMoney(q.Total))

	default:
		return errors.New(usage)
	}
	return nil
}

// ensureSession installs a session from COINFOLIO_TOKEN, from credentials, or
// from the persisted state file, in that order.
func ensureSession(ctx context.Context, a *app.App, cfg *config.Client) error {
	switch {
	case cfg.Token != "":
		if _, err := a.Session.Login(cfg.Token); err != nil {
			return fmt.Errorf("invalid COINFOLIO_TOKEN: %w", err)
		}
	case cfg.Email != "" && cfg.Password != "":
		if err := a.Login(ctx, cfg.Email, cfg.Password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	case a.Session.IsAuthenticated():
		logger.Get().Debug("Resuming persisted session")
	default:
		return errors.New("not logged in: set COINFOLIO_TOKEN or COINFOLIO_EMAIL and COINFOLIO_PASSWORD")
	}
	return nil
}

func watch(ctx context.Context, a *app.App, cfg *config.Client) error {
	log := logger.Get()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Infof("Serving client metrics on %s/metrics", cfg.MetricsAddr)
	}

	if err := a.Start(ctx); err != nil {
		return err
	}
	log.Infof("Watching portfolio (poll every %s)", cfg.PollInterval)
	<-ctx.Done()
	a.Stop()
	return nil
}

func amountArg(args []string, i int) (decimal.Decimal, error) {
	if len(args) <= i {
		return decimal.Zero, errors.New(usage)
	}
	d, err := decimal.NewFromString(args[i])
	if err != nil || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid amount %q", args[i])
	}
	return d, nil
}
