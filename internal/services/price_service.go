package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/logger"
	"coinfolio/internal/models"
	"coinfolio/internal/pricing"
)

const refreshTimeout = 30 * time.Second

// PriceService caches market prices for a fixed set of asset ids, refreshed
// on a cron schedule and persisted so a restart serves the last known prices.
type PriceService struct {
	db     *gorm.DB
	lookup pricing.Lookup
	ids    []string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal

	cron *cron.Cron
	log  *zap.SugaredLogger
}

// NewPriceService creates a price service tracking ids and restores cached
// prices from the database.
func NewPriceService(db *gorm.DB, lookup pricing.Lookup, ids []string) *PriceService {
	tracked := append([]string(nil), ids...)
	sort.Strings(tracked)

	s := &PriceService{
		db:     db,
		lookup: lookup,
		ids:    tracked,
		prices: make(map[string]decimal.Decimal),
		log:    logger.Named("prices"),
	}
	s.restore()
	return s
}

// Prices returns cached USD prices for ids. Ids that are not tracked are
// fetched on demand; ids with no price anywhere are omitted.
func (s *PriceService) Prices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(ids))
	var missing []string

	s.mu.RLock()
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out[id] = p
		} else {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 || s.lookup == nil {
		return out, nil
	}

	fetched, err := s.lookup.LookupPrices(ctx, missing)
	if err != nil {
		if len(out) == 0 {
			return nil, apperrors.Wrap(apperrors.ErrPricesUnavailable, err)
		}
		s.log.Warnw("serving partial prices", "missing", missing, "error", err)
		return out, nil
	}
	s.store(fetched)
	for id, p := range fetched {
		out[id] = p
	}
	return out, nil
}

// Refresh fetches every tracked id and replaces the cached prices it got.
func (s *PriceService) Refresh(ctx context.Context) error {
	if s.lookup == nil || len(s.ids) == 0 {
		return nil
	}
	fetched, err := s.lookup.LookupPrices(ctx, s.ids)
	if err != nil {
		return fmt.Errorf("refreshing prices: %w", err)
	}
	s.store(fetched)
	s.log.Debugw("prices refreshed", "count", len(fetched))
	return nil
}

// Start refreshes once and then on schedule (standard cron syntax or
// descriptors such as "@every 1m").
func (s *PriceService) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.runRefresh); err != nil {
		return fmt.Errorf("invalid price refresh schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	go s.runRefresh()
	s.log.Infow("price refresh scheduled", "schedule", schedule, "ids", len(s.ids))
	return nil
}

// Stop halts the schedule and waits for a running refresh.
func (s *PriceService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *PriceService) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		s.log.Warnw("price refresh failed", "error", err)
	}
}

func (s *PriceService) store(prices map[string]decimal.Decimal) {
	if len(prices) == 0 {
		return
	}
	now := time.Now()
	rows := make([]models.AssetPrice, 0, len(prices))

	s.mu.Lock()
	for id, p := range prices {
		s.prices[id] = p
		rows = append(rows, models.AssetPrice{AssetID: id, USD: p, FetchedAt: now})
	}
	s.mu.Unlock()

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"usd", "fetched_at"}),
	}).Create(&rows).Error
	if err != nil {
		s.log.Warnw("failed to persist prices", "error", err)
	}
}

func (s *PriceService) restore() {
	var rows []models.AssetPrice
	if err := s.db.Find(&rows).Error; err != nil {
		s.log.Warnw("failed to load cached prices", "error", err)
		return
	}
	for _, row := range rows {
		s.prices[row.AssetID] = row.USD
	}
}
