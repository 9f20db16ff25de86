// Package portfolio holds the client's displayed balance, asset holdings and
// valuation. The store caches server values and persists them so a restarted
// client has something to show, but it is never authoritative: the sync
// controller overwrites it with server truth on every successful fetch.
package portfolio

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinfolio/internal/kvstore"
	"coinfolio/internal/logger"
	"coinfolio/internal/pricing"
)

// Persistence keys.
const (
	KeyHoldings   = "portfolio.holdings"
	KeyBalance    = "portfolio.balance"
	KeyTotalValue = "portfolio.total_value"
)

const defaultPriceTimeout = 5 * time.Second

// Holding is a single asset position.
type Holding struct {
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Value      decimal.Decimal `json:"value"`
	Allocation decimal.Decimal `json:"allocation"`
}

// HoldingInput is one entry of a SetHoldings call. Zero Amount or Value means
// "unknown"; negative numbers are coerced to zero.
type HoldingInput struct {
	Symbol string
	Name   string
	Amount decimal.Decimal
	Value  decimal.Decimal
}

// Snapshot is the full displayed state at one point in time.
type Snapshot struct {
	Balance    decimal.Decimal
	Holdings   []Holding
	TotalValue decimal.Decimal
	NetWorth   decimal.Decimal
}

// Store is the single source of truth for the displayed portfolio.
type Store struct {
	mu        sync.RWMutex
	balance   decimal.Decimal
	holdings  []Holding
	totalHint decimal.Decimal
	// epoch counts ClearAll calls; lookups started in an older epoch are dropped.
	epoch uint64

	kv           kvstore.Store
	prices       pricing.Lookup
	ids          pricing.SymbolIDs
	priceTimeout time.Duration
	log          *zap.SugaredLogger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = logger.OrNop(l) }
}

// WithPriceTimeout bounds each RefreshPrices lookup.
func WithPriceTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.priceTimeout = d
		}
	}
}

// NewStore creates a store backed by kv and restores any persisted state.
// prices may be nil, in which case RefreshPrices always reports failure.
func NewStore(kv kvstore.Store, prices pricing.Lookup, ids pricing.SymbolIDs, opts ...Option) *Store {
	if kv == nil {
		kv = kvstore.NewMemory()
	}
	if ids == nil {
		ids = pricing.DefaultSymbolIDs()
	}
	s := &Store{
		kv:           kv,
		prices:       prices,
		ids:          ids,
		priceTimeout: defaultPriceTimeout,
		log:          logger.Named("portfolio"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.restore()
	return s
}

// Balance returns the last known cash balance.
func (s *Store) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// Holdings returns a copy of the holdings in server order.
func (s *Store) Holdings() []Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHoldings(s.holdings)
}

// TotalValue returns the holdings total: the sum of holding values when any
// holding has been valued, otherwise the last server-supplied hint. The
// fallback avoids showing zero between SetHoldings and the first price refresh.
func (s *Store) TotalValue() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalValueLocked()
}

// NetWorth returns Balance plus TotalValue.
func (s *Store) NetWorth() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance.Add(s.totalValueLocked())
}

// Snapshot returns a consistent copy of the displayed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.totalValueLocked()
	return Snapshot{
		Balance:    s.balance,
		Holdings:   cloneHoldings(s.holdings),
		TotalValue: total,
		NetWorth:   s.balance.Add(total),
	}
}

// SetHoldings replaces the holdings wholesale. Entries with an empty symbol
// are dropped; a repeated symbol replaces the earlier entry in place. The last
// known unit price of a symbol is carried over so a later partial price
// refresh degrades to it.
func (s *Store) SetHoldings(inputs []HoldingInput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := make(map[string]decimal.Decimal, len(s.holdings))
	for _, h := range s.holdings {
		previous[h.Symbol] = h.UnitPrice
	}

	next := make([]Holding, 0, len(inputs))
	index := make(map[string]int, len(inputs))
	for _, in := range inputs {
		symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
		if symbol == "" {
			continue
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = symbol
		}
		h := Holding{
			Symbol:    symbol,
			Name:      name,
			Amount:    NonNegative(in.Amount),
			Value:     NonNegative(in.Value),
			UnitPrice: previous[symbol],
		}
		if i, dup := index[symbol]; dup {
			next[i] = h
			continue
		}
		index[symbol] = len(next)
		next = append(next, h)
	}

	s.holdings = next
	recomputeAllocations(s.holdings)
	s.persistHoldingsLocked()
}

// SetBalance overwrites the cash balance.
func (s *Store) SetBalance(balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
	s.persist(KeyBalance, balance.String())
}

// SetTotalValueHint overwrites the fallback holdings total used before any
// holding has been valued.
func (s *Store) SetTotalValueHint(total decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalHint = NonNegative(total)
	s.persist(KeyTotalValue, s.totalHint.String())
}

// RefreshPrices looks up a price for every mapped holding and revalues the
// portfolio. It reports false, leaving every value untouched, when the lookup
// request fails or ClearAll ran while it was outstanding. Holdings whose price
// is missing from a successful response keep their previous unit price.
func (s *Store) RefreshPrices(ctx context.Context) bool {
	s.mu.RLock()
	epoch := s.epoch
	symbols := make([]string, len(s.holdings))
	for i, h := range s.holdings {
		symbols[i] = h.Symbol
	}
	s.mu.RUnlock()

	prices := map[string]decimal.Decimal{}
	if ids := s.ids.IDs(symbols); len(ids) > 0 {
		if s.prices == nil {
			s.log.Warn("price refresh skipped: no price lookup configured")
			return false
		}
		lookupCtx, cancel := context.WithTimeout(ctx, s.priceTimeout)
		defer cancel()

		var err error
		prices, err = s.prices.LookupPrices(lookupCtx, ids)
		if err != nil {
			s.log.Warnw("price refresh failed", "ids", ids, "error", err)
			return false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.log.Debug("discarding prices looked up before the store was cleared")
		return false
	}
	for i := range s.holdings {
		h := &s.holdings[i]
		if id, ok := s.ids.ID(h.Symbol); ok {
			if p, ok := prices[id]; ok {
				h.UnitPrice = p
			} else {
				s.log.Debugw("no price returned, keeping last known", "symbol", h.Symbol, "id", id)
			}
		}
		h.Value = h.Amount.Mul(h.UnitPrice)
	}
	recomputeAllocations(s.holdings)
	s.persistHoldingsLocked()
	return true
}

// ClearAll resets the store to its empty state and erases persisted state.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.balance = decimal.Zero
	s.holdings = nil
	s.totalHint = decimal.Zero
	for _, key := range []string{KeyHoldings, KeyBalance, KeyTotalValue} {
		if err := s.kv.Remove(key); err != nil {
			s.log.Warnw("failed to erase persisted state", "key", key, "error", err)
		}
	}
}

func (s *Store) totalValueLocked() decimal.Decimal {
	total, valued := holdingsTotal(s.holdings)
	if !valued {
		return s.totalHint
	}
	return total
}

func (s *Store) persistHoldingsLocked() {
	blob, err := json.Marshal(s.holdings)
	if err != nil {
		s.log.Errorw("failed to encode holdings", "error", err)
		return
	}
	s.persist(KeyHoldings, string(blob))
}

func (s *Store) persist(key, value string) {
	if err := s.kv.Set(key, value); err != nil {
		s.log.Warnw("failed to persist portfolio state", "key", key, "error", err)
	}
}

func (s *Store) restore() {
	if raw, ok := s.kv.Get(KeyBalance); ok {
		s.balance = ParseDecimal(raw)
	}
	if raw, ok := s.kv.Get(KeyTotalValue); ok {
		s.totalHint = NonNegative(ParseDecimal(raw))
	}
	if raw, ok := s.kv.Get(KeyHoldings); ok && raw != "" {
		var holdings []Holding
		if err := json.Unmarshal([]byte(raw), &holdings); err != nil {
			s.log.Warnw("ignoring malformed persisted holdings", "error", err)
			return
		}
		kept := holdings[:0]
		for _, h := range holdings {
			if h.Symbol == "" {
				continue
			}
			h.Amount = NonNegative(h.Amount)
			h.UnitPrice = NonNegative(h.UnitPrice)
			h.Value = NonNegative(h.Value)
			kept = append(kept, h)
		}
		s.holdings = kept
		recomputeAllocations(s.holdings)
	}
}

func cloneHoldings(in []Holding) []Holding {
	if in == nil {
		return []Holding{}
	}
	out := make([]Holding, len(in))
	copy(out, in)
	return out
}
