// Package pricing looks up USD market prices for crypto assets, either through
// the coinfolio API price proxy or directly from CoinGecko.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Lookup fetches USD prices keyed by external asset id (e.g. "bitcoin").
// Ids missing from the returned map had no price available; an error means
// the request as a whole failed.
type Lookup interface {
	LookupPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// SymbolIDs maps ticker symbols (upper case) to external price ids.
type SymbolIDs map[string]string

// DefaultSymbolIDs returns the CoinGecko ids for the assets the app lists.
func DefaultSymbolIDs() SymbolIDs {
	return SymbolIDs{
		"BTC":   "bitcoin",
		"ETH":   "ethereum",
		"USDT":  "tether",
		"USDC":  "usd-coin",
		"BNB":   "binancecoin",
		"SOL":   "solana",
		"XRP":   "ripple",
		"ADA":   "cardano",
		"DOGE":  "dogecoin",
		"TRX":   "tron",
		"DOT":   "polkadot",
		"LTC":   "litecoin",
		"MATIC": "matic-network",
		"SHIB":  "shiba-inu",
	}
}

// ID returns the external id for symbol, case-insensitively.
func (m SymbolIDs) ID(symbol string) (string, bool) {
	id, ok := m[strings.ToUpper(strings.TrimSpace(symbol))]
	return id, ok && id != ""
}

// IDs returns the sorted, de-duplicated external ids for symbols, skipping
// symbols with no mapping.
func (m SymbolIDs) IDs(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		id, ok := m.ID(s)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllIDs returns every mapped external id, sorted.
func (m SymbolIDs) AllIDs() []string {
	symbols := make([]string, 0, len(m))
	for s := range m {
		symbols = append(symbols, s)
	}
	return m.IDs(symbols)
}

// simplePrice is the {"<id>": {"usd": n}} shape shared by CoinGecko's
// /simple/price endpoint and the coinfolio API proxy.
type simplePrice map[string]struct {
	USD *decimal.Decimal `json:"usd"`
}

// decodeSimplePrice decodes a simple-price body, dropping entries without a
// usd price and negative prices.
func decodeSimplePrice(r io.Reader) (map[string]decimal.Decimal, error) {
	var body simplePrice
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding price response: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(body))
	for id, quote := range body {
		if quote.USD == nil || quote.USD.IsNegative() {
			continue
		}
		out[id] = *quote.USD
	}
	return out, nil
}
