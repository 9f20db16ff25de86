package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// CoinGecko fetches prices from the CoinGecko public API.
type CoinGecko struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	limiter    *rate.Limiter
}

// NewCoinGecko creates a CoinGecko lookup. requestsPerSecond <= 0 disables
// client-side rate limiting.
func NewCoinGecko(httpClient *http.Client, baseURL string, requestsPerSecond float64) *CoinGecko {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &CoinGecko{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Name returns the provider's display name.
func (p *CoinGecko) Name() string { return "CoinGecko" }

// LookupPrices implements Lookup against /simple/price.
func (p *CoinGecko) LookupPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching CoinGecko prices: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching CoinGecko prices: unexpected status %d", resp.StatusCode)
	}
	return decodeSimplePrice(resp.Body)
}
