package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valutetrade/hub/internal/domain"
)

// CoinGeckoClient fetches crypto prices from the CoinGecko simple price API.
type CoinGeckoClient struct {
	http    *http.Client
	baseURL string
	// ids maps currency codes to CoinGecko asset ids, e.g. BTC -> bitcoin.
	ids map[string]string
}

// NewCoinGeckoClient creates a CoinGecko adapter for the given code->id map.
func NewCoinGeckoClient(baseURL string, ids map[string]string, timeout time.Duration) *CoinGeckoClient {
	return &CoinGeckoClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		ids:     ids,
	}
}

// Source identifies the provider.
func (c *CoinGeckoClient) Source() domain.Source {
	return domain.SourceCoinGecko
}

// Fetch returns USD prices for every configured crypto currency present in
// the response.
func (c *CoinGeckoClient) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	if len(c.ids) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(c.ids))
	for _, id := range c.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", strings.ToLower(domain.BaseCurrency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, providerErr(c.Source(), "build request: %v", err)
	}
	req.Header.Set("User-Agent", "valutetrade-hub/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providerErr(c.Source(), "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(c.Source(), resp)
	}

	// Response shape: {"bitcoin": {"usd": 60000.5}, ...}
	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, providerErr(c.Source(), "invalid JSON response: %v", err)
	}

	observedAt := time.Now().UTC()
	records := make([]domain.RateRecord, 0, len(c.ids))

	codes := make([]string, 0, len(c.ids))
	for code := range c.ids {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	vs := strings.ToLower(domain.BaseCurrency)
	for _, code := range codes {
		prices, ok := payload[c.ids[code]]
		if !ok {
			continue
		}
		raw, ok := prices[vs]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, providerErr(c.Source(), "malformed price for %s: %v", code, err)
		}
		records = append(records, domain.NewRateRecord(code, price, c.Source(), observedAt))
	}

	return records, nil
}
