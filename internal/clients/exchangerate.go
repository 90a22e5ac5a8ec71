package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valutetrade/hub/internal/domain"
)

// ExchangeRateClient fetches fiat rates from ExchangeRate-API. The API
// reports units of fiat per USD, so prices are inverted into USD per unit
// before leaving the adapter.
type ExchangeRateClient struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	currencies []string
}

// NewExchangeRateClient creates an ExchangeRate-API adapter for the given
// fiat currency codes.
func NewExchangeRateClient(baseURL, apiKey string, currencies []string, timeout time.Duration) *ExchangeRateClient {
	return &ExchangeRateClient{
		http:       &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		currencies: currencies,
	}
}

// Source identifies the provider.
func (c *ExchangeRateClient) Source() domain.Source {
	return domain.SourceExchangeRate
}

type exchangeRateResponse struct {
	Result          string                 `json:"result"`
	ErrorType       string                 `json:"error-type"`
	ConversionRates map[string]json.Number `json:"conversion_rates"`
}

// Fetch returns USD prices for every configured fiat currency present in the
// response.
func (c *ExchangeRateClient) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	if c.apiKey == "" {
		return nil, providerErr(c.Source(), "missing API key, set EXCHANGERATE_API_KEY")
	}

	url := fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, domain.BaseCurrency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

	var payload exchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, providerErr(c.Source(), "invalid JSON response: %v", err)
	}
	if payload.Result != "success" {
		reason := payload.ErrorType
		if reason == "" {
			reason = "unknown error"
		}
		return nil, providerErr(c.Source(), "API error: %s", reason)
	}

	observedAt := time.Now().UTC()
	one := decimal.NewFromInt(1)
	records := make([]domain.RateRecord, 0, len(c.currencies))

	for _, code := range c.currencies {
		raw, ok := payload.ConversionRates[code]
		if !ok {
			continue
		}
		perUSD, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, providerErr(c.Source(), "malformed rate for %s: %v", code, err)
		}
		if !perUSD.IsPositive() {
			continue
		}
		// conversion_rates[EUR] is EUR per USD; the snapshot stores USD
		// per EUR.
		price := one.DivRound(perUSD, 16)
		records = append(records, domain.NewRateRecord(code, price, c.Source(), observedAt))
	}

	return records, nil
}
