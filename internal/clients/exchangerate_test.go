package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutetrade/hub/internal/domain"
)

func TestExchangeRateFetch(t *testing.T) {
	fiats := []string{"EUR", "GBP", "RUB"}

	t.Run("inverts per-USD rates into USD prices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "/test-key/latest/USD")
			w.Write([]byte(`{"result":"success","conversion_rates":{"EUR":0.8,"GBP":0.5,"JPY":150}}`))
		}))
		defer srv.Close()

		client := NewExchangeRateClient(srv.URL, "test-key", fiats, time.Second)
		records, err := client.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 2)

		// 0.8 EUR per USD means 1 EUR costs 1.25 USD.
		assert.Equal(t, "EUR", records[0].Currency)
		assert.True(t, records[0].Price.Equal(decimal.RequireFromString("1.25")), "got %s", records[0].Price)
		assert.Equal(t, domain.SourceExchangeRate, records[0].Source)

		assert.Equal(t, "GBP", records[1].Currency)
		assert.True(t, records[1].Price.Equal(decimal.NewFromInt(2)))
	})

	t.Run("missing api key fails before the request", func(t *testing.T) {
		client := NewExchangeRateClient("http://unused", "", fiats, time.Second)
		_, err := client.Fetch(context.Background())

		var pe *domain.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Contains(t, pe.Reason, "API key")
	})

	t.Run("api-level error is surfaced", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
		}))
		defer srv.Close()

		client := NewExchangeRateClient(srv.URL, "test-key", fiats, time.Second)
		_, err := client.Fetch(context.Background())

		var pe *domain.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Contains(t, pe.Reason, "invalid-key")
	})

	t.Run("auth failure status is classified", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		client := NewExchangeRateClient(srv.URL, "test-key", fiats, time.Second)
		_, err := client.Fetch(context.Background())

		var pe *domain.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Contains(t, pe.Reason, "authentication failed")
	})

	t.Run("non-positive rates are skipped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"result":"success","conversion_rates":{"EUR":0,"GBP":0.5}}`))
		}))
		defer srv.Close()

		client := NewExchangeRateClient(srv.URL, "test-key", fiats, time.Second)
		records, err := client.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "GBP", records[0].Currency)
	})
}
