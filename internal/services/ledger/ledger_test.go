package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/services/converter"
	"github.com/valutetrade/hub/internal/services/ratecache"
	"github.com/valutetrade/hub/internal/storage/portfolio"
	"github.com/valutetrade/hub/internal/storage/rates"
)

type fakeRates map[string]decimal.Decimal

func (f fakeRates) Lookup(code string) (domain.RateRecord, error) {
	price, ok := f[code]
	if !ok {
		return domain.RateRecord{}, errors.Wrapf(domain.ErrRateNotFound, "currency %s", code)
	}
	return domain.NewRateRecord(code, price, domain.SourceCoinGecko, time.Now()), nil
}

func newTestLedger(t *testing.T, rates fakeRates) (*Ledger, *portfolio.Store) {
	t.Helper()
	store := portfolio.NewStore(filepath.Join(t.TempDir(), "portfolios.json"))
	return New(store, converter.New(rates), nil), store
}

func fund(t *testing.T, store *portfolio.Store, userID string, code string, amount int64) {
	t.Helper()
	_, err := store.Mutate(userID, func(p *domain.Portfolio) error {
		p.Deposit(code, decimal.NewFromInt(amount))
		return nil
	})
	require.NoError(t, err)
}

// No USD entry: providers report every currency except the base itself.
func standardRates() fakeRates {
	return fakeRates{
		"BTC": decimal.NewFromInt(60000),
		"ETH": decimal.NewFromInt(3000),
	}
}

func TestBuy(t *testing.T) {
	t.Run("buys btc against usd balance", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 1000)

		result, err := led.Buy("alice", "BTC", decimal.RequireFromString("0.01"))
		require.NoError(t, err)

		assert.True(t, result.Balances["USD"].Equal(decimal.NewFromInt(400)), "usd: %s", result.Balances["USD"])
		assert.True(t, result.Balances["BTC"].Equal(decimal.RequireFromString("0.01")), "btc: %s", result.Balances["BTC"])
		assert.Equal(t, domain.SideBuy, result.Trade.Side)
		assert.True(t, result.Trade.BaseDelta.Equal(decimal.NewFromInt(-600)))
	})

	t.Run("insufficient funds leaves balances untouched", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 100)

		_, err := led.Buy("alice", "BTC", decimal.RequireFromString("0.01"))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		p, err := store.Get("alice")
		require.NoError(t, err)
		assert.True(t, p.Balance("USD").Equal(decimal.NewFromInt(100)))
		assert.True(t, p.Balance("BTC").IsZero())
	})

	t.Run("missing rate leaves balances untouched", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 1000)

		_, err := led.Buy("alice", "XRP", decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrMissingRate)

		p, err := store.Get("alice")
		require.NoError(t, err)
		assert.True(t, p.Balance("USD").Equal(decimal.NewFromInt(1000)))
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		led, _ := newTestLedger(t, standardRates())

		_, err := led.Buy("alice", "BTC", decimal.Zero)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = led.Buy("alice", "BTC", decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("buying usd deposits into the base wallet", func(t *testing.T) {
		led, _ := newTestLedger(t, standardRates())

		result, err := led.Buy("alice", "USD", decimal.NewFromInt(500))
		require.NoError(t, err)
		assert.True(t, result.Balances["USD"].Equal(decimal.NewFromInt(500)))
	})
}

func TestSell(t *testing.T) {
	t.Run("sells holding for usd", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 1000)

		_, err := led.Buy("alice", "BTC", decimal.RequireFromString("0.01"))
		require.NoError(t, err)

		result, err := led.Sell("alice", "BTC", decimal.RequireFromString("0.01"))
		require.NoError(t, err)

		assert.True(t, result.Balances["USD"].Equal(decimal.NewFromInt(1000)), "usd: %s", result.Balances["USD"])
		assert.True(t, result.Balances["BTC"].IsZero(), "btc: %s", result.Balances["BTC"])
	})

	t.Run("insufficient balance leaves balances untouched", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 1000)

		_, err := led.Sell("alice", "BTC", decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

		p, err := store.Get("alice")
		require.NoError(t, err)
		assert.True(t, p.Balance("USD").Equal(decimal.NewFromInt(1000)))
	})

	t.Run("selling the base currency is rejected", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 1000)

		_, err := led.Sell("alice", "USD", decimal.NewFromInt(100))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

// A buy immediately followed by a sell of the same amount at an unchanged
// rate must return the base balance to its pre-buy value: no value leaks or
// is created across the round trip.
func TestRoundTripConservation(t *testing.T) {
	led, store := newTestLedger(t, standardRates())
	fund(t, store, "alice", "USD", 1000)

	tolerance := decimal.RequireFromString("0.00000001")

	amounts := []string{"0.01", "0.003", "0.0123456789"}
	for _, raw := range amounts {
		amount := decimal.RequireFromString(raw)

		_, err := led.Buy("alice", "BTC", amount)
		require.NoError(t, err)
		result, err := led.Sell("alice", "BTC", amount)
		require.NoError(t, err)

		diff := result.Balances["USD"].Sub(decimal.NewFromInt(1000)).Abs()
		assert.True(t, diff.LessThanOrEqual(tolerance),
			"usd after round trip of %s: %s", raw, result.Balances["USD"])
	}
}

func TestNonNegativity(t *testing.T) {
	led, store := newTestLedger(t, standardRates())
	fund(t, store, "alice", "USD", 700)

	ops := []struct {
		side     domain.Side
		currency string
		amount   string
	}{
		{domain.SideBuy, "BTC", "0.01"},  // cost 600, ok
		{domain.SideBuy, "ETH", "1"},     // cost 3000, rejected
		{domain.SideSell, "BTC", "0.02"}, // more than held, rejected
		{domain.SideSell, "BTC", "0.01"}, // ok
		{domain.SideSell, "BTC", "0.01"}, // already sold, rejected
	}

	for _, op := range ops {
		amount := decimal.RequireFromString(op.amount)
		if op.side == domain.SideBuy {
			led.Buy("alice", op.currency, amount)
		} else {
			led.Sell("alice", op.currency, amount)
		}

		p, err := store.Get("alice")
		require.NoError(t, err)
		for code, balance := range p.Balances {
			assert.False(t, balance.IsNegative(), "%s went negative: %s", code, balance)
		}
	}
}

// Trades priced through the real cache and converter, with the snapshot
// holding only what the providers emit. USD must resolve even though no
// provider ever reports it.
func TestBuySellOverCachedRates(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	cache := ratecache.New(rates.NewStore(filepath.Join(dir, "rates.json")), nil, nil)
	_, err := cache.Update([]domain.RateRecord{
		domain.NewRateRecord("BTC", decimal.NewFromInt(60000), domain.SourceCoinGecko, now),
		domain.NewRateRecord("EUR", decimal.RequireFromString("1.25"), domain.SourceExchangeRate, now),
	})
	require.NoError(t, err)

	store := portfolio.NewStore(filepath.Join(dir, "portfolios.json"))
	led := New(store, converter.New(cache), nil)
	fund(t, store, "alice", "USD", 1000)

	result, err := led.Buy("alice", "BTC", decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.True(t, result.Balances["USD"].Equal(decimal.NewFromInt(400)), "usd: %s", result.Balances["USD"])
	assert.True(t, result.Balances["BTC"].Equal(decimal.RequireFromString("0.01")))

	result, err = led.Sell("alice", "BTC", decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.True(t, result.Balances["USD"].Equal(decimal.NewFromInt(1000)), "usd: %s", result.Balances["USD"])

	view, err := led.Show("alice", "USD")
	require.NoError(t, err)
	assert.True(t, view.Total.Equal(decimal.NewFromInt(1000)), "total: %s", view.Total)
}

func TestShow(t *testing.T) {
	t.Run("values holdings in the requested base", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 400)
		fund(t, store, "alice", "BTC", 1)

		view, err := led.Show("alice", "USD")
		require.NoError(t, err)

		require.Len(t, view.Holdings, 2)
		assert.Equal(t, "BTC", view.Holdings[0].Currency)
		assert.True(t, view.Holdings[0].Value.Equal(decimal.NewFromInt(60000)))
		assert.True(t, view.Total.Equal(decimal.NewFromInt(60400)), "total: %s", view.Total)
	})

	t.Run("unpriceable holding is reported, not omitted", func(t *testing.T) {
		led, store := newTestLedger(t, standardRates())
		fund(t, store, "alice", "USD", 100)
		fund(t, store, "alice", "DOGE", 1000)

		view, err := led.Show("alice", "USD")
		require.NoError(t, err)

		require.Len(t, view.Holdings, 2)
		doge := view.Holdings[0]
		assert.Equal(t, "DOGE", doge.Currency)
		assert.False(t, doge.Priceable)
		// Total counts only the priceable holdings.
		assert.True(t, view.Total.Equal(decimal.NewFromInt(100)))
	})

	t.Run("empty portfolio", func(t *testing.T) {
		led, _ := newTestLedger(t, standardRates())

		view, err := led.Show("nobody", "USD")
		require.NoError(t, err)
		assert.Empty(t, view.Holdings)
		assert.True(t, view.Total.IsZero())
	})
}
