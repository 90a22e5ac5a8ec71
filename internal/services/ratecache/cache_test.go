package ratecache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/storage/history"
	"github.com/valutetrade/hub/internal/storage/rates"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()

	hist, err := history.NewStore(filepath.Join(dir, "history"), filepath.Join(dir, "exchange_rates.json"))
	require.NoError(t, err)

	return New(rates.NewStore(filepath.Join(dir, "rates.json")), hist, nil)
}

func record(code string, price int64, observedAt time.Time) domain.RateRecord {
	return domain.NewRateRecord(code, decimal.NewFromInt(price), domain.SourceCoinGecko, observedAt)
}

func TestUpdate(t *testing.T) {
	now := time.Now().UTC()

	t.Run("accepts valid and rejects invalid per record", func(t *testing.T) {
		cache := newTestCache(t)

		result, err := cache.Update([]domain.RateRecord{
			record("BTC", 60000, now),
			domain.NewRateRecord("", decimal.NewFromInt(5), domain.SourceCoinGecko, now),
			domain.NewRateRecord("ETH", decimal.NewFromInt(-1), domain.SourceCoinGecko, now),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Accepted)
		assert.Equal(t, 2, result.Rejected)

		_, err = cache.Lookup("BTC")
		assert.NoError(t, err)
		_, err = cache.Lookup("ETH")
		assert.ErrorIs(t, err, domain.ErrRateNotFound)
	})

	t.Run("idempotent for identical provider output", func(t *testing.T) {
		cache := newTestCache(t)
		records := []domain.RateRecord{record("BTC", 60000, now), record("ETH", 3000, now)}

		_, err := cache.Update(records)
		require.NoError(t, err)
		first, err := cache.Lookup("BTC")
		require.NoError(t, err)

		_, err = cache.Update(records)
		require.NoError(t, err)
		second, err := cache.Lookup("BTC")
		require.NoError(t, err)

		assert.True(t, first.Price.Equal(second.Price))
		assert.Equal(t, first.ObservedAt, second.ObservedAt)
	})

	t.Run("newer update overwrites older", func(t *testing.T) {
		cache := newTestCache(t)

		_, err := cache.Update([]domain.RateRecord{record("BTC", 60000, now)})
		require.NoError(t, err)
		_, err = cache.Update([]domain.RateRecord{record("BTC", 61000, now.Add(time.Minute))})
		require.NoError(t, err)

		rec, err := cache.Lookup("BTC")
		require.NoError(t, err)
		assert.True(t, rec.Price.Equal(decimal.NewFromInt(61000)), "got %s", rec.Price)
	})

	t.Run("history keeps every observation", func(t *testing.T) {
		cache := newTestCache(t)

		_, err := cache.Update([]domain.RateRecord{record("BTC", 60000, now)})
		require.NoError(t, err)
		_, err = cache.Update([]domain.RateRecord{record("BTC", 61000, now.Add(time.Minute))})
		require.NoError(t, err)

		records, err := cache.History()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[0].Price.Equal(decimal.NewFromInt(60000)))
		assert.True(t, records[1].Price.Equal(decimal.NewFromInt(61000)))
	})
}

func TestLookup(t *testing.T) {
	cache := newTestCache(t)
	now := time.Now().UTC()

	_, err := cache.Update([]domain.RateRecord{record("BTC", 60000, now)})
	require.NoError(t, err)

	t.Run("case insensitive", func(t *testing.T) {
		rec, err := cache.Lookup("btc")
		require.NoError(t, err)
		assert.Equal(t, "BTC", rec.Currency)
	})

	t.Run("unknown currency", func(t *testing.T) {
		_, err := cache.Lookup("XRP")
		assert.ErrorIs(t, err, domain.ErrRateNotFound)
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := cache.Lookup("  ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestTop(t *testing.T) {
	cache := newTestCache(t)
	now := time.Now().UTC()

	_, err := cache.Update([]domain.RateRecord{
		record("BTC", 60000, now),
		record("ETH", 3000, now),
		record("SOL", 150, now),
		// SOL and ZZZ share a price to exercise the tie-break.
		record("ZZZ", 150, now),
		record("USD", 1, now),
	})
	require.NoError(t, err)

	t.Run("sorted descending with lexical tie-break", func(t *testing.T) {
		entries, err := cache.Top(10, "USD")
		require.NoError(t, err)

		codes := make([]string, 0, len(entries))
		for _, e := range entries {
			codes = append(codes, e.Currency)
		}
		assert.Equal(t, []string{"BTC", "ETH", "SOL", "ZZZ", "USD"}, codes)
	})

	t.Run("limits to n entries", func(t *testing.T) {
		entries, err := cache.Top(2, "USD")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "BTC", entries[0].Currency)
		assert.Equal(t, "ETH", entries[1].Currency)
	})

	t.Run("rebases into requested currency", func(t *testing.T) {
		entries, err := cache.Top(1, "ETH")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Price.Equal(decimal.NewFromInt(20)), "got %s", entries[0].Price)
	})

	t.Run("missing base", func(t *testing.T) {
		_, err := cache.Top(3, "GBP")
		assert.ErrorIs(t, err, domain.ErrMissingRate)
	})

	t.Run("non-positive n", func(t *testing.T) {
		_, err := cache.Top(0, "USD")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "rates.json")
	now := time.Now().UTC()

	hist, err := history.NewStore(filepath.Join(dir, "history"), filepath.Join(dir, "exchange_rates.json"))
	require.NoError(t, err)

	cache := New(rates.NewStore(snapPath), hist, nil)
	_, err = cache.Update([]domain.RateRecord{record("BTC", 60000, now)})
	require.NoError(t, err)

	// A fresh cache over the same snapshot file sees the same data.
	reopened := New(rates.NewStore(snapPath), nil, nil)
	rec, err := reopened.Lookup("BTC")
	require.NoError(t, err)
	assert.True(t, rec.Price.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, domain.SourceCoinGecko, rec.Source)
}
