// Package ratecache merges provider output into a durable snapshot and
// answers rate, top-N and rebasing queries from it.
package ratecache

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/storage/history"
	"github.com/valutetrade/hub/internal/storage/rates"
)

// Cache owns the rate snapshot and its history log. The snapshot write is
// authoritative; history is best-effort audit and may lag behind it.
type Cache struct {
	snapshots *rates.Store
	history   *history.Store
	logger    *zap.Logger
	// mu serializes snapshot writes within this process; cross-process
	// exclusion happens at the store level via file locks.
	mu sync.Mutex
}

// New creates a cache over the given stores.
func New(snapshots *rates.Store, hist *history.Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{snapshots: snapshots, history: hist, logger: logger}
}

// Update applies provider records per-record: invalid ones are counted as
// rejected without blocking the rest, valid ones overwrite their snapshot
// entry and are appended to history.
func (c *Cache) Update(records []domain.RateRecord) (domain.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result domain.UpdateResult
	accepted := make([]domain.RateRecord, 0, len(records))

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			result.Rejected++
			c.logger.Warn("rejected rate record",
				zap.String("currency", rec.Currency),
				zap.String("source", rec.Source.String()),
				zap.Error(err))
			continue
		}
		accepted = append(accepted, rec)
	}

	if err := c.snapshots.Upsert(accepted); err != nil {
		return result, err
	}
	result.Accepted = len(accepted)

	if c.history != nil && len(accepted) > 0 {
		if err := c.history.Append(accepted); err != nil {
			c.logger.Warn("history append failed", zap.Error(err))
		} else if err := c.history.Export(); err != nil {
			c.logger.Warn("history export failed", zap.Error(err))
		}
	}

	return result, nil
}

// Lookup returns the cached record for a currency. Case-insensitive; the rate
// stays valid until overwritten by a newer update, callers needing recency
// inspect ObservedAt themselves.
func (c *Cache) Lookup(code string) (domain.RateRecord, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.RateRecord{}, errors.Wrap(domain.ErrInvalidInput, "currency code is empty")
	}

	snapshot, err := c.snapshots.Load()
	if err != nil {
		return domain.RateRecord{}, err
	}

	rec, ok := snapshot[code]
	if !ok {
		return domain.RateRecord{}, errors.Wrapf(domain.ErrRateNotFound, "currency %s", code)
	}
	return rec, nil
}

// All returns every cached price rebased into the requested base currency.
func (c *Cache) All(base string) (map[string]decimal.Decimal, error) {
	snapshot, err := c.snapshots.Load()
	if err != nil {
		return nil, err
	}

	basePrice, err := basePrice(snapshot, base)
	if err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(snapshot))
	for code, rec := range snapshot {
		out[code] = rec.Price.Div(basePrice)
	}
	return out, nil
}

// Top returns at most n entries sorted by rebased price descending, ties
// broken by currency code ascending for determinism.
func (c *Cache) Top(n int, base string) ([]domain.TopEntry, error) {
	if n <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "top n must be positive, got %d", n)
	}

	all, err := c.All(base)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.TopEntry, 0, len(all))
	for code, price := range all {
		entries = append(entries, domain.TopEntry{Currency: code, Price: price})
	}

	sort.Slice(entries, func(i, j int) bool {
		cmp := entries[i].Price.Cmp(entries[j].Price)
		if cmp != 0 {
			return cmp > 0
		}
		return entries[i].Currency < entries[j].Currency
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// History returns the full audit trail in insertion order.
func (c *Cache) History() ([]domain.RateRecord, error) {
	if c.history == nil {
		return nil, nil
	}
	return c.history.All()
}

func basePrice(snapshot map[string]domain.RateRecord, base string) (decimal.Decimal, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" || base == domain.BaseCurrency {
		return decimal.NewFromInt(1), nil
	}

	rec, ok := snapshot[base]
	if !ok {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrMissingRate, "base currency %s", base)
	}
	if !rec.Price.IsPositive() {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrMissingRate, "base currency %s has non-positive price", base)
	}
	return rec.Price, nil
}
