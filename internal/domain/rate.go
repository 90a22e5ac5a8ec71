package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateRecord is a single observed price for a currency, expressed in the
// stored base currency (USD at ingestion). Immutable once created.
type RateRecord struct {
	// Currency uppercase currency code, e.g. "BTC".
	Currency string
	// Price price of one unit of Currency in Base.
	Price decimal.Decimal
	// Base currency the price is expressed in.
	Base string
	// Source provider that observed the price.
	Source Source
	// ObservedAt time of the successful fetch.
	ObservedAt time.Time
}

// NewRateRecord builds a record with a normalized currency code.
func NewRateRecord(currency string, price decimal.Decimal, source Source, observedAt time.Time) RateRecord {
	return RateRecord{
		Currency:   strings.ToUpper(strings.TrimSpace(currency)),
		Price:      price,
		Base:       BaseCurrency,
		Source:     source,
		ObservedAt: observedAt,
	}
}

// Validate reports whether the record may enter the snapshot.
func (r RateRecord) Validate() error {
	if r.Currency == "" {
		return errInvalid("currency code is empty")
	}
	if !r.Price.IsPositive() {
		return errInvalid("price %s for %s is not positive", r.Price, r.Currency)
	}
	return nil
}

// UpdateResult summarizes one rates refresh.
type UpdateResult struct {
	Accepted int
	Rejected int
	Errors   []ProviderError
}

// TopEntry is one row of a top-N rates listing.
type TopEntry struct {
	Currency string
	Price    decimal.Decimal
}

// BaseCurrency is the currency all cached prices are expressed in.
const BaseCurrency = "USD"
