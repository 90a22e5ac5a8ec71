// Package converter translates amounts between currencies using cached rates.
// It never fabricates a fallback value for a missing rate.
package converter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/valutetrade/hub/internal/domain"
)

// crossRatePrecision keeps at least 8 fractional digits for crypto-scale
// amounts.
const crossRatePrecision = 16

// RateSource answers currency lookups from the cached snapshot.
type RateSource interface {
	Lookup(code string) (domain.RateRecord, error)
}

// Converter is a pure function layer over a RateSource.
type Converter struct {
	rates RateSource
}

// New creates a Converter backed by the given rate source.
func New(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// Rate returns the cross rate for converting one unit of from into to:
// price_in_base(from) / price_in_base(to). Both currencies must be cached.
func (c *Converter) Rate(from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return decimal.Decimal{}, errors.Wrap(domain.ErrInvalidInput, "currency code is empty")
	}

	if from == to {
		return decimal.NewFromInt(1), nil
	}

	fromRec, err := c.price(from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	toRec, err := c.price(to)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return fromRec.DivRound(toRec, crossRatePrecision), nil
}

// Convert translates an amount of from into to at the current cross rate.
func (c *Converter) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := c.Rate(from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amount.Mul(rate), nil
}

// Rebase expresses a USD-denominated price in an arbitrary base currency.
func (c *Converter) Rebase(priceUSD decimal.Decimal, base string) (decimal.Decimal, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return decimal.Decimal{}, errors.Wrap(domain.ErrInvalidInput, "base currency is empty")
	}
	if base == domain.BaseCurrency {
		return priceUSD, nil
	}

	basePrice, err := c.price(base)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return priceUSD.DivRound(basePrice, crossRatePrecision), nil
}

func (c *Converter) price(code string) (decimal.Decimal, error) {
	// The base currency is the unit all snapshot prices are expressed in;
	// providers never emit a record for it.
	if code == domain.BaseCurrency {
		return decimal.NewFromInt(1), nil
	}

	rec, err := c.rates.Lookup(code)
	if err != nil {
		if errors.Is(err, domain.ErrRateNotFound) {
			return decimal.Decimal{}, errors.Wrapf(domain.ErrMissingRate, "currency %s", code)
		}
		return decimal.Decimal{}, err
	}
	if !rec.Price.IsPositive() {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrMissingRate, "currency %s has non-positive price", code)
	}
	return rec.Price, nil
}
