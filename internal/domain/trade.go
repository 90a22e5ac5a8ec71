package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side of a ledger operation.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Trade is one executed buy or sell. The numeric cross rate in effect is
// recorded; full rate provenance lives in the history log.
type Trade struct {
	ID         string
	UserID     string
	Side       Side
	Currency   string
	Amount     decimal.Decimal
	Rate       decimal.Decimal
	Base       string
	BaseDelta  decimal.Decimal
	ExecutedAt time.Time
}

// String returns a human-readable summary.
func (t *Trade) String() string {
	return fmt.Sprintf("%s %s %s at %s %s/%s", t.Side, t.Amount, t.Currency, t.Rate, t.Base, t.Currency)
}

// TradeResult is a trade together with the balances after it applied.
type TradeResult struct {
	Trade    Trade
	Balances map[string]decimal.Decimal
}
