package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Portfolio holds per-user balances. Absence of a currency key means zero;
// no balance is ever negative.
type Portfolio struct {
	UserID   string
	Balances map[string]decimal.Decimal
}

// NewPortfolio creates an empty portfolio for the user.
func NewPortfolio(userID string) *Portfolio {
	return &Portfolio{
		UserID:   userID,
		Balances: make(map[string]decimal.Decimal),
	}
}

// Balance returns the held amount for a currency, zero when absent.
func (p *Portfolio) Balance(currency string) decimal.Decimal {
	return p.Balances[strings.ToUpper(currency)]
}

// Deposit increases the balance of a currency.
func (p *Portfolio) Deposit(currency string, amount decimal.Decimal) {
	code := strings.ToUpper(currency)
	p.Balances[code] = p.Balances[code].Add(amount)
}

// Withdraw decreases the balance of a currency. The caller validates
// sufficiency; Withdraw refuses to drive a balance negative.
func (p *Portfolio) Withdraw(currency string, amount decimal.Decimal) error {
	code := strings.ToUpper(currency)
	next := p.Balances[code].Sub(amount)
	if next.IsNegative() {
		return errInvalid("withdrawal of %s %s exceeds balance %s", amount, code, p.Balances[code])
	}
	p.Balances[code] = next
	return nil
}

// Currencies returns held currency codes in lexical order.
func (p *Portfolio) Currencies() []string {
	codes := make([]string, 0, len(p.Balances))
	for code := range p.Balances {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	c := NewPortfolio(p.UserID)
	for code, amount := range p.Balances {
		c.Balances[code] = amount
	}
	return c
}
