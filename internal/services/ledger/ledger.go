// Package ledger executes buy and sell operations against a user's portfolio.
// Both legs of a trade are computed and validated in memory, then the account
// is written once; no partial mutation is ever persisted.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/services/converter"
	"github.com/valutetrade/hub/internal/storage/portfolio"
)

// Ledger holds per-user balances and prices trades through the Converter.
// It reads rate data only, never mutates it.
type Ledger struct {
	portfolios *portfolio.Store
	converter  *converter.Converter
	base       string
	logger     *zap.Logger
}

// New creates a ledger trading against the given base currency.
func New(portfolios *portfolio.Store, conv *converter.Converter, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		portfolios: portfolios,
		converter:  conv,
		base:       domain.BaseCurrency,
		logger:     logger,
	}
}

// Buy purchases amount of currency, funded from the base-currency balance.
// Buying the base currency itself is a deposit into the base wallet.
func (l *Ledger) Buy(userID, currency string, amount decimal.Decimal) (*domain.TradeResult, error) {
	currency, err := l.validate(userID, currency, amount)
	if err != nil {
		return nil, err
	}

	if currency == l.base {
		return l.deposit(userID, amount)
	}

	// Rate is read before the portfolio lock is taken; the two locks are
	// never held together.
	rate, err := l.converter.Rate(currency, l.base)
	if err != nil {
		return nil, err
	}
	cost := amount.Mul(rate)

	p, err := l.portfolios.Mutate(userID, func(p *domain.Portfolio) error {
		available := p.Balance(l.base)
		if available.LessThan(cost) {
			return errors.Wrapf(domain.ErrInsufficientFunds,
				"available %s %s, required %s %s", available, l.base, cost, l.base)
		}
		if err := p.Withdraw(l.base, cost); err != nil {
			return err
		}
		p.Deposit(currency, amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	trade := domain.Trade{
		ID:         uuid.NewString(),
		UserID:     userID,
		Side:       domain.SideBuy,
		Currency:   currency,
		Amount:     amount,
		Rate:       rate,
		Base:       l.base,
		BaseDelta:  cost.Neg(),
		ExecutedAt: time.Now().UTC(),
	}

	l.logger.Info("buy executed",
		zap.String("user", userID),
		zap.String("currency", currency),
		zap.String("amount", amount.String()),
		zap.String("cost", cost.String()))

	return &domain.TradeResult{Trade: trade, Balances: p.Clone().Balances}, nil
}

// Sell disposes amount of currency, crediting the base-currency balance.
func (l *Ledger) Sell(userID, currency string, amount decimal.Decimal) (*domain.TradeResult, error) {
	currency, err := l.validate(userID, currency, amount)
	if err != nil {
		return nil, err
	}
	if currency == l.base {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "cannot sell the base currency %s", l.base)
	}

	rate, err := l.converter.Rate(currency, l.base)
	if err != nil {
		return nil, err
	}
	proceeds := amount.Mul(rate)

	p, err := l.portfolios.Mutate(userID, func(p *domain.Portfolio) error {
		held := p.Balance(currency)
		if held.LessThan(amount) {
			return errors.Wrapf(domain.ErrInsufficientBalance,
				"available %s %s, required %s %s", held, currency, amount, currency)
		}
		if err := p.Withdraw(currency, amount); err != nil {
			return err
		}
		p.Deposit(l.base, proceeds)
		return nil
	})
	if err != nil {
		return nil, err
	}

	trade := domain.Trade{
		ID:         uuid.NewString(),
		UserID:     userID,
		Side:       domain.SideSell,
		Currency:   currency,
		Amount:     amount,
		Rate:       rate,
		Base:       l.base,
		BaseDelta:  proceeds,
		ExecutedAt: time.Now().UTC(),
	}

	l.logger.Info("sell executed",
		zap.String("user", userID),
		zap.String("currency", currency),
		zap.String("amount", amount.String()),
		zap.String("proceeds", proceeds.String()))

	return &domain.TradeResult{Trade: trade, Balances: p.Clone().Balances}, nil
}

// Holding is one valued position in a portfolio view.
type Holding struct {
	Currency string
	Amount   decimal.Decimal
	// Value in the requested base currency; meaningless when Priceable is
	// false.
	Value     decimal.Decimal
	Priceable bool
}

// View is a read-only portfolio snapshot valued in a base currency.
type View struct {
	UserID   string
	Base     string
	Holdings []Holding
	// Total sums the priceable holdings only.
	Total decimal.Decimal
}

// Show values every held currency in the requested base. A holding the cache
// can no longer price is reported as unpriceable rather than omitted.
func (l *Ledger) Show(userID, base string) (*View, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = l.base
	}
	if userID == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "user id is empty")
	}

	p, err := l.portfolios.Get(userID)
	if err != nil {
		return nil, err
	}

	view := &View{UserID: userID, Base: base}
	for _, code := range p.Currencies() {
		amount := p.Balance(code)
		holding := Holding{Currency: code, Amount: amount}

		rate, err := l.converter.Rate(code, base)
		switch {
		case err == nil:
			holding.Value = amount.Mul(rate)
			holding.Priceable = true
			view.Total = view.Total.Add(holding.Value)
		case errors.Is(err, domain.ErrMissingRate):
			holding.Priceable = false
		default:
			return nil, err
		}

		view.Holdings = append(view.Holdings, holding)
	}

	return view, nil
}

func (l *Ledger) deposit(userID string, amount decimal.Decimal) (*domain.TradeResult, error) {
	p, err := l.portfolios.Mutate(userID, func(p *domain.Portfolio) error {
		p.Deposit(l.base, amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	trade := domain.Trade{
		ID:         uuid.NewString(),
		UserID:     userID,
		Side:       domain.SideBuy,
		Currency:   l.base,
		Amount:     amount,
		Rate:       decimal.NewFromInt(1),
		Base:       l.base,
		BaseDelta:  amount,
		ExecutedAt: time.Now().UTC(),
	}

	l.logger.Info("deposit executed",
		zap.String("user", userID),
		zap.String("amount", amount.String()))

	return &domain.TradeResult{Trade: trade, Balances: p.Clone().Balances}, nil
}

func (l *Ledger) validate(userID, currency string, amount decimal.Decimal) (string, error) {
	if userID == "" {
		return "", errors.Wrap(domain.ErrInvalidInput, "user id is empty")
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return "", errors.Wrap(domain.ErrInvalidInput, "currency code is empty")
	}
	if !amount.IsPositive() {
		return "", errors.Wrapf(domain.ErrInvalidInput, "amount must be positive, got %s", amount)
	}
	return code, nil
}
