// Package domain defines core data structures shared across the rate cache,
// converter and portfolio ledger.
package domain

// Source identifies a configured rate provider.
type Source string

const (
	SourceCoinGecko    Source = "coingecko"
	SourceExchangeRate Source = "exchangerate"
)

// KnownSources lists every provider the system can be configured with.
func KnownSources() []Source {
	return []Source{SourceCoinGecko, SourceExchangeRate}
}

// ParseSource converts a user-supplied identifier into a Source.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceCoinGecko:
		return SourceCoinGecko, nil
	case SourceExchangeRate:
		return SourceExchangeRate, nil
	}
	return "", errInvalid("unknown rate source %q", s)
}

// String returns the provider identifier.
func (s Source) String() string {
	return string(s)
}
