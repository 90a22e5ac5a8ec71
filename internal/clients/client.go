// Package clients implements the HTTP adapters that normalize provider
// responses into uniform rate records.
package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/valutetrade/hub/internal/domain"
)

// RateSource is one configured price provider.
type RateSource interface {
	// Fetch returns the current prices, normalized to USD per unit.
	Fetch(ctx context.Context) ([]domain.RateRecord, error)
	// Source identifies the provider.
	Source() domain.Source
}

// classifyStatus maps a non-200 HTTP response to a ProviderError with a
// reason scripts and logs can act on.
func classifyStatus(source domain.Source, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))

	var reason string
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		reason = "rate limit exceeded, try again later"
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		reason = "authentication failed, check the API key"
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		reason = fmt.Sprintf("client error %d: %s", resp.StatusCode, body)
	case resp.StatusCode >= 500:
		reason = fmt.Sprintf("server error %d, try again later", resp.StatusCode)
	default:
		reason = fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode)
	}

	return &domain.ProviderError{Source: source, Reason: reason}
}

func providerErr(source domain.Source, format string, args ...interface{}) error {
	return &domain.ProviderError{Source: source, Reason: fmt.Sprintf(format, args...)}
}
