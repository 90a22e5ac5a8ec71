// Package updater fans fetches out to the configured rate providers and
// feeds the results into the rate cache. A failing provider is contained:
// its error joins the update summary while other providers' records apply.
package updater

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/valutetrade/hub/internal/clients"
	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/services/ratecache"
	"github.com/valutetrade/hub/pkg/retrier"
)

// Updater owns the provider registry, resolved once at startup.
type Updater struct {
	cache   *ratecache.Cache
	sources map[domain.Source]clients.RateSource
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// New creates an updater over the given providers.
func New(cache *ratecache.Cache, sources map[domain.Source]clients.RateSource, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		cache:   cache,
		sources: sources,
		retrier: retrier.New(),
		logger:  logger,
	}
}

// Run refreshes rates. With an empty filter every configured provider is
// invoked concurrently and results merged; otherwise only the named one.
func (u *Updater) Run(ctx context.Context, filter domain.Source) (domain.UpdateResult, error) {
	selected := make([]clients.RateSource, 0, len(u.sources))
	if filter == "" {
		for _, src := range u.sources {
			selected = append(selected, src)
		}
	} else {
		src, ok := u.sources[filter]
		if !ok {
			return domain.UpdateResult{}, errors.Wrapf(domain.ErrInvalidInput, "source %s is not configured", filter)
		}
		selected = append(selected, src)
	}

	var (
		mu           sync.Mutex
		records      []domain.RateRecord
		providerErrs []domain.ProviderError
		wg           sync.WaitGroup
	)

	for _, src := range selected {
		wg.Add(1)
		go func(src clients.RateSource) {
			defer wg.Done()

			fetched, err := retrier.DoWithData(u.retrier, ctx, func(ctx context.Context) ([]domain.RateRecord, error) {
				return src.Fetch(ctx)
			})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				providerErrs = append(providerErrs, toProviderError(src.Source(), err))
				u.logger.Warn("provider fetch failed",
					zap.String("source", src.Source().String()),
					zap.Error(err))
				return
			}

			records = append(records, fetched...)
			u.logger.Info("provider fetch succeeded",
				zap.String("source", src.Source().String()),
				zap.Int("records", len(fetched)))
		}(src)
	}
	wg.Wait()

	result, err := u.cache.Update(records)
	if err != nil {
		return result, err
	}
	result.Errors = append(result.Errors, providerErrs...)

	u.logger.Info("rates update finished",
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
		zap.Int("provider_errors", len(result.Errors)))

	return result, nil
}

func toProviderError(source domain.Source, err error) domain.ProviderError {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return *pe
	}
	return domain.ProviderError{Source: source, Reason: err.Error()}
}
