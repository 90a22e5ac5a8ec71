// Package cli wires the application together and dispatches subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/valutetrade/hub/config"
	"github.com/valutetrade/hub/internal/clients"
	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/services/converter"
	"github.com/valutetrade/hub/internal/services/ledger"
	"github.com/valutetrade/hub/internal/services/ratecache"
	"github.com/valutetrade/hub/internal/services/updater"
	"github.com/valutetrade/hub/internal/storage/history"
	"github.com/valutetrade/hub/internal/storage/portfolio"
	"github.com/valutetrade/hub/internal/storage/rates"
	"github.com/valutetrade/hub/internal/storage/users"
)

// Exit codes so scripts can branch on the failure kind.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitInvalidInput  = 2
	ExitMissingRate   = 3
	ExitInsufficient  = 4
	ExitProviderError = 5
)

// App holds the constructed services behind the CLI commands.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	cache     *ratecache.Cache
	converter *converter.Converter
	ledger    *ledger.Ledger
	updater   *updater.Updater
	users     *users.Store
	out       io.Writer
}

// NewApp constructs every store and service once per process; nothing is a
// package-level singleton so tests can use isolated temporary stores.
func NewApp(cfg config.Config, logger *zap.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}

	hist, err := history.NewStore(cfg.HistoryDir, cfg.HistoryExportFile)
	if err != nil {
		return nil, err
	}

	cache := ratecache.New(rates.NewStore(cfg.RatesFile), hist, logger)
	conv := converter.New(cache)
	led := ledger.New(portfolio.NewStore(cfg.PortfoliosFile), conv, logger)

	cryptoIDs := make(map[string]string, len(cfg.CryptoCurrencies))
	for _, code := range cfg.CryptoCurrencies {
		if id, ok := cfg.CryptoIDs[code]; ok {
			cryptoIDs[code] = id
		}
	}

	sources := map[domain.Source]clients.RateSource{
		domain.SourceCoinGecko:    clients.NewCoinGeckoClient(cfg.CoinGeckoURL, cryptoIDs, cfg.RequestTimeout),
		domain.SourceExchangeRate: clients.NewExchangeRateClient(cfg.ExchangeRateURL, cfg.ExchangeRateAPIKey, cfg.FiatCurrencies, cfg.RequestTimeout),
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		cache:     cache,
		converter: conv,
		ledger:    led,
		updater:   updater.New(cache, sources, logger),
		users:     users.NewStore(cfg.UsersFile, cfg.SessionFile),
		out:       out,
	}, nil
}

// Run dispatches one command and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.printUsage()
		return ExitInvalidInput
	}

	var err error
	switch args[0] {
	case "update-rates":
		return a.cmdUpdateRates(ctx, args[1:])
	case "show-rates":
		err = a.cmdShowRates(args[1:])
	case "get-rate":
		err = a.cmdGetRate(args[1:])
	case "buy":
		err = a.cmdBuy(args[1:])
	case "sell":
		err = a.cmdSell(args[1:])
	case "show-portfolio":
		err = a.cmdShowPortfolio(args[1:])
	case "register":
		err = a.cmdRegister(args[1:])
	case "login":
		err = a.cmdLogin(args[1:])
	case "help", "-h", "--help":
		a.printUsage()
		return ExitOK
	default:
		fmt.Fprintf(a.out, "unknown command: %s\n\n", args[0])
		a.printUsage()
		return ExitInvalidInput
	}

	if err != nil {
		fmt.Fprintln(a.out, renderError(err))
		return exitCode(err)
	}
	return ExitOK
}

func exitCode(err error) int {
	var pe *domain.ProviderError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrInvalidPassword),
		errors.Is(err, domain.ErrNotLoggedIn):
		return ExitInvalidInput
	case errors.Is(err, domain.ErrMissingRate), errors.Is(err, domain.ErrRateNotFound):
		return ExitMissingRate
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInsufficientBalance):
		return ExitInsufficient
	case errors.As(err, &pe):
		return ExitProviderError
	default:
		return ExitError
	}
}

func (a *App) printUsage() {
	fmt.Fprint(a.out, `valutetrade hub - multi-currency portfolio manager

Usage:
  hub <command> [flags]

Commands:
  register        --username NAME [--password PASS]   create an account
  login           --username NAME [--password PASS]   start a session
  update-rates    [--source coingecko|exchangerate] [--daemon]
  show-rates      [--currency CODE] [--top N] [--base CODE]
  get-rate        --from CODE --to CODE
  buy             --currency CODE --amount N
  sell            --currency CODE --amount N
  show-portfolio  [--base CODE]
`)
}
