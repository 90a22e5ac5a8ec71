package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/valutetrade/hub/internal/domain"
	"github.com/valutetrade/hub/internal/services/updater"
)

func (a *App) cmdUpdateRates(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("update-rates", flag.ContinueOnError)
	fs.SetOutput(a.out)
	source := fs.String("source", "", "refresh only this source (coingecko|exchangerate)")
	daemon := fs.Bool("daemon", false, "keep refreshing on the configured interval")
	if err := fs.Parse(args); err != nil {
		return ExitInvalidInput
	}

	var filter domain.Source
	if *source != "" {
		parsed, err := domain.ParseSource(*source)
		if err != nil {
			fmt.Fprintln(a.out, renderError(err))
			return ExitInvalidInput
		}
		filter = parsed
	}

	if *daemon {
		if filter != "" {
			fmt.Fprintln(a.out, renderError(errors.Wrap(domain.ErrInvalidInput, "--daemon refreshes all sources, drop --source")))
			return ExitInvalidInput
		}
		sched, err := updater.NewScheduler(a.updater, a.cfg.UpdateInterval, a.cfg.RequestTimeout, a.logger)
		if err != nil {
			fmt.Fprintln(a.out, renderError(err))
			return ExitError
		}
		fmt.Fprintf(a.out, "refreshing rates every %s, Ctrl+C to stop\n", a.cfg.UpdateInterval)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(a.out, renderError(err))
			return ExitError
		}
		return ExitOK
	}

	result, err := a.updater.Run(ctx, filter)
	if err != nil {
		fmt.Fprintln(a.out, renderError(err))
		return exitCode(err)
	}

	fmt.Fprint(a.out, renderUpdateResult(result))

	// Everything failed and nothing was applied: scripts should see a
	// provider failure, not success.
	if result.Accepted == 0 && len(result.Errors) > 0 {
		return ExitProviderError
	}
	return ExitOK
}

func (a *App) cmdShowRates(args []string) error {
	fs := flag.NewFlagSet("show-rates", flag.ContinueOnError)
	fs.SetOutput(a.out)
	currency := fs.String("currency", "", "show a single currency")
	top := fs.Int("top", 0, "show only the N most expensive currencies")
	base := fs.String("base", domain.BaseCurrency, "express prices in this currency")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}

	if *currency != "" {
		rec, err := a.cache.Lookup(*currency)
		if err != nil {
			return err
		}
		price, err := a.converter.Rebase(rec.Price, *base)
		if err != nil {
			return err
		}
		fmt.Fprint(a.out, renderRate(rec, price, strings.ToUpper(*base)))
		return nil
	}

	if *top > 0 {
		entries, err := a.cache.Top(*top, *base)
		if err != nil {
			return err
		}
		fmt.Fprint(a.out, renderTopEntries(entries, strings.ToUpper(*base)))
		return nil
	}

	all, err := a.cache.All(*base)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderAllRates(all, strings.ToUpper(*base)))
	return nil
}

func (a *App) cmdGetRate(args []string) error {
	fs := flag.NewFlagSet("get-rate", flag.ContinueOnError)
	fs.SetOutput(a.out)
	from := fs.String("from", "", "source currency code")
	to := fs.String("to", "", "target currency code")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	if *from == "" || *to == "" {
		return errors.Wrap(domain.ErrInvalidInput, "--from and --to are required")
	}

	rate, err := a.converter.Rate(*from, *to)
	if err != nil {
		return err
	}
	reverse, err := a.converter.Rate(*to, *from)
	if err != nil {
		return err
	}

	fromCode := strings.ToUpper(*from)
	toCode := strings.ToUpper(*to)
	fmt.Fprintf(a.out, "Rate %s->%s: %s\n", fromCode, toCode, rate.StringFixed(8))
	fmt.Fprintf(a.out, "Reverse rate %s->%s: %s\n", toCode, fromCode, reverse.StringFixed(8))
	return nil
}

func (a *App) cmdBuy(args []string) error {
	userID, currency, amount, err := a.parseTradeArgs("buy", args)
	if err != nil {
		return err
	}

	result, err := a.ledger.Buy(userID, currency, amount)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderTradeResult(result))
	return nil
}

func (a *App) cmdSell(args []string) error {
	userID, currency, amount, err := a.parseTradeArgs("sell", args)
	if err != nil {
		return err
	}

	result, err := a.ledger.Sell(userID, currency, amount)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderTradeResult(result))
	return nil
}

func (a *App) parseTradeArgs(name string, args []string) (userID, currency string, amount decimal.Decimal, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	currencyFlag := fs.String("currency", "", "currency code")
	amountFlag := fs.String("amount", "", "amount of the currency")
	if err = fs.Parse(args); err != nil {
		return "", "", decimal.Decimal{}, errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	if *currencyFlag == "" || *amountFlag == "" {
		return "", "", decimal.Decimal{}, errors.Wrap(domain.ErrInvalidInput, "--currency and --amount are required")
	}

	amount, err = decimal.NewFromString(*amountFlag)
	if err != nil {
		return "", "", decimal.Decimal{}, errors.Wrapf(domain.ErrInvalidInput, "malformed amount %q", *amountFlag)
	}

	userID, _, err = a.users.CurrentUser()
	if err != nil {
		return "", "", decimal.Decimal{}, err
	}
	return userID, *currencyFlag, amount, nil
}

func (a *App) cmdShowPortfolio(args []string) error {
	fs := flag.NewFlagSet("show-portfolio", flag.ContinueOnError)
	fs.SetOutput(a.out)
	base := fs.String("base", domain.BaseCurrency, "value holdings in this currency")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}

	userID, username, err := a.users.CurrentUser()
	if err != nil {
		return err
	}

	view, err := a.ledger.Show(userID, *base)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderPortfolio(username, view))
	return nil
}

func (a *App) cmdRegister(args []string) error {
	username, password, err := a.parseCredentials("register", args)
	if err != nil {
		return err
	}

	user, err := a.users.Register(username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User %q registered. Log in with: login --username %s\n", user.Username, user.Username)
	return nil
}

func (a *App) cmdLogin(args []string) error {
	username, password, err := a.parseCredentials("login", args)
	if err != nil {
		return err
	}

	user, err := a.users.Authenticate(username, password)
	if err != nil {
		return err
	}
	if err := a.users.SaveSession(user); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %q\n", user.Username)
	return nil
}

func (a *App) parseCredentials(name string, args []string) (username, password string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	usernameFlag := fs.String("username", "", "account name")
	passwordFlag := fs.String("password", "", "account password (prompted when omitted)")
	if err = fs.Parse(args); err != nil {
		return "", "", errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	if *usernameFlag == "" {
		return "", "", errors.Wrap(domain.ErrInvalidInput, "--username is required")
	}

	password = *passwordFlag
	if password == "" {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Password").
					Value(&password).
					EchoMode(huh.EchoModePassword),
			),
		).Run()
		if err != nil {
			return "", "", errors.Wrap(domain.ErrInvalidInput, "password prompt aborted")
		}
	}

	return *usernameFlag, password, nil
}
