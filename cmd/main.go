// Command hub manages a multi-currency portfolio from the terminal: it
// refreshes exchange rates from CoinGecko and ExchangeRate-API into a local
// cache and executes buy/sell operations against it.
//
// Usage:
//
//	hub update-rates [--source coingecko|exchangerate] [--daemon]
//	hub show-rates [--currency CODE] [--top N] [--base CODE]
//	hub get-rate --from CODE --to CODE
//	hub buy --currency CODE --amount N
//	hub sell --currency CODE --amount N
//	hub show-portfolio [--base CODE]
//
// The ExchangeRate-API key is read from the EXCHANGERATE_API_KEY environment
// variable. An optional YAML config is passed with --config.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/valutetrade/hub/config"
	"github.com/valutetrade/hub/internal/cli"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	verbose := flag.Bool("verbose", false, "log to stderr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewProduction()
		if err != nil {
			log.Fatal(err)
		}
	}
	defer logger.Sync()

	app, err := cli.NewApp(cfg, logger, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(app.Run(ctx, flag.Args()))
}
