// Package config loads application settings from an optional YAML file with
// environment overrides for secrets.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds resolved application settings.
type Config struct {
	DataDir            string
	RatesFile          string
	HistoryDir         string
	HistoryExportFile  string
	PortfoliosFile     string
	UsersFile          string
	SessionFile        string
	CoinGeckoURL       string
	ExchangeRateURL    string
	ExchangeRateAPIKey string
	FiatCurrencies     []string
	CryptoCurrencies   []string
	CryptoIDs          map[string]string
	RequestTimeout     time.Duration
	UpdateInterval     time.Duration
}

type configTmp struct {
	DataDir          string            `yaml:"data_dir,omitempty"`
	CoinGeckoURL     string            `yaml:"coingecko_url,omitempty"`
	ExchangeRateURL  string            `yaml:"exchangerate_url,omitempty"`
	FiatCurrencies   []string          `yaml:"fiat_currencies,omitempty"`
	CryptoCurrencies []string          `yaml:"crypto_currencies,omitempty"`
	CryptoIDs        map[string]string `yaml:"crypto_ids,omitempty"`
	RequestTimeout   string            `yaml:"request_timeout,omitempty"`
	UpdateInterval   string            `yaml:"update_interval,omitempty"`
}

// Default returns the settings used when no config file is present. They
// mirror the provider setup the system was built around.
func Default() Config {
	cfg := Config{
		DataDir:          "data",
		CoinGeckoURL:     "https://api.coingecko.com/api/v3/simple/price",
		ExchangeRateURL:  "https://v6.exchangerate-api.com/v6",
		FiatCurrencies:   []string{"EUR", "GBP", "RUB"},
		CryptoCurrencies: []string{"BTC", "ETH", "SOL"},
		CryptoIDs: map[string]string{
			"BTC": "bitcoin",
			"ETH": "ethereum",
			"SOL": "solana",
		},
		RequestTimeout: 10 * time.Second,
		UpdateInterval: 60 * time.Minute,
	}
	cfg.resolvePaths()
	cfg.ExchangeRateAPIKey = os.Getenv("EXCHANGERATE_API_KEY")
	return cfg
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(payload, &tmp); err != nil {
		return Config{}, err
	}

	if tmp.DataDir != "" {
		cfg.DataDir = tmp.DataDir
	}
	if tmp.CoinGeckoURL != "" {
		cfg.CoinGeckoURL = tmp.CoinGeckoURL
	}
	if tmp.ExchangeRateURL != "" {
		cfg.ExchangeRateURL = tmp.ExchangeRateURL
	}
	if len(tmp.FiatCurrencies) > 0 {
		cfg.FiatCurrencies = tmp.FiatCurrencies
	}
	if len(tmp.CryptoCurrencies) > 0 {
		cfg.CryptoCurrencies = tmp.CryptoCurrencies
	}
	if len(tmp.CryptoIDs) > 0 {
		cfg.CryptoIDs = tmp.CryptoIDs
	}
	if tmp.RequestTimeout != "" {
		d, err := time.ParseDuration(tmp.RequestTimeout)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse request_timeout")
		}
		cfg.RequestTimeout = d
	}
	if tmp.UpdateInterval != "" {
		d, err := time.ParseDuration(tmp.UpdateInterval)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse update_interval")
		}
		cfg.UpdateInterval = d
	}

	cfg.resolvePaths()
	return cfg, nil
}

func (c *Config) resolvePaths() {
	c.RatesFile = filepath.Join(c.DataDir, "rates.json")
	c.HistoryDir = filepath.Join(c.DataDir, "history")
	c.HistoryExportFile = filepath.Join(c.DataDir, "exchange_rates.json")
	c.PortfoliosFile = filepath.Join(c.DataDir, "portfolios.json")
	c.UsersFile = filepath.Join(c.DataDir, "users.json")
	c.SessionFile = filepath.Join(c.DataDir, "session.json")
}
