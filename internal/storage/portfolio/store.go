// Package portfolio persists per-user balances in a single JSON file keyed by
// user id, matching the layout {"<user_id>": {"wallets": {"USD": 1000}}}.
package portfolio

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/valutetrade/hub/internal/domain"
)

// Store is a file-backed portfolio store. Mutations run under an exclusive
// lock around the full read-modify-write so no partial update is ever
// persisted.
type Store struct {
	path string
	lock *flock.Flock
}

// NewStore creates a portfolio store at the given path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

type portfolioEntry struct {
	Wallets map[string]json.Number `json:"wallets"`
}

// Get loads a user's portfolio. An unknown user gets an empty portfolio.
func (s *Store) Get(userID string) (*domain.Portfolio, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "acquire portfolio lock")}
	}
	defer s.lock.Unlock()

	all, err := s.read()
	if err != nil {
		return nil, err
	}
	return toPortfolio(userID, all[userID])
}

// Mutate applies fn to the user's portfolio under the file lock and persists
// the result in a single atomic write. When fn returns an error nothing is
// written and the error propagates unchanged.
func (s *Store) Mutate(userID string, fn func(p *domain.Portfolio) error) (*domain.Portfolio, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "acquire portfolio lock")}
	}
	defer s.lock.Unlock()

	all, err := s.read()
	if err != nil {
		return nil, err
	}

	p, err := toPortfolio(userID, all[userID])
	if err != nil {
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	all[userID] = fromPortfolio(p)
	if err := s.write(all); err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Store) read() (map[string]portfolioEntry, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]portfolioEntry), nil
		}
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "read portfolios")}
	}

	var all map[string]portfolioEntry
	if err := json.Unmarshal(payload, &all); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "decode portfolios")}
	}
	if all == nil {
		all = make(map[string]portfolioEntry)
	}
	return all, nil
}

func (s *Store) write(all map[string]portfolioEntry) error {
	payload, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "encode portfolios")}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "create data dir")}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "write portfolios")}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "replace portfolios")}
	}

	return nil
}

func toPortfolio(userID string, entry portfolioEntry) (*domain.Portfolio, error) {
	p := domain.NewPortfolio(userID)
	for code, raw := range entry.Wallets {
		amount, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, errors.Wrapf(err, "parse balance of %s for user %s", code, userID)
		}
		p.Balances[code] = amount
	}
	return p, nil
}

func fromPortfolio(p *domain.Portfolio) portfolioEntry {
	entry := portfolioEntry{Wallets: make(map[string]json.Number, len(p.Balances))}
	for code, amount := range p.Balances {
		entry.Wallets[code] = json.Number(amount.String())
	}
	return entry
}
