// Package rates persists the current rate snapshot as a JSON file, one entry
// per currency. The snapshot is the authoritative source of truth for lookups.
package rates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/valutetrade/hub/internal/domain"
)

// Store is a file-backed snapshot of current rates. Every read-modify-write
// runs under an exclusive lock on a sibling lock file so concurrent processes
// never interleave partial writes.
type Store struct {
	path string
	lock *flock.Flock
}

// NewStore creates a snapshot store at the given path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// snapshotEntry is the stable on-disk record shape.
type snapshotEntry struct {
	Price      json.Number `json:"price_in_base_currency"`
	Base       string      `json:"base_currency"`
	Source     string      `json:"source"`
	ObservedAt string      `json:"observed_at"`
}

// Load reads the full snapshot. A missing file is an empty snapshot.
func (s *Store) Load() (map[string]domain.RateRecord, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "acquire rates lock")}
	}
	defer s.lock.Unlock()

	return s.read()
}

// Upsert overwrites the snapshot entry for every given record, keeping all
// others, and writes the file atomically via a temp file rename.
func (s *Store) Upsert(records []domain.RateRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := s.lock.Lock(); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "acquire rates lock")}
	}
	defer s.lock.Unlock()

	snapshot, err := s.read()
	if err != nil {
		return err
	}

	for _, rec := range records {
		snapshot[rec.Currency] = rec
	}

	return s.write(snapshot)
}

func (s *Store) read() (map[string]domain.RateRecord, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]domain.RateRecord), nil
		}
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "read rates snapshot")}
	}

	var raw map[string]snapshotEntry
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "decode rates snapshot")}
	}

	snapshot := make(map[string]domain.RateRecord, len(raw))
	for code, entry := range raw {
		rec, err := entryToRecord(code, entry)
		if err != nil {
			return nil, &domain.PersistenceError{Path: s.path, Err: err}
		}
		snapshot[code] = rec
	}

	return snapshot, nil
}

func (s *Store) write(snapshot map[string]domain.RateRecord) error {
	raw := make(map[string]snapshotEntry, len(snapshot))
	for code, rec := range snapshot {
		raw[code] = recordToEntry(rec)
	}

	payload, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "encode rates snapshot")}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "create data dir")}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "write rates snapshot")}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &domain.PersistenceError{Path: s.path, Err: errors.Wrap(err, "replace rates snapshot")}
	}

	return nil
}

func recordToEntry(rec domain.RateRecord) snapshotEntry {
	return snapshotEntry{
		Price:      json.Number(rec.Price.String()),
		Base:       rec.Base,
		Source:     rec.Source.String(),
		ObservedAt: rec.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
}

func entryToRecord(code string, entry snapshotEntry) (domain.RateRecord, error) {
	price, err := decimal.NewFromString(entry.Price.String())
	if err != nil {
		return domain.RateRecord{}, errors.Wrapf(err, "parse price for %s", code)
	}
	observedAt, err := time.Parse(time.RFC3339Nano, entry.ObservedAt)
	if err != nil {
		return domain.RateRecord{}, errors.Wrapf(err, "parse observed_at for %s", code)
	}
	return domain.RateRecord{
		Currency:   code,
		Price:      price,
		Base:       entry.Base,
		Source:     domain.Source(entry.Source),
		ObservedAt: observedAt,
	}, nil
}
