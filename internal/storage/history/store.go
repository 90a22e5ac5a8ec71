// Package history keeps the append-only audit trail of every rate observation
// ever ingested. The WAL is authoritative; a JSON export mirrors it for
// external readers and may lag behind.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/valutetrade/hub/internal/domain"
)

const (
	segmentLimit = 10000
	maxSegments  = 1000
)

// Store is a WAL-backed rate history log.
type Store struct {
	wal        *gowal.Wal
	exportPath string
	mu         sync.Mutex
}

// NewStore initializes the history WAL in dir and remembers where the JSON
// export lives.
func NewStore(dir, exportPath string) (*Store, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "rates_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, &domain.PersistenceError{Path: dir, Err: errors.Wrap(err, "init history WAL")}
	}

	return &Store{wal: wal, exportPath: exportPath}, nil
}

// historyEntry is the stable on-disk record shape, shared by the WAL payload
// and the JSON export.
type historyEntry struct {
	Currency   string      `json:"currency_code"`
	Price      json.Number `json:"price_in_base_currency"`
	Base       string      `json:"base_currency"`
	Source     string      `json:"source"`
	ObservedAt string      `json:"observed_at"`
}

// Append writes the records to the WAL in fetch order.
func (s *Store) Append(records []domain.RateRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("history store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		payload, err := json.Marshal(toEntry(rec))
		if err != nil {
			return errors.Wrapf(err, "marshal history record for %s", rec.Currency)
		}

		key := fmt.Sprintf("rate_%s_%s", rec.Currency, rec.Source)
		nextIndex := s.wal.CurrentIndex() + 1
		if err := s.wal.Write(nextIndex, key, payload); err != nil {
			return &domain.PersistenceError{Path: s.exportPath, Err: errors.Wrap(err, "append history record")}
		}
	}

	return nil
}

// All returns every recorded observation in insertion order.
func (s *Store) All() ([]domain.RateRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("history store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.all()
}

func (s *Store) all() ([]domain.RateRecord, error) {
	current := s.wal.CurrentIndex()
	records := make([]domain.RateRecord, 0, current)

	for idx := uint64(1); idx <= current; idx++ {
		_, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}

		var entry historyEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}

		rec, err := fromEntry(entry)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Export rewrites the JSON history file from the WAL contents. Best-effort:
// the snapshot stays consistent even when the export fails.
func (s *Store) Export() error {
	if s == nil || s.wal == nil {
		return errors.New("history store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.all()
	if err != nil {
		return err
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, toEntry(rec))
	}

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Path: s.exportPath, Err: errors.Wrap(err, "encode history export")}
	}

	if err := os.MkdirAll(filepath.Dir(s.exportPath), 0o755); err != nil {
		return &domain.PersistenceError{Path: s.exportPath, Err: errors.Wrap(err, "create data dir")}
	}

	tmp := s.exportPath + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return &domain.PersistenceError{Path: s.exportPath, Err: errors.Wrap(err, "write history export")}
	}
	if err := os.Rename(tmp, s.exportPath); err != nil {
		os.Remove(tmp)
		return &domain.PersistenceError{Path: s.exportPath, Err: errors.Wrap(err, "replace history export")}
	}

	return nil
}

func toEntry(rec domain.RateRecord) historyEntry {
	return historyEntry{
		Currency:   rec.Currency,
		Price:      json.Number(rec.Price.String()),
		Base:       rec.Base,
		Source:     rec.Source.String(),
		ObservedAt: rec.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromEntry(entry historyEntry) (domain.RateRecord, error) {
	price, err := decimal.NewFromString(entry.Price.String())
	if err != nil {
		return domain.RateRecord{}, err
	}
	observedAt, err := time.Parse(time.RFC3339Nano, entry.ObservedAt)
	if err != nil {
		return domain.RateRecord{}, err
	}
	return domain.RateRecord{
		Currency:   entry.Currency,
		Price:      price,
		Base:       entry.Base,
		Source:     domain.Source(entry.Source),
		ObservedAt: observedAt,
	}, nil
}
