// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/metrics"
	"github.com/tomtom215/cmdbsync/internal/models"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("history store is closed")

// Key prefixes. Index keys sort by start time so a reverse scan lists the
// newest runs first.
const (
	prefixReport = "report:"
	prefixIndex  = "index:"
)

const (
	defaultMaxList = 50
	gcInterval     = time.Hour
	gcRatio        = 0.5
	closeTimeout   = 30 * time.Second
)

// Store persists run reports in BadgerDB. Every key carries the configured
// retention as its TTL, so expired runs disappear without a cleanup job.
type Store struct {
	db        *badger.DB
	retention time.Duration
	maxList   int

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg *config.HistoryConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	maxList := cfg.MaxList
	if maxList < 1 {
		maxList = defaultMaxList
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Dur("retention", cfg.Retention).
		Msg("Run history opened")

	return &Store{db: db, retention: cfg.Retention, maxList: maxList}, nil
}

func reportKey(id string) []byte {
	return []byte(prefixReport + id)
}

// indexKey orders by start time; the zero-padded width keeps byte order equal
// to numeric order.
func indexKey(startedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixIndex, startedAt.UnixNano(), id))
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *Store) entry(key, value []byte) *badger.Entry {
	e := badger.NewEntry(key, value)
	if s.retention > 0 {
		e = e.WithTTL(s.retention)
	}
	return e
}

// Save stores report and its list entry in one transaction.
func (s *Store) Save(ctx context.Context, report *models.Report) (err error) {
	defer func() { metrics.RecordHistoryOperation("save", err) }()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if report == nil || report.ID == "" {
		return errors.New("history: report has no ID")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	summary, err := json.Marshal(report.Summary())
	if err != nil {
		return fmt.Errorf("marshal report summary: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(s.entry(reportKey(report.ID), data)); err != nil {
			return err
		}
		return txn.SetEntry(s.entry(indexKey(report.StartedAt, report.ID), summary))
	})
	if err != nil {
		return fmt.Errorf("write report %s: %w", report.ID, err)
	}
	return nil
}

// Get returns the stored report with the given ID, or models.ErrReportNotFound.
func (s *Store) Get(ctx context.Context, id string) (report *models.Report, err error) {
	defer func() {
		if errors.Is(err, models.ErrReportNotFound) {
			metrics.RecordHistoryOperation("get", nil)
			return
		}
		metrics.RecordHistoryOperation("get", err)
	}()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report = &models.Report{}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(reportKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, report)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", id, err)
	}
	return report, nil
}

// List returns up to limit report summaries, newest first. A limit outside
// 1..max_list is clamped to max_list.
func (s *Store) List(ctx context.Context, limit int) (out []models.ReportSummary, err error) {
	defer func() { metrics.RecordHistoryOperation("list", err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit < 1 || limit > s.maxList {
		limit = s.maxList
	}

	out = []models.ReportSummary{}
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefixIndex)
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixIndex)
		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()

			var summary models.ReportSummary
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &summary)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable run summary")
				continue
			}
			out = append(out, summary)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}

// RunGC reclaims value log space left behind by expired reports.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Serve runs value log GC periodically until ctx is canceled. It implements
// suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				if errors.Is(err, ErrStoreClosed) {
					return nil
				}
				logging.Warn().Err(err).Msg("Run history GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Store) String() string {
	return "history-gc"
}

// Close closes the database, giving up after a timeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Run history closed")
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("badgerdb close timeout after %v", closeTimeout)
	}
}
