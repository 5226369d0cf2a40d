// Package kv is the secondary store: a flat, last-write-wins mirror of the
// note document kept under a single key in an embedded BadgerDB.
//
// It has no backups and no history. It exists so a wiped data directory can
// be rebuilt on the next start.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"
	"github.com/dgraph-io/badger/v4"

	"github.com/aretw0/stickies/pkg/core"
)

// DefaultKey is the key the document is stored under.
const DefaultKey = "notes"

// Config holds configuration for the BadgerDB-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests and for hosts with no
	// writable disk at all.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives badger's internal log lines. If nil they are dropped.
	Logger *slog.Logger

	// Key overrides DefaultKey.
	Key string
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the secondary backend.
type Store struct {
	db         *badger.DB
	key        []byte
	path       string
	inMemory   bool
	serializer core.Serializer
	logger     *slog.Logger

	gcRuns atomic.Int64

	mu        sync.RWMutex
	closed    bool
	lastWrite *time.Time
}

// Open opens (or creates) the store described by cfg.
// Caller must call Close when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:         db,
		key:        []byte(cfg.Key),
		path:       cfg.Path,
		inMemory:   cfg.InMemory,
		serializer: core.NewJSONSerializer(""),
		logger:     logger,
	}, nil
}

// Close releases the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Read returns the mirrored document. On absence or parse failure it returns
// the empty document together with a *core.StorageError.
func (s *Store) Read(ctx context.Context) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.EmptyDocument(), core.NewStorageError(core.KindIO, "kv read", string(s.key), err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.EmptyDocument(), core.NewStorageError(core.KindUnavailable, "kv read", string(s.key), core.ErrClosed)
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return core.EmptyDocument(), core.NewStorageError(core.KindNotFound, "kv read", string(s.key), err)
	}
	if err != nil {
		return core.EmptyDocument(), core.NewStorageError(core.KindIO, "kv read", string(s.key), err)
	}

	doc, err := s.serializer.Decode(data)
	if err != nil {
		return core.EmptyDocument(), core.NewStorageError(core.KindCorrupt, "kv parse", string(s.key), err)
	}
	return doc, nil
}

// Write stores doc under the key, replacing whatever was there.
func (s *Store) Write(ctx context.Context, doc core.Document) error {
	if err := ctx.Err(); err != nil {
		return core.NewStorageError(core.KindIO, "kv write", string(s.key), err)
	}

	data, err := s.serializer.Encode(doc)
	if err != nil {
		return core.NewStorageError(core.KindCorrupt, "kv encode", string(s.key), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.NewStorageError(core.KindUnavailable, "kv write", string(s.key), core.ErrClosed)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	}); err != nil {
		return core.NewStorageError(core.KindIO, "kv write", string(s.key), err)
	}

	now := time.Now()
	s.lastWrite = &now
	s.logger.Debug("notes mirrored", "key", string(s.key), "notes", len(doc.Notes), "bytes", len(data))
	return nil
}

// DefaultGCDiscardRatio is the share of stale data a value log file needs
// before it is rewritten.
const DefaultGCDiscardRatio = 0.5

// CollectGarbage rewrites value log files until badger finds none worth
// rewriting, and returns how many were rewritten. Every write replaces the
// whole document, so without it the log only grows. In-memory stores have no
// value log and return immediately.
func (s *Store) CollectGarbage(ratio float64) (int, error) {
	if ratio <= 0 || ratio >= 1 {
		return 0, fmt.Errorf("gc discard ratio must be between 0 and 1, got %v", ratio)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, core.NewStorageError(core.KindUnavailable, "kv gc", s.path, core.ErrClosed)
	}
	if s.inMemory {
		return 0, nil
	}

	rewritten := 0
	for {
		err := s.db.RunValueLogGC(ratio)
		if err == nil {
			rewritten++
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		s.gcRuns.Add(1)
		return rewritten, core.NewStorageError(core.KindIO, "kv gc", s.path, err)
	}

	s.gcRuns.Add(1)
	if rewritten > 0 {
		s.logger.Debug("mirror value log collected", "rewritten", rewritten)
	}
	return rewritten, nil
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Path      string     `json:"path,omitempty"`
	InMemory  bool       `json:"in_memory"`
	Key       string     `json:"key"`
	Closed    bool       `json:"closed"`
	GCRuns    int64      `json:"gc_runs"`
	LastWrite *time.Time `json:"last_write,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreState{
		Path:      s.path,
		InMemory:  s.inMemory,
		Key:       string(s.key),
		Closed:    s.closed,
		GCRuns:    s.gcRuns.Load(),
		LastWrite: s.lastWrite,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "kv-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
