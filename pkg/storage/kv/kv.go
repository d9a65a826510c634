// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package kv wraps BadgerDB for opschat's local state: session metadata and
// the fallback flag. Values are stored as JSON under prefixed keys so
// different record kinds share one database.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound indicates the key does not exist.
var ErrNotFound = errors.New("key not found")

// Config controls how the database is opened.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory runs the database without disk persistence. Used in tests.
	InMemory bool

	// SyncWrites forces fsync on every write. Local client state does not
	// need it; crash loss is a re-derivable cache.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs. Zero
	// disables the GC loop.
	GCInterval time.Duration

	// Logger receives badger's internal logs at debug level.
	Logger *slog.Logger
}

// DefaultConfig returns the production configuration for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		GCInterval: 10 * time.Minute,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is an opened key-value store.
type DB struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
}

// Open opens the database described by cfg.
func Open(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	kdb := &DB{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		kdb.stopGC = make(chan struct{})
		go kdb.runGC(cfg.GCInterval)
	}
	return kdb, nil
}

// PutJSON marshals value and stores it under key.
func (d *DB) PutJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// GetJSON loads the value under key into out. Returns ErrNotFound when the
// key does not exist.
func (d *DB) GetJSON(key string, out any) error {
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("get %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(key string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// ListJSON decodes every value under prefix into instances produced by
// newItem and passes them to visit. Iteration stops on the first visit
// error.
func (d *DB) ListJSON(prefix string, newItem func() any, visit func(key string, item any) error) error {
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			out := newItem()
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, out)
			})
			if err != nil {
				d.logger.Warn("skipping undecodable record", "key", string(item.Key()), "error", err)
				continue
			}
			if err := visit(string(item.Key()), out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list %q: %w", prefix, err)
	}
	return nil
}

// Close stops the GC loop and closes the database.
func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
	}
	return d.db.Close()
}

func (d *DB) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := d.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				d.logger.Warn("value log gc failed", "error", err)
			}
		}
	}
}

// badgerLogger routes badger's internal logging through slog at debug level
// so it never competes with application output.
type badgerLogger struct {
	logger *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

var _ badger.Logger = (*badgerLogger)(nil)
