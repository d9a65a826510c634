// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the fallback flag: once a stream fails, subsequent
// messages skip straight to the blocking endpoint until the flag expires.

package main

import (
	"errors"
	"sync"
	"time"

	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/storage/kv"
)

const fallbackStateKey = "fallback/state"

type fallbackRecord struct {
	Reason    string    `json:"reason"`
	TrippedAt time.Time `json:"tripped_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FallbackState tracks whether streaming is temporarily distrusted. Expiry
// is evaluated at read time; nothing un-trips the flag eagerly. The state is
// persisted when a database is provided so short-lived CLI runs observe a
// trip from a previous run.
type FallbackState struct {
	db     *kv.DB
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	record *fallbackRecord
}

// NewFallbackState creates the flag, loading any persisted record. db may
// be nil, in which case the flag is memory-only.
func NewFallbackState(db *kv.DB, ttl time.Duration, logger *logging.Logger) *FallbackState {
	f := &FallbackState{
		db:     db,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
	if db != nil {
		var rec fallbackRecord
		err := db.GetJSON(fallbackStateKey, &rec)
		switch {
		case err == nil:
			f.record = &rec
		case !errors.Is(err, kv.ErrNotFound):
			logger.Warn("loading fallback state failed", "error", err)
		}
	}
	return f
}

// Trip activates the flag for the configured TTL. Re-tripping extends the
// expiry.
func (f *FallbackState) Trip(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	f.record = &fallbackRecord{
		Reason:    reason,
		TrippedAt: now,
		ExpiresAt: now.Add(f.ttl),
	}
	f.logger.Warn("streaming fallback tripped",
		"reason", reason,
		"expires_at", f.record.ExpiresAt)

	if f.db != nil {
		if err := f.db.PutJSON(fallbackStateKey, f.record); err != nil {
			f.logger.Warn("persisting fallback state failed", "error", err)
		}
	}
}

// Active reports whether the flag is currently in force.
func (f *FallbackState) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.record == nil {
		return false
	}
	if f.now().After(f.record.ExpiresAt) {
		f.clearLocked()
		return false
	}
	return true
}

// Reason returns why the flag was tripped, or empty when inactive.
func (f *FallbackState) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil || f.now().After(f.record.ExpiresAt) {
		return ""
	}
	return f.record.Reason
}

// Clear deactivates the flag immediately.
func (f *FallbackState) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearLocked()
}

func (f *FallbackState) clearLocked() {
	f.record = nil
	if f.db != nil {
		if err := f.db.Delete(fallbackStateKey); err != nil {
			f.logger.Warn("clearing fallback state failed", "error", err)
		}
	}
}
