// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements local session metadata persistence. The orchestrator
// owns conversation content; the client only remembers which sessions exist
// so they can be resumed or cleaned up.

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/storage/kv"
)

const sessionKeyPrefix = "session/"

// titleMaxRunes caps derived session titles.
const titleMaxRunes = 40

// Session is the locally stored metadata for one orchestrator session.
type Session struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	MessageCount int       `json:"message_count"`
}

// SessionStore persists Session records in the local kv database.
type SessionStore struct {
	db     *kv.DB
	logger *logging.Logger
}

// NewSessionStore creates a store over db.
func NewSessionStore(db *kv.DB, logger *logging.Logger) *SessionStore {
	return &SessionStore{db: db, logger: logger}
}

// Save writes the session record.
func (s *SessionStore) Save(sess Session) error {
	if sess.SessionID == "" {
		return fmt.Errorf("save session: empty session id")
	}
	return s.db.PutJSON(sessionKeyPrefix+sess.SessionID, sess)
}

// Get loads one session. Returns kv.ErrNotFound (wrapped) when absent.
func (s *SessionStore) Get(sessionID string) (*Session, error) {
	var sess Session
	if err := s.db.GetJSON(sessionKeyPrefix+sessionID, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Touch bumps last-accessed and adds messageDelta to the message count.
func (s *SessionStore) Touch(sessionID string, messageDelta int) error {
	sess, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	sess.LastAccessed = time.Now()
	sess.MessageCount += messageDelta
	return s.Save(*sess)
}

// List returns all sessions, most recently accessed first.
func (s *SessionStore) List() ([]Session, error) {
	var sessions []Session
	err := s.db.ListJSON(sessionKeyPrefix,
		func() any { return &Session{} },
		func(_ string, item any) error {
			sessions = append(sessions, *item.(*Session))
			return nil
		})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastAccessed.After(sessions[j].LastAccessed)
	})
	return sessions, nil
}

// Delete removes the session record.
func (s *SessionStore) Delete(sessionID string) error {
	return s.db.Delete(sessionKeyPrefix + sessionID)
}

// deriveTitle builds a session title from the first query.
func deriveTitle(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	r := []rune(title)
	if len(r) > titleMaxRunes {
		return string(r[:titleMaxRunes]) + "..."
	}
	return title
}
