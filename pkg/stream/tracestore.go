// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"sort"
	"sync"
)

// TraceStore holds the thinking timeline for each trace, keyed by trace ID.
// Events within a trace are kept sorted ascending by Sequence regardless of
// arrival order. Safe for concurrent use.
type TraceStore struct {
	mu     sync.RWMutex
	traces map[string][]ThinkingEvent
}

// NewTraceStore creates an empty TraceStore.
func NewTraceStore() *TraceStore {
	return &TraceStore{traces: make(map[string][]ThinkingEvent)}
}

// Append adds an event to the trace's timeline, restoring sequence order if
// the event arrived out of order.
func (ts *TraceStore) Append(traceID string, ev ThinkingEvent) {
	if traceID == "" {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	events := append(ts.traces[traceID], ev)
	if n := len(events); n > 1 && events[n-1].Sequence < events[n-2].Sequence {
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Sequence < events[j].Sequence
		})
	}
	ts.traces[traceID] = events
}

// Events returns a copy of the trace's timeline. Unknown trace IDs return an
// empty, non-nil slice.
func (ts *TraceStore) Events(traceID string) []ThinkingEvent {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	events := ts.traces[traceID]
	out := make([]ThinkingEvent, len(events))
	copy(out, events)
	return out
}

// Len returns the number of events recorded for the trace.
func (ts *TraceStore) Len(traceID string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.traces[traceID])
}

// Clear removes the trace's timeline entirely.
func (ts *TraceStore) Clear(traceID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.traces, traceID)
}

// TraceIDs returns the IDs of all traces currently held, in no particular
// order.
func (ts *TraceStore) TraceIDs() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	ids := make([]string, 0, len(ts.traces))
	for id := range ts.traces {
		ids = append(ids, id)
	}
	return ids
}
