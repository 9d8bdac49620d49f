// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// =============================================================================
// MESSAGE LOG
// =============================================================================

// MessageLog is the merged view of a conversation's messages, reconciling
// paginated history with the live push stream. The log is ordered
// oldest-to-newest; display layers may invert it.
//
// Every insertion deduplicates by message id, so a message delivered by both
// the REST page load and the live channel renders exactly once, and replayed
// live events are no-ops. Existing entries are never reordered; only the
// insertion position of new entries depends on the arrival channel (history
// pages at the oldest end, live messages at the newest end).
//
// MessageLog is safe for concurrent use: history pages and live events
// arrive on different goroutines.
type MessageLog struct {
	mu   sync.Mutex
	msgs []Message // oldest -> newest
	seen map[string]struct{}
}

// NewMessageLog creates an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		seen: make(map[string]struct{}),
	}
}

// InsertLive merges a live message at the newest end of the log.
// Returns false when a message with the same id is already present
// (the insert is then a no-op).
func (l *MessageLog) InsertLive(msg Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[msg.ID]; dup {
		return false
	}
	l.seen[msg.ID] = struct{}{}
	l.msgs = append(l.msgs, msg)
	return true
}

// ApplyHistoryPage merges one retrieved history page at the oldest end of
// the log. Pages arrive newest-first from the server; their relative order
// is preserved after the flip to oldest-first. Returns the number of
// messages actually inserted after deduplication.
func (l *MessageLog) ApplyHistoryPage(page []Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyPageLocked(page)
}

func (l *MessageLog) applyPageLocked(page []Message) int {
	older := make([]Message, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		msg := page[i]
		if _, dup := l.seen[msg.ID]; dup {
			continue
		}
		l.seen[msg.ID] = struct{}{}
		older = append(older, msg)
	}
	if len(older) == 0 {
		return 0
	}
	l.msgs = append(older, l.msgs...)
	return len(older)
}

// Replace discards the current content and installs the given page as the
// new log. Used when the first history page loads.
func (l *MessageLog) Replace(page []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
	l.seen = make(map[string]struct{})
	l.applyPageLocked(page)
}

// Contains reports whether a message with the given id is in the log.
func (l *MessageLog) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Len returns the number of messages in the log.
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Newest returns a copy of the most recent message, or nil if the log is
// empty.
func (l *MessageLog) Newest() *Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.msgs) == 0 {
		return nil
	}
	msg := l.msgs[len(l.msgs)-1]
	return &msg
}

// Oldest returns a copy of the least recent message, or nil if the log is
// empty.
func (l *MessageLog) Oldest() *Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.msgs) == 0 {
		return nil
	}
	msg := l.msgs[0]
	return &msg
}

// Messages returns a copy of the log, ordered oldest-to-newest.
func (l *MessageLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}
