// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jeranaias/photochat/internal/util"
)

// =============================================================================
// IDENTITY TYPE
// =============================================================================

// Identity is the durable unique handle of a user, distinct from display
// name or email. It is opaque to the engine; only equality matters.
type Identity string

// String returns the string representation of the identity.
func (i Identity) String() string {
	return string(i)
}

// IsZero returns true if no identity is set.
func (i Identity) IsZero() bool {
	return i == ""
}

// =============================================================================
// SENDER REFERENCE
// =============================================================================

// SenderRef is the message sender as it appears on the wire. Depending on
// which backend path produced the message, `sender` is either a bare
// identity string or an object carrying `_id`/`id`. Both shapes decode to
// the contained Identity.
type SenderRef struct {
	ID Identity
}

// UnmarshalJSON accepts both the string and the object encoding.
func (s *SenderRef) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.ID = Identity(str)
		return nil
	}

	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.MongoID != "" {
		s.ID = Identity(obj.MongoID)
	} else {
		s.ID = Identity(obj.ID)
	}
	return nil
}

// MarshalJSON always emits the canonical string form.
func (s SenderRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s.ID))
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single chat message. Messages are immutable once created and
// arrive via two channels: paginated history retrieval and the live push
// channel.
type Message struct {
	ID        string     `json:"_id"`
	Text      string     `json:"text"`
	Sender    SenderRef  `json:"sender"`
	ChatID    string     `json:"chat"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadBy    []Identity `json:"readBy,omitempty"`
}

// SentBy reports whether the message was sent by the given identity.
// An unresolved (empty) identity never matches, so when identity resolution
// fails every message renders as "not mine".
func (m *Message) SentBy(id Identity) bool {
	if id.IsZero() {
		return false
	}
	sender := strings.TrimSpace(string(m.Sender.ID))
	return sender != "" && sender == strings.TrimSpace(string(id))
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.Text, maxLen)
}

// =============================================================================
// EVENT PAYLOADS
// =============================================================================

// TypingEvent is the payload of the `typing` and `stopTyping` push events.
type TypingEvent struct {
	User   Identity `json:"user"`
	ChatID string   `json:"chat"`
}

// OutgoingMessage is the payload of an outbound `message` emission.
type OutgoingMessage struct {
	ChatID string `json:"chat"`
	Text   string `json:"text"`
}
