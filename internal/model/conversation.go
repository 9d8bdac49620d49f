// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the server-side record linking exactly two participants
// and their message history. Conversations are created lazily by the
// create-or-get endpoint; the server de-duplicates repeated requests for the
// same participant pair. The ID, once obtained, is immutable for the
// session.
type Conversation struct {
	ID           string     `json:"_id"`
	Participants []Identity `json:"participants"`
	LastMessage  string     `json:"lastMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// KnownConversation wraps an already-known conversation id into a
// Conversation handle without a network round trip.
func KnownConversation(id string) *Conversation {
	return &Conversation{ID: id}
}

// Counterpart returns the participant that is not self, or the zero
// Identity when the record does not carry one.
func (c *Conversation) Counterpart(self Identity) Identity {
	for _, p := range c.Participants {
		if p != self {
			return p
		}
	}
	return ""
}

// HasParticipant reports whether the given identity is part of the
// conversation.
func (c *Conversation) HasParticipant(id Identity) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// =============================================================================
// USER TYPE
// =============================================================================

// User is a directory record as returned by the user lookup endpoint.
// Backend records are inconsistent about the identity field name, so both
// `_id` and `id` are decoded.
type User struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	MongoID string `json:"_id,omitempty"`
	AltID   string `json:"id,omitempty"`
}

// Identity returns the user's durable identity, preferring `_id` over `id`.
func (u *User) Identity() Identity {
	if u.MongoID != "" {
		return Identity(u.MongoID)
	}
	return Identity(u.AltID)
}
