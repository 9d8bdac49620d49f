// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pushchannel

import "encoding/json"

// =============================================================================
// EVENT NAMES
// =============================================================================

// Event names on the push stream. Inbound events are dispatched to
// subscriptions by name; join and leave are outbound only.
const (
	EventMessage    = "message"
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
	EventError      = "error"

	eventJoin  = "join"
	eventLeave = "leave"
)

// =============================================================================
// FRAME
// =============================================================================

// Frame is the wire unit of the push stream: an event name, the room it
// belongs to, and an opaque JSON payload.
type Frame struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}
