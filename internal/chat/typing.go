// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/model"
	"github.com/jeranaias/photochat/internal/pushchannel"
)

// DefaultStopTypingDelay is how long after the last keystroke the stop
// signal goes out.
const DefaultStopTypingDelay = 2 * time.Second

// Emitter is the slice of the push manager the coordinator needs.
type Emitter interface {
	Emit(event, room string, payload any) error
}

// =============================================================================
// TYPING COORDINATOR
// =============================================================================

// TypingCoordinator owns both directions of the typing indicator. Outbound,
// every keystroke emits a typing event and re-arms a single stop timer, so
// the peer sees a continuous indicator that clears shortly after input
// pauses. Inbound, remote typing events maintain the set of peers currently
// typing, ignoring the local user's own echoes.
type TypingCoordinator struct {
	emitter   Emitter
	chatID    string
	self      model.Identity
	stopDelay time.Duration
	logger    zerolog.Logger

	// onChange fires when the remote typing set changes. May be nil.
	onChange func(typing bool)

	mu     sync.Mutex
	timer  *time.Timer
	remote map[model.Identity]struct{}
}

// NewTypingCoordinator creates a coordinator for chatID. self is the local
// identity whose echoed events are ignored; onChange may be nil.
func NewTypingCoordinator(emitter Emitter, chatID string, self model.Identity, onChange func(bool), logger zerolog.Logger) *TypingCoordinator {
	return &TypingCoordinator{
		emitter:   emitter,
		chatID:    chatID,
		self:      self,
		stopDelay: DefaultStopTypingDelay,
		logger:    logger.With().Str("component", "typing").Str("chat", chatID).Logger(),
		onChange:  onChange,
		remote:    make(map[model.Identity]struct{}),
	}
}

// WithStopDelay overrides the stop timer delay. Used in tests.
func (t *TypingCoordinator) WithStopDelay(d time.Duration) *TypingCoordinator {
	t.stopDelay = d
	return t
}

// KeyPressed signals one keystroke. Every call emits a typing event and
// replaces the pending stop timer, so only the final pause produces a
// stopTyping.
func (t *TypingCoordinator) KeyPressed() {
	t.emitter.Emit(pushchannel.EventTyping, t.chatID, t.payload())

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.stopDelay, t.emitStop)
}

// MessageSent signals that the composed message went out: the stop event is
// emitted immediately and the pending timer is canceled.
func (t *TypingCoordinator) MessageSent() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.emitter.Emit(pushchannel.EventStopTyping, t.chatID, t.payload())
}

// Stop cancels the pending timer without emitting. Called on session
// teardown.
func (t *TypingCoordinator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// emitStop fires from the timer after input pauses.
func (t *TypingCoordinator) emitStop() {
	t.mu.Lock()
	t.timer = nil
	t.mu.Unlock()

	t.emitter.Emit(pushchannel.EventStopTyping, t.chatID, t.payload())
}

func (t *TypingCoordinator) payload() model.TypingEvent {
	return model.TypingEvent{User: t.self, ChatID: t.chatID}
}

// =============================================================================
// REMOTE STATE
// =============================================================================

// HandleRemoteTyping records that a peer started typing. The local user's
// own echoed events are ignored.
func (t *TypingCoordinator) HandleRemoteTyping(ev model.TypingEvent) {
	if ev.User == t.self || ev.User.IsZero() {
		return
	}

	t.mu.Lock()
	_, known := t.remote[ev.User]
	t.remote[ev.User] = struct{}{}
	t.mu.Unlock()

	if !known && t.onChange != nil {
		t.onChange(true)
	}
}

// HandleRemoteStopTyping records that a peer stopped typing.
func (t *TypingCoordinator) HandleRemoteStopTyping(ev model.TypingEvent) {
	if ev.User == t.self {
		return
	}

	t.mu.Lock()
	_, known := t.remote[ev.User]
	delete(t.remote, ev.User)
	empty := len(t.remote) == 0
	t.mu.Unlock()

	if known && empty && t.onChange != nil {
		t.onChange(false)
	}
}

// RemoteTyping reports whether any peer is currently typing.
func (t *TypingCoordinator) RemoteTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.remote) > 0
}
