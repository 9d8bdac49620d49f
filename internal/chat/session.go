// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/api"
	"github.com/jeranaias/photochat/internal/identity"
	"github.com/jeranaias/photochat/internal/model"
	"github.com/jeranaias/photochat/internal/pushchannel"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// =============================================================================
// DEPENDENCIES
// =============================================================================

// IdentityResolver yields the local user's identity.
type IdentityResolver interface {
	Resolve(ctx context.Context) (model.Identity, error)
}

// BackendClient is the slice of the REST client the session needs.
type BackendClient interface {
	HistoryClient
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateOrGetChat(ctx context.Context, self, target model.Identity) (*model.Conversation, error)
}

// PushChannel is the slice of the push manager the session needs.
type PushChannel interface {
	JoinRoom(ctx context.Context, room string) error
	LeaveRoom(room string)
	Subscribe(event, room string, handler pushchannel.Handler) *pushchannel.Subscription
	Emit(event, room string, payload any) error
}

// Target names the conversation to open: an already-known chat id, the
// partner's identity, or the partner's email address. A chat id wins over
// everything; a known identity skips the directory lookup.
type Target struct {
	ChatID   string
	Identity model.Identity
	Email    string
}

// Callbacks notify the owner of session state changes. All fields are
// optional. Callbacks fire on internal goroutines and must not block.
type Callbacks struct {
	OnMessagesChanged func()
	OnTypingChanged   func(typing bool)
	OnError           func(err error)
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one open conversation: resolved identities, the merged message
// log, live event subscriptions, and the typing coordinator. A session is
// started once, used, and closed once; Close is the mandatory teardown that
// releases the room membership and detaches every handler.
type Session struct {
	resolver  IdentityResolver
	client    BackendClient
	push      PushChannel
	callbacks Callbacks
	pageSize  int
	logger    zerolog.Logger

	mu     sync.Mutex
	closed bool
	self   model.Identity
	conv   *model.Conversation
	subs   []*pushchannel.Subscription

	log    *model.MessageLog
	pager  *HistoryPager
	typing *TypingCoordinator
}

// NewSession wires a session from its dependencies. Start must be called
// before anything else.
func NewSession(resolver IdentityResolver, client BackendClient, push PushChannel, callbacks Callbacks, logger zerolog.Logger) *Session {
	return &Session{
		resolver:  resolver,
		client:    client,
		push:      push,
		callbacks: callbacks,
		pageSize:  20,
		logger: logger.With().
			Str("component", "session").
			Str("session_id", uuid.NewString()).
			Logger(),
		log: model.NewMessageLog(),
	}
}

// WithPageSize overrides the history page size.
func (s *Session) WithPageSize(n int) *Session {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// Start resolves the participants and conversation, joins the push room,
// attaches the live handlers, and loads the first history page.
func (s *Session) Start(ctx context.Context, target Target) error {
	self, err := s.resolver.Resolve(ctx)
	if err != nil {
		if !errors.Is(err, identity.ErrNoIdentity) {
			return fmt.Errorf("identity resolution failed: %w", err)
		}
		// A session over a known chat id can still render read-only style:
		// with no local identity every message counts as the peer's.
		s.logger.Warn().Msg("no local identity, messages will all render as incoming")
	}

	conv, err := s.resolveConversation(ctx, self, target)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.self = self
	s.conv = conv
	s.pager = NewHistoryPager(s.client, conv.ID, s.pageSize, s.log, s.logger)
	s.typing = NewTypingCoordinator(s.push, conv.ID, self, s.callbacks.OnTypingChanged, s.logger)
	s.mu.Unlock()

	if err := s.push.JoinRoom(ctx, conv.ID); err != nil {
		// History still works over REST; the live stream degrades.
		s.logger.Warn().Err(err).Str("chat", conv.ID).Msg("live channel unavailable")
		s.reportError(err)
	}
	s.attachHandlers(conv.ID)

	if _, err := s.pager.LoadInitial(ctx); err != nil {
		return fmt.Errorf("initial history load failed: %w", err)
	}
	s.notifyMessages()
	return nil
}

// resolveConversation turns the target into a conversation record, creating
// it on the backend when only a peer identity or email is known.
func (s *Session) resolveConversation(ctx context.Context, self model.Identity, target Target) (*model.Conversation, error) {
	if target.ChatID != "" {
		return model.KnownConversation(target.ChatID), nil
	}
	if target.Identity.IsZero() && target.Email == "" {
		return nil, errors.New("target needs a chat id, a user id, or an email")
	}
	// Creating a conversation names both participants, so an unresolved
	// local identity is an authentication problem, not a target problem.
	if self.IsZero() {
		return nil, fmt.Errorf("%w: conversation setup needs the local identity", api.ErrUnauthenticated)
	}

	peer := target.Identity
	if peer.IsZero() {
		user, err := s.client.UserByEmail(ctx, target.Email)
		if err != nil {
			return nil, err
		}
		peer = user.Identity()
	}

	conv, err := s.client.CreateOrGetChat(ctx, self, peer)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("chat", conv.ID).Str("peer", peer.String()).
		Msg("conversation resolved")
	return conv, nil
}

// attachHandlers subscribes the live event handlers for the room.
func (s *Session) attachHandlers(room string) {
	subs := []*pushchannel.Subscription{
		s.push.Subscribe(pushchannel.EventMessage, room, s.handleMessage),
		s.push.Subscribe(pushchannel.EventTyping, room, s.handleTyping),
		s.push.Subscribe(pushchannel.EventStopTyping, room, s.handleStopTyping),
		s.push.Subscribe(pushchannel.EventError, "", s.handleChannelError),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Close won the race; detach immediately.
		for _, sub := range subs {
			sub.Cancel()
		}
		return
	}
	s.subs = append(s.subs, subs...)
}

// =============================================================================
// LIVE EVENT HANDLERS
// =============================================================================

func (s *Session) handleMessage(frame pushchannel.Frame) {
	if s.isClosed() {
		return
	}
	var msg model.Message
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		s.logger.Warn().Err(err).Msg("undecodable live message")
		return
	}
	if s.log.InsertLive(msg) {
		s.notifyMessages()
	}
}

func (s *Session) handleTyping(frame pushchannel.Frame) {
	if s.isClosed() {
		return
	}
	var ev model.TypingEvent
	if err := json.Unmarshal(frame.Data, &ev); err != nil {
		return
	}
	s.typing.HandleRemoteTyping(ev)
}

func (s *Session) handleStopTyping(frame pushchannel.Frame) {
	if s.isClosed() {
		return
	}
	var ev model.TypingEvent
	if err := json.Unmarshal(frame.Data, &ev); err != nil {
		return
	}
	s.typing.HandleRemoteStopTyping(ev)
}

func (s *Session) handleChannelError(frame pushchannel.Frame) {
	if s.isClosed() {
		return
	}
	var payload struct {
		Message string `json:"message"`
	}
	json.Unmarshal(frame.Data, &payload)
	s.reportError(fmt.Errorf("live channel error: %s", payload.Message))
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Send emits the composed message over the live channel. Sending clears the
// local typing state first so the peer's indicator drops immediately.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	conv := s.conv
	typing := s.typing
	s.mu.Unlock()

	typing.MessageSent()
	return s.push.Emit(pushchannel.EventMessage, conv.ID,
		model.OutgoingMessage{ChatID: conv.ID, Text: text})
}

// KeyPressed reports one keystroke in the composer.
func (s *Session) KeyPressed() {
	s.mu.Lock()
	typing := s.typing
	closed := s.closed
	s.mu.Unlock()
	if closed || typing == nil {
		return
	}
	typing.KeyPressed()
}

// LoadOlder pulls the next older history page into the log.
func (s *Session) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	pager := s.pager
	closed := s.closed
	s.mu.Unlock()
	if closed || pager == nil {
		return ErrSessionClosed
	}

	loaded, err := pager.LoadOlder(ctx)
	if err != nil {
		return err
	}
	// A close during the request makes the result irrelevant.
	if loaded && !s.isClosed() {
		s.notifyMessages()
	}
	return nil
}

// Messages returns the merged log, oldest first.
func (s *Session) Messages() []model.Message {
	return s.log.Messages()
}

// Mine reports whether msg was sent by the local user.
func (s *Session) Mine(msg *model.Message) bool {
	s.mu.Lock()
	self := s.self
	s.mu.Unlock()
	return msg.SentBy(self)
}

// HasMoreHistory reports whether older pages may remain.
func (s *Session) HasMoreHistory() bool {
	s.mu.Lock()
	pager := s.pager
	s.mu.Unlock()
	return pager != nil && pager.HasMore()
}

// PeerTyping reports whether the peer is currently typing.
func (s *Session) PeerTyping() bool {
	s.mu.Lock()
	typing := s.typing
	s.mu.Unlock()
	return typing != nil && typing.RemoteTyping()
}

// ChatID returns the conversation id, or "" before Start completes.
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return ""
	}
	return s.conv.ID
}

// Close tears the session down: every subscription is canceled, the typing
// timer stops, the room membership is released, and late completions from
// in-flight work are discarded. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	conv := s.conv
	typing := s.typing
	pager := s.pager
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	if typing != nil {
		typing.Stop()
	}
	if pager != nil {
		pager.Reset()
	}
	if conv != nil {
		s.push.LeaveRoom(conv.ID)
	}
	s.logger.Debug().Msg("session closed")
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) notifyMessages() {
	if s.callbacks.OnMessagesChanged != nil {
		s.callbacks.OnMessagesChanged()
	}
}

func (s *Session) reportError(err error) {
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}
