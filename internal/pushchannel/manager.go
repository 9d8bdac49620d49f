// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pushchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// CONNECTION STATE
// =============================================================================

// State is the lifecycle state of the push connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Handler receives the frames a subscription matches. Handlers run on the
// read loop goroutine and must not block.
type Handler func(Frame)

// Subscription is a registered handler. Cancel detaches it; cancellation is
// idempotent and never affects other subscriptions on the same event.
type Subscription struct {
	m       *Manager
	key     subKey
	handler Handler
}

// Cancel detaches the subscription.
func (s *Subscription) Cancel() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if set, ok := s.m.subs[s.key]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.m.subs, s.key)
		}
	}
}

// subKey scopes a subscription to an event name and a room. An empty room
// matches frames from any room.
type subKey struct {
	event string
	room  string
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the single push connection. Rooms are reference counted: the
// connection comes up when the first room is joined and goes down when the
// last membership is released, so independent screens can share it without
// coordinating.
type Manager struct {
	transport Transport
	url       string
	logger    zerolog.Logger

	mu      sync.Mutex
	state   State
	conn    Conn
	connID  string
	dialing chan struct{}
	dialErr error
	rooms   map[string]int
	subs    map[subKey]map[*Subscription]struct{}
}

// NewManager creates a manager that dials url via transport.
func NewManager(transport Transport, url string, logger zerolog.Logger) *Manager {
	return &Manager{
		transport: transport,
		url:       url,
		logger:    logger.With().Str("component", "pushchannel").Logger(),
		rooms:     make(map[string]int),
		subs:      make(map[subKey]map[*Subscription]struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect brings the connection up if it is not up already. Concurrent
// callers share a single dial attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateConnecting:
		wait := m.dialing
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		err := m.dialErr
		m.mu.Unlock()
		return err
	}

	m.state = StateConnecting
	m.dialing = make(chan struct{})
	m.mu.Unlock()

	conn, err := m.transport.Dial(ctx, m.url)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
	close(m.dialing)

	if err != nil {
		m.state = StateDisconnected
		m.logger.Warn().Err(err).Msg("push connection failed")
		return err
	}

	m.state = StateConnected
	m.conn = conn
	// Correlates log lines across the lifetime of one connection.
	m.connID = uuid.NewString()
	m.logger.Debug().Str("conn_id", m.connID).Msg("push connection established")

	// Re-announce rooms joined before (or during) the dial.
	for room := range m.rooms {
		if err := conn.WriteFrame(Frame{Event: eventJoin, Room: room}); err != nil {
			m.logger.Warn().Err(err).Str("room", room).Msg("room join failed")
		}
	}

	go m.readLoop(conn)
	return nil
}

// JoinRoom takes a reference on room membership, connecting first if
// needed. The join frame is sent only on the first reference.
func (m *Manager) JoinRoom(ctx context.Context, room string) error {
	if room == "" {
		return fmt.Errorf("room must not be empty")
	}
	if err := m.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[room]++
	if m.rooms[room] > 1 {
		return nil
	}
	if m.conn == nil {
		return nil
	}
	if err := m.conn.WriteFrame(Frame{Event: eventJoin, Room: room}); err != nil {
		return fmt.Errorf("room join failed: %w", err)
	}
	m.logger.Debug().Str("room", room).Msg("joined room")
	return nil
}

// LeaveRoom releases one reference on room membership. The leave frame is
// sent when the last reference goes, and the connection itself is torn down
// once no rooms remain.
func (m *Manager) LeaveRoom(room string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, ok := m.rooms[room]
	if !ok {
		return
	}
	if count > 1 {
		m.rooms[room] = count - 1
		return
	}
	delete(m.rooms, room)

	if m.conn != nil {
		if err := m.conn.WriteFrame(Frame{Event: eventLeave, Room: room}); err != nil {
			m.logger.Debug().Err(err).Str("room", room).Msg("room leave frame failed")
		}
		m.logger.Debug().Str("room", room).Msg("left room")
	}

	if len(m.rooms) == 0 {
		m.teardownLocked()
	}
}

// Subscribe registers handler for frames named event in room. An empty room
// matches any room. The returned subscription stays active until canceled.
func (m *Manager) Subscribe(event, room string, handler Handler) *Subscription {
	key := subKey{event: event, room: room}
	sub := &Subscription{m: m, key: key, handler: handler}

	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		m.subs[key] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Emit sends an event frame. When the connection is down the frame is
// dropped: live emissions are best-effort and never fail the caller.
func (m *Manager) Emit(event, room string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != StateConnected || conn == nil {
		m.logger.Debug().Str("event", event).Msg("emit dropped, not connected")
		return nil
	}
	if err := conn.WriteFrame(Frame{Event: event, Room: room, Data: data}); err != nil {
		m.logger.Debug().Err(err).Str("event", event).Msg("emit failed")
	}
	return nil
}

// Close tears the connection down and forgets all room memberships.
// Subscriptions survive and resume delivery after a reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = make(map[string]int)
	m.teardownLocked()
}

// teardownLocked closes the current connection. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.state != StateDisconnected {
		m.state = StateDisconnected
		m.logger.Debug().Msg("push connection closed")
	}
}

// =============================================================================
// READ LOOP
// =============================================================================

// readLoop pumps frames off one connection until it fails or is replaced.
func (m *Manager) readLoop(conn Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			m.mu.Lock()
			current := m.conn == conn
			connID := m.connID
			if current {
				m.conn = nil
				m.state = StateDisconnected
			}
			m.mu.Unlock()

			// A teardown we initiated is not an error event.
			if current {
				m.logger.Warn().Err(err).Str("conn_id", connID).Msg("push connection lost")
				m.dispatch(Frame{Event: EventError, Data: errorPayload(err)})
			}
			return
		}
		m.dispatch(*frame)
	}
}

// dispatch delivers a frame to room-scoped subscribers first, then to
// any-room subscribers.
func (m *Manager) dispatch(frame Frame) {
	m.mu.Lock()
	var handlers []Handler
	if frame.Room != "" {
		for sub := range m.subs[subKey{event: frame.Event, room: frame.Room}] {
			handlers = append(handlers, sub.handler)
		}
	}
	for sub := range m.subs[subKey{event: frame.Event}] {
		handlers = append(handlers, sub.handler)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

func errorPayload(err error) json.RawMessage {
	data, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: err.Error()})
	return data
}
