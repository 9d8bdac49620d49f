// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/api"
	"github.com/jeranaias/photochat/internal/identity"
	"github.com/jeranaias/photochat/internal/model"
	"github.com/jeranaias/photochat/internal/pushchannel"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeResolver struct {
	id  model.Identity
	err error
}

func (f *fakeResolver) Resolve(context.Context) (model.Identity, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

type fakeBackend struct {
	fakeHistory
	user model.User
	conv model.Conversation

	mu2          sync.Mutex
	lookups      []string
	participants []model.Identity
}

func (f *fakeBackend) UserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu2.Lock()
	defer f.mu2.Unlock()
	f.lookups = append(f.lookups, email)
	u := f.user
	return &u, nil
}

func (f *fakeBackend) CreateOrGetChat(_ context.Context, self, target model.Identity) (*model.Conversation, error) {
	f.mu2.Lock()
	defer f.mu2.Unlock()
	f.participants = []model.Identity{self, target}
	c := f.conv
	return &c, nil
}

// stubConn is an in-memory push stream for session tests.
type stubConn struct {
	mu      sync.Mutex
	written []pushchannel.Frame
	inbound chan *pushchannel.Frame
	once    sync.Once
}

func newStubConn() *stubConn {
	return &stubConn{inbound: make(chan *pushchannel.Frame, 16)}
}

func (c *stubConn) ReadFrame() (*pushchannel.Frame, error) {
	frame, ok := <-c.inbound
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

func (c *stubConn) WriteFrame(frame pushchannel.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, frame)
	return nil
}

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.inbound) })
	return nil
}

func (c *stubConn) countEvent(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.written {
		if f.Event == event {
			n++
		}
	}
	return n
}

type stubTransport struct {
	mu   sync.Mutex
	conn *stubConn
}

func (t *stubTransport) Dial(context.Context, string) (pushchannel.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = newStubConn()
	return t.conn, nil
}

func (t *stubTransport) current() *stubConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// =============================================================================
// SETUP
// =============================================================================

type sessionFixture struct {
	session   *Session
	backend   *fakeBackend
	transport *stubTransport
	push      *pushchannel.Manager

	mu       sync.Mutex
	changed  int
	typingCh []bool
}

func newFixture(t *testing.T, resolver IdentityResolver) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		backend: &fakeBackend{
			fakeHistory: fakeHistory{timeline: timeline(25)},
			user:        model.User{Email: "peer@example.com", MongoID: "them"},
			conv:        model.Conversation{ID: "c1", Participants: []model.Identity{"me", "them"}},
		},
		transport: &stubTransport{},
	}
	f.push = pushchannel.NewManager(f.transport, "ws://push.test", zerolog.Nop())
	f.session = NewSession(resolver, f.backend, f.push, Callbacks{
		OnMessagesChanged: func() {
			f.mu.Lock()
			f.changed++
			f.mu.Unlock()
		},
		OnTypingChanged: func(typing bool) {
			f.mu.Lock()
			f.typingCh = append(f.typingCh, typing)
			f.mu.Unlock()
		},
	}, zerolog.Nop())
	t.Cleanup(f.session.Close)
	return f
}

func (f *sessionFixture) changeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

func (f *sessionFixture) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	f.transport.current().inbound <- &pushchannel.Frame{Event: event, Room: "c1", Data: data}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// =============================================================================
// START TESTS
// =============================================================================

func TestSession_StartByEmail(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})

	if err := f.session.Start(context.Background(), Target{Email: "peer@example.com"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if f.session.ChatID() != "c1" {
		t.Errorf("ChatID = %q, want c1", f.session.ChatID())
	}
	if got := f.backend.participants; len(got) != 2 || got[0] != "me" || got[1] != "them" {
		t.Errorf("participants = %v, want [me them]", got)
	}
	if n := f.transport.current().countEvent("join"); n != 1 {
		t.Errorf("join frames = %d, want 1", n)
	}
	if got := len(f.session.Messages()); got != 20 {
		t.Errorf("messages after start = %d, want 20", got)
	}
	if f.changeCount() == 0 {
		t.Error("OnMessagesChanged not fired after initial load")
	}
}

func TestSession_StartByIdentity(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})

	if err := f.session.Start(context.Background(), Target{Identity: "them"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A known peer identity goes straight to create-or-get.
	if len(f.backend.lookups) != 0 {
		t.Error("known peer identity must not trigger a directory lookup")
	}
	if got := f.backend.participants; len(got) != 2 || got[0] != "me" || got[1] != "them" {
		t.Errorf("participants = %v, want [me them]", got)
	}
	if f.session.ChatID() != "c1" {
		t.Errorf("ChatID = %q, want c1", f.session.ChatID())
	}
}

func TestSession_StartByKnownChatID(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})

	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(f.backend.lookups) != 0 {
		t.Error("known chat id must not trigger a directory lookup")
	}
}

func TestSession_StartWithoutIdentity(t *testing.T) {
	resolver := &fakeResolver{err: identity.ErrNoIdentity}

	// A known chat still opens; every message renders as incoming.
	f := newFixture(t, resolver)
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatalf("Start with known chat failed: %v", err)
	}
	msgs := f.session.Messages()
	if len(msgs) == 0 {
		t.Fatal("no messages loaded")
	}
	for i := range msgs {
		if f.session.Mine(&msgs[i]) {
			t.Fatal("unresolved identity must never own a message")
		}
	}

	// Creating a conversation needs the local identity, and its absence is
	// an authentication failure rather than a target one.
	f2 := newFixture(t, resolver)
	err := f2.session.Start(context.Background(), Target{Email: "peer@example.com"})
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Errorf("Start by email = %v, want ErrUnauthenticated", err)
	}

	f3 := newFixture(t, resolver)
	err = f3.session.Start(context.Background(), Target{Identity: "them"})
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Errorf("Start by identity = %v, want ErrUnauthenticated", err)
	}
}

// =============================================================================
// LIVE MERGE TESTS
// =============================================================================

func TestSession_LiveMessageAppends(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	before := f.session.Messages()

	f.deliver(t, pushchannel.EventMessage, model.Message{
		ID: "live1", Text: "hi", Sender: model.SenderRef{ID: "them"}, ChatID: "c1",
	})

	eventually(t, func() bool { return len(f.session.Messages()) == len(before)+1 },
		"live message not merged")
	msgs := f.session.Messages()
	if msgs[len(msgs)-1].ID != "live1" {
		t.Errorf("live message must land at the newest end, got %v", msgs[len(msgs)-1].ID)
	}
}

func TestSession_LiveDuplicateIgnored(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	changesBefore := f.changeCount()

	// m25 is already in the log from the history page.
	f.deliver(t, pushchannel.EventMessage, model.Message{ID: "m25", Text: "dup"})
	f.deliver(t, pushchannel.EventMessage, model.Message{ID: "live1"})

	eventually(t, func() bool { return f.session.Messages()[len(f.session.Messages())-1].ID == "live1" },
		"trailing live message not merged")
	if f.changeCount() != changesBefore+1 {
		t.Errorf("duplicate live message must not notify, changes = %d", f.changeCount()-changesBefore)
	}
}

func TestSession_RemoteTypingFlow(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}

	f.deliver(t, pushchannel.EventTyping, model.TypingEvent{User: "them", ChatID: "c1"})
	eventually(t, func() bool { return f.session.PeerTyping() }, "peer typing not recorded")

	f.deliver(t, pushchannel.EventStopTyping, model.TypingEvent{User: "them", ChatID: "c1"})
	eventually(t, func() bool { return !f.session.PeerTyping() }, "peer stop not recorded")

	// Own echoes change nothing.
	f.deliver(t, pushchannel.EventTyping, model.TypingEvent{User: "me", ChatID: "c1"})
	time.Sleep(50 * time.Millisecond)
	if f.session.PeerTyping() {
		t.Error("own echo marked the peer as typing")
	}
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSession_SendEmitsStopTypingThenMessage(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}

	f.session.KeyPressed()
	if err := f.session.Send("  hello  "); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conn := f.transport.current()
	if n := conn.countEvent(pushchannel.EventStopTyping); n != 1 {
		t.Errorf("stopTyping frames = %d, want 1", n)
	}
	if n := conn.countEvent(pushchannel.EventMessage); n != 1 {
		t.Errorf("message frames = %d, want 1", n)
	}

	conn.mu.Lock()
	var out model.OutgoingMessage
	for _, frame := range conn.written {
		if frame.Event == pushchannel.EventMessage {
			json.Unmarshal(frame.Data, &out)
		}
	}
	conn.mu.Unlock()
	if out.ChatID != "c1" || out.Text != "hello" {
		t.Errorf("outgoing payload = %+v, want trimmed text in c1", out)
	}
}

func TestSession_SendEmptyIsNoop(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := f.session.Send("   "); err != nil {
		t.Fatalf("Send of blank text = %v, want nil", err)
	}
	if n := f.transport.current().countEvent(pushchannel.EventMessage); n != 0 {
		t.Errorf("message frames = %d, want 0", n)
	}
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestSession_LoadOlder(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if !f.session.HasMoreHistory() {
		t.Fatal("full first page should leave more history")
	}

	if err := f.session.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder failed: %v", err)
	}
	if got := len(f.session.Messages()); got != 25 {
		t.Errorf("messages = %d, want 25", got)
	}
	if f.session.HasMoreHistory() {
		t.Error("short page should end history")
	}
}

// =============================================================================
// TEARDOWN TESTS
// =============================================================================

func TestSession_CloseTearsDown(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	conn := f.transport.current()

	f.session.Close()

	if n := conn.countEvent("leave"); n != 1 {
		t.Errorf("leave frames = %d, want 1", n)
	}
	if f.push.State() != pushchannel.StateDisconnected {
		t.Errorf("push state = %v, want disconnected at zero rooms", f.push.State())
	}
	if err := f.session.Send("late"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send after Close = %v, want ErrSessionClosed", err)
	}
	if err := f.session.LoadOlder(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("LoadOlder after Close = %v, want ErrSessionClosed", err)
	}

	// Close is idempotent.
	f.session.Close()
}

func TestSession_NoDeliveryAfterClose(t *testing.T) {
	f := newFixture(t, &fakeResolver{id: "me"})
	if err := f.session.Start(context.Background(), Target{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	before := len(f.session.Messages())

	f.session.Close()

	// The connection is gone; even a handler invoked directly is a no-op.
	f.session.handleMessage(pushchannel.Frame{
		Event: pushchannel.EventMessage, Room: "c1",
		Data: json.RawMessage(`{"_id":"late1","text":"too late"}`),
	})
	if got := len(f.session.Messages()); got != before {
		t.Errorf("messages after close = %d, want %d", got, before)
	}
}
