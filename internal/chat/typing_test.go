// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/model"
	"github.com/jeranaias/photochat/internal/pushchannel"
)

type emitRec struct {
	event string
	room  string
}

type fakeEmitter struct {
	mu    sync.Mutex
	emits []emitRec
}

func (f *fakeEmitter) Emit(event, room string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emitRec{event: event, room: room})
	return nil
}

func (f *fakeEmitter) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emits {
		if e.event == event {
			n++
		}
	}
	return n
}

func newTestTyping(onChange func(bool)) (*TypingCoordinator, *fakeEmitter) {
	emitter := &fakeEmitter{}
	tc := NewTypingCoordinator(emitter, "c1", "me", onChange, zerolog.Nop()).
		WithStopDelay(30 * time.Millisecond)
	return tc, emitter
}

// =============================================================================
// OUTBOUND TESTS
// =============================================================================

func TestTyping_EveryKeystrokeEmits(t *testing.T) {
	tc, emitter := newTestTyping(nil)

	for i := 0; i < 5; i++ {
		tc.KeyPressed()
	}
	if got := emitter.count(pushchannel.EventTyping); got != 5 {
		t.Errorf("typing emissions = %d, want 5 (one per keystroke)", got)
	}
	tc.Stop()
}

func TestTyping_SingleStopAfterPause(t *testing.T) {
	tc, emitter := newTestTyping(nil)

	// Rapid keystrokes keep replacing the timer; only the final pause
	// produces a stop event.
	for i := 0; i < 5; i++ {
		tc.KeyPressed()
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if emitter.count(pushchannel.EventStopTyping) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give a late duplicate a chance to show up.
	time.Sleep(60 * time.Millisecond)

	if got := emitter.count(pushchannel.EventStopTyping); got != 1 {
		t.Errorf("stopTyping emissions = %d, want 1", got)
	}
}

func TestTyping_SendCancelsTimer(t *testing.T) {
	tc, emitter := newTestTyping(nil)

	tc.KeyPressed()
	tc.MessageSent()

	if got := emitter.count(pushchannel.EventStopTyping); got != 1 {
		t.Fatalf("stopTyping after send = %d, want 1 (immediate)", got)
	}

	// The canceled timer must not add a second stop.
	time.Sleep(60 * time.Millisecond)
	if got := emitter.count(pushchannel.EventStopTyping); got != 1 {
		t.Errorf("stopTyping emissions = %d, want 1", got)
	}
}

func TestTyping_StopSilencesTimer(t *testing.T) {
	tc, emitter := newTestTyping(nil)

	tc.KeyPressed()
	tc.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := emitter.count(pushchannel.EventStopTyping); got != 0 {
		t.Errorf("stopTyping after teardown = %d, want 0", got)
	}
}

// =============================================================================
// INBOUND TESTS
// =============================================================================

func TestTyping_RemoteSetAndCallbacks(t *testing.T) {
	var mu sync.Mutex
	var changes []bool
	tc, _ := newTestTyping(func(typing bool) {
		mu.Lock()
		changes = append(changes, typing)
		mu.Unlock()
	})

	tc.HandleRemoteTyping(model.TypingEvent{User: "them", ChatID: "c1"})
	if !tc.RemoteTyping() {
		t.Fatal("RemoteTyping should be true")
	}

	// A repeat start does not re-notify.
	tc.HandleRemoteTyping(model.TypingEvent{User: "them", ChatID: "c1"})

	tc.HandleRemoteStopTyping(model.TypingEvent{User: "them", ChatID: "c1"})
	if tc.RemoteTyping() {
		t.Fatal("RemoteTyping should be false after stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Errorf("changes = %v, want [true false]", changes)
	}
}

func TestTyping_IgnoresOwnEcho(t *testing.T) {
	tc, _ := newTestTyping(func(bool) {
		t.Error("echoed event must not notify")
	})

	tc.HandleRemoteTyping(model.TypingEvent{User: "me", ChatID: "c1"})
	if tc.RemoteTyping() {
		t.Error("own echo must not mark the peer as typing")
	}
}

func TestTyping_StopForUnknownPeerIsSilent(t *testing.T) {
	tc, _ := newTestTyping(func(bool) {
		t.Error("stop for a peer never seen typing must not notify")
	})
	tc.HandleRemoteStopTyping(model.TypingEvent{User: "them", ChatID: "c1"})
}
