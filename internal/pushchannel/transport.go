// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pushchannel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// =============================================================================
// TRANSPORT INTERFACE
// =============================================================================

// Conn is a single established push stream. ReadFrame blocks until a frame
// arrives or the connection fails. WriteFrame is safe for concurrent use.
type Conn interface {
	ReadFrame() (*Frame, error)
	WriteFrame(Frame) error
	Close() error
}

// Transport dials the push endpoint. The manager holds a Transport so tests
// can substitute an in-memory one.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// =============================================================================
// WEBSOCKET TRANSPORT
// =============================================================================

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before declaring the
	// connection dead. Pings go out at a fraction of this.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024
)

// WebSocketTransport dials the push endpoint over a websocket and carries
// frames as JSON text messages.
type WebSocketTransport struct {
	// Header is sent with the upgrade request, typically the bearer token.
	Header http.Header

	// HandshakeTimeout bounds the dial. Zero means the dialer default.
	HandshakeTimeout time.Duration
}

// Dial connects to the push endpoint at url.
func (t *WebSocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, url, t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("push dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("push dial failed: %w", err)
	}

	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c := &wsConn{ws: ws, done: make(chan struct{})}
	go c.pingLoop()
	return c, nil
}

// wsConn wraps a gorilla connection. The websocket package allows one
// concurrent writer, so writes are serialized with a mutex shared by the
// ping loop.
type wsConn struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

func (c *wsConn) ReadFrame() (*Frame, error) {
	var frame Frame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func (c *wsConn) WriteFrame(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(frame)
}

func (c *wsConn) Close() error {
	c.doneOnce.Do(func() { close(c.done) })

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.ws.Close()
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
