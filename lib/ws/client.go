package ws

// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gorilla/websocket"

	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/exception"
	modelws "github.com/vellumhq/vellum-go/lib/models/ws"
	"github.com/vellumhq/vellum-go/lib/settings"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Envelope slack on top of the content size cap when limiting reads.
	readLimitSlack = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is the middleman between one websocket connection and one session
// participant. Send is never closed; the done channel signals shutdown to
// every goroutine writing to it.
type Client struct {
	Hub *Hub
	// The websocket connection.
	Conn WebSocketConn
	// Buffered channel of outbound messages.
	Send      chan []byte
	SessionID string
	AuthorID  string

	handler      *SessionMessageHandler
	cancelFrames func()
	done         chan struct{}
	closeOnce    sync.Once
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump pumps messages from the websocket connection to the session
// handler.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump(logger *zap.SugaredLogger) {
	defer func() {
		c.shutdown()
		if c.cancelFrames != nil {
			c.cancelFrames()
		}
		c.handler.HandleDisconnect(c, logger)
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()
	// Change payloads are bounded by the content size cap.
	c.Conn.SetReadLimit(int64(settings.Displayed.Versioning.MaxContentBytes) + readLimitSlack)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnw("websocket closed unexpectedly",
					"sessionId", c.SessionID, "author", c.AuthorID, "error", err)
			}
			break
		}
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.handler.HandleMessage(message, c, logger)
	}
}

// writePump pumps messages from the Send channel to the websocket connection.
// A ticker keeps the connection alive; on shutdown the remaining buffered
// messages are flushed before the close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message := <-c.Send:
			if err := c.writeMessage(message); err != nil {
				return
			}
		case <-c.done:
			for {
				select {
				case message := <-c.Send:
					if err := c.writeMessage(message); err != nil {
						return
					}
				default:
					c.Conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					return
				}
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(message []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(message); err != nil {
		return err
	}
	return w.Close()
}

// forwardFrames bridges the session's ordered frame channel onto the socket.
// When the coordinator closes the channel the session is over and the client
// shuts down after the buffered frames drain.
func (c *Client) forwardFrames(frames <-chan collab.Frame) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				c.shutdown()
				return
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			select {
			case c.Send <- payload:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

// ServeWs attaches a session participant's websocket. The participant must
// already be in the session; the socket only carries its frames.
func ServeWs(w http.ResponseWriter, r *http.Request, sessionID string, authorID string,
	logger *zap.SugaredLogger, handler *SessionMessageHandler) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	frames, cancel, err := handler.coordinator.Subscribe(sessionID, authorID)
	if err != nil {
		code, message := exception.Describe(err)
		payload, _ := json.Marshal(modelws.NewErrorMessage(code, message))
		conn.WriteMessage(websocket.TextMessage, payload)
		conn.Close()
		return
	}

	client := &Client{
		Hub:          handler.hub,
		Conn:         NewWebSocketWrapper(conn),
		Send:         make(chan []byte, 256),
		SessionID:    sessionID,
		AuthorID:     authorID,
		handler:      handler,
		cancelFrames: cancel,
		done:         make(chan struct{}),
	}
	client.Hub.Register <- client
	go client.writePump()
	go client.forwardFrames(frames)
	client.readPump(logger)
}
