package ws

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn is the slice of *websocket.Conn the pumps depend on, kept
// narrow so tests can swap in a scripted connection.
type WebSocketConn interface {
	// Read side, owned by readPump.
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(size int64)
	SetPongHandler(h func(appData string) error)

	// Write side, owned by writePump.
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	NextWriter(messageType int) (io.WriteCloser, error)
	SetWriteDeadline(t time.Time) error

	Close() error
}

type WebSocketWrapper struct {
	*websocket.Conn
}

func NewWebSocketWrapper(conn *websocket.Conn) WebSocketConn {
	return &WebSocketWrapper{Conn: conn}
}
