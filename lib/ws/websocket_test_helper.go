package ws

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Mock WebSocket connection implementing WebSocketConn interface
type mockWebSocketConn struct {
	closed  bool
	written [][]byte
	mu      sync.Mutex
}

func (m *mockWebSocketConn) SetReadLimit(size int64) {}

func (m *mockWebSocketConn) ReadMessage() (messageType int, p []byte, err error) {
	time.Sleep(1 * time.Second)
	return websocket.TextMessage, []byte("test"), nil
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return websocket.ErrCloseSent
	}
	if messageType == websocket.TextMessage {
		m.written = append(m.written, append([]byte(nil), data...))
	}
	return nil
}

func (m *mockWebSocketConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *mockWebSocketConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (m *mockWebSocketConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (m *mockWebSocketConn) SetPongHandler(h func(appData string) error) {}

func (m *mockWebSocketConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (m *mockWebSocketConn) NextWriter(messageType int) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, websocket.ErrCloseSent
	}
	return &mockMessageWriter{conn: m}, nil
}

// writtenMessages returns a copy of every text message written so far.
func (m *mockWebSocketConn) writtenMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

type mockMessageWriter struct {
	conn *mockWebSocketConn
	buf  bytes.Buffer
}

func (w *mockMessageWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *mockMessageWriter) Close() error {
	w.conn.mu.Lock()
	defer w.conn.mu.Unlock()
	w.conn.written = append(w.conn.written, append([]byte(nil), w.buf.Bytes()...))
	return nil
}

func NewMockWebSocketConn() WebSocketConn {
	return &mockWebSocketConn{}
}
