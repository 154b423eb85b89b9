package ws

import "encoding/json"

// Inbound message types accepted on a session socket.
const (
	MessageAppendChange = "APPEND_CHANGE"
	MessageEndSession   = "END_SESSION"
	MessageAbortSession = "ABORT_SESSION"
)

// ClientMessage is the envelope of every inbound socket message. Change
// carries the kind-tagged payload when Type is APPEND_CHANGE.
type ClientMessage struct {
	Type   string          `json:"type"`
	Change json.RawMessage `json:"change,omitempty"`
}

// ErrorMessage is sent back on a rejected message. The socket stays open; the
// client decides whether to retry or disconnect.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code string, message string) ErrorMessage {
	return ErrorMessage{
		Type:    "ERROR",
		Code:    code,
		Message: message,
	}
}
