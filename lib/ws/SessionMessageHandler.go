package ws

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/metrics"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
	modelws "github.com/vellumhq/vellum-go/lib/models/ws"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/ws/ratelimiter"
)

// SessionMessageHandler dispatches inbound socket messages to the session
// coordinator and answers the submitter directly. Broadcasts to the other
// participants are the coordinator's job.
type SessionMessageHandler struct {
	hub         *Hub
	coordinator *collab.Coordinator
	metrics     *metrics.Metrics
}

func NewSessionMessageHandler(hub *Hub, coordinator *collab.Coordinator, m *metrics.Metrics) *SessionMessageHandler {
	return &SessionMessageHandler{
		hub:         hub,
		coordinator: coordinator,
		metrics:     m,
	}
}

// Hub exposes the connection registry for server wiring and stats.
func (h *SessionMessageHandler) Hub() *Hub {
	return h.hub
}

func (h *SessionMessageHandler) HandleMessage(message []byte, c *Client, logger *zap.SugaredLogger) {
	var envelope modelws.ClientMessage
	if err := json.Unmarshal(message, &envelope); err != nil {
		h.sendError(c, "INVALID_MESSAGE", "message is not valid JSON")
		return
	}

	switch envelope.Type {
	case modelws.MessageAppendChange:
		h.handleAppendChange(envelope, c, logger)
	case modelws.MessageEndSession:
		if _, err := h.coordinator.EndSession(c.SessionID, author.VersionAuthor{ID: c.AuthorID}); err != nil {
			h.sendAppError(c, err)
		}
	case modelws.MessageAbortSession:
		if err := h.coordinator.AbortSession(c.SessionID, author.VersionAuthor{ID: c.AuthorID}); err != nil {
			h.sendAppError(c, err)
		}
	default:
		h.sendError(c, "UNKNOWN_MESSAGE_TYPE", "unsupported message type "+envelope.Type)
	}
}

func (h *SessionMessageHandler) handleAppendChange(envelope modelws.ClientMessage, c *Client, logger *zap.SugaredLogger) {
	if err := ratelimiter.CheckRateLimit(ratelimiter.Key(c.AuthorID), settings.Displayed.Collab.ChangeRateLimiting); err != nil {
		h.sendError(c, "RATE_LIMITED", "too many changes, slow down")
		return
	}
	if len(envelope.Change) == 0 {
		h.sendError(c, "INVALID_CHANGE", "APPEND_CHANGE requires a change payload")
		return
	}
	change, err := version.UnmarshalChange(envelope.Change)
	if err != nil {
		h.sendError(c, "INVALID_CHANGE", err.Error())
		return
	}

	rtc, err := h.coordinator.AppendChange(c.SessionID, c.AuthorID, change)
	if err != nil {
		h.sendAppError(c, err)
		return
	}
	h.metrics.RecordSessionChange()

	// The coordinator broadcasts to everyone else; the submitter gets the
	// assigned sequence number echoed back.
	ack := collab.Frame{
		Kind:      collab.FrameChange,
		SessionID: c.SessionID,
		AuthorID:  c.AuthorID,
		Change:    rtc,
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		logger.Errorw("marshalling change ack failed", "sessionId", c.SessionID, "error", err)
		return
	}
	h.trySend(c, payload)
}

// HandleDisconnect removes the participant from the session. After a normal
// commit the session is already gone and the leave is a no-op; a commit
// conflict keeps the session open for inspection.
func (h *SessionMessageHandler) HandleDisconnect(c *Client, logger *zap.SugaredLogger) {
	_, err := h.coordinator.LeaveSession(c.SessionID, c.AuthorID)
	if err == nil {
		return
	}

	var conflict *exception.SessionCommitConflictError
	if errors.As(err, &conflict) {
		h.metrics.RecordSessionCommitConflict()
		logger.Warnw("commit on disconnect conflicted, session kept open",
			"sessionId", c.SessionID, "author", c.AuthorID,
			"baseVersionId", conflict.BaseVersionID, "headVersionId", conflict.HeadVersionID)
		return
	}
	var state *exception.StateError
	var notFound *exception.NotFoundError
	if errors.As(err, &state) || errors.As(err, &notFound) {
		return
	}
	logger.Errorw("leave on disconnect failed",
		"sessionId", c.SessionID, "author", c.AuthorID, "error", err)
}

func (h *SessionMessageHandler) sendAppError(c *Client, err error) {
	var conflict *exception.SessionCommitConflictError
	if errors.As(err, &conflict) {
		h.metrics.RecordSessionCommitConflict()
	}
	code, message := exception.Describe(err)
	h.sendError(c, code, message)
}

func (h *SessionMessageHandler) sendError(c *Client, code string, message string) {
	payload, err := json.Marshal(modelws.NewErrorMessage(code, message))
	if err != nil {
		return
	}
	h.trySend(c, payload)
}

// trySend drops the message instead of blocking when the client's buffer is
// full; the write pump will catch up or the hub will drop the client.
func (h *SessionMessageHandler) trySend(c *Client, payload []byte) {
	select {
	case c.Send <- payload:
	default:
	}
}
