package sessions

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vellumhq/vellum-go/lib"
	apiErrors "github.com/vellumhq/vellum-go/lib/api/errors"
	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/metrics"
	"github.com/vellumhq/vellum-go/lib/models/author"
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/settings"
	"github.com/vellumhq/vellum-go/lib/ws/ratelimiter"
)

// StartSessionRequest represents the request to open a collaborative session
type StartSessionRequest struct {
	ContentPath string               `json:"contentPath" validate:"required"`
	Branch      string               `json:"branch"`
	Author      author.VersionAuthor `json:"author" validate:"required"`
}

// JoinSessionRequest represents the request to join an open session
type JoinSessionRequest struct {
	Author author.VersionAuthor `json:"author" validate:"required"`
}

// AppendChangeRequest represents the request to push one change into a session
type AppendChangeRequest struct {
	AuthorID string          `json:"authorId" validate:"required"`
	Change   json.RawMessage `json:"change" validate:"required"`
}

// LeaveSessionRequest represents the request to leave a session
type LeaveSessionRequest struct {
	AuthorID string `json:"authorId" validate:"required"`
}

// EndSessionRequest represents the request to close a session for everyone
type EndSessionRequest struct {
	Author author.VersionAuthor `json:"author" validate:"required"`
}

// AbortSessionRequest represents the request to discard a session
type AbortSessionRequest struct {
	Author author.VersionAuthor `json:"author" validate:"required"`
}

// CloseSessionResponse represents the outcome of a leave or end call. The
// committed version is absent when the session stayed open or held no changes.
type CloseSessionResponse struct {
	SessionID        string                  `json:"sessionId"`
	Closed           bool                    `json:"closed"`
	CommittedVersion *version.ContentVersion `json:"committedVersion,omitempty"`
}

// SessionListResponse represents the response with all live sessions
type SessionListResponse struct {
	Sessions []*collab.SessionSnapshot `json:"sessions"`
}

var rateLimitedError = apiErrors.Error{
	Message: "too many changes, slow down",
	Code:    "RATE_LIMITED",
	Error:   429,
}

// StartSession godoc
// @Summary Start a collaborative session
// @Description Opens a session on a content path, capturing the branch head as its base
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body StartSessionRequest true "Content path, optional branch and initiator"
// @Success 200 {object} collab.SessionSnapshot
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Router /api/sessions [post]
func StartSession(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request StartSessionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		start := time.Now()
		snapshot, err := initStore.Coordinator.StartSession(request.ContentPath, request.Branch, request.Author)
		if err != nil {
			initStore.Metrics.RecordOperation(metrics.OpStartSession, "error", time.Since(start))
			return apiErrors.Write(c, err)
		}
		initStore.Metrics.RecordOperation(metrics.OpStartSession, "ok", time.Since(start))

		return c.JSON(snapshot)
	}
}

// ListSessions godoc
// @Summary List live sessions
// @Description Returns a snapshot of every session currently tracked
// @Tags Sessions
// @Produce json
// @Success 200 {object} SessionListResponse
// @Router /api/sessions [get]
func ListSessions(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(SessionListResponse{
			Sessions: initStore.Coordinator.ListSessions(),
		})
	}
}

// GetSession godoc
// @Summary Get a session
// @Description Returns the current snapshot of one session
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} collab.SessionSnapshot
// @Failure 404 {object} errors.Error
// @Router /api/sessions/{sessionId} [get]
func GetSession(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snapshot, err := initStore.Coordinator.GetSession(c.Params("sessionId"))
		if err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(snapshot)
	}
}

// JoinSession godoc
// @Summary Join a session
// @Description Adds a participant to an open session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body JoinSessionRequest true "Joining author"
// @Success 200 {object} collab.SessionSnapshot
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Router /api/sessions/{sessionId}/join [post]
func JoinSession(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request JoinSessionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		snapshot, err := initStore.Coordinator.JoinSession(c.Params("sessionId"), request.Author)
		if err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(snapshot)
	}
}

// AppendChange godoc
// @Summary Push a change into a session
// @Description Validates one change against the working copy, assigns it a sequence number and broadcasts it
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body AppendChangeRequest true "Author and change payload"
// @Success 200 {object} collab.RealTimeChange
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 422 {object} errors.Error
// @Failure 429 {object} errors.Error
// @Router /api/sessions/{sessionId}/changes [post]
func AppendChange(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request AppendChangeRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		if err := ratelimiter.CheckRateLimit(
			ratelimiter.Key(request.AuthorID), settings.Displayed.Collab.ChangeRateLimiting); err != nil {
			return c.Status(429).JSON(rateLimitedError)
		}

		change, err := version.UnmarshalChange(request.Change)
		if err != nil {
			return c.Status(400).JSON(apiErrors.NewInvalidParamError("change"))
		}

		appended, err := initStore.Coordinator.AppendChange(c.Params("sessionId"), request.AuthorID, change)
		if err != nil {
			return apiErrors.Write(c, err)
		}
		initStore.Metrics.RecordSessionChange()

		return c.JSON(appended)
	}
}

// LeaveSession godoc
// @Summary Leave a session
// @Description Removes a participant; the last one out flushes the change log as a version
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body LeaveSessionRequest true "Leaving author"
// @Success 200 {object} CloseSessionResponse
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.SessionConflictResponse
// @Router /api/sessions/{sessionId}/leave [post]
func LeaveSession(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request LeaveSessionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		sessionID := c.Params("sessionId")
		start := time.Now()
		committed, err := initStore.Coordinator.LeaveSession(sessionID, request.AuthorID)
		if err != nil {
			return writeCloseError(c, initStore, err)
		}
		if committed != nil {
			initStore.Metrics.RecordOperation(metrics.OpCommitSession, "ok", time.Since(start))
		}

		_, lookupErr := initStore.Coordinator.GetSession(sessionID)
		return c.JSON(CloseSessionResponse{
			SessionID:        sessionID,
			Closed:           lookupErr != nil,
			CommittedVersion: committed,
		})
	}
}

// EndSession godoc
// @Summary End a session
// @Description Closes the session for everyone, committing the change log if it is non-empty
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body EndSessionRequest true "Closing author"
// @Success 200 {object} CloseSessionResponse
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.SessionConflictResponse
// @Router /api/sessions/{sessionId}/end [post]
func EndSession(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request EndSessionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		sessionID := c.Params("sessionId")
		start := time.Now()
		committed, err := initStore.Coordinator.EndSession(sessionID, request.Author)
		if err != nil {
			initStore.Metrics.RecordOperation(metrics.OpCommitSession, "error", time.Since(start))
			return writeCloseError(c, initStore, err)
		}
		initStore.Metrics.RecordOperation(metrics.OpCommitSession, "ok", time.Since(start))

		return c.JSON(CloseSessionResponse{
			SessionID:        sessionID,
			Closed:           true,
			CommittedVersion: committed,
		})
	}
}

// AbortSession godoc
// @Summary Abort a session
// @Description Closes the session and discards its change log without writing a version
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body AbortSessionRequest true "Aborting author"
// @Success 200 {object} CloseSessionResponse
// @Failure 400 {object} errors.Error
// @Failure 404 {object} errors.Error
// @Failure 409 {object} errors.Error
// @Router /api/sessions/{sessionId}/abort [post]
func AbortSession(initStore *lib.InitStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var request AbortSessionRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(apiErrors.InvalidRequestError)
		}
		if err := initStore.Validator.Struct(request); err != nil {
			return c.Status(400).JSON(apiErrors.FromValidation(err))
		}

		sessionID := c.Params("sessionId")
		if err := initStore.Coordinator.AbortSession(sessionID, request.Author); err != nil {
			return apiErrors.Write(c, err)
		}
		return c.JSON(CloseSessionResponse{
			SessionID: sessionID,
			Closed:    true,
		})
	}
}

// writeCloseError counts commit conflicts before handing the error to the
// shared writer. A conflicted session stays open with its log intact.
func writeCloseError(c *fiber.Ctx, initStore *lib.InitStore, err error) error {
	var conflictErr *exception.SessionCommitConflictError
	if errors.As(err, &conflictErr) {
		initStore.Metrics.RecordSessionCommitConflict()
	}
	return apiErrors.Write(c, err)
}

func Init(initStore *lib.InitStore) {
	initStore.API.Post("/sessions", StartSession(initStore))
	initStore.API.Get("/sessions", ListSessions(initStore))
	initStore.API.Get("/sessions/:sessionId", GetSession(initStore))
	initStore.API.Post("/sessions/:sessionId/join", JoinSession(initStore))
	initStore.API.Post("/sessions/:sessionId/changes", AppendChange(initStore))
	initStore.API.Post("/sessions/:sessionId/leave", LeaveSession(initStore))
	initStore.API.Post("/sessions/:sessionId/end", EndSession(initStore))
	initStore.API.Post("/sessions/:sessionId/abort", AbortSession(initStore))
}
