package errors

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/models/version"
)

var InvalidRequestError = Error{
	Message: "Invalid request body",
	Code:    "INVALID_REQUEST",
	Error:   400,
}

var InternalServerError = Error{
	Message: "Internal server error",
	Code:    "INTERNAL",
	Error:   500,
}

func NewInvalidParamError(paramName string) Error {
	return Error{
		Message: "Invalid parameter: " + paramName,
		Code:    "INVALID_PARAM",
		Error:   400,
	}
}

func NewMissingParamError(paramName string) Error {
	return Error{
		Message: "Missing parameter: " + paramName,
		Code:    "MISSING_PARAM",
		Error:   400,
	}
}

// FromValidation turns a request validator failure into the matching
// parameter error, named after the offending json field.
func FromValidation(err error) Error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		if first.Tag() == "required" {
			return NewMissingParamError(first.Field())
		}
		return NewInvalidParamError(first.Field())
	}
	return InvalidRequestError
}

// MergeConflictResponse is the 409 body for a merge rejected over overlapping
// changes. The conflicts carry both competing changes per collision.
type MergeConflictResponse struct {
	Error
	SourceBranch string                   `json:"sourceBranch"`
	TargetBranch string                   `json:"targetBranch"`
	Conflicts    []version.ChangeConflict `json:"conflicts"`
}

// StaleHeadResponse is the 409 body for a commit whose expected parent no
// longer is the branch head.
type StaleHeadResponse struct {
	Error
	ExpectedHeadID string `json:"expectedHeadId"`
	ActualHeadID   string `json:"actualHeadId"`
}

// SessionConflictResponse is the 409 body for a session flush that lost to an
// outside commit. The session stays open so its changes can be recovered.
type SessionConflictResponse struct {
	Error
	SessionID     string `json:"sessionId"`
	BaseVersionID string `json:"baseVersionId"`
	HeadVersionID string `json:"headVersionId"`
}

// StatusFor maps engine errors onto HTTP status codes: validation 422,
// missing records 404, conflicts and state violations 409, storage 500.
func StatusFor(err error) int {
	var validationErr *exception.ValidationError
	var notFoundErr *exception.NotFoundError
	var stateErr *exception.StateError
	var staleErr *exception.StaleParentVersionError
	var mergeErr *exception.MergeConflictError
	var sessionErr *exception.SessionCommitConflictError

	switch {
	case errors.As(err, &validationErr):
		return 422
	case errors.As(err, &notFoundErr):
		return 404
	case errors.As(err, &stateErr),
		errors.As(err, &staleErr),
		errors.As(err, &mergeErr),
		errors.As(err, &sessionErr):
		return 409
	}
	return 500
}

// Write sends err as the response with the right status and body. Conflict
// errors get typed bodies carrying their detail so callers can react without
// parsing messages.
func Write(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	code, message := exception.Describe(err)
	base := Error{Message: message, Code: code, Error: status}

	var mergeErr *exception.MergeConflictError
	if errors.As(err, &mergeErr) {
		return c.Status(status).JSON(MergeConflictResponse{
			Error:        base,
			SourceBranch: mergeErr.SourceBranch,
			TargetBranch: mergeErr.TargetBranch,
			Conflicts:    mergeErr.Conflicts,
		})
	}

	var staleErr *exception.StaleParentVersionError
	if errors.As(err, &staleErr) {
		return c.Status(status).JSON(StaleHeadResponse{
			Error:          base,
			ExpectedHeadID: staleErr.ExpectedHeadID,
			ActualHeadID:   staleErr.ActualHeadID,
		})
	}

	var sessionErr *exception.SessionCommitConflictError
	if errors.As(err, &sessionErr) {
		return c.Status(status).JSON(SessionConflictResponse{
			Error:         base,
			SessionID:     sessionErr.SessionID,
			BaseVersionID: sessionErr.BaseVersionID,
			HeadVersionID: sessionErr.HeadVersionID,
		})
	}

	return c.Status(status).JSON(base)
}
