package exception

import "fmt"

type NotFoundError struct {
	*AppError
	Kind string
	ID   string
}

func NewContentNotFoundError(contentPath string) *NotFoundError {
	return &NotFoundError{
		AppError: &AppError{
			Code:    "CONTENT_NOT_FOUND",
			Message: fmt.Sprintf("no version history exists for '%s'", contentPath),
		},
		Kind: "content",
		ID:   contentPath,
	}
}

func NewVersionNotFoundError(contentPath string, versionID string) *NotFoundError {
	return &NotFoundError{
		AppError: &AppError{
			Code:    "VERSION_NOT_FOUND",
			Message: fmt.Sprintf("version '%s' does not exist for '%s'", versionID, contentPath),
		},
		Kind: "version",
		ID:   versionID,
	}
}

func NewBranchNotFoundError(contentPath string, branch string) *NotFoundError {
	return &NotFoundError{
		AppError: &AppError{
			Code:    "BRANCH_NOT_FOUND",
			Message: fmt.Sprintf("branch '%s' does not exist for '%s'", branch, contentPath),
		},
		Kind: "branch",
		ID:   branch,
	}
}

func NewSessionNotFoundError(sessionID string) *NotFoundError {
	return &NotFoundError{
		AppError: &AppError{
			Code:    "SESSION_NOT_FOUND",
			Message: fmt.Sprintf("collaborative session '%s' does not exist", sessionID),
		},
		Kind: "session",
		ID:   sessionID,
	}
}
