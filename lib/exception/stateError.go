package exception

import "fmt"

type StateError struct {
	*AppError
}

// NewSessionAlreadyOpenError is returned when a collaboration session is
// started for a content path that already has one open.
func NewSessionAlreadyOpenError(contentPath string, sessionID string) *StateError {
	return &StateError{
		AppError: &AppError{
			Code:    "SESSION_ALREADY_OPEN",
			Message: fmt.Sprintf("content %s already has open session %s", contentPath, sessionID),
		},
	}
}

// NewSessionClosedError is returned when an operation targets a session that
// is closing or closed.
func NewSessionClosedError(sessionID string) *StateError {
	return &StateError{
		AppError: &AppError{
			Code:    "SESSION_CLOSED",
			Message: fmt.Sprintf("session %s is closed", sessionID),
		},
	}
}

// NewParticipantNotInSessionError is returned when an author acts in a
// session they never joined or already left.
func NewParticipantNotInSessionError(sessionID string, authorID string) *StateError {
	return &StateError{
		AppError: &AppError{
			Code:    "PARTICIPANT_NOT_IN_SESSION",
			Message: fmt.Sprintf("author %s is not a participant of session %s", authorID, sessionID),
		},
	}
}

// NewVersionNotOnTrunkError is returned when a version outside the trunk
// branch is submitted for publication.
func NewVersionNotOnTrunkError(versionID string, branchName string) *StateError {
	return &StateError{
		AppError: &AppError{
			Code:    "VERSION_NOT_ON_TRUNK",
			Message: fmt.Sprintf("version %s belongs to branch %s and cannot be published", versionID, branchName),
		},
	}
}

// NewCannotMergeTrunkError is returned when the trunk branch itself is named
// as a merge source.
func NewCannotMergeTrunkError(contentPath string) *StateError {
	return &StateError{
		AppError: &AppError{
			Code:    "CANNOT_MERGE_TRUNK",
			Message: fmt.Sprintf("the trunk branch of %s is a merge target only", contentPath),
		},
	}
}
