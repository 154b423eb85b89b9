package exception

import (
	"fmt"

	"github.com/vellumhq/vellum-go/lib/models/version"
)

// StaleParentVersionError is returned when a commit names a parent that is no
// longer the branch head. The caller should re-read the head and retry.
type StaleParentVersionError struct {
	*AppError
	ContentPath    string
	ExpectedHeadID string
	ActualHeadID   string
}

func NewStaleParentVersionError(contentPath string, expectedHeadID string, actualHeadID string) *StaleParentVersionError {
	return &StaleParentVersionError{
		AppError: &AppError{
			Code: "STALE_PARENT_VERSION",
			Message: fmt.Sprintf("parent %s of %s is no longer the head (now %s)",
				expectedHeadID, contentPath, actualHeadID),
		},
		ContentPath:    contentPath,
		ExpectedHeadID: expectedHeadID,
		ActualHeadID:   actualHeadID,
	}
}

// MergeConflictError carries every pair of changes that touched the same
// region of the common ancestor. Nothing is written when it is returned.
type MergeConflictError struct {
	*AppError
	ContentPath  string
	SourceBranch string
	TargetBranch string
	Conflicts    []version.ChangeConflict
}

func NewMergeConflictError(contentPath string, sourceBranch string, targetBranch string, conflicts []version.ChangeConflict) *MergeConflictError {
	return &MergeConflictError{
		AppError: &AppError{
			Code: "MERGE_CONFLICT",
			Message: fmt.Sprintf("merging %s into %s on %s produced %d conflicting regions",
				sourceBranch, targetBranch, contentPath, len(conflicts)),
		},
		ContentPath:  contentPath,
		SourceBranch: sourceBranch,
		TargetBranch: targetBranch,
		Conflicts:    conflicts,
	}
}

// SessionCommitConflictError is returned when a session's changes cannot be
// committed because the branch advanced while the session was open. The
// session stays open so its log can be inspected or retried.
type SessionCommitConflictError struct {
	*AppError
	SessionID     string
	BaseVersionID string
	HeadVersionID string
}

func NewSessionCommitConflictError(sessionID string, baseVersionID string, headVersionID string) *SessionCommitConflictError {
	return &SessionCommitConflictError{
		AppError: &AppError{
			Code: "SESSION_COMMIT_CONFLICT",
			Message: fmt.Sprintf("session %s is based on %s but the branch head is now %s",
				sessionID, baseVersionID, headVersionID),
		},
		SessionID:     sessionID,
		BaseVersionID: baseVersionID,
		HeadVersionID: headVersionID,
	}
}
