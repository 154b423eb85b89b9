package exception

import "fmt"

type ValidationError struct {
	*AppError
	Field string
}

func NewEmptyContentError(contentPath string) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Code:    "EMPTY_CONTENT",
			Message: fmt.Sprintf("content for '%s' must not be empty", contentPath),
		},
		Field: "content",
	}
}

func NewContentTooLargeError(contentPath string, size int, limit int) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Code:    "CONTENT_TOO_LARGE",
			Message: fmt.Sprintf("content for '%s' is %d bytes, limit is %d", contentPath, size, limit),
		},
		Field: "content",
	}
}

func NewDuplicateBranchNameError(contentPath string, name string) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Code:    "DUPLICATE_BRANCH_NAME",
			Message: fmt.Sprintf("branch '%s' already exists for '%s'", name, contentPath),
		},
		Field: "name",
	}
}

func NewInvalidAuthorError(reason string) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Code:    "INVALID_AUTHOR",
			Message: "author " + reason,
		},
		Field: "author",
	}
}

func NewInvalidChangeError(reason string) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Code:    "INVALID_CHANGE",
			Message: "change " + reason,
		},
		Field: "changes",
	}
}

func NewInvalidContentPathError(contentPath string) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Code:    "INVALID_CONTENT_PATH",
			Message: fmt.Sprintf("content path '%s' is not valid", contentPath),
		},
		Field: "contentPath",
	}
}

func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Code:    "VALIDATION_FAILED",
			Message: field + " " + reason,
		},
		Field: field,
	}
}
