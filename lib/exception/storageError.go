package exception

import "errors"

// StorageError wraps a failure in the version store. Transient failures
// (timeouts, dropped connections) may be retried by callers that know the
// operation is idempotent.
type StorageError struct {
	*AppError
	Op        string
	Transient bool
}

func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{
		AppError: &AppError{
			Code:    "STORAGE_ERROR",
			Message: "storage operation " + op + " failed",
			Cause:   cause,
		},
		Op: op,
	}
}

func NewTransientStorageError(op string, cause error) *StorageError {
	return &StorageError{
		AppError: &AppError{
			Code:    "STORAGE_UNAVAILABLE",
			Message: "storage operation " + op + " failed transiently",
			Cause:   cause,
		},
		Op:        op,
		Transient: true,
	}
}

// IsTransientStorage reports whether err is a storage failure marked safe to
// retry.
func IsTransientStorage(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr) && storageErr.Transient
}
