package exception

import "errors"

// AppError is the base carried by every typed engine error. Code is a stable
// machine-readable identifier, Message is human-readable, Cause is the
// wrapped underlying error when one exists.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// App returns the embedded base error. Every typed error promotes this method,
// so callers can read Code and Message without enumerating the types.
func (e *AppError) App() *AppError {
	return e
}

// Describe extracts the stable code and message from an engine error. Errors
// raised outside the engine yield the INTERNAL code.
func Describe(err error) (string, string) {
	var c interface{ App() *AppError }
	if errors.As(err, &c) {
		app := c.App()
		return app.Code, app.Message
	}
	return "INTERNAL", err.Error()
}
