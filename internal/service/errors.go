// Package service defines the error and info types that API handlers depend on.
// Concrete implementations live in other packages and are wired in main.
package service

// ServiceError wraps an error with a code for API response mapping.
type ServiceError struct {
	Code    string // INVALID_ARGUMENT, UNAUTHENTICATED, NOT_FOUND, UNAVAILABLE, INTERNAL
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

// InvalidArgument reports a malformed or missing request field.
func InvalidArgument(msg string) *ServiceError {
	return &ServiceError{Code: "INVALID_ARGUMENT", Message: msg}
}

// NotFound reports a missing resource, e.g. an absent date partition.
func NotFound(msg string) *ServiceError {
	return &ServiceError{Code: "NOT_FOUND", Message: msg}
}

// Unavailable reports an upstream dependency that is down or rate limited.
func Unavailable(msg string, err error) *ServiceError {
	return &ServiceError{Code: "UNAVAILABLE", Message: msg, Err: err}
}

// Internal reports an unexpected failure.
func Internal(msg string, err error) *ServiceError {
	return &ServiceError{Code: "INTERNAL", Message: msg, Err: err}
}
