package errors

import "fmt"

// ErrorCode represents a relaynote error code.
type ErrorCode string

const (
	ErrValidation    ErrorCode = "VALIDATION"     // 400
	ErrUnauthorized  ErrorCode = "UNAUTHORIZED"   // 401
	ErrNotFound      ErrorCode = "NOT_FOUND"      // 404
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS" // 409
	ErrRateLimited   ErrorCode = "RATE_LIMITED"   // 429
	ErrUpstream      ErrorCode = "UPSTREAM"       // 502
	ErrInternal      ErrorCode = "INTERNAL"       // 500
)

// SyncError represents a structured error with code, status, and details.
// The code set is closed; callers switch on Code instead of probing error
// values for bolted-on fields.
type SyncError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidation creates a 400 error for invalid input or a mapping missing
// required identifiers.
func NewValidation(msg string) *SyncError {
	return &SyncError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for a missing or wrong shared secret.
func NewUnauthorized() *SyncError {
	return &SyncError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: "missing or invalid credentials",
	}
}

// NewNotFound creates a 404 error for a missing mapping or run.
func NewNotFound(identifier string) *SyncError {
	return &SyncError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAlreadyExists creates a 409 error for a duplicate mapping.
func NewAlreadyExists(owner, repo, companyID string) *SyncError {
	return &SyncError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("mapping %s/%s -> company %s already exists", owner, repo, companyID),
		Details: map[string]any{"owner": owner, "repo": repo, "company_id": companyID},
	}
}

// NewRateLimited creates a 429 error for downstream throttling.
// retryAfter is the Retry-After hint in seconds, 0 if none was sent.
func NewRateLimited(retryAfter int) *SyncError {
	return &SyncError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: "rate limited by downstream service",
		Details: map[string]any{"retry_after_seconds": retryAfter},
	}
}

// NewUpstream creates a 502 error for a non-success response from an
// external service. The body is truncated so error strings stay readable.
func NewUpstream(service string, status int, body string) *SyncError {
	const maxBody = 200
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &SyncError{
		Code:    ErrUpstream,
		Status:  502,
		Message: fmt.Sprintf("%s returned status %d", service, status),
		Details: map[string]any{"service": service, "upstream_status": status, "body": body},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SyncError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SyncError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a SyncError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := err.(*SyncError); ok {
		return sErr.Code == code
	}
	return false
}

// RetryAfter returns the retry-after hint carried by a RATE_LIMITED error,
// or 0 when the error carries none.
func RetryAfter(err error) int {
	sErr, ok := err.(*SyncError)
	if !ok || sErr.Code != ErrRateLimited || sErr.Details == nil {
		return 0
	}
	if v, ok := sErr.Details["retry_after_seconds"].(int); ok {
		return v
	}
	return 0
}
