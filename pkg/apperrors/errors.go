package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// Validation errors.
	ErrSelfRequest   = errors.New("you cannot send a request to yourself")
	ErrInvalidStatus = errors.New("invalid status")

	// Conflict errors. Each one also matches ErrConflict.
	ErrDuplicateRequest   = &conflictError{msg: "a request to this user already exists and is not rejected"}
	ErrReciprocalConflict = &conflictError{msg: "a request is already received from this user or you are already friends"}
	ErrInvalidTransition  = &conflictError{msg: "request has already been accepted or rejected"}

	ErrPermissionDenied  = errors.New("you do not have permission to update this request")
	ErrRateLimitExceeded = errors.New("request rate limit exceeded")
)

type conflictError struct {
	msg string
}

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Is(target error) bool { return target == ErrConflict }

// Kind groups errors by how a caller is expected to react to them.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindAuthorization  Kind = "authorization"
	KindRateLimited    Kind = "rate_limited"
	KindNotFound       Kind = "not_found"
	KindInfrastructure Kind = "infrastructure"
)

// KindOf classifies err. Anything not produced by the friend request core,
// including store and network failures, is reported as KindInfrastructure.
// A nil error has no kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSelfRequest), errors.Is(err, ErrInvalidStatus):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrPermissionDenied):
		return KindAuthorization
	case errors.Is(err, ErrRateLimitExceeded):
		return KindRateLimited
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInfrastructure
	}
}
