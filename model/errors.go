package model

import "fmt"

// Structural error codes. Always rejected before any mutation, never
// retried automatically.
const (
	ErrIllegalTransition     = "ILLEGAL_TRANSITION"
	ErrCircularDependency    = "CIRCULAR_DEPENDENCY"
	ErrSelfDependency        = "SELF_DEPENDENCY"
	ErrDuplicateDependency   = "DUPLICATE_DEPENDENCY"
	ErrInvalidDependencyType = "INVALID_DEPENDENCY_TYPE"
	ErrMalformedGraph        = "MALFORMED_GRAPH"
)

// Authorization error codes. Surfaced to the caller for a different
// actor or flow.
const (
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrReasonRequired    = "REASON_REQUIRED"
	ErrGuardNotSatisfied = "GUARD_NOT_SATISFIED"
)

// Concurrency and lookup error codes.
const (
	ErrTaskBlocked       = "TASK_BLOCKED"
	ErrConflict          = "CONFLICT"
	ErrNotFound          = "NOT_FOUND"
	ErrUnknownEntityType = "UNKNOWN_ENTITY_TYPE"
	ErrBadRequest        = "BAD_REQUEST"
	ErrInternalError     = "INTERNAL_ERROR"
)

// ErrorEnvelope is the standard error returned by the engine. It carries a
// stable machine-readable code so the calling layer can render specific
// messages ("this would create a scheduling cycle" vs. "the record changed
// since you loaded it") without string matching.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error, e.g. which guard
// attribute failed evaluation.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf returns the envelope code of err, an empty string for nil, or
// INTERNAL_ERROR for any non-envelope error.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if env, ok := err.(*ErrorEnvelope); ok {
		return env.Code
	}
	return ErrInternalError
}

// NewIllegalTransitionError returns an ILLEGAL_TRANSITION error.
func NewIllegalTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrIllegalTransition, Message: msg}
}

// NewCircularDependencyError returns a CIRCULAR_DEPENDENCY error.
func NewCircularDependencyError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCircularDependency, Message: msg}
}

// NewSelfDependencyError returns a SELF_DEPENDENCY error.
func NewSelfDependencyError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrSelfDependency, Message: msg}
}

// NewDuplicateDependencyError returns a DUPLICATE_DEPENDENCY error.
func NewDuplicateDependencyError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDuplicateDependency, Message: msg}
}

// NewInvalidDependencyTypeError returns an INVALID_DEPENDENCY_TYPE error.
func NewInvalidDependencyTypeError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidDependencyType, Message: msg}
}

// NewMalformedGraphError returns a MALFORMED_GRAPH error.
func NewMalformedGraphError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrMalformedGraph, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error (missing or invalid
// credentials).
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error (authenticated, but the actor's
// role does not permit the operation).
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewReasonRequiredError returns a REASON_REQUIRED error.
func NewReasonRequiredError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrReasonRequired, Message: msg}
}

// NewGuardNotSatisfiedError returns a GUARD_NOT_SATISFIED error carrying the
// failing guard expression as a field-level detail.
func NewGuardNotSatisfiedError(msg, guard string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrGuardNotSatisfied,
		Message: msg,
		Details: []FieldError{{Field: "guard", Code: ErrGuardNotSatisfied, Message: guard}},
	}
}

// NewConflictError returns a CONFLICT error. Safe to retry after re-reading
// current state.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewUnknownEntityTypeError returns an UNKNOWN_ENTITY_TYPE error.
func NewUnknownEntityTypeError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnknownEntityType, Message: msg}
}

// NewTaskBlockedError returns a TASK_BLOCKED error carrying the blocking
// reason.
func NewTaskBlockedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTaskBlocked, Message: msg}
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInternalError, Message: "An unexpected error occurred"}
}
