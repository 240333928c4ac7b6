package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput  ErrorCode = "invalid_input"
	NotFound      ErrorCode = "not_found"
	Forbidden     ErrorCode = "forbidden"
	InvalidState  ErrorCode = "invalid_state"
	StaleIdentity ErrorCode = "stale_identity"
	Conflict      ErrorCode = "conflict"
	Transient     ErrorCode = "transient"
	Unauthorized  ErrorCode = "unauthorized"
	InternalError ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code, so errors.Is(err, ErrNotFound)
// matches any not_found error regardless of message.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy so the predefined errors below are never mutated.
func (e *AppError) WithDetails(details string) *AppError {
	c := *e
	c.Details = details
	return &c
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case InvalidState, Conflict:
		return http.StatusConflict
	case StaleIdentity, Unauthorized:
		return http.StatusUnauthorized
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the code of the first AppError in err's chain.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return InternalError
}

// AsAppError converts any error into an AppError, hiding non-AppError causes.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred")
}

// Predefined errors for common cases
var (
	ErrInvalidInput         = NewAppError(InvalidInput, "invalid input")
	ErrInvalidAmount        = NewAppError(InvalidInput, "amount must be positive with at most two decimal places")
	ErrSharesExceedTotal    = NewAppError(InvalidInput, "participant amounts exceed the transaction amount")
	ErrNotShared            = NewAppError(InvalidInput, "participants are only allowed on shared transactions")
	ErrTransactionNotFound  = NewAppError(NotFound, "transaction not found")
	ErrParticipantNotFound  = NewAppError(NotFound, "participant not found on this transaction")
	ErrUserNotFound         = NewAppError(NotFound, "user not found")
	ErrNotCreator           = NewAppError(Forbidden, "only the creator may modify this transaction")
	ErrNotInvitee           = NewAppError(Forbidden, "only the invited participant may respond")
	ErrNotVisible           = NewAppError(Forbidden, "caller is neither creator nor participant")
	ErrNotPending           = NewAppError(InvalidState, "participant has already responded")
	ErrStaleIdentity        = NewAppError(StaleIdentity, "caller identity no longer exists")
	ErrVersionConflict      = NewAppError(Conflict, "transaction was modified concurrently")
	ErrTransient            = NewAppError(Transient, "temporary persistence failure")
	ErrUnauthorized         = NewAppError(Unauthorized, "authentication required")
	ErrDuplicateUser        = NewAppError(InvalidInput, "username already taken")
)

var ErrCannotBeginTransaction = NewAppError(InternalError, "store cannot begin a transaction")
