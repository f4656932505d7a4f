package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	// Terminal marks a failure that retrying cannot fix (missing order,
	// bad payload, failed decrypt). The job queue fails these
	// immediately instead of exhausting attempts.
	Terminal bool `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrOrderNotFound
	ErrStoreNotFound
	ErrCredentialDecrypt
	ErrCarrierRejected
	ErrInvalidTransition
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:     ErrNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Err:      err,
		Terminal: true,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:     ErrBadRequest,
		Message:  message,
		Err:      err,
		Terminal: true,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:     ErrUnauthorized,
		Message:  "unauthorized",
		Err:      err,
		Terminal: true,
	}
}

func OrderNotFound(ref string) *AppError {
	return &AppError{
		Code:     ErrOrderNotFound,
		Message:  fmt.Sprintf("order %s not found", ref),
		Terminal: true,
	}
}

func StoreNotFound(ref string) *AppError {
	return &AppError{
		Code:     ErrStoreNotFound,
		Message:  fmt.Sprintf("store integration %s not found", ref),
		Terminal: true,
	}
}

func CredentialDecrypt(err error) *AppError {
	return &AppError{
		Code:     ErrCredentialDecrypt,
		Message:  "failed to decrypt integration credentials",
		Err:      err,
		Terminal: true,
	}
}

func CarrierRejected(statusCode int, err error) *AppError {
	return &AppError{
		Code:    ErrCarrierRejected,
		Message: fmt.Sprintf("carrier platform rejected request with status %d", statusCode),
		Err:     err,
		// 4xx rejections are terminal, 5xx are worth retrying.
		Terminal: statusCode >= 400 && statusCode < 500,
	}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:     ErrInvalidTransition,
		Message:  fmt.Sprintf("invalid order status transition %s -> %s", from, to),
		Terminal: true,
	}
}

// IsTerminal reports whether err (or anything it wraps) is a terminal
// AppError.
func IsTerminal(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Terminal
	}
	return false
}
