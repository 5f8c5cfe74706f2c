package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrUnsupportedToken = errors.New("unsupported token")

	// ErrUpstream is matched by every UpstreamError.
	ErrUpstream = errors.New("payment provider error")
	// ErrTerminalStatus is returned when a write targets a confirmed or failed record.
	ErrTerminalStatus = errors.New("payment record already in terminal status")
	// ErrMonitorTimeout is the poll budget running out before a terminal status.
	ErrMonitorTimeout = errors.New("transaction is taking longer than expected, check your wallet for the final status")
	// ErrFundingTimeout is the passive funding re-check budget running out.
	ErrFundingTimeout = errors.New("wallet was not funded in time")
	// ErrSessionNotFound means no live workflow exists for a payment record.
	ErrSessionNotFound = errors.New("no active payment session")
)

// UpstreamError describes a non-success response from the payment provider.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}

// NewUpstreamError creates an upstream error for a provider operation
func NewUpstreamError(op string, status int, body string) *UpstreamError {
	return &UpstreamError{Op: op, Status: status, Body: body}
}

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes rendered to API clients
const (
	CodeNotFound           = "ERR_NOT_FOUND"
	CodeInvalidInput       = "ERR_BAD_REQUEST"
	CodeUnauthorized       = "ERR_UNAUTHORIZED"
	CodeConflict           = "ERR_CONFLICT"
	CodeUpstream           = "ERR_UPSTREAM"
	CodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
	CodeInternalError      = "ERR_INTERNAL"
)

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, ErrConflict)
}

func BadGateway(err error) *AppError {
	return NewAppError(http.StatusBadGateway, CodeUpstream, "payment provider unavailable", err)
}

func ServiceUnavailable(message string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeServiceUnavailable, message, nil)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

// FromError maps a domain error onto an AppError. Unknown errors become 500s.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSessionNotFound):
		return NewAppError(http.StatusNotFound, CodeNotFound, err.Error(), err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedChain), errors.Is(err, ErrUnsupportedToken):
		return NewAppError(http.StatusBadRequest, CodeInvalidInput, err.Error(), err)
	case errors.Is(err, ErrUnauthorized):
		return NewAppError(http.StatusUnauthorized, CodeUnauthorized, err.Error(), err)
	case errors.Is(err, ErrConflict), errors.Is(err, ErrTerminalStatus):
		return NewAppError(http.StatusConflict, CodeConflict, err.Error(), err)
	case errors.Is(err, ErrUpstream):
		return BadGateway(err)
	default:
		return InternalError(err)
	}
}
