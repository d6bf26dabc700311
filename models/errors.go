package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTransportFatal = "TRANSPORT_FATAL"
	ErrCodeNavTimeout     = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeStrategy       = "STRATEGY_LOCAL"
	ErrCodeAcquisition    = "ACQUISITION_EXHAUSTED"
	ErrCodeRunAborted     = "RUN_ABORTED"
	ErrCodeStore          = "STORE_FAILED"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// Sentinels matched by errors.Is against a *ScrapeError carrying the
// corresponding code.
var (
	ErrTransportFatal       = errors.New("browser session is unusable")
	ErrAcquisitionExhausted = errors.New("session acquisition exhausted")
	ErrRunAborted           = errors.New("run aborted")
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code.
func (e *ScrapeError) Is(target error) bool {
	switch target {
	case ErrTransportFatal:
		return e.Code == ErrCodeTransportFatal
	case ErrAcquisitionExhausted:
		return e.Code == ErrCodeAcquisition
	case ErrRunAborted:
		return e.Code == ErrCodeRunAborted
	}
	return false
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the outermost ScrapeError in err's chain,
// or "" when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsTransportFatal reports whether err means the session must be discarded.
func IsTransportFatal(err error) bool {
	return errors.Is(err, ErrTransportFatal)
}

// IsTimeout reports whether err is a navigation timeout or a deadline.
func IsTimeout(err error) bool {
	return CodeOf(err) == ErrCodeNavTimeout || errors.Is(err, context.DeadlineExceeded)
}
