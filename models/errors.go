package models

import (
	"errors"
	"fmt"
)

// Machine-readable error codes shared by the API envelope, the CLI and the
// renderer.
const (
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeBotCheck     = "BOT_CHECK"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the error object of an API response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CheckError is an error tagged with one of the ErrCode values.
type CheckError struct {
	Code    string
	Message string
	Err     error
}

// NewCheckError tags err (which may be nil) with code and a human message.
func NewCheckError(code, message string, err error) *CheckError {
	return &CheckError{Code: code, Message: message, Err: err}
}

func (e *CheckError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CheckError) Unwrap() error { return e.Err }

// ToDetail drops the wrapped cause, which may carry internal detail.
func (e *CheckError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first CheckError in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) string {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}
