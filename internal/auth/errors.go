package auth

import (
	"fmt"
	"net/http"
)

// Error codes raised while authenticating staff
const (
	CodeADFSUnavailable = "E802"
	CodeInvalidLogin    = "E803"
)

// Error is an authentication failure. HTTPCode is what the caller should answer with.
type Error struct {
	Code     string
	Message  string
	HTTPCode int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newUnavailable(cause error) *Error {
	return &Error{
		Code:     CodeADFSUnavailable,
		Message:  "Unable to connect to ADFS",
		HTTPCode: http.StatusInternalServerError,
		Err:      cause,
	}
}

func newRejected(message string, cause error) *Error {
	return &Error{
		Code:     CodeInvalidLogin,
		Message:  message,
		HTTPCode: http.StatusForbidden,
		Err:      cause,
	}
}

func newLoginFailure(cause error) *Error {
	return &Error{
		Code:     CodeInvalidLogin,
		Message:  "Unknown error occurred while trying to validate login",
		HTTPCode: http.StatusInternalServerError,
		Err:      cause,
	}
}
