package verification

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced for verification API failures
const (
	CodeHTTPError         = "E401"
	CodeConnectionFailure = "E402"
	CodeRequestTimeout    = "E403"
)

// ApplicationError is the single error kind returned by the Client.
// Variants are distinguished by Code and HTTPCode.
type ApplicationError struct {
	Code     string
	Message  string
	HTTPCode int
	Err      error
}

// Error implements the error interface
func (e *ApplicationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap supports error unwrapping
func (e *ApplicationError) Unwrap() error {
	return e.Err
}

func newHTTPError(cause error) *ApplicationError {
	return &ApplicationError{
		Code:     CodeHTTPError,
		Message:  fmt.Sprintf("Received the following response from Verification API: %v", cause),
		HTTPCode: http.StatusInternalServerError,
		Err:      cause,
	}
}

// newNotFound keeps the upstream 404 so item lookups can render a not-found page.
func newNotFound() *ApplicationError {
	e := newHTTPError(errors.New("Not Found"))
	e.HTTPCode = http.StatusNotFound
	return e
}

func newConnectionFailure(cause error) *ApplicationError {
	return &ApplicationError{
		Code:     CodeConnectionFailure,
		Message:  fmt.Sprintf("Failed to connect to Verification API: %v", cause),
		HTTPCode: http.StatusInternalServerError,
		Err:      cause,
	}
}

func newRequestTimeout(cause error) *ApplicationError {
	return &ApplicationError{
		Code:     CodeRequestTimeout,
		Message:  fmt.Sprintf("Connection to Verification API timed out: %v", cause),
		HTTPCode: http.StatusInternalServerError,
		Err:      cause,
	}
}

// StatusError is the cause carried by an E401 error for a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// AsApplicationError extracts an ApplicationError from err
func AsApplicationError(err error) (*ApplicationError, bool) {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is the API's 404 response
func IsNotFound(err error) bool {
	appErr, ok := AsApplicationError(err)
	return ok && appErr.HTTPCode == http.StatusNotFound
}
