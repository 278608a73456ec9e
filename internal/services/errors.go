package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCaseNotFound is returned when the verification API has no such case
var ErrCaseNotFound = errors.New("case not found")

// ErrNoIdentity is returned when neither the session nor the request carries a staff id
var ErrNoIdentity = errors.New("no staff identity on request")

// UserFacingError is a failed action as shown to staff. The underlying cause
// is logged against TraceID and kept only for errors.Is/As.
type UserFacingError struct {
	Message  string
	TraceID  string
	HTTPCode int
	Err      error
}

func (e *UserFacingError) Error() string {
	return e.Message
}

func (e *UserFacingError) Unwrap() error {
	return e.Err
}

// ValidationError carries per-field messages for a rejected form
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// add records msg against field unless it already has a message
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// orNil returns e when it holds at least one message
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
