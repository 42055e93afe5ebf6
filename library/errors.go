package library

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotAuthenticated is returned by operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("not signed in")
	// ErrSessionClosed is returned once a Session has been torn down.
	ErrSessionClosed = errors.New("session closed")
)

// fallbackMessage is used when the server rejects a request without a body.
const fallbackMessage = "request failed"

// RequestError is a non-success HTTP answer. Message carries the server's
// response text verbatim.
type RequestError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func newRequestError(method, path string, status int, body string) *RequestError {
	msg := body
	if msg == "" {
		msg = fmt.Sprintf("%s (%d %s)", fallbackMessage, status, http.StatusText(status))
	}
	return &RequestError{Method: method, Path: path, Status: status, Message: msg}
}

// ValidationError is a local input problem caught before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ForbiddenError means the signed-in role does not grant the required one.
type ForbiddenError struct {
	Have Role
	Want Role
}

func (e *ForbiddenError) Error() string {
	have := string(e.Have)
	if have == "" {
		have = "no role"
	}
	return fmt.Sprintf("%s access required (signed in as %s)", e.Want, have)
}

// IsStatus reports whether err is a RequestError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Status == status
}
