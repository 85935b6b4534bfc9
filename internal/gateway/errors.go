package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrorKind is the closed taxonomy every failure is normalized into. Errors
// surface as chunks on the stream, never as error values crossing the facade.
type ErrorKind string

const (
	// ErrKindAuth covers a missing or incomplete credential, detected before
	// any network call.
	ErrKindAuth ErrorKind = "auth_error"
	// ErrKindNetwork covers transport-level failures, including timeouts and
	// anything unexpected caught at the outer call boundary.
	ErrKindNetwork ErrorKind = "network_error"
	// ErrKindParse covers a response document that should have matched a
	// known shape but was not parseable at all.
	ErrKindParse ErrorKind = "parse_error"
	// ErrKindAPI covers a well-formed error document returned by the backend.
	ErrKindAPI ErrorKind = "api_error"
)

// Error is the normalized failure carried inside an error chunk.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// normalizeErr maps an arbitrary error into the taxonomy. Anything not
// already normalized is a transport-boundary failure.
func normalizeErr(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrKindNetwork, "request cancelled: %v", err)
	}
	return newError(ErrKindNetwork, "%v", err)
}

// vendorErrorMessage pulls a human-readable message out of a backend error
// body, trying the documented shapes before giving up.
func vendorErrorMessage(body []byte) string {
	parsed := gjson.ParseBytes(body)
	for _, path := range []string{"error.message", "message", "Message"} {
		if v := parsed.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
