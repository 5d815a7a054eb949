// Package dasherr provides structured error types for the dashboard backend.
//
// Every upstream client translates the transport failures it understands into
// an *Error with a Kind, the operation that failed and any resource
// identifiers. Handlers map Kinds to HTTP status codes; raw upstream bodies
// never travel past the details map.
package dasherr

import (
	"errors"
	"fmt"
)

// Kind classifies a dashboard error.
type Kind string

const (
	// KindNotAuthenticated means no usable credential is configured.
	KindNotAuthenticated Kind = "not_authenticated"
	// KindAuth means a credential exchange was rejected by the provider.
	KindAuth Kind = "auth"
	// KindUpstreamAPI means an authenticated call was rejected by the provider.
	KindUpstreamAPI Kind = "upstream_api"
	// KindNetwork means a transport-level failure (timeout, DNS, refused).
	KindNetwork Kind = "network"
	// KindConnectionTimeout means the TV control channel could not be opened.
	KindConnectionTimeout Kind = "connection_timeout"
	// KindAuthorizationTimeout means the TV never approved the pairing request.
	KindAuthorizationTimeout Kind = "authorization_timeout"
	// KindValidation means a malformed upstream payload.
	KindValidation Kind = "validation"
	// KindConfig means invalid or missing configuration.
	KindConfig Kind = "config"
)

// Error is a classified error from a dashboard component.
type Error struct {
	Kind       Kind
	Service    string // "spotify", "tv", "weather", "phone"
	Op         string // operation name, e.g. "play_playlist"
	StatusCode int    // upstream HTTP status when available, else 0
	Message    string
	Details    map[string]string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Service, e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %s", e.Service, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, service, op, message string) *Error {
	return &Error{Kind: kind, Service: service, Op: op, Message: message}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, service, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Service: service, Op: op, Message: msg, Err: err}
}

// WithStatus attaches an upstream HTTP status code.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithDetail attaches a key/value pair to the details map.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsConnectionFailure reports whether err is a connection-class failure
// worth retrying (as opposed to a protocol-level rejection).
func IsConnectionFailure(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindConnectionTimeout:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status code the API layer should return.
func HTTPStatus(err error) int {
	var de *Error
	if !errors.As(err, &de) {
		return 500
	}
	switch de.Kind {
	case KindNotAuthenticated, KindAuth:
		return 401
	case KindUpstreamAPI, KindValidation:
		return 502
	case KindNetwork, KindConnectionTimeout, KindAuthorizationTimeout:
		return 503
	case KindConfig:
		return 500
	default:
		return 500
	}
}
