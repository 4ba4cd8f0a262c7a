// Package numerrors defines the error kinds shared across the allocator,
// configuration store, and template engine, so the GraphQL and CLI
// collaborators can map a single machine-readable code onto each
// failure without inspecting error strings.
package numerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the fixed set of
// machine-readable error codes exposed at the edges of the service.
type Kind string

const (
	UnknownInstrument  Kind = "UNKNOWN_INSTRUMENT"
	InvalidTemplate    Kind = "INVALID_TEMPLATE"
	InvalidSession     Kind = "INVALID_SESSION"
	MissingFields      Kind = "MISSING_FIELDS"
	TrackerUnavailable Kind = "TRACKER_UNAVAILABLE"
	TrackerRace        Kind = "TRACKER_RACE"
	CounterUnderflow   Kind = "COUNTER_UNDERFLOW"
	Unauthorized       Kind = "UNAUTHORIZED"
	Forbidden          Kind = "FORBIDDEN"
	Internal           Kind = "INTERNAL"
)

// Error is the typed error carried across package boundaries. Role and
// Reason are only meaningful for Kind == InvalidTemplate.
type Error struct {
	Kind   Kind
	Role   string
	Reason string
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Kind == InvalidTemplate {
		return fmt.Sprintf("invalid template (role=%s): %s", e.Role, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, numerrors.Unauthorized) style checks work by
// comparing Kind when the target is itself a *Error; the target's
// message and cause are not compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Extensions exposes Kind as the GraphQL error's extensions.code when a
// resolver returns this error.
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": string(e.Kind)}
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func UnknownInstrumentErr(name string) *Error {
	return &Error{Kind: UnknownInstrument, Msg: fmt.Sprintf("unknown instrument %q", name)}
}

func InvalidTemplateErr(role, reason string) *Error {
	return &Error{Kind: InvalidTemplate, Role: role, Reason: reason}
}

func InvalidSessionErr(session string) *Error {
	return &Error{Kind: InvalidSession, Msg: fmt.Sprintf("malformed session identifier %q", session)}
}

func MissingFieldsErr(fields ...string) *Error {
	return &Error{Kind: MissingFields, Msg: fmt.Sprintf("missing required fields: %v", fields)}
}

func TrackerUnavailableErr(cause error) *Error {
	return &Error{Kind: TrackerUnavailable, Cause: cause}
}

func TrackerRaceErr(attempts int) *Error {
	return &Error{Kind: TrackerRace, Msg: fmt.Sprintf("exhausted %d tracker claim attempts", attempts)}
}

func CounterUnderflowErr(n int64) *Error {
	return &Error{Kind: CounterUnderflow, Msg: fmt.Sprintf("scan number %d is negative", n)}
}

func UnauthorizedErr() *Error {
	return &Error{Kind: Unauthorized, Msg: "missing or invalid bearer token"}
}

func ForbiddenErr() *Error {
	return &Error{Kind: Forbidden, Msg: "token lacks the required claim"}
}

func InternalErr(cause error) *Error {
	return &Error{Kind: Internal, Cause: cause}
}

// KindOf is a convenience wrapper around errors.As for the common case of
// extracting Kind from an arbitrary error (falling back to Internal).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
