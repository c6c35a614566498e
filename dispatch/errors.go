package dispatch

import "fmt"

// ErrorKind is the category of a user-reported failure.
type ErrorKind string

const (
	// KindInput is a malformed command, a bad attachment or an empty name.
	KindInput ErrorKind = "input"
	// KindAuthorization is a well-formed command the issuer may not run.
	KindAuthorization ErrorKind = "authorization"
	// KindNotFound is a remove or vote target that does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindState is an internal inconsistency such as a duplicate registration.
	KindState ErrorKind = "state"
)

// Error is a recoverable failure of a single event. Message is safe to show
// to the user.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func inputError(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Cause: cause}
}

func stateError(message string, cause error) *Error {
	return &Error{Kind: KindState, Message: message, Cause: cause}
}

var errNotAuthorized = &Error{Kind: KindAuthorization, Message: "You are not authorized to use this command."}
