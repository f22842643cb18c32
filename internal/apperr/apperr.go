package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so the HTTP boundary can map it to a status code
type Kind string

const (
	InvalidPayload  Kind = "InvalidPayload"
	ConfigMissing   Kind = "ConfigMissing"
	UpstreamError   Kind = "UpstreamError"
	UnparsableReply Kind = "UnparsableReply"
	WebhookError    Kind = "WebhookError"
)

// Error is an application error carrying its kind and, where relevant,
// the upstream status code and the raw text that failed to parse.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Raw     string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New returns an error of the given kind
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Invalid is shorthand for an InvalidPayload error
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: InvalidPayload, Message: fmt.Sprintf(format, args...)}
}

// Upstream records a failed call to the extraction service.
// status is 0 for transport-level failures.
func Upstream(status int, body string, cause error) *Error {
	msg := "extraction service request failed"
	if status != 0 {
		msg = "extraction service returned an error"
	}
	return &Error{Kind: UpstreamError, Message: msg, Status: status, Raw: body, Cause: cause}
}

// Unparsable records a model reply with no recognizable JSON object
func Unparsable(raw string, cause error) *Error {
	return &Error{Kind: UnparsableReply, Message: "model reply did not contain a JSON object", Raw: raw, Cause: cause}
}

// Missing records absent configuration
func Missing(name string) *Error {
	return &Error{Kind: ConfigMissing, Message: name + " is required"}
}

// As returns the *Error in err's chain, if any
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err is an *Error of the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps err to the status code returned to the original caller
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidPayload:
		return http.StatusBadRequest
	case WebhookError:
		// dispatch failures are reported alongside a successful extraction
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
