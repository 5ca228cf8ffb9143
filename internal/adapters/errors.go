package adapters

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/askcos/prediction-gateway/external"
	"github.com/askcos/prediction-gateway/internal/dispatch"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrUnknownAdapter     = errors.New("unknown adapter")
	ErrDuplicateAdapter   = errors.New("duplicate adapter")
	ErrUnsupportedBackend = errors.New("unsupported backend")
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrUpstreamError      = errors.New("upstream error")

	// ErrNotFound is returned by Retrieve for unknown or expired handles.
	ErrNotFound = dispatch.ErrTaskNotFound
	// ErrPending is returned by Retrieve while the task has not finished.
	ErrPending = dispatch.ErrTaskPending
)

// Error is a classified failure. Kind is one of the sentinel errors above.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func newError(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewValidationError builds an ErrValidation failure for input rejected
// outside DecodeInput (request size, query parameters).
func NewValidationError(format string, args ...any) *Error {
	return newError(ErrValidation, nil, format, args...)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PublicMessage is the message stored for failed async tasks.
func (e *Error) PublicMessage() string { return e.Message }

// StatusCode is the HTTP status reported for this error.
func (e *Error) StatusCode() int {
	return StatusCode(e.Kind)
}

// StatusCode maps any error to the HTTP status the gateway reports for it.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedBackend):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownAdapter), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPending):
		return http.StatusAccepted
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamError):
		return http.StatusBadGateway
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// ErrorResponse renders err as a NormalizedResponse with no result.
func ErrorResponse(err error) *Response {
	return &Response{StatusCode: StatusCode(err), Message: Message(err)}
}

// classifyUpstream converts a transport failure into ErrUpstreamTimeout or
// ErrUpstreamError.
func classifyUpstream(adapter string, err error) error {
	var timeoutErr *external.TimeoutError
	if errors.As(err, &timeoutErr) {
		return newError(ErrUpstreamTimeout, err, "%s did not respond within %s", adapter, timeoutErr.Timeout)
	}
	var statusErr *external.StatusError
	if errors.As(err, &statusErr) {
		return newError(ErrUpstreamError, err, "%s returned status %d", adapter, statusErr.StatusCode)
	}
	var decodeErr *external.DecodeError
	if errors.As(err, &decodeErr) {
		return newError(ErrUpstreamError, err, "%s returned a malformed body", adapter)
	}
	return newError(ErrUpstreamError, err, "%s request failed", adapter)
}
