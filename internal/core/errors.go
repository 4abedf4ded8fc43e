package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeChannelReadOnly = "channel_read_only"
	ErrCodeMessageNotFound = "message_not_found"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeForbidden       = "forbidden"
	ErrCodeUnknownCommand  = "unknown_command"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeUnauthorized    = "unauthorized"
)

var (
	ErrChannelReadOnly = coreError(ErrCodeChannelReadOnly, "channel is read-only")
	ErrMessageNotFound = coreError(ErrCodeMessageNotFound, "message not found")
	ErrBadRequest      = coreError(ErrCodeBadRequest, "bad request")
	ErrForbidden       = coreError(ErrCodeForbidden, "forbidden")
	ErrUnknownCommand  = coreError(ErrCodeUnknownCommand, "unknown command")
	ErrRateLimited     = coreError(ErrCodeRateLimited, "too many commands")
	ErrUnauthorized    = coreError(ErrCodeUnauthorized, "unauthorized")
)

var (
	// ErrProtocol marks a frame that is not a JSON envelope. It ends the session.
	ErrProtocol = errors.New("malformed frame")
	// ErrBus marks a publish or subscription failure. It ends the session.
	ErrBus = errors.New("event bus failure")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Is matches any CoreError with the same code, so detailed validation errors
// still satisfy errors.Is(err, ErrBadRequest).
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func badRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// Recoverable reports whether a session may keep running after err.
// Domain errors are logged and skipped; everything else ends the session.
func Recoverable(err error) bool {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code != ErrCodeUnauthorized
}

// ErrorCode returns the domain code of err, or "internal" for anything else.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return "internal"
}
