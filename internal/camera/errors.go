package camera

import "fmt"

// Error codes
const (
	ErrCodeNotStreaming  = "NOT_STREAMING"
	ErrCodeBusy          = "BUSY"
	ErrCodeClosed        = "CLOSED"
	ErrCodeUnknownCamera = "UNKNOWN_CAMERA"
	ErrCodeUnsupported   = "UNSUPPORTED"
)

// Error is a controller error that callers can surface to a user.
// Errors compare equal under errors.Is when their codes match.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new controller error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels for errors.Is checks.
var (
	ErrNotStreaming  = NewError(ErrCodeNotStreaming, "camera is not streaming", nil)
	ErrBusy          = NewError(ErrCodeBusy, "camera is armed for a trigger", nil)
	ErrClosed        = NewError(ErrCodeClosed, "camera is closed", nil)
	ErrUnknownCamera = NewError(ErrCodeUnknownCamera, "unknown camera", nil)
	ErrUnsupported   = NewError(ErrCodeUnsupported, "not supported by this camera", nil)
)
