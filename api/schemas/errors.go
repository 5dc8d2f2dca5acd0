// api/schemas/errors.go
package schemas

import "errors"

// ErrorCode is a string type used for structured error reporting from the
// control loop and the workflow engine. Using a custom type ensures only
// predefined constants can appear where an ErrorCode is expected.
type ErrorCode string

const (
	// -- Budget exhaustion: always terminal for the current task --
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
	ErrCodeMaxIterations ErrorCode = "MAX_ITERATIONS"

	// -- Perception failures --
	ErrCodePerceptionFailure ErrorCode = "PERCEPTION_FAILURE"
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// -- Local validation: never retried, fatal to the current step only --
	ErrCodeOutOfBounds    ErrorCode = "COORDINATES_OUT_OF_BOUNDS"
	ErrCodeInvalidStep    ErrorCode = "INVALID_STEP"
	ErrCodeUnknownAction  ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeScreenCapture  ErrorCode = "SCREEN_CAPTURE_FAILED"
	ErrCodeApprovalDenied ErrorCode = "APPROVAL_DENIED"
)

// Sentinel errors shared across packages.
var (
	// ErrNoScreenshot is returned by an Action Port when the display cannot
	// be captured. The control loop fails fast on it.
	ErrNoScreenshot = errors.New("screen capture unavailable")

	// ErrMalformedResponse marks a perception response that parsed as text
	// but did not satisfy the expected schema. It is not retried at the
	// perception layer; the control loop logs and aborts the iteration.
	ErrMalformedResponse = errors.New("malformed perception response")
)
