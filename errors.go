package capturer

import "errors"

var (
	// ErrAlreadyCapturing is returned by StartCapture when the session (or a
	// descriptor it needs) is already mid-capture.
	ErrAlreadyCapturing = errors.New("output capturing is already enabled")

	// ErrAlreadyRedirected is returned by Stream.Redirect when the descriptor
	// is already being redirected and Restore has not been called since.
	ErrAlreadyRedirected = errors.New("file descriptor is already being redirected")

	// ErrCaptureNotStarted is returned by the read accessors when no capture
	// was ever started on the session.
	ErrCaptureNotStarted = errors.New("output capturing was never started")

	// ErrUnsupportedMode is returned when a merged-mode accessor is used on a
	// split session or vice versa.
	ErrUnsupportedMode = errors.New("operation not supported in this capture mode")
)
