package core

import (
	"fmt"
)

// Error is the taxonomy for everything that can go wrong around a live
// session. Only permission and connection errors are ever shown to the user;
// the rest are recovered locally.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrPermissionDenied means device access was refused. Fatal to session
	// start; the user must retry.
	ErrPermissionDenied ErrorType = "permission_denied"
	// ErrDeviceUnavailable means the platform lacks the requested device.
	ErrDeviceUnavailable ErrorType = "device_unavailable"
	// ErrConnect means the remote handshake failed. Fatal; full teardown.
	ErrConnect ErrorType = "connect_error"
	// ErrTransportSend means a single chunk or tool response failed to send.
	// Recovered locally, never surfaced.
	ErrTransportSend ErrorType = "transport_send_failure"
	// ErrDecode means a corrupt inbound audio chunk. Recovered locally.
	ErrDecode ErrorType = "decode_failure"
	// ErrToolExecution means a tool collaborator failed. Converted into a
	// structured payload returned as a valid tool response.
	ErrToolExecution ErrorType = "tool_execution_failure"
)

// NewPermissionError creates a permission denied error.
func NewPermissionError(message string) *Error {
	return &Error{
		Type:    ErrPermissionDenied,
		Message: message,
	}
}

// NewDeviceUnavailableError creates a device unavailable error.
func NewDeviceUnavailableError(message string) *Error {
	return &Error{
		Type:    ErrDeviceUnavailable,
		Message: message,
	}
}

// NewConnectError creates a connect error.
func NewConnectError(message string) *Error {
	return &Error{
		Type:    ErrConnect,
		Message: message,
	}
}

// NewTransportSendError creates a transport send error.
func NewTransportSendError(message string) *Error {
	return &Error{
		Type:    ErrTransportSend,
		Message: message,
	}
}

// NewDecodeError creates a decode error.
func NewDecodeError(message string) *Error {
	return &Error{
		Type:    ErrDecode,
		Message: message,
	}
}

// NewToolExecutionError creates a tool execution error.
func NewToolExecutionError(message string) *Error {
	return &Error{
		Type:    ErrToolExecution,
		Message: message,
	}
}

// IsUserFacing reports whether err should be surfaced to the user as a
// status message. Everything else is handled silently.
func IsUserFacing(err error) bool {
	coreErr, ok := err.(*Error)
	if !ok {
		return false
	}
	switch coreErr.Type {
	case ErrPermissionDenied, ErrDeviceUnavailable, ErrConnect:
		return true
	default:
		return false
	}
}
