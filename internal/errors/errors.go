// Package errors provides structured error types for the JDWP-MCP server.
//
// Two layers share the DebugError type: the wire protocol core reports
// connection, handshake, protocol, remote and disconnect failures, and the
// tool layer wraps those with hints that guide the caller to correct course.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Protocol errors
	CodeConnectFailed   ErrorCode = "CONNECT_FAILED"
	CodeHandshakeFailed ErrorCode = "HANDSHAKE_FAILED"
	CodeProtocolError   ErrorCode = "PROTOCOL_ERROR"
	CodeRemoteError     ErrorCode = "REMOTE_ERROR"
	CodeDisconnected    ErrorCode = "DISCONNECTED"
	CodeTimeout         ErrorCode = "TIMEOUT"

	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"

	// Launch errors
	CodeLaunchFailed ErrorCode = "LAUNCH_FAILED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Runtime errors
	CodeBreakpointFailed ErrorCode = "BREAKPOINT_FAILED"
	CodeClassNotFound    ErrorCode = "CLASS_NOT_FOUND"
	CodeThreadNotFound   ErrorCode = "THREAD_NOT_FOUND"
	CodeFrameNotFound    ErrorCode = "FRAME_NOT_FOUND"
	CodeVariableNotFound ErrorCode = "VARIABLE_NOT_FOUND"
	CodeStepFailed       ErrorCode = "STEP_FAILED"
)

// Comparison targets for errors.Is. Never returned directly.
var (
	ErrConnectFailed   = &DebugError{Code: CodeConnectFailed}
	ErrHandshakeFailed = &DebugError{Code: CodeHandshakeFailed}
	ErrProtocol        = &DebugError{Code: CodeProtocolError}
	ErrRemote          = &DebugError{Code: CodeRemoteError}
	ErrDisconnected    = &DebugError{Code: CodeDisconnected}
	ErrTimeout         = &DebugError{Code: CodeTimeout}
)

// DebugError is a structured error type that carries a machine-readable code
// and, for tool-facing errors, a hint on how to recover.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the JDWP error code, the command)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DebugError with the same code.
func (e *DebugError) Is(target error) bool {
	t, ok := target.(*DebugError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Protocol Errors ---

// ConnectFailed creates an error when the transport to the target cannot be opened
func ConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeConnectFailed,
		Message: fmt.Sprintf("failed to connect to target VM at %s: %v", address, err),
		Hint:    "Check that the JVM was started with -agentlib:jdwp=transport=dt_socket,server=y and is listening on this address.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// HandshakeFailed creates an error when the target does not echo the handshake
func HandshakeFailed(expected string, got []byte, err error) *DebugError {
	msg := fmt.Sprintf("handshake failed: expected %q, got %q", expected, got)
	if err != nil {
		msg = fmt.Sprintf("handshake failed: %v", err)
	}
	return &DebugError{
		Code:    CodeHandshakeFailed,
		Message: msg,
		Hint:    "The endpoint is not a JDWP agent, or another debugger is already attached.",
		Cause:   err,
	}
}

// ProtocolError creates an error for malformed or unrecognized wire data
func ProtocolError(format string, args ...interface{}) *DebugError {
	return &DebugError{
		Code:    CodeProtocolError,
		Message: "protocol error: " + fmt.Sprintf(format, args...),
	}
}

// RemoteError creates an error for a target-reported command failure
func RemoteError(command string, code int, name string) *DebugError {
	return &DebugError{
		Code:    CodeRemoteError,
		Message: fmt.Sprintf("%s failed: %s (%d)", command, name, code),
		Details: map[string]interface{}{
			"command":   command,
			"errorCode": code,
			"errorName": name,
		},
	}
}

// Disconnected creates an error for commands issued on, or pending at, a closed connection
func Disconnected(cause error) *DebugError {
	msg := "connection to target VM is closed"
	if cause != nil {
		msg = fmt.Sprintf("connection to target VM is closed: %v", cause)
	}
	return &DebugError{
		Code:    CodeDisconnected,
		Message: msg,
		Hint:    "The target VM exited or the session was disconnected. Use jdwp_attach or jdwp_launch to start a new session.",
		Cause:   cause,
	}
}

// Timeout creates an error for an operation that did not complete in time
func Timeout(operation string, timeoutSeconds int) *DebugError {
	return &DebugError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("%s timed out after %d seconds", operation, timeoutSeconds),
		Hint:    "The program may be running without hitting a breakpoint. Use jdwp_suspend to interrupt execution.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": timeoutSeconds,
		},
	}
}

// RemoteCode returns the JDWP error code carried by a remote error.
func RemoteCode(err error) (int, bool) {
	var de *DebugError
	if !stderrors.As(err, &de) || de.Code != CodeRemoteError {
		return 0, false
	}
	code, ok := de.Details["errorCode"].(int)
	return code, ok
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use jdwp_list_sessions to see active sessions, or use jdwp_launch / jdwp_attach to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use jdwp_disconnect to terminate an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// LaunchFailed creates an error when the target JVM could not be started
func LaunchFailed(mainClass string, err error) *DebugError {
	return &DebugError{
		Code:    CodeLaunchFailed,
		Message: fmt.Sprintf("failed to launch %s: %v", mainClass, err),
		Hint:    "Ensure java is installed (or set java.path in the configuration) and that the classpath contains the main class.",
		Cause:   err,
		Details: map[string]interface{}{
			"mainClass": mainClass,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for permission denied
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "launch":
		hint = "The server is configured to disallow launching JVMs. Ask the administrator to enable 'allowLaunch' in the configuration."
	case "attach":
		hint = "The server is configured to disallow attaching to JVMs. Ask the administrator to enable 'allowAttach' in the configuration."
	case "modify":
		hint = "Variable modification is disabled in the current server mode. The server may be in read-only mode."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Runtime Errors ---

// BreakpointFailed creates an error for breakpoint failures
func BreakpointFailed(className string, line int, reason string) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointFailed,
		Message: fmt.Sprintf("could not set breakpoint at %s:%d", className, line),
		Hint:    fmt.Sprintf("Reason: %s. Ensure the class was compiled with -g and the line contains executable code.", reason),
		Details: map[string]interface{}{
			"class":  className,
			"line":   line,
			"reason": reason,
		},
	}
}

// ClassNotFound creates an error when no loaded class matches a name
func ClassNotFound(className string) *DebugError {
	return &DebugError{
		Code:    CodeClassNotFound,
		Message: fmt.Sprintf("class '%s' is not loaded in the target VM", className),
		Hint:    "Use jdwp_classes to list loaded classes. Classes load lazily; a breakpoint on an unloaded class is deferred until it prepares.",
		Details: map[string]interface{}{
			"class": className,
		},
	}
}

// ThreadNotFound creates an error when a thread ID is not live
func ThreadNotFound(threadID uint64) *DebugError {
	return &DebugError{
		Code:    CodeThreadNotFound,
		Message: fmt.Sprintf("thread %d not found", threadID),
		Hint:    "Use jdwp_threads to list live threads.",
		Details: map[string]interface{}{
			"threadId": threadID,
		},
	}
}

// FrameNotFound creates an error for an out-of-range frame index
func FrameNotFound(threadID uint64, index int) *DebugError {
	return &DebugError{
		Code:    CodeFrameNotFound,
		Message: fmt.Sprintf("frame %d not found on thread %d", index, threadID),
		Hint:    "Frames are only available while the thread is suspended. Use jdwp_stack to list frames.",
		Details: map[string]interface{}{
			"threadId":   threadID,
			"frameIndex": index,
		},
	}
}

// VariableNotFound creates an error when a local variable is not visible in a frame
func VariableNotFound(name string) *DebugError {
	return &DebugError{
		Code:    CodeVariableNotFound,
		Message: fmt.Sprintf("variable '%s' is not visible in this frame", name),
		Hint:    "Use jdwp_variables to list visible variables. Local variable names require classes compiled with -g.",
		Details: map[string]interface{}{
			"variable": name,
		},
	}
}

// StepFailed creates an error for step failures
func StepFailed(depth string, err error) *DebugError {
	var hint string
	switch depth {
	case "over":
		hint = "Step over failed. The thread must be suspended. Use jdwp_threads to check its state."
	case "into":
		hint = "Step into failed. The thread must be suspended, and only one step request per thread may be active."
	case "out":
		hint = "Step out failed. You may already be at the top of the call stack."
	default:
		hint = "The step operation failed. Use jdwp_threads to check the thread state."
	}

	return &DebugError{
		Code:    CodeStepFailed,
		Message: fmt.Sprintf("step %s failed: %v", depth, err),
		Hint:    hint,
		Cause:   err,
		Details: map[string]interface{}{
			"depth": depth,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
