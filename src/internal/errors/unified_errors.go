package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrShutdown is delivered to requests still pending when a session is torn down
var ErrShutdown = stderrors.New("language server session shut down")

// TransportError represents malformed framing or an abrupt close of the server's output stream.
// It ends the read loop.
type TransportError struct {
	Op    string `json:"op"`
	Cause error  `json:"cause,omitempty"`
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport error (%s): %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("transport error (%s)", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// DecodeError represents a complete frame whose payload is not valid JSON-RPC.
// Only the offending message is lost.
type DecodeError struct {
	Payload []byte `json:"-"`
	Cause   error  `json:"cause,omitempty"`
}

func (e *DecodeError) Error() string {
	payload := string(e.Payload)
	if len(payload) > 80 {
		payload = payload[:80] + "..."
	}
	return fmt.Sprintf("decode error: %v (payload: %q)", e.Cause, payload)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ProtocolError represents an error response returned by the language server
type ProtocolError struct {
	ID      string      `json:"id,omitempty"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *ProtocolError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("LSP error %d for request %s: %s", e.Code, e.ID, e.Message)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// HandlerError represents a failure inside a response continuation or a server message handler
type HandlerError struct {
	Method string      `json:"method"`
	ID     string      `json:"id,omitempty"`
	Cause  error       `json:"cause,omitempty"`
	Panic  interface{} `json:"panic,omitempty"`
}

func (e *HandlerError) Error() string {
	target := e.Method
	if e.ID != "" {
		target = fmt.Sprintf("%s (id=%s)", e.Method, e.ID)
	}
	if e.Panic != nil {
		return fmt.Sprintf("handler for %s panicked: %v", target, e.Panic)
	}
	return fmt.Sprintf("handler for %s failed: %v", target, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// Process error types
const (
	ProcessStart         = "start"
	ProcessStop          = "stop"
	ProcessCommunication = "communication"
	ProcessNotAlive      = "not_alive"
)

// ProcessError represents language server process errors
type ProcessError struct {
	Command string `json:"command"`
	Type    string `json:"type"`
	Cause   error  `json:"cause,omitempty"`
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("process error for %s (%s): %v", e.Command, e.Type, e.Cause)
	}
	return fmt.Sprintf("process error for %s (%s)", e.Command, e.Type)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a request evicted after waiting too long for its response
type TimeoutError struct {
	Operation string        `json:"operation"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Cause     error         `json:"cause,omitempty"`
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout error for %s operation (timeout: %v)", e.Operation, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return context.DeadlineExceeded
}

// Error constructors

// NewTransportError creates a transport error for the given operation
func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause}
}

// NewDecodeError creates a decode error holding a copy of the offending payload
func NewDecodeError(payload []byte, cause error) *DecodeError {
	return &DecodeError{Payload: append([]byte(nil), payload...), Cause: cause}
}

// NewProtocolError creates a protocol error from a server error response
func NewProtocolError(id string, code int, message string, data interface{}) *ProtocolError {
	return &ProtocolError{ID: id, Code: code, Message: message, Data: data}
}

// NewHandlerError creates a handler error wrapping the handler's returned error
func NewHandlerError(method, id string, cause error) *HandlerError {
	return &HandlerError{Method: method, ID: id, Cause: cause}
}

// NewHandlerPanic creates a handler error from a recovered panic value
func NewHandlerPanic(method, id string, recovered interface{}) *HandlerError {
	return &HandlerError{Method: method, ID: id, Panic: recovered}
}

// NewProcessError creates a new process error for language server operations
func NewProcessError(command, errorType string, cause error) *ProcessError {
	return &ProcessError{Command: command, Type: errorType, Cause: cause}
}

// NewTimeoutError creates a new timeout error for the specified operation
func NewTimeoutError(operation string, timeout time.Duration, cause error) *TimeoutError {
	return &TimeoutError{Operation: operation, Timeout: timeout, Cause: cause}
}

// Error classification functions

// IsTransportError checks if the error is a transport error
func IsTransportError(err error) bool {
	var target *TransportError
	return stderrors.As(err, &target)
}

// IsDecodeError checks if the error is a decode error
func IsDecodeError(err error) bool {
	var target *DecodeError
	return stderrors.As(err, &target)
}

// IsProtocolError checks if the error is a server-returned error
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return stderrors.As(err, &target)
}

// IsHandlerError checks if the error came from a continuation or handler
func IsHandlerError(err error) bool {
	var target *HandlerError
	return stderrors.As(err, &target)
}

// IsProcessError checks if the error is a process-related error
func IsProcessError(err error) bool {
	var target *ProcessError
	return stderrors.As(err, &target)
}

// IsNotAliveError checks if the error reports an operation attempted without a running server
func IsNotAliveError(err error) bool {
	var target *ProcessError
	return stderrors.As(err, &target) && target.Type == ProcessNotAlive
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var target *TimeoutError
	return stderrors.As(err, &target) || stderrors.Is(err, context.DeadlineExceeded)
}

// Error wrapping utilities

// WrapWithContext wraps an error with operation context
func WrapWithContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// GetErrorCategory returns a category string for error classification
func GetErrorCategory(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsTransportError(err):
		return "transport"
	case IsDecodeError(err):
		return "decode"
	case IsProtocolError(err):
		return "protocol"
	case IsHandlerError(err):
		return "handler"
	case IsProcessError(err):
		return "process"
	case IsTimeoutError(err):
		return "timeout"
	default:
		return "general"
	}
}
