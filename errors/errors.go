package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorInvalidArgument
)

// TransportError represents connection-level failures. Every TransportError
// is a ConnectionError: it ends the current connection and nothing else.
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorTimeout
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
	TransportErrorSocketAcceptFailure
	TransportErrorBindFailure
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorSocketReadFailure:
		return "socket read failed"
	case TransportErrorSocketWriteFailure:
		return "socket write failed"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorTimeout:
		return "idle timeout"
	case TransportErrorIoUringInit:
		return "io_uring init failed"
	case TransportErrorIoUringSubmit:
		return "io_uring submit failed"
	case TransportErrorSocketAcceptFailure:
		return "accept failed"
	case TransportErrorBindFailure:
		return "bind failed"
	default:
		return fmt.Sprintf("transport error %d", int(e))
	}
}

// ProtocolError represents request framing errors detected by the parser
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorMalformedRequestLine
	ProtocolErrorInvalidContentLength
	ProtocolErrorUnexpectedEOF
	ProtocolErrorTruncatedBody
	ProtocolErrorHeaderTooLarge
	ProtocolErrorBodyTooLarge
	ProtocolErrorInvalidStatusLine
	ProtocolErrorIncompleteResponse
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorMalformedRequestLine:
		return "malformed request line"
	case ProtocolErrorInvalidContentLength:
		return "invalid content length"
	case ProtocolErrorUnexpectedEOF:
		return "unexpected eof"
	case ProtocolErrorTruncatedBody:
		return "truncated body"
	case ProtocolErrorHeaderTooLarge:
		return "header too large"
	case ProtocolErrorBodyTooLarge:
		return "body too large"
	case ProtocolErrorInvalidStatusLine:
		return "invalid status line"
	case ProtocolErrorIncompleteResponse:
		return "incomplete response"
	default:
		return fmt.Sprintf("protocol error %d", int(e))
	}
}

// HttpError is the main error type for the server
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("Transport error (%s)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("Protocol error (%s)", e.ProtocolErr)
	case ErrorInvalidArgument:
		typeStr = "Invalid argument"
	default:
		typeStr = "Unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// IsProtocol reports whether err carries the given framing error.
func IsProtocol(err error, code ProtocolError) bool {
	var he *HttpError
	return stderrors.As(err, &he) && he.Type == ErrorProtocol && he.ProtocolErr == code
}

// IsTransport reports whether err carries the given transport error.
func IsTransport(err error, code TransportError) bool {
	var he *HttpError
	return stderrors.As(err, &he) && he.Type == ErrorTransport && he.TransportErr == code
}

// IsConnectionError reports whether err is an I/O failure on a connection.
func IsConnectionError(err error) bool {
	var he *HttpError
	return stderrors.As(err, &he) && he.Type == ErrorTransport
}

// ProtocolCode returns the framing error carried by err, if any.
func ProtocolCode(err error) (ProtocolError, bool) {
	var he *HttpError
	if stderrors.As(err, &he) && he.Type == ErrorProtocol {
		return he.ProtocolErr, true
	}
	return ProtocolErrorNone, false
}
