package protocol

import (
	stderrors "errors"
	"net/http"

	"github.com/vladiibine/httpd/errors"
)

// Handler produces the response for one fully parsed request.
//
// Returning ErrNotFound (possibly wrapped) yields a 404 and any other error a
// 500. A Response returned alongside the error supplies headers and body.
type Handler interface {
	ServeHTTP1(req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(req *Request) (*Response, error)

// ServeHTTP1 calls f(req)
func (f HandlerFunc) ServeHTTP1(req *Request) (*Response, error) {
	return f(req)
}

// ErrNotFound signals that no resource matches the request
var ErrNotFound = stderrors.New("not found")

// ErrServer signals a handler failure
var ErrServer = stderrors.New("server error")

// NotFound returns a 404 outcome with the given body
func NotFound(body []byte) (*Response, error) {
	return NewResponse(http.StatusNotFound, body), ErrNotFound
}

// ServerError returns a 500 outcome with the given body
func ServerError(body []byte) (*Response, error) {
	return NewResponse(http.StatusInternalServerError, body), ErrServer
}

// Outcome resolves a handler result into the response to send
func Outcome(resp *Response, err error) *Response {
	if err == nil {
		if resp == nil {
			return NewResponse(http.StatusNoContent, nil)
		}
		return resp
	}

	code := http.StatusInternalServerError
	if stderrors.Is(err, ErrNotFound) {
		code = http.StatusNotFound
	}

	out := NewResponse(code, nil)
	if resp != nil {
		out.Header = resp.Header.Clone()
		out.Body = resp.Body
	}
	return out
}

// FramingResponse returns the fixed response for a parse error. ok is false
// when the connection should be closed without a response.
func FramingResponse(err error) (resp *Response, ok bool) {
	code, isFraming := errors.ProtocolCode(err)
	if !isFraming {
		return nil, false
	}

	switch code {
	case errors.ProtocolErrorMalformedRequestLine,
		errors.ProtocolErrorInvalidContentLength,
		errors.ProtocolErrorTruncatedBody:
		return Text(http.StatusBadRequest, code.String()+"\n"), true
	case errors.ProtocolErrorHeaderTooLarge:
		return Text(http.StatusRequestHeaderFieldsTooLarge, code.String()+"\n"), true
	case errors.ProtocolErrorBodyTooLarge:
		return Text(http.StatusRequestEntityTooLarge, code.String()+"\n"), true
	}
	// UnexpectedEOF: the peer is gone or never sent a request
	return nil, false
}
