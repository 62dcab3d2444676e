package protocol

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vladiibine/httpd/errors"
)

// Version is the protocol version the server speaks on every status line
const Version = "HTTP/1.1"

// Response is built by a handler and consumed once by a ResponseWriter.
// A zero StatusCode means 200 and an empty StatusMessage means the standard
// reason phrase. Any Content-Length in Header is replaced on the wire.
type Response struct {
	StatusCode    int
	StatusMessage string
	Header        Header
	Body          []byte
}

// NewResponse creates a response with the given status and body
func NewResponse(code int, body []byte) *Response {
	return &Response{StatusCode: code, Body: body}
}

// Text creates a text/plain response
func Text(code int, body string) *Response {
	resp := NewResponse(code, []byte(body))
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}

func (r *Response) status() (int, string) {
	code := r.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	message := r.StatusMessage
	if message == "" {
		message = http.StatusText(code)
	}
	return code, message
}

// Serialize renders resp to wire bytes. injected holds server headers which
// come first; handler headers override them on conflict.
func Serialize(resp *Response, injected Header) []byte {
	var buf bytes.Buffer
	encode(&buf, resp, injected)
	return buf.Bytes()
}

// encode writes status line, merged headers, computed Content-Length, the
// separator and the body. Errors are left to the caller's writer.
func encode(w io.Writer, resp *Response, injected Header) {
	code, message := resp.status()

	merged := injected.Clone()
	merged.Merge(resp.Header)
	merged.Del("Content-Length")

	io.WriteString(w, Version+" "+strconv.Itoa(code)+" "+message+"\r\n")
	for _, f := range merged.fields {
		io.WriteString(w, f.Key+": "+f.Value+"\r\n")
	}
	io.WriteString(w, "Content-Length: "+strconv.Itoa(len(resp.Body))+"\r\n\r\n")
	w.Write(resp.Body)
}

// ResponseWriter writes responses with the server's own headers injected.
type ResponseWriter struct {
	ServerName string
	// Now is used for the Date header; nil means time.Now
	Now func() time.Time
}

// Injected returns the headers the server adds to every response
func (rw *ResponseWriter) Injected() Header {
	now := time.Now
	if rw.Now != nil {
		now = rw.Now
	}

	var h Header
	if rw.ServerName != "" {
		h.Set("Server", rw.ServerName)
	}
	h.Set("Date", now().UTC().Format(http.TimeFormat))
	h.Set("Connection", "close")
	return h
}

// WriteResponse serializes resp to dst and flushes. A failure is always
// reported as a transport error.
func (rw *ResponseWriter) WriteResponse(dst io.Writer, resp *Response) error {
	bw := bufio.NewWriter(dst)
	encode(bw, resp, rw.Injected())

	if err := bw.Flush(); err != nil {
		if errors.IsConnectionError(err) {
			return err
		}
		return errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "flush failed", err)
	}
	return nil
}
