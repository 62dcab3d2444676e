package client

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladiibine/httpd/errors"
	"github.com/vladiibine/httpd/transport"
)

var (
	headerSeparator  = []byte("\r\n\r\n")
	contentLengthKey = []byte("Content-Length:")
)

// Http1Protocol performs one HTTP/1.1 exchange over a transport. The server
// closes every connection after its response, so a protocol is single use.
type Http1Protocol struct {
	transport     transport.Transport
	buffer        []byte
	headerSize    int
	contentLength int
}

// NewHttp1Protocol creates a new HTTP/1.1 protocol handler
func NewHttp1Protocol(t transport.Transport) *Http1Protocol {
	return &Http1Protocol{
		transport:     t,
		buffer:        make([]byte, 0, 1024),
		contentLength: -1,
	}
}

// buildRequest formats an HTTP request into the internal buffer
func (p *Http1Protocol) buildRequest(req *HttpRequest) {
	p.buffer = p.buffer[:0]

	method := req.Method
	if method == "" {
		method = "GET"
	}
	p.buffer = append(p.buffer, fmt.Sprintf("%s %s HTTP/1.1\r\n", method, req.Path)...)

	for _, header := range req.Headers {
		p.buffer = append(p.buffer, fmt.Sprintf("%s: %s\r\n", header.Key, header.Value)...)
	}

	p.buffer = append(p.buffer, "\r\n"...)
	p.buffer = append(p.buffer, req.Body...)
}

// readFullResponse reads the complete HTTP response into the buffer
func (p *Http1Protocol) readFullResponse() error {
	p.buffer = p.buffer[:0]
	p.headerSize = 0
	p.contentLength = -1

	readBuf := make([]byte, 1024)

	for {
		n, err := p.transport.Read(readBuf)
		p.buffer = append(p.buffer, readBuf[:n]...)
		if err != nil {
			if errors.IsTransport(err, errors.TransportErrorConnectionClosed) {
				p.locateHeaders()
				if p.contentLength >= 0 && len(p.buffer) < p.headerSize+p.contentLength {
					return errors.NewProtocolError(
						errors.ProtocolErrorIncompleteResponse,
						"connection closed before complete response received",
					)
				}
				break
			}
			return err
		}

		p.locateHeaders()

		if p.contentLength >= 0 && len(p.buffer) >= p.headerSize+p.contentLength {
			break
		}
	}

	if p.headerSize == 0 {
		return errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			"failed to parse HTTP response headers",
		)
	}

	return nil
}

// locateHeaders finds the header separator once it has arrived
func (p *Http1Protocol) locateHeaders() {
	if p.headerSize != 0 {
		return
	}
	if pos := bytes.Index(p.buffer, headerSeparator); pos >= 0 {
		p.headerSize = pos + len(headerSeparator)
		p.contentLength = parseContentLength(p.buffer[:p.headerSize])
	}
}

// parseContentLength extracts Content-Length from headers
func parseContentLength(headersView []byte) int {
	lines := bytes.Split(headersView, []byte("\n"))
	for _, line := range lines[1:] { // Skip status line
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			break
		}

		if bytes.HasPrefix(bytes.ToLower(line), bytes.ToLower(contentLengthKey)) {
			parts := bytes.SplitN(line, []byte(":"), 2)
			if len(parts) == 2 {
				valueStr := strings.TrimSpace(string(parts[1]))
				if length, err := strconv.Atoi(valueStr); err == nil {
					return length
				}
			}
		}
	}
	return -1
}

// ParseResponse parses a complete serialized response
func ParseResponse(data []byte) (*HttpResponse, error) {
	pos := bytes.Index(data, headerSeparator)
	if pos < 0 {
		return nil, errors.NewProtocolError(errors.ProtocolErrorInvalidStatusLine, "no headers found")
	}
	headerSize := pos + len(headerSeparator)
	contentLength := parseContentLength(data[:headerSize])
	if contentLength >= 0 && len(data) < headerSize+contentLength {
		return nil, errors.NewProtocolError(errors.ProtocolErrorIncompleteResponse, "short body")
	}
	return parseResponse(data, headerSize, contentLength)
}

// parseResponse parses the status line, headers and body out of data
func parseResponse(data []byte, headerSize, contentLength int) (*HttpResponse, error) {
	headersBlock := data[:headerSize-len(headerSeparator)]

	// Split into status line and rest of headers
	parts := bytes.SplitN(headersBlock, []byte("\n"), 2)
	statusLine := bytes.TrimSuffix(parts[0], []byte("\r"))

	// Parse status line: "HTTP/1.1 200 OK"
	statusParts := bytes.SplitN(statusLine, []byte(" "), 3)
	if len(statusParts) < 2 {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			"invalid status line format",
		)
	}

	statusCode, err := strconv.Atoi(string(statusParts[1]))
	if err != nil {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status code: %s", statusParts[1]),
		)
	}

	statusMessage := ""
	if len(statusParts) >= 3 {
		statusMessage = string(statusParts[2])
	}

	var headers []HttpHeader
	if len(parts) > 1 {
		for _, line := range bytes.Split(parts[1], []byte("\n")) {
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(line) == 0 {
				break
			}

			headerParts := bytes.SplitN(line, []byte(":"), 2)
			if len(headerParts) == 2 {
				headers = append(headers, HttpHeader{
					Key:   string(headerParts[0]),
					Value: strings.TrimSpace(string(headerParts[1])),
				})
			}
		}
	}

	var body []byte
	if contentLength >= 0 {
		body = data[headerSize : headerSize+contentLength]
	} else {
		body = data[headerSize:]
	}

	return &HttpResponse{
		StatusCode:    statusCode,
		StatusMessage: statusMessage,
		Headers:       headers,
		Body:          bytes.Clone(body),
		ContentLength: contentLength,
	}, nil
}

// PerformRequest writes req and reads the response until the server closes
// the connection or Content-Length bytes have arrived
func (p *Http1Protocol) PerformRequest(req *HttpRequest) (*HttpResponse, error) {
	p.buildRequest(req)

	if _, err := p.transport.Write(p.buffer); err != nil {
		return nil, err
	}

	if err := p.readFullResponse(); err != nil {
		return nil, err
	}

	return parseResponse(p.buffer, p.headerSize, p.contentLength)
}
