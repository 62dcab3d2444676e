package protocol

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vladiibine/httpd/errors"
)

const (
	// DefaultMaxHeaderBytes bounds the request line plus all header lines
	DefaultMaxHeaderBytes = 1 << 20
	// DefaultMaxBodyBytes bounds the advertised Content-Length
	DefaultMaxBodyBytes = 10 << 20

	readBufferSize = 4096
)

// Parser reads one request from a byte stream. The zero value uses the
// default limits.
type Parser struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64
}

// ParseRequest parses a single request from r with the default limits
func ParseRequest(r io.Reader) (*Request, error) {
	var p Parser
	return p.Parse(r)
}

// Parse reads the request line, the header block and exactly Content-Length
// body bytes from r. No partial Request is ever returned with an error.
func (p *Parser) Parse(r io.Reader) (*Request, error) {
	lines := &lineReader{
		br:        bufio.NewReaderSize(r, readBufferSize),
		remaining: p.maxHeaderBytes(),
	}

	requestLine, err := lines.next()
	if err != nil {
		return nil, err
	}

	tokens := strings.Split(requestLine, " ")
	if len(tokens) != 3 || tokens[0] == "" || tokens[2] == "" {
		return nil, errors.NewProtocolError(
			errors.ProtocolErrorMalformedRequestLine,
			fmt.Sprintf("expected 3 tokens, got %d", len(tokens)),
		)
	}

	req := &Request{
		Method:      tokens[0],
		HTTPVersion: tokens[2],
	}
	req.Path, req.RawQuery, _ = strings.Cut(tokens[1], "?")

	contentLength := int64(-1)
	for {
		line, err := lines.next()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		if strings.EqualFold(key, "content-length") {
			if contentLength, err = p.parseContentLength(value); err != nil {
				return nil, err
			}
		}
		req.Header.Set(key, value)
	}

	req.Body = []byte{}
	if contentLength > 0 {
		body := make([]byte, contentLength)
		if n, err := io.ReadFull(lines.br, body); err != nil {
			if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.NewProtocolError(
					errors.ProtocolErrorTruncatedBody,
					fmt.Sprintf("got %d of %d body bytes", n, contentLength),
				)
			}
			return nil, readError(err)
		}
		req.Body = body
	}

	return req, nil
}

func (p *Parser) maxHeaderBytes() int {
	if p.MaxHeaderBytes > 0 {
		return p.MaxHeaderBytes
	}
	return DefaultMaxHeaderBytes
}

func (p *Parser) maxBodyBytes() int64 {
	if p.MaxBodyBytes > 0 {
		return p.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func (p *Parser) parseContentLength(value string) (int64, error) {
	if value == "" || strings.TrimLeft(value, "0123456789") != "" {
		return 0, errors.NewProtocolError(
			errors.ProtocolErrorInvalidContentLength,
			fmt.Sprintf("content-length %q", value),
		)
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.NewProtocolError(
			errors.ProtocolErrorInvalidContentLength,
			fmt.Sprintf("content-length %q", value),
		)
	}

	if n > p.maxBodyBytes() {
		return 0, errors.NewProtocolError(
			errors.ProtocolErrorBodyTooLarge,
			fmt.Sprintf("content-length %d exceeds %d", n, p.maxBodyBytes()),
		)
	}
	return n, nil
}

// lineReader yields header-section lines with their terminator removed.
// Every line is copied out of the bufio buffer before the next read.
type lineReader struct {
	br        *bufio.Reader
	remaining int
}

func (l *lineReader) next() (string, error) {
	var line []byte
	for {
		chunk, err := l.br.ReadSlice('\n')
		l.remaining -= len(chunk)
		if l.remaining < 0 {
			return "", errors.NewProtocolError(errors.ProtocolErrorHeaderTooLarge, "request header section too large")
		}
		line = append(line, chunk...)

		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if stderrors.Is(err, io.EOF) {
			return "", errors.NewProtocolError(
				errors.ProtocolErrorUnexpectedEOF,
				"stream ended before end of headers",
			)
		}
		return "", readError(err)
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

// readError keeps transport errors as they are and wraps anything else.
func readError(err error) error {
	if errors.IsConnectionError(err) {
		return err
	}
	return errors.NewTransportError(errors.TransportErrorSocketReadFailure, "", err)
}
