package protocol

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladiibine/httpd/errors"
)

func TestParseRequest_Scenario(t *testing.T) {
	raw := "GET /hello?x=1 HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\n\r\nhello"

	req, err := ParseRequest(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/hello", req.Path)
	assert.Equal(t, "x=1", req.RawQuery)
	assert.Equal(t, "HTTP/1.1", req.HTTPVersion)
	assert.Equal(t, "a", req.Header.Get("Host"))
	assert.Equal(t, "5", req.Header.Get("Content-Length"))
	assert.Equal(t, 2, req.Header.Len())
	assert.Equal(t, []byte("hello"), req.Body)
	assert.Equal(t, map[string][]string{"x": {"1"}}, req.Query())
}

func TestParseRequest_NoContentLength(t *testing.T) {
	req, err := ParseRequest(strings.NewReader("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "/", req.Path)
	assert.Empty(t, req.RawQuery)
	assert.Empty(t, req.Body)
	assert.Equal(t, 0, req.ContentLength())
}

func TestParseRequest_TruncatedBody(t *testing.T) {
	raw := "POST /upload HTTP/1.1\r\nContent-Length: 10\r\n\r\nabcd"

	req, err := ParseRequest(strings.NewReader(raw))
	assert.Nil(t, req)
	assert.True(t, errors.IsProtocol(err, errors.ProtocolErrorTruncatedBody), "got %v", err)
}

func TestParseRequest_BodyIsExactAndBinary(t *testing.T) {
	body := []byte("line1\r\n\r\nline2\x00\xff")
	raw := append([]byte("PUT /blob HTTP/1.1\r\nContent-Length: "+strconv.Itoa(len(body))+"\r\n\r\n"), body...)
	// trailing bytes beyond Content-Length must not be consumed into the body
	raw = append(raw, "EXTRA"...)

	// one byte per Read exercises every short-read path
	req, err := ParseRequest(iotest.OneByteReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Len(t, req.Body, len(body))
	assert.Equal(t, body, req.Body)
}

func TestParseRequest_ContentLengthAnyCase(t *testing.T) {
	for _, key := range []string{"Content-Length", "content-length", "CONTENT-LENGTH"} {
		t.Run(key, func(t *testing.T) {
			req, err := ParseRequest(strings.NewReader("POST / HTTP/1.1\r\n" + key + ": 3\r\n\r\nabc"))
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), req.Body)

			// lookup ignores case, the wire spelling is kept
			assert.Equal(t, "3", req.Header.Get("content-length"))
			assert.Equal(t, key, req.Header.Fields()[0].Key)
		})
	}
}

func TestParseRequest_MalformedRequestLine(t *testing.T) {
	for _, line := range []string{
		"GET /\r\n\r\n",
		"GET\r\n\r\n",
		"\r\n\r\n",
		"GET / HTTP/1.1 extra\r\n\r\n",
		" / HTTP/1.1\r\n\r\n",
	} {
		req, err := ParseRequest(strings.NewReader(line))
		assert.Nil(t, req, "line %q", line)
		assert.True(t, errors.IsProtocol(err, errors.ProtocolErrorMalformedRequestLine), "line %q: got %v", line, err)
	}
}

func TestParseRequest_InvalidContentLength(t *testing.T) {
	for _, value := range []string{"-1", "abc", "", "+5", "1 2", "99999999999999999999999"} {
		raw := "POST / HTTP/1.1\r\nContent-Length: " + value + "\r\n\r\n"
		req, err := ParseRequest(strings.NewReader(raw))
		assert.Nil(t, req)
		assert.True(t, errors.IsProtocol(err, errors.ProtocolErrorInvalidContentLength), "value %q: got %v", value, err)
	}
}

func TestParseRequest_UnexpectedEOF(t *testing.T) {
	for _, raw := range []string{
		"",
		"GET / HTT",
		"GET / HTTP/1.1\r\nHost: a\r\n",
	} {
		_, err := ParseRequest(strings.NewReader(raw))
		assert.True(t, errors.IsProtocol(err, errors.ProtocolErrorUnexpectedEOF), "input %q: got %v", raw, err)
	}
}

func TestParseRequest_PathAndQuerySplit(t *testing.T) {
	tests := []struct {
		target, path, query string
	}{
		{"/a/b", "/a/b", ""},
		{"/a?b=c?d", "/a", "b=c?d"},
		{"?only=query", "", "only=query"},
		{"/%20raw", "/%20raw", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		req, err := ParseRequest(strings.NewReader("GET " + tt.target + " HTTP/1.1\r\n\r\n"))
		require.NoError(t, err, "target %q", tt.target)
		assert.Equal(t, tt.path, req.Path, "target %q", tt.target)
		assert.Equal(t, tt.query, req.RawQuery, "target %q", tt.target)
	}
}

func TestParseRequest_HeaderRules(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n" +
		"X-Dup: first\r\n" +
		"no colon here\r\n" +
		"X-Spaces:   padded value  \r\n" +
		"X-Colon: a:b:c\r\n" +
		"x-dup: second\r\n" +
		"\r\n"

	req, err := ParseRequest(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "second", req.Header.Get("X-Dup"))
	assert.Equal(t, "padded value", req.Header.Get("x-spaces"))
	assert.Equal(t, "a:b:c", req.Header.Get("X-Colon"))
	assert.Equal(t, 3, req.Header.Len())

	// duplicate keeps the first position
	assert.Equal(t, "x-dup", req.Header.Fields()[0].Key)
}

func TestParseRequest_BareLineFeed(t *testing.T) {
	req, err := ParseRequest(strings.NewReader("GET /lf HTTP/1.1\nHost: a\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "/lf", req.Path)
	assert.Equal(t, "a", req.Header.Get("Host"))
}

func TestParser_Limits(t *testing.T) {
	p := Parser{MaxHeaderBytes: 64, MaxBodyBytes: 4}

	_, err := p.Parse(strings.NewReader("GET / HTTP/1.1\r\nX-Long: " + strings.Repeat("a", 100) + "\r\n\r\n"))
	assert.True(t, errors.IsProtocol(err, errors.ProtocolErrorHeaderTooLarge), "got %v", err)

	_, err = p.Parse(strings.NewReader("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))
	assert.True(t, errors.IsProtocol(err, errors.ProtocolErrorBodyTooLarge), "got %v", err)

	req, err := p.Parse(strings.NewReader("POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\nhell"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hell"), req.Body)
}

func TestParser_LongLineWithinLimit(t *testing.T) {
	long := strings.Repeat("v", 3*readBufferSize)
	req, err := ParseRequest(strings.NewReader("GET / HTTP/1.1\r\nX-Big: " + long + "\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, long, req.Header.Get("X-Big"))
}

func TestParseRequest_ReadFailureIsConnectionError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("GET / HTTP/1.1\r\n"), iotest.ErrReader(io.ErrClosedPipe))

	_, err := ParseRequest(r)
	assert.True(t, errors.IsConnectionError(err), "got %v", err)
}

func TestParseRequest_TimeoutDuringBody(t *testing.T) {
	timeout := errors.NewTransportError(errors.TransportErrorTimeout, "idle timeout exceeded", nil)
	r := io.MultiReader(
		strings.NewReader("POST / HTTP/1.1\r\nContent-Length: 8\r\n\r\nab"),
		iotest.ErrReader(timeout),
	)

	_, err := ParseRequest(r)
	assert.True(t, errors.IsTransport(err, errors.TransportErrorTimeout), "got %v", err)
}
