package router

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladiibine/httpd/protocol"
)

func request(t *testing.T, raw string) *protocol.Request {
	t.Helper()
	req, err := protocol.ParseRequest(strings.NewReader(raw))
	require.NoError(t, err)
	return req
}

func TestRouter_Dispatch(t *testing.T) {
	r := New()
	r.HandleFunc("get", "/hello", func(req *protocol.Request) (*protocol.Response, error) {
		return protocol.Text(http.StatusOK, "hi"), nil
	})
	r.HandleFunc("POST", "/hello", func(req *protocol.Request) (*protocol.Response, error) {
		return protocol.Text(http.StatusCreated, string(req.Body)), nil
	})

	resp := protocol.Outcome(r.ServeHTTP1(request(t, "GET /hello?x=1 HTTP/1.1\r\n\r\n")))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi", string(resp.Body))

	resp = protocol.Outcome(r.ServeHTTP1(request(t, "POST /hello HTTP/1.1\r\nContent-Length: 2\r\n\r\nyo")))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "yo", string(resp.Body))
}

func TestRouter_NotFound(t *testing.T) {
	r := New()
	r.NotFoundPage(func(req *protocol.Request) []byte {
		return []byte("<h1>missing " + req.Path + "</h1>")
	})

	resp, err := r.ServeHTTP1(request(t, "GET /nope HTTP/1.1\r\n\r\n"))
	assert.ErrorIs(t, err, protocol.ErrNotFound)

	out := protocol.Outcome(resp, err)
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
	assert.Equal(t, "<h1>missing /nope</h1>", string(out.Body))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := New()
	r.HandleFunc("POST", "/x", Echo)
	r.HandleFunc("DELETE", "/x", Echo)

	resp, err := r.ServeHTTP1(request(t, "GET /x HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "DELETE, POST", resp.Header.Get("Allow"))
}

func TestRouter_ServerErrorPage(t *testing.T) {
	r := New()
	r.ServerErrorPage(func(req *protocol.Request, err error) []byte {
		return []byte("failed: " + err.Error())
	})
	r.HandleFunc("GET", "/fail", func(req *protocol.Request) (*protocol.Response, error) {
		return nil, fmt.Errorf("disk full")
	})
	r.HandleFunc("GET", "/gone", func(req *protocol.Request) (*protocol.Response, error) {
		return nil, fmt.Errorf("record: %w", protocol.ErrNotFound)
	})

	out := protocol.Outcome(r.ServeHTTP1(request(t, "GET /fail HTTP/1.1\r\n\r\n")))
	assert.Equal(t, http.StatusInternalServerError, out.StatusCode)
	assert.Equal(t, "failed: disk full", string(out.Body))

	out = protocol.Outcome(r.ServeHTTP1(request(t, "GET /gone HTTP/1.1\r\n\r\n")))
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
	assert.Equal(t, "404 page not found: /gone\n", string(out.Body))
}

func TestEcho(t *testing.T) {
	resp, err := Echo(request(t, "PUT /e?q=1 HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\n\r\nabc"))
	require.NoError(t, err)

	body := string(resp.Body)
	assert.Contains(t, body, "method: PUT\n")
	assert.Contains(t, body, "query: q=1\n")
	assert.Contains(t, body, "header: Host: h\n")
	assert.Contains(t, body, "body: 3 bytes\n")
}
