package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/vladiibine/httpd/errors"
	"github.com/vladiibine/httpd/protocol"
)

// setupTestServer creates a one-shot server that hands the accepted
// connection to handler and closes it afterwards
func setupTestServer(t *testing.T, handler func(net.Conn)) (string, func()) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	cleanup := func() {
		listener.Close()
	}

	return listener.Addr().String(), cleanup
}

// readRequest consumes one request so the client is not reset
func readRequest(t *testing.T, conn net.Conn) *protocol.Request {
	req, err := protocol.ParseRequest(bufio.NewReader(conn))
	if err != nil {
		t.Errorf("Server failed to parse request: %v", err)
		return nil
	}
	return req
}

func TestHttpClient_Get(t *testing.T) {
	responseBody := "Hello, World!"
	response := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(responseBody), responseBody)

	addr, cleanup := setupTestServer(t, func(conn net.Conn) {
		readRequest(t, conn)
		conn.Write([]byte(response))
	})
	defer cleanup()

	client := NewHttpClient("tcp", addr, time.Second)

	resp, err := client.Get(context.Background(), "/test")
	if err != nil {
		t.Fatalf("GET request failed: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status code 200, got %d", resp.StatusCode)
	}

	if string(resp.Body) != responseBody {
		t.Errorf("Expected body %q, got %q", responseBody, string(resp.Body))
	}
}

func TestHttpClient_Post(t *testing.T) {
	responseBody := "Created"
	response := fmt.Sprintf("HTTP/1.1 201 Created\r\nContent-Length: %d\r\n\r\n%s", len(responseBody), responseBody)
	received := make(chan string, 1)

	addr, cleanup := setupTestServer(t, func(conn net.Conn) {
		if req := readRequest(t, conn); req != nil {
			received <- string(req.Body)
		}
		conn.Write([]byte(response))
	})
	defer cleanup()

	client := NewHttpClient("tcp", addr, time.Second)

	resp, err := client.Post(context.Background(), "/create", []byte("test data"))
	if err != nil {
		t.Fatalf("POST request failed: %v", err)
	}

	if resp.StatusCode != 201 {
		t.Errorf("Expected status code 201, got %d", resp.StatusCode)
	}

	if resp.StatusMessage != "Created" {
		t.Errorf("Expected status message %q, got %q", "Created", resp.StatusMessage)
	}

	select {
	case body := <-received:
		if body != "test data" {
			t.Errorf("Expected server to receive %q, got %q", "test data", body)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for request body")
	}
}

func TestHttpClient_ReadsUntilClose_WithoutContentLength(t *testing.T) {
	addr, cleanup := setupTestServer(t, func(conn net.Conn) {
		readRequest(t, conn)
		io.WriteString(conn, "HTTP/1.1 200 OK\r\nX-Mode: close\r\n\r\nstreamed body")
	})
	defer cleanup()

	resp, err := NewHttpClient("tcp", addr, time.Second).Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("GET request failed: %v", err)
	}

	if string(resp.Body) != "streamed body" {
		t.Errorf("Expected body %q, got %q", "streamed body", string(resp.Body))
	}

	if resp.Header("x-mode") != "close" {
		t.Errorf("Expected X-Mode header, got %q", resp.Header("x-mode"))
	}
}

func TestHttpClient_IncompleteResponse_ReturnsError(t *testing.T) {
	addr, cleanup := setupTestServer(t, func(conn net.Conn) {
		readRequest(t, conn)
		io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort")
	})
	defer cleanup()

	_, err := NewHttpClient("tcp", addr, time.Second).Get(context.Background(), "/")
	if !errors.IsProtocol(err, errors.ProtocolErrorIncompleteResponse) {
		t.Errorf("Expected IncompleteResponse, got %v", err)
	}
}

func TestHttpClient_BodyWithoutContentLength_ReturnsError(t *testing.T) {
	client := NewHttpClient("tcp", "127.0.0.1:1", time.Second)

	req := &HttpRequest{
		Method: "POST",
		Path:   "/test",
		Body:   []byte("test body"),
		Headers: []HttpHeader{
			{Key: "Host", Value: "localhost"},
		},
	}

	_, err := client.Do(context.Background(), req)
	if err == nil {
		t.Error("Expected error for request body without Content-Length, got nil")
	}
}

func TestParseResponse_RoundTrip(t *testing.T) {
	resp := protocol.NewResponse(418, []byte("\x00binary\r\n\r\nbody"))
	resp.StatusMessage = "I'm a teapot"
	resp.Header.Set("X-Custom", "one")
	resp.Header.Set("Content-Length", "999")

	var injected protocol.Header
	injected.Set("Server", "httpd")
	injected.Set("Connection", "close")

	parsed, err := ParseResponse(protocol.Serialize(resp, injected))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	if parsed.StatusCode != 418 || parsed.StatusMessage != "I'm a teapot" {
		t.Errorf("Unexpected status %d %q", parsed.StatusCode, parsed.StatusMessage)
	}

	if string(parsed.Body) != string(resp.Body) {
		t.Errorf("Expected body %q, got %q", resp.Body, parsed.Body)
	}

	want := map[string]string{
		"Server":         "httpd",
		"Connection":     "close",
		"X-Custom":       "one",
		"Content-Length": fmt.Sprint(len(resp.Body)),
	}
	if len(parsed.Headers) != len(want) {
		t.Fatalf("Expected %d headers, got %v", len(want), parsed.Headers)
	}
	for key, value := range want {
		if got := parsed.Header(key); got != value {
			t.Errorf("Header %s: expected %q, got %q", key, value, got)
		}
	}
}

func TestParseResponse_InvalidStatusLine(t *testing.T) {
	_, err := ParseResponse([]byte("garbage\r\n\r\n"))
	if !errors.IsProtocol(err, errors.ProtocolErrorInvalidStatusLine) {
		t.Errorf("Expected InvalidStatusLine, got %v", err)
	}
}
