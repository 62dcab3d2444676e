package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vladiibine/httpd/errors"
	"github.com/vladiibine/httpd/transport"
)

// HttpClient performs single-request exchanges against an httpd server.
// Each call dials a fresh connection since the server closes after one response.
type HttpClient struct {
	network string
	address string
	timeout time.Duration
}

// NewHttpClient creates a client for the server at address
func NewHttpClient(network, address string, timeout time.Duration) *HttpClient {
	if network == "" {
		network = "tcp"
	}
	return &HttpClient{
		network: network,
		address: address,
		timeout: timeout,
	}
}

// Do sends req and returns the parsed response
func (c *HttpClient) Do(ctx context.Context, req *HttpRequest) (*HttpResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorConnectionClosed, fmt.Sprintf("failed to connect to %s", c.address), err)
	}

	trans := transport.NewNetTransport(conn, c.timeout)
	defer trans.Close()

	return NewHttp1Protocol(trans).PerformRequest(req)
}

// Get performs a GET request
func (c *HttpClient) Get(ctx context.Context, path string) (*HttpResponse, error) {
	return c.Do(ctx, &HttpRequest{
		Method:  "GET",
		Path:    path,
		Headers: []HttpHeader{{Key: "Host", Value: c.address}},
	})
}

// Post performs a POST request with a computed Content-Length
func (c *HttpClient) Post(ctx context.Context, path string, body []byte) (*HttpResponse, error) {
	return c.Do(ctx, &HttpRequest{
		Method: "POST",
		Path:   path,
		Headers: []HttpHeader{
			{Key: "Host", Value: c.address},
			{Key: "Content-Length", Value: strconv.Itoa(len(body))},
		},
		Body: body,
	})
}

// validateRequest checks that a request with a body declares its length
func validateRequest(req *HttpRequest) error {
	if len(req.Body) == 0 {
		return nil
	}

	for _, header := range req.Headers {
		if strings.EqualFold(header.Key, "Content-Length") {
			return nil
		}
	}

	return errors.NewInvalidArgumentError("request with a body must have a Content-Length header")
}
