package client

import "strings"

// HttpHeader represents an HTTP header key-value pair
type HttpHeader struct {
	Key   string
	Value string
}

// HttpRequest represents an HTTP request
type HttpRequest struct {
	Method  string
	Path    string
	Headers []HttpHeader
	Body    []byte
}

// HttpResponse represents an HTTP response
type HttpResponse struct {
	StatusCode    int
	StatusMessage string
	Headers       []HttpHeader
	Body          []byte
	ContentLength int
}

// Header returns the first value for key, compared case-insensitively
func (r *HttpResponse) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}
