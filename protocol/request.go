package protocol

import (
	"net/url"

	"github.com/rs/xid"
)

// Request is a parsed HTTP/1.1 request. It is not modified after the parser
// returns it.
type Request struct {
	Method      string
	Path        string
	RawQuery    string
	HTTPVersion string
	Header      Header
	Body        []byte

	// Set by the worker that owns the connection
	ID         xid.ID
	RemoteAddr string
}

// ContentLength returns the body length
func (r *Request) ContentLength() int {
	return len(r.Body)
}

// Query decodes RawQuery. Malformed pairs are skipped.
func (r *Request) Query() map[string][]string {
	values, _ := url.ParseQuery(r.RawQuery)
	return values
}
