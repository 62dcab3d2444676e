package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vladiibine/httpd/protocol"
)

// Echo describes the request back to the client
func Echo(req *protocol.Request) (*protocol.Response, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "method: %s\n", req.Method)
	fmt.Fprintf(&b, "path: %s\n", req.Path)
	fmt.Fprintf(&b, "query: %s\n", req.RawQuery)
	fmt.Fprintf(&b, "version: %s\n", req.HTTPVersion)
	for _, f := range req.Header.Fields() {
		fmt.Fprintf(&b, "header: %s: %s\n", f.Key, f.Value)
	}
	fmt.Fprintf(&b, "body: %d bytes\n", len(req.Body))

	return protocol.Text(http.StatusOK, b.String()), nil
}
