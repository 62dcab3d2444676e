// Package router is a small request dispatcher for the server's handler slot.
// Routes match on exact method and path. Registration must finish before the
// server starts; lookups afterwards take no locks.
package router

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/vladiibine/httpd/protocol"
)

// Router dispatches requests to handlers by path and method
type Router struct {
	routes      map[string]map[string]protocol.Handler
	notFound    func(req *protocol.Request) []byte
	serverError func(req *protocol.Request, err error) []byte
}

// New creates a router with plain-text default error pages
func New() *Router {
	return &Router{
		routes: make(map[string]map[string]protocol.Handler),
		notFound: func(req *protocol.Request) []byte {
			return []byte(fmt.Sprintf("404 page not found: %s\n", req.Path))
		},
		serverError: func(req *protocol.Request, err error) []byte {
			return []byte("500 internal server error\n")
		},
	}
}

// Handle registers h for method and path
func (r *Router) Handle(method, path string, h protocol.Handler) {
	byMethod, ok := r.routes[path]
	if !ok {
		byMethod = make(map[string]protocol.Handler)
		r.routes[path] = byMethod
	}
	byMethod[strings.ToUpper(method)] = h
}

// HandleFunc registers f for method and path
func (r *Router) HandleFunc(method, path string, f func(req *protocol.Request) (*protocol.Response, error)) {
	r.Handle(method, path, protocol.HandlerFunc(f))
}

// NotFoundPage sets the body generator used for 404 responses
func (r *Router) NotFoundPage(f func(req *protocol.Request) []byte) {
	r.notFound = f
}

// ServerErrorPage sets the body generator used for 500 responses
func (r *Router) ServerErrorPage(f func(req *protocol.Request, err error) []byte) {
	r.serverError = f
}

// ServeHTTP1 implements protocol.Handler
func (r *Router) ServeHTTP1(req *protocol.Request) (*protocol.Response, error) {
	byMethod, ok := r.routes[req.Path]
	if !ok {
		return protocol.NotFound(r.notFound(req))
	}

	h, ok := byMethod[req.Method]
	if !ok {
		resp := protocol.Text(http.StatusMethodNotAllowed, "method not allowed\n")
		resp.Header.Set("Allow", allowed(byMethod))
		return resp, nil
	}

	resp, err := h.ServeHTTP1(req)
	if err == nil || resp != nil {
		return resp, err
	}
	if stderrors.Is(err, protocol.ErrNotFound) {
		return protocol.NewResponse(http.StatusNotFound, r.notFound(req)), err
	}
	return protocol.NewResponse(http.StatusInternalServerError, r.serverError(req, err)), err
}

func allowed(byMethod map[string]protocol.Handler) string {
	methods := make([]string, 0, len(byMethod))
	for m := range byMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
