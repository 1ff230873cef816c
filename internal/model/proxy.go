// Package model defines shared types for the gateway.
package model

import (
	"io"
	"net/http"
)

// ProxyRequest represents a browser request to be forwarded upstream.
// Segments are the escaped path segments below the proxy mount; RawQuery is
// the inbound query string exactly as received, without the leading '?'.
type ProxyRequest struct {
	Method   string
	Segments []string
	RawQuery string
	Header   http.Header
	Body     string
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Status     string // upstream status line text, e.g. "404 Not Found"
	Header     http.Header
	Body       io.ReadCloser
}
