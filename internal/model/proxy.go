// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
// RequestURI carries the raw path+query exactly as the client sent it.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	RequestURI string
	Header     http.Header
	Body       io.ReadCloser
}

// ProxyResponse represents the upstream response handed back to the client.
// For pass-through responses Body is the live upstream stream; for injected
// HTML responses Body is a fully materialized buffer and Header already
// reflects the rewritten length.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Injected   bool
}
