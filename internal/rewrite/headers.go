// Package rewrite implements the pure header transforms and the HTML
// instrumentation injector. Every function here maps input headers or bytes
// to a fresh output value; nothing is mutated in place, which keeps the
// rewrite rules independently testable.
package rewrite

import (
	"net/http"
	"net/url"
	"strconv"
)

// hopByHopHeaders are connection-scoped headers that must not be forwarded
// end to end by a proxy.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// UpstreamHeaders builds the header set sent upstream for a plain HTTP
// request. The input headers are never modified.
//
// Origin is rewritten to the pinned origin when present. Referer keeps its
// path and query but is re-rooted at the pinned origin; an unparsable Referer
// is dropped rather than forwarded. For injectable paths Accept-Encoding is
// removed so the upstream responds with plain text, and If-None-Match is
// removed so a stale conditional request cannot produce a 304 that would skip
// injection.
func UpstreamHeaders(src http.Header, origin *url.URL, injectable bool) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}

	if dst.Get("Origin") != "" {
		dst.Set("Origin", origin.String())
	}
	if ref := dst.Get("Referer"); ref != "" {
		u, err := url.Parse(ref)
		if err != nil {
			dst.Del("Referer")
		} else {
			u.Scheme = origin.Scheme
			u.Host = origin.Host
			dst.Set("Referer", u.String())
		}
	}

	if injectable {
		dst.Del("Accept-Encoding")
		dst.Del("If-None-Match")
	}

	return dst
}

// TunnelHeaders builds the header set written during a WebSocket upgrade
// handshake. Only Origin is rewritten; Connection, Upgrade and the
// Sec-WebSocket-* family pass through verbatim so the upstream sees the
// client's exact handshake. Host is carried on the request line, not here.
func TunnelHeaders(src http.Header, origin *url.URL) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	dst.Del("Host")
	if dst.Get("Origin") != "" {
		dst.Set("Origin", origin.String())
	}
	return dst
}

// CORSHeaders returns the fixed permissive header set that lets the preview
// host embed proxied content in an iframe.
func CORSHeaders(allowOrigin string) http.Header {
	h := make(http.Header, 4)
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
	return h
}

// PassthroughHeaders builds the client-facing header set for a response whose
// body streams through unmodified: upstream headers minus hop-by-hop, plus
// the CORS set.
func PassthroughHeaders(src http.Header, allowOrigin string) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
	applyCORS(dst, allowOrigin)
	return dst
}

// InjectedHeaders builds the client-facing header set for a rewritten HTML
// body. Content-Length is recomputed, and Content-Encoding and ETag are
// dropped because the upstream's validators no longer describe the rewritten
// bytes.
func InjectedHeaders(src http.Header, bodyLen int, allowOrigin string) http.Header {
	dst := PassthroughHeaders(src, allowOrigin)
	dst.Del("Content-Encoding")
	dst.Del("Etag")
	dst.Set("Content-Length", strconv.Itoa(bodyLen))
	return dst
}

func applyCORS(dst http.Header, allowOrigin string) {
	for k, vv := range CORSHeaders(allowOrigin) {
		dst[k] = vv
	}
}
