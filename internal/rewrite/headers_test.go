package rewrite

import (
	"net/http"
	"net/url"
	"testing"
)

func origin(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse origin %q: %v", raw, err)
	}
	return u
}

func TestUpstreamHeaders_OriginRewritten(t *testing.T) {
	src := http.Header{"Origin": {"https://preview.example"}}

	dst := UpstreamHeaders(src, origin(t, "http://127.0.0.1:5173"), false)

	if got := dst.Get("Origin"); got != "http://127.0.0.1:5173" {
		t.Errorf("Origin = %q, want %q", got, "http://127.0.0.1:5173")
	}
}

func TestUpstreamHeaders_OriginAbsentStaysAbsent(t *testing.T) {
	dst := UpstreamHeaders(http.Header{}, origin(t, "http://127.0.0.1:5173"), false)

	if got := dst.Get("Origin"); got != "" {
		t.Errorf("Origin = %q, want empty", got)
	}
}

func TestUpstreamHeaders_RefererPreservesPathAndQuery(t *testing.T) {
	src := http.Header{"Referer": {"https://original.example/foo?x=1"}}

	dst := UpstreamHeaders(src, origin(t, "http://127.0.0.1:5173"), false)

	if got := dst.Get("Referer"); got != "http://127.0.0.1:5173/foo?x=1" {
		t.Errorf("Referer = %q, want %q", got, "http://127.0.0.1:5173/foo?x=1")
	}
}

func TestUpstreamHeaders_UnparsableRefererDropped(t *testing.T) {
	src := http.Header{"Referer": {"http://bad.example/\x7f"}}

	dst := UpstreamHeaders(src, origin(t, "http://127.0.0.1:5173"), false)

	if got := dst.Get("Referer"); got != "" {
		t.Errorf("Referer = %q, want dropped", got)
	}
}

func TestUpstreamHeaders_InjectableStripsConditionalHeaders(t *testing.T) {
	src := http.Header{
		"Accept-Encoding": {"gzip, br"},
		"If-None-Match":   {`"abc"`},
		"Accept":          {"text/html"},
	}

	dst := UpstreamHeaders(src, origin(t, "http://127.0.0.1:5173"), true)

	if got := dst.Get("Accept-Encoding"); got != "" {
		t.Errorf("Accept-Encoding = %q, want removed", got)
	}
	if got := dst.Get("If-None-Match"); got != "" {
		t.Errorf("If-None-Match = %q, want removed", got)
	}
	if got := dst.Get("Accept"); got != "text/html" {
		t.Errorf("Accept = %q, want preserved", got)
	}
}

func TestUpstreamHeaders_NonInjectableKeepsEncodingHeaders(t *testing.T) {
	src := http.Header{
		"Accept-Encoding": {"gzip"},
		"If-None-Match":   {`"abc"`},
	}

	dst := UpstreamHeaders(src, origin(t, "http://127.0.0.1:5173"), false)

	if got := dst.Get("Accept-Encoding"); got != "gzip" {
		t.Errorf("Accept-Encoding = %q, want %q", got, "gzip")
	}
	if got := dst.Get("If-None-Match"); got != `"abc"` {
		t.Errorf("If-None-Match = %q, want preserved", got)
	}
}

func TestUpstreamHeaders_HopByHopStripped(t *testing.T) {
	src := http.Header{
		"Connection":        {"keep-alive"},
		"Keep-Alive":        {"timeout=5"},
		"Transfer-Encoding": {"chunked"},
		"Upgrade":           {"h2c"},
	}

	dst := UpstreamHeaders(src, origin(t, "http://127.0.0.1:5173"), false)

	for _, key := range []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade"} {
		if got := dst.Get(key); got != "" {
			t.Errorf("%s = %q, want stripped", key, got)
		}
	}
}

func TestUpstreamHeaders_InputNotMutated(t *testing.T) {
	src := http.Header{
		"Origin":          {"https://preview.example"},
		"Accept-Encoding": {"gzip"},
	}

	UpstreamHeaders(src, origin(t, "http://127.0.0.1:5173"), true)

	if got := src.Get("Origin"); got != "https://preview.example" {
		t.Errorf("source Origin mutated to %q", got)
	}
	if got := src.Get("Accept-Encoding"); got != "gzip" {
		t.Errorf("source Accept-Encoding mutated to %q", got)
	}
}

func TestTunnelHeaders_OnlyOriginRewritten(t *testing.T) {
	src := http.Header{
		"Origin":                {"https://preview.example"},
		"Connection":            {"Upgrade"},
		"Upgrade":               {"websocket"},
		"Sec-Websocket-Key":     {"dGhlIHNhbXBsZSBub25jZQ=="},
		"Sec-Websocket-Version": {"13"},
	}

	dst := TunnelHeaders(src, origin(t, "http://127.0.0.1:5173"))

	if got := dst.Get("Origin"); got != "http://127.0.0.1:5173" {
		t.Errorf("Origin = %q, want %q", got, "http://127.0.0.1:5173")
	}
	for _, key := range []string{"Connection", "Upgrade", "Sec-Websocket-Key", "Sec-Websocket-Version"} {
		if got := dst.Get(key); got != src.Get(key) {
			t.Errorf("%s = %q, want verbatim %q", key, got, src.Get(key))
		}
	}
}

func TestCORSHeaders(t *testing.T) {
	h := CORSHeaders("https://preview.example")

	tests := []struct {
		key  string
		want string
	}{
		{"Access-Control-Allow-Origin", "https://preview.example"},
		{"Access-Control-Allow-Credentials", "true"},
		{"Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS"},
		{"Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With"},
	}
	for _, tt := range tests {
		if got := h.Get(tt.key); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestPassthroughHeaders_KeepsValidatorsAddsCORS(t *testing.T) {
	src := http.Header{
		"Etag":             {`"abc"`},
		"Content-Type":     {"application/javascript"},
		"Content-Encoding": {"gzip"},
		"Connection":       {"keep-alive"},
	}

	dst := PassthroughHeaders(src, "*")

	if got := dst.Get("Etag"); got != `"abc"` {
		t.Errorf("Etag = %q, want preserved", got)
	}
	if got := dst.Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want preserved", got)
	}
	if got := dst.Get("Connection"); got != "" {
		t.Errorf("Connection = %q, want stripped", got)
	}
	if got := dst.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
}

func TestInjectedHeaders_RewritesValidators(t *testing.T) {
	src := http.Header{
		"Etag":             {`"abc"`},
		"Content-Encoding": {"gzip"},
		"Content-Length":   {"10"},
		"Content-Type":     {"text/html"},
	}

	dst := InjectedHeaders(src, 1234, "*")

	if got := dst.Get("Etag"); got != "" {
		t.Errorf("Etag = %q, want dropped", got)
	}
	if got := dst.Get("Content-Encoding"); got != "" {
		t.Errorf("Content-Encoding = %q, want dropped", got)
	}
	if got := dst.Get("Content-Length"); got != "1234" {
		t.Errorf("Content-Length = %q, want %q", got, "1234")
	}
	if got := dst.Get("Content-Type"); got != "text/html" {
		t.Errorf("Content-Type = %q, want preserved", got)
	}
	if got := dst.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
	}
}
