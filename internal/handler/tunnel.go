package handler

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"preview-proxy-go/internal/config"
	"preview-proxy-go/internal/metrics"
	"preview-proxy-go/internal/rewrite"
	"preview-proxy-go/internal/service"
)

// TunnelHandler relays WebSocket upgrades to the upstream as a raw
// bidirectional byte splice. No frame parsing happens here: the client's
// handshake is replayed against the upstream with Host and Origin rewritten,
// and after the upstream's 101 both sockets are piped into each other until
// either side closes.
type TunnelHandler struct {
	service     *service.ProxyService
	logger      *slog.Logger
	metrics     *metrics.Metrics
	dialTimeout time.Duration
}

// NewTunnelHandler creates a TunnelHandler. The metrics parameter is optional.
func NewTunnelHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *TunnelHandler {
	return &TunnelHandler{
		service:     svc,
		logger:      logger.With("component", "tunnel"),
		metrics:     m,
		dialTimeout: time.Duration(cfg.Upstream.ConnectTimeoutSeconds) * time.Second,
	}
}

// Serve hijacks the client connection and splices it to the upstream. Any
// upstream failure before or during the handshake destroys the client socket
// immediately; a partial handshake is never sent.
func (h *TunnelHandler) Serve(c echo.Context) error {
	req := c.Request()

	clientConn, clientBuf, err := c.Response().Hijack()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "connection hijacking not supported")
	}
	c.Response().Committed = true

	// The server's per-request deadlines stay armed on the raw socket after
	// a hijack; a tunnel lives for the whole preview session.
	_ = clientConn.SetDeadline(time.Time{})

	target, err := h.service.TargetURL(req.URL.RequestURI())
	if err != nil {
		h.logger.Error("tunnel target", "err", err, "uri", req.URL.RequestURI())
		_, _ = clientConn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		_ = clientConn.Close()
		return nil
	}

	upstream, err := h.dial(target)
	if err != nil {
		h.logger.Error("tunnel dial", "err", err, "target", target.String())
		_ = clientConn.Close()
		return nil
	}

	if err := h.handshake(clientConn, clientBuf, upstream, req, target); err != nil {
		h.logger.Error("tunnel handshake", "err", err, "target", target.String())
		_ = upstream.Close()
		_ = clientConn.Close()
		return nil
	}

	h.logger.Debug("tunnel established", "target", target.String())
	if h.metrics != nil {
		h.metrics.TunnelsTotal.Inc()
		h.metrics.TunnelsActive.Inc()
		defer h.metrics.TunnelsActive.Dec()
	}

	// Two directional copies; when either side closes, both sockets are torn
	// down, which unblocks the opposite copy.
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, clientConn)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(clientConn, upstream)
		done <- struct{}{}
	}()
	<-done
	_ = clientConn.Close()
	_ = upstream.Close()
	<-done

	return nil
}

// dial opens the upgrade-capable transport for the target scheme.
func (h *TunnelHandler) dial(target *url.URL) (net.Conn, error) {
	port := target.Port()
	if port == "" {
		if target.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	addr := net.JoinHostPort(target.Hostname(), port)

	d := &net.Dialer{Timeout: h.dialTimeout}
	if target.Scheme == "https" {
		return tls.DialWithDialer(d, "tcp", addr, nil)
	}
	return d.Dial("tcp", addr)
}

// handshake replays the client's upgrade request against the upstream and,
// on a 101, relays the upstream's status line and headers verbatim to the
// client. Bytes either side sent ahead of the handshake are flushed through
// before the splice starts.
func (h *TunnelHandler) handshake(clientConn net.Conn, clientBuf *bufio.ReadWriter, upstream net.Conn, req *http.Request, target *url.URL) error {
	var out bytes.Buffer
	fmt.Fprintf(&out, "%s %s HTTP/1.1\r\n", req.Method, target.RequestURI())
	fmt.Fprintf(&out, "Host: %s\r\n", target.Host)
	if err := rewrite.TunnelHeaders(req.Header, h.service.Origin()).Write(&out); err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}
	out.WriteString("\r\n")
	if _, err := upstream.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}

	// Head bytes the server already buffered from the client belong upstream.
	if n := clientBuf.Reader.Buffered(); n > 0 {
		head, err := clientBuf.Reader.Peek(n)
		if err != nil {
			return fmt.Errorf("drain client buffer: %w", err)
		}
		if _, err := upstream.Write(head); err != nil {
			return fmt.Errorf("forward client head: %w", err)
		}
		if _, err := clientBuf.Reader.Discard(n); err != nil {
			return fmt.Errorf("drain client buffer: %w", err)
		}
	}

	br := bufio.NewReader(upstream)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return fmt.Errorf("read upstream handshake: %w", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		_ = resp.Body.Close()
		return fmt.Errorf("upstream refused upgrade: %s", resp.Status)
	}

	out.Reset()
	out.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	if err := resp.Header.Write(&out); err != nil {
		return fmt.Errorf("encode upstream handshake: %w", err)
	}
	out.WriteString("\r\n")
	if _, err := clientConn.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write client handshake: %w", err)
	}

	// Frames the upstream sent right behind its 101 go to the client now;
	// the splice reads the raw socket from here on.
	if n := br.Buffered(); n > 0 {
		head, err := br.Peek(n)
		if err != nil {
			return fmt.Errorf("drain upstream buffer: %w", err)
		}
		if _, err := clientConn.Write(head); err != nil {
			return fmt.Errorf("forward upstream head: %w", err)
		}
		if _, err := br.Discard(n); err != nil {
			return fmt.Errorf("drain upstream buffer: %w", err)
		}
	}

	return nil
}
