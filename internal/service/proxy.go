// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"preview-proxy-go/internal/client"
	"preview-proxy-go/internal/config"
	"preview-proxy-go/internal/metrics"
	"preview-proxy-go/internal/model"
	"preview-proxy-go/internal/rewrite"
)

// ErrBadTarget is returned when the inbound path+query cannot be combined
// with the pinned origin into a valid upstream URL.
var ErrBadTarget = errors.New("cannot build upstream target URL")

// ErrInjection is returned when an injectable response body cannot be
// buffered and rewritten. The original bytes are never served in that case.
var ErrInjection = errors.New("instrumentation injection failed")

// ProxyService forwards requests to the single pinned upstream origin.
type ProxyService struct {
	client  *client.UpstreamClient
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	origin  *url.URL
}

// NewProxyService creates a ProxyService. The upstream origin is parsed and
// pinned here, exactly once; any path, query or fragment on the configured
// value is discarded. The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse upstream origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream origin must be http or https; got %q", cfg.Upstream.Origin)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream origin has no host; got %q", cfg.Upstream.Origin)
	}

	return &ProxyService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
		origin:  &url.URL{Scheme: u.Scheme, Host: u.Host},
	}, nil
}

// Origin returns the pinned upstream origin (scheme + host only).
func (s *ProxyService) Origin() *url.URL {
	return s.origin
}

// AllowOrigin returns the origin allowed to embed proxied content.
func (s *ProxyService) AllowOrigin() string {
	return s.cfg.Preview.AllowOrigin
}

// TargetURL maps an inbound raw path+query onto the pinned origin. The
// request's path and query are preserved exactly; no normalization beyond
// URL parsing is applied.
func (s *ProxyService) TargetURL(requestURI string) (*url.URL, error) {
	u, err := url.Parse(s.origin.String() + requestURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTarget, err)
	}
	return u, nil
}

// Forward sends a ProxyRequest to the pinned upstream and returns the
// response. The caller is responsible for closing the response body.
//
// Non-injectable paths return the live upstream stream with pass-through
// headers. Injectable paths buffer the whole body, insert the
// instrumentation snippet and return the materialized result; buffering cost
// is bounded by the size of the HTML document being previewed.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.TargetURL(pr.RequestURI)
	if err != nil {
		return nil, err
	}

	injectable := rewrite.Injectable(target.Path)
	header := rewrite.UpstreamHeaders(pr.Header, s.origin, injectable)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", target.String(),
		"injectable", injectable,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, target.String(), header, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	if !injectable {
		resp.Header = rewrite.PassthroughHeaders(resp.Header, s.cfg.Preview.AllowOrigin)
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.InjectionsTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("%w: buffer upstream body: %v", ErrInjection, err)
	}

	rewritten := rewrite.Inject(body)
	if s.metrics != nil {
		s.metrics.InjectionsTotal.WithLabelValues("ok").Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     rewrite.InjectedHeaders(resp.Header, len(rewritten), s.cfg.Preview.AllowOrigin),
		Body:       io.NopCloser(bytes.NewReader(rewritten)),
		Injected:   true,
	}, nil
}
