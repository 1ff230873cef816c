// Package service implements the upstream forwarding logic.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"prospect-gateway/internal/client"
	"prospect-gateway/internal/config"
	"prospect-gateway/internal/model"
)

// ErrMissingCredential is returned, before any network I/O, when no upstream
// credential is configured. The proxy never forwards unauthenticated.
var ErrMissingCredential = errors.New("upstream credential not configured: set ADMIN_AUTH or auth.credential")

// strippedRequestHeaders are recomputed by the outbound stack or would let
// the upstream answer from a cache.
var strippedRequestHeaders = []string{
	"Host",
	"Content-Length",
	// Left to the transport so it can decode the body it relays.
	"Accept-Encoding",
	"If-None-Match",
	"If-Modified-Since",
}

// strippedResponseHeaders describe framing the local server redoes.
var strippedResponseHeaders = []string{
	"Content-Encoding",
	"Transfer-Encoding",
}

// ProxyService forwards browser API calls to the upstream, adding the
// server-held credential.
type ProxyService struct {
	client     *client.UpstreamClient
	logger     *slog.Logger
	baseURL    string
	authHeader string // empty when no credential is configured
}

// NewProxyService creates a ProxyService. The upstream base URL and
// credential are read once here and never change afterwards.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	s := &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		baseURL: NormalizeBaseURL(cfg.Upstream.BaseURL),
	}
	if cfg.Auth.HasCredential() {
		s.authHeader = BasicAuth(cfg.Auth.Credential)
	}
	return s
}

// NormalizeBaseURL strips exactly one trailing slash.
func NormalizeBaseURL(raw string) string {
	return strings.TrimSuffix(raw, "/")
}

// BasicAuth encodes a user:password credential as an Authorization value.
func BasicAuth(credential string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credential))
}

// BuildTarget joins base, the path segments and the raw query. The query is
// appended verbatim so parameter order and encoding survive untouched.
func BuildTarget(base string, segments []string, rawQuery string) string {
	target := base + "/" + strings.Join(segments, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// SplitSegments splits the escaped path below the mount into segments,
// dropping empty ones.
func SplitSegments(escapedPath string) []string {
	var segments []string
	for _, s := range strings.Split(escapedPath, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// BaseURL returns the normalized upstream base URL.
func (s *ProxyService) BaseURL() string {
	return s.baseURL
}

// Forward sends a ProxyRequest to the upstream API and returns the response.
// The caller is responsible for closing the response body. Forward does not
// retry; some forwarded methods are not idempotent.
func (s *ProxyService) Forward(ctx context.Context, pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if s.authHeader == "" {
		return nil, ErrMissingCredential
	}

	target := BuildTarget(s.baseURL, pr.Segments, pr.RawQuery)
	header := s.prepareRequestHeaders(pr.Header)

	var body io.Reader
	if HasBody(pr.Method) {
		body = strings.NewReader(pr.Body)
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"segments", len(pr.Segments),
	)

	resp, err := s.client.DoStream(ctx, pr.Method, target, header, body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = s.prepareResponseHeaders(resp.Header)
	return resp, nil
}

// HasBody reports whether a request body is forwarded for method.
func HasBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

func (s *ProxyService) prepareRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, key := range strippedRequestHeaders {
		dst.Del(key)
	}
	dst.Set("Authorization", s.authHeader)
	dst.Set("Cache-Control", "no-store")
	dst.Set("Pragma", "no-cache")
	return dst
}

func (s *ProxyService) prepareResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, key := range strippedResponseHeaders {
		dst.Del(key)
	}
	return dst
}
