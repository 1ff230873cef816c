package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"prospect-gateway/internal/config"
	"prospect-gateway/internal/model"
	"prospect-gateway/internal/service"
)

var (
	// basicAuthPattern matches Basic-Auth values that may surface in wrapped errors.
	basicAuthPattern = regexp.MustCompile(`(?i)(basic\s+)[A-Za-z0-9+/=]+`)
	// userinfoPattern matches user:password@ in URLs embedded in error messages.
	userinfoPattern = regexp.MustCompile(`(://)[^/@\s"]+@`)
)

// ProxyHandler relays browser API calls to the upstream API.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request below the proxy mount and streams the
// upstream response back with its status and headers.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr, err := h.buildRequest(req)
	if err != nil {
		return h.mapError(c, err)
	}

	resp, err := h.service.Forward(req.Context(), pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.logger.Debug("upstream responded",
		"method", pr.Method,
		"status", resp.Status,
	)

	// Upstream values replace gateway defaults for the same key.
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is sent a mid-stream failure can only truncate the
	// body, so it is logged rather than returned.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", req.URL.Path,
		)
	}

	return nil
}

// buildRequest captures the trailing path, raw query and text body.
func (h *ProxyHandler) buildRequest(req *http.Request) (*model.ProxyRequest, error) {
	pr := &model.ProxyRequest{
		Method:   req.Method,
		Segments: service.SplitSegments(strings.TrimPrefix(req.URL.EscapedPath(), config.ProxyMount)),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
	}

	if service.HasBody(req.Method) && req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		pr.Body = string(body)
	}
	return pr, nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrMissingCredential) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "gateway misconfigured: upstream credential missing",
		})
	}

	// Body reads can fail with echo's own errors, e.g. the body limit.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(he.Code, map[string]string{
			"error": http.StatusText(he.Code),
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// sanitizeError redacts credentials from error messages before logging.
func sanitizeError(err error) string {
	msg := basicAuthPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
	return userinfoPattern.ReplaceAllString(msg, "${1}[REDACTED]@")
}
