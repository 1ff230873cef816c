package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prospect-gateway/internal/config"
	"prospect-gateway/internal/metrics"
)

// proxyMethods are the verbs relayed to the upstream API.
var proxyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// RegisterRoutes wires all route handlers onto the Echo instance.
// Static files, when configured, are served after the auth gate has run.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, demo *DemoHandler, m *metrics.Metrics) {
	e.GET("/api/healthz", health.Healthz)
	e.GET("/api/status", health.Status)
	e.GET("/api/session", demo.Session)

	e.Match(proxyMethods, config.ProxyMount, proxy.Handle)
	e.Match(proxyMethods, config.ProxyMount+"/*", proxy.Handle)

	e.POST(config.DemoPath, demo.Activate)
	e.DELETE(config.DemoPath, demo.Deactivate)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	if cfg.Server.StaticDir != "" {
		e.Use(echomw.StaticWithConfig(echomw.StaticConfig{
			Root:  cfg.Server.StaticDir,
			HTML5: true,
			Skipper: func(c echo.Context) bool {
				return isAPIPath(c.Request().URL.Path)
			},
		}))
	}
}

// isAPIPath keeps JSON endpoints out of the HTML5 fallback.
func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}
