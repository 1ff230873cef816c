package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"prospect-gateway/internal/authgate"
	"prospect-gateway/internal/client"
	"prospect-gateway/internal/config"
	"prospect-gateway/internal/handler"
	"prospect-gateway/internal/metrics"
	"prospect-gateway/internal/middleware"
	"prospect-gateway/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("prospect-gateway"),
		kong.Description("Auth gateway and upstream API proxy for the Prospect dashboard."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newPolicy,
			metrics.New,
			newEcho,
			client.NewUpstreamClient,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			handler.NewDemoHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, warnStartup, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newPolicy(cfg *config.Config) *authgate.Policy {
	return authgate.NewPolicy(cfg.Auth)
}

func newEcho(cfg *config.Config, logger *slog.Logger, policy *authgate.Policy, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 30 * time.Second
	// Proxied responses are streamed; the upstream client timeout bounds them.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.Path))

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequireAuth(policy, cfg.Server.LoginPath, logger, m))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

// warnStartup logs settings that leave the gateway degraded or open.
func warnStartup(cfg *config.Config, logger *slog.Logger) {
	if !cfg.Auth.HasCredential() {
		logger.Warn("upstream credential not configured; proxied calls will fail with 500",
			"hint", "set ADMIN_AUTH or auth.credential",
		)
	}
	if !cfg.Auth.IsProduction() && cfg.Auth.DisableAuth {
		logger.Warn("authentication disabled", "mode", cfg.Auth.Mode)
	}
	if cfg.Auth.IsProduction() && cfg.Auth.DisableAuth {
		logger.Info("disable_auth ignored in production mode")
	}
	if cfg.Metrics.Enabled && authgate.IsPublicPath(cfg.Metrics.Path) {
		logger.Warn("metrics endpoint is reachable without authentication; restrict it at the ingress",
			"path", cfg.Metrics.Path,
		)
	}
	logger.Info("gateway configured",
		"upstream", cfg.Upstream.BaseURL,
		"mode", cfg.Auth.Mode,
		"demo_hosts", len(cfg.Auth.DemoHosts),
		"static_dir", cfg.Server.StaticDir,
	)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "version", version)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
