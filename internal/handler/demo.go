package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"prospect-gateway/internal/authgate"
	"prospect-gateway/internal/config"
	"prospect-gateway/internal/middleware"
)

// demoCookieMaxAge matches the lifetime the dashboard gives local demo sessions.
const demoCookieMaxAge = 24 * time.Hour

// DemoHandler switches the demo cookie on and off and reports the session.
type DemoHandler struct {
	cookieName string
	secure     bool
	logger     *slog.Logger
}

// NewDemoHandler creates a DemoHandler.
func NewDemoHandler(cfg *config.Config, logger *slog.Logger) *DemoHandler {
	return &DemoHandler{
		cookieName: cfg.Auth.DemoCookie,
		secure:     cfg.Auth.IsProduction(),
		logger:     logger.With("component", "demo_handler"),
	}
}

// Activate sets the demo cookie. Only loopback hosts may self-activate;
// elsewhere the cookie is issued by whoever runs the demo.
func (h *DemoHandler) Activate(c echo.Context) error {
	host := authgate.HostnameFromHost(c.Request().Host)
	if !authgate.IsLocalhostHost(host) {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "demo mode can only be activated on localhost",
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    authgate.DemoCookieValue,
		Path:     "/",
		MaxAge:   int(demoCookieMaxAge.Seconds()),
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("demo mode activated", "host", host)
	return c.NoContent(http.StatusNoContent)
}

// Deactivate clears the demo cookie.
func (h *DemoHandler) Deactivate(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Reason        string `json:"reason"`
	Demo          bool   `json:"demo"`
}

// Session reports how the gate sees the caller, so the dashboard can choose
// between live and mock data.
func (h *DemoHandler) Session(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "auth gate not installed",
		})
	}
	return c.JSON(http.StatusOK, sessionResponse{
		Authenticated: s.Authenticated,
		Reason:        string(s.Grant),
		Demo:          s.Demo,
	})
}
