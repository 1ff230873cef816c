package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"prospect-gateway/internal/authgate"
	"prospect-gateway/internal/metrics"
)

const sessionKey = "authgate.session"

// Session is the per-request access context handed to handlers.
type Session struct {
	Hostname string
	Reason   authgate.Reason
	// Authenticated and Grant describe the caller even on public paths.
	Authenticated bool
	Grant         authgate.Reason
	// Demo is true when the demo cookie is set to "1", so the dashboard
	// renders mock data.
	Demo bool
}

// SessionFrom returns the Session stored by RequireAuth, if any.
func SessionFrom(c echo.Context) (Session, bool) {
	s, ok := c.Get(sessionKey).(Session)
	return s, ok
}

// RequireAuth runs the access policy before any handler. Denied requests are
// redirected to loginPath with the original URI in the "next" parameter.
// The metrics parameter is optional.
func RequireAuth(policy *authgate.Policy, loginPath string, logger *slog.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	logger = logger.With("component", "auth_gate")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			d := policy.Decide(req)

			if m != nil {
				m.AuthDecisions.WithLabelValues(string(d.Reason)).Inc()
			}

			if !d.Allowed {
				logger.Debug("access denied",
					"path", req.URL.Path,
					"host", d.Hostname,
					"demo_cookie", d.DemoCookie,
				)
				return c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(req.URL.RequestURI()))
			}

			if d.Reason == authgate.ReasonDevBypass {
				logger.Warn("auth bypassed outside production",
					"path", req.URL.Path,
					"host", d.Hostname,
				)
			}

			c.Set(sessionKey, Session{
				Hostname:      d.Hostname,
				Reason:        d.Reason,
				Authenticated: d.Authenticated(),
				Grant:         d.Grant,
				Demo:          d.DemoMode,
			})
			return next(c)
		}
	}
}
