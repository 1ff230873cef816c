package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospect-gateway/internal/config"
)

func newDemoHandler(mode string) *DemoHandler {
	cfg := &config.Config{Auth: config.AuthConfig{Mode: mode, DemoCookie: "prospect_demo"}}
	return NewDemoHandler(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func demoCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "prospect_demo" {
			return c
		}
	}
	t.Fatal("prospect_demo cookie not set")
	return nil
}

func TestDemoHandler_ActivateOnLocalhost(t *testing.T) {
	h := newDemoHandler(config.ModeDevelopment)

	for _, host := range []string{"localhost", "localhost:3000", "127.0.0.1:3000", "LOCALHOST"} {
		t.Run(host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/demo", http.NoBody)
			req.Host = host
			rec := httptest.NewRecorder()

			require.NoError(t, h.Activate(echo.New().NewContext(req, rec)))
			assert.Equal(t, http.StatusNoContent, rec.Code)

			c := demoCookie(t, rec)
			assert.Equal(t, "1", c.Value)
			assert.Equal(t, "/", c.Path)
			assert.Equal(t, 86400, c.MaxAge)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			assert.False(t, c.Secure)
		})
	}
}

func TestDemoHandler_ActivateRejectsOtherHosts(t *testing.T) {
	h := newDemoHandler(config.ModeProduction)

	for _, host := range []string{"app.example.com", "staging.example.com:443", "", "localhost.evil.com"} {
		t.Run(host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/demo", http.NoBody)
			req.Host = host
			rec := httptest.NewRecorder()

			require.NoError(t, h.Activate(echo.New().NewContext(req, rec)))
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestDemoHandler_ActivateSecureInProduction(t *testing.T) {
	h := newDemoHandler(config.ModeProduction)

	req := httptest.NewRequest(http.MethodPost, "/api/demo", http.NoBody)
	req.Host = "localhost:3000"
	rec := httptest.NewRecorder()

	require.NoError(t, h.Activate(echo.New().NewContext(req, rec)))
	assert.True(t, demoCookie(t, rec).Secure)
}

func TestDemoHandler_Deactivate(t *testing.T) {
	h := newDemoHandler(config.ModeProduction)

	req := httptest.NewRequest(http.MethodDelete, "/api/demo", http.NoBody)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Deactivate(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c := demoCookie(t, rec)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestDemoHandler_SessionWithoutGate(t *testing.T) {
	h := newDemoHandler(config.ModeProduction)

	req := httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Session(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDemoHandler_SessionThroughGate(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		demoHosts []string
		host      string
		cookies   []*http.Cookie
		want      sessionResponse
	}{
		{
			name: "anonymous",
			mode: config.ModeProduction,
			host: "app.example.com",
			want: sessionResponse{Authenticated: false, Reason: "denied"},
		},
		{
			name:    "access cookie",
			mode:    config.ModeProduction,
			host:    "app.example.com",
			cookies: []*http.Cookie{{Name: "admin_access_token", Value: "opaque"}},
			want:    sessionResponse{Authenticated: true, Reason: "access_cookie"},
		},
		{
			name:      "demo cookie on staging",
			mode:      config.ModeProduction,
			demoHosts: []string{"staging.example.com"},
			host:      "staging.example.com",
			cookies:   []*http.Cookie{{Name: "prospect_demo", Value: "1"}},
			want:      sessionResponse{Authenticated: true, Reason: "demo", Demo: true},
		},
		{
			name:    "demo cookie on other host",
			mode:    config.ModeProduction,
			host:    "app.example.com",
			cookies: []*http.Cookie{{Name: "prospect_demo", Value: "1"}},
			want:    sessionResponse{Authenticated: false, Reason: "denied", Demo: true},
		},
		{
			name:      "stray demo cookie value",
			mode:      config.ModeProduction,
			demoHosts: []string{"staging.example.com"},
			host:      "staging.example.com",
			cookies:   []*http.Cookie{{Name: "prospect_demo", Value: "true"}},
			want:      sessionResponse{Authenticated: true, Reason: "demo", Demo: false},
		},
		{
			name: "development on localhost",
			mode: config.ModeDevelopment,
			host: "localhost:3000",
			want: sessionResponse{Authenticated: true, Reason: "dev_bypass"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newRoutedEcho(t, "http://127.0.0.1:1", func(cfg *config.Config) {
				cfg.Auth.Mode = tt.mode
				cfg.Auth.DemoHosts = tt.demoHosts
			})

			req := httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)
			req.Host = tt.host
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var got sessionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
