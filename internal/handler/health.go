package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"prospect-gateway/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status               string `json:"status"`
	Version              string `json:"version"`
	Mode                 string `json:"mode"`
	CredentialConfigured bool   `json:"credential_configured"`
}

// Status reports gateway settings. The route is public, so neither the
// credential nor the upstream address is included.
// A missing credential degrades the status since every proxied call would fail.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := statusResponse{
		Status:               "ok",
		Version:              string(h.version),
		Mode:                 h.cfg.Auth.Mode,
		CredentialConfigured: h.cfg.Auth.HasCredential(),
	}
	if !resp.CredentialConfigured {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}
