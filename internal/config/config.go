// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/prospect-gateway/config.toml",
	"configs/config.toml",
}

// placeholderCredential is the value shipped in the example config.
const placeholderCredential = "CHANGE_ME"

// Runtime modes. Anything other than ModeProduction relaxes nothing by itself;
// the dev bypass additionally needs DISABLE_AUTH or a loopback host.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
	ModeTest        = "test"
)

// ProxyMount is the path prefix under which the upstream API is relayed.
const ProxyMount = "/api/proxy"

// DemoPath toggles the demo cookie. It sits under /api/ so the /demo
// dashboard page keeps its own route.
const DemoPath = "/api/demo"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string   `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string   `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int      `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	UpstreamURL string   `kong:"name='upstream-url',help='Upstream API base URL (overrides config).',env='API_BASE_URL'"`
	Credential  string   `kong:"help='Upstream Basic-Auth credential as user:password (overrides config).',env='ADMIN_AUTH'"`
	Mode        string   `kong:"help='Runtime mode: production|development|test (overrides config).',env='APP_ENV'"`
	DisableAuth bool     `kong:"name='disable-auth',help='Bypass auth outside production mode.',env='DISABLE_AUTH'"`
	DemoHosts   []string `kong:"name='demo-hosts',help='Comma-separated hostnames where the demo cookie grants access.',env='PROSPECT_STAGING_HOSTS',sep=','"`
	LogLevel    string   `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Auth     AuthConfig     `toml:"auth"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	StaticDir    string          `toml:"static_dir"`
	LoginPath    string          `toml:"login_path"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"` // 0 disables the client-side deadline
	IdleConnections int    `toml:"idle_connections"`
}

// AuthConfig holds the upstream credential and the access policy inputs.
type AuthConfig struct {
	Credential   string   `toml:"credential"`
	Mode         string   `toml:"mode"`
	DisableAuth  bool     `toml:"disable_auth"`
	AccessCookie string   `toml:"access_cookie"`
	DemoCookie   string   `toml:"demo_cookie"`
	DemoHosts    []string `toml:"demo_hosts"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/prospect-gateway/config.toml then configs/config.toml. Finding no file
// is fine: every setting can come from the environment.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.filePath = path
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.UpstreamURL != "" {
		c.Upstream.BaseURL = cli.UpstreamURL
	}
	if cli.Credential != "" {
		c.Auth.Credential = cli.Credential
	}
	if cli.Mode != "" {
		c.Auth.Mode = cli.Mode
	}
	if cli.DisableAuth {
		c.Auth.DisableAuth = true
	}
	if len(cli.DemoHosts) > 0 {
		c.Auth.DemoHosts = cli.DemoHosts
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Auth.Credential == placeholderCredential {
		return fmt.Errorf("auth.credential contains placeholder value; set user:password or leave empty")
	}
	if c.Auth.Credential != "" && !strings.Contains(c.Auth.Credential, ":") {
		return fmt.Errorf("auth.credential must have the form user:password")
	}

	// Upstream URL is optional (defaults to loopback) but must be usable when set.
	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil {
			return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("upstream.base_url must use http or https; got %q", c.Upstream.BaseURL)
		}
		if u.Host == "" {
			return fmt.Errorf("upstream.base_url has no host; got %q", c.Upstream.BaseURL)
		}
		if u.User != nil {
			return fmt.Errorf("upstream.base_url must not embed credentials; use auth.credential")
		}
		if u.RawQuery != "" || u.Fragment != "" {
			return fmt.Errorf("upstream.base_url must not carry a query or fragment; got %q", c.Upstream.BaseURL)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if c.Server.LoginPath != "" && c.Server.LoginPath[0] != '/' {
		return fmt.Errorf("server.login_path must start with '/'; got %q", c.Server.LoginPath)
	}

	switch strings.ToLower(c.Auth.Mode) {
	case ModeProduction, ModeDevelopment, ModeTest, "":
	default:
		return fmt.Errorf("auth.mode must be one of: production, development, test; got %q", c.Auth.Mode)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{ProxyMount, DemoPath, "/api/healthz", "/api/status", "/api/session", "/demo"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with defaults.
// For integer fields zero means "unset" because TOML cannot distinguish an
// explicit 0 from an omitted key; timeout_seconds is the exception where 0
// is itself the default.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Server.LoginPath == "" {
		c.Server.LoginPath = "/login"
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "http://localhost:8000"
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	c.Auth.Mode = strings.ToLower(c.Auth.Mode)
	if c.Auth.Mode == "" {
		c.Auth.Mode = ModeProduction
	}
	if c.Auth.AccessCookie == "" {
		c.Auth.AccessCookie = "admin_access_token"
	}
	if c.Auth.DemoCookie == "" {
		c.Auth.DemoCookie = "prospect_demo"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/api/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasCredential reports whether an upstream credential is configured.
func (c *AuthConfig) HasCredential() bool {
	return c.Credential != ""
}

// IsProduction reports whether the gateway runs in production mode.
func (c *AuthConfig) IsProduction() bool {
	return c.Mode == ModeProduction
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
