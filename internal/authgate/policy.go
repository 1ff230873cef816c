// Package authgate decides whether a dashboard request may proceed.
//
// The policy is a pure function of the request path, the Host header, two
// cookies and process configuration. It performs no I/O and keeps no state
// between requests, so a single Policy is shared by all handlers.
package authgate

import (
	"net"
	"net/http"
	"strings"

	"prospect-gateway/internal/config"
)

// Reason explains an access decision.
type Reason string

const (
	ReasonPublic       Reason = "public"
	ReasonDevBypass    Reason = "dev_bypass"
	ReasonAccessCookie Reason = "access_cookie"
	ReasonDemo         Reason = "demo"
	ReasonDenied       Reason = "denied"
)

// RouteRequest is the request metadata the authentication decision depends on.
type RouteRequest struct {
	Hostname        string
	HasAccessCookie bool
	HasDemoCookie   bool
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Grant is what the caller's cookies and host earn on a protected path.
	// It equals Reason there; on public paths it is computed all the same.
	Grant    Reason
	Hostname string
	// DemoCookie reports whether the demo cookie was sent, whatever the outcome.
	DemoCookie bool
	// DemoMode is set only when the demo cookie carries DemoCookieValue.
	DemoMode bool
}

// Authenticated reports whether the caller would pass a protected path.
func (d Decision) Authenticated() bool {
	return d.Grant != ReasonDenied && d.Grant != ""
}

// DemoCookieValue is the value the dashboard writes when demo mode is on.
const DemoCookieValue = "1"

// Policy holds the immutable inputs of the access decision.
type Policy struct {
	production   bool
	disableAuth  bool
	accessCookie string
	demoCookie   string
	demoHosts    map[string]struct{}
}

// NewPolicy builds a Policy from the auth section of the configuration.
// Demo hosts are trimmed and lower-cased; blank entries are dropped so a
// trailing comma in PROSPECT_STAGING_HOSTS cannot match an empty Host.
func NewPolicy(cfg config.AuthConfig) *Policy {
	hosts := make(map[string]struct{}, len(cfg.DemoHosts))
	for _, h := range cfg.DemoHosts {
		for _, part := range strings.Split(h, ",") {
			if n := NormalizeHostname(part); n != "" {
				hosts[n] = struct{}{}
			}
		}
	}

	return &Policy{
		production:   strings.ToLower(cfg.Mode) == config.ModeProduction || cfg.Mode == "",
		disableAuth:  cfg.DisableAuth,
		accessCookie: cfg.AccessCookie,
		demoCookie:   cfg.DemoCookie,
		demoHosts:    hosts,
	}
}

// NormalizeHostname trims and lower-cases a hostname.
func NormalizeHostname(hostname string) string {
	return strings.ToLower(strings.TrimSpace(hostname))
}

// IsLocalhostHost reports whether hostname is a loopback name.
func IsLocalhostHost(hostname string) bool {
	switch NormalizeHostname(hostname) {
	case "localhost", "127.0.0.1":
		return true
	}
	return false
}

// HostnameFromHost extracts the hostname from a Host header value.
// Malformed values yield "", which is neither loopback nor allow-listed.
func HostnameFromHost(hostport string) string {
	host := strings.TrimSpace(hostport)
	if host == "" || strings.ContainsAny(host, " \t/\\@?#") {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.Contains(host, ":") {
		// Bare IPv6 literal without a port, possibly bracketed.
		trimmed := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
		if net.ParseIP(trimmed) == nil {
			return ""
		}
		host = trimmed
	}
	if strings.ContainsAny(host, "[]") {
		return ""
	}
	return NormalizeHostname(host)
}

// IsDemoAccessAllowed reports whether the demo cookie grants access on hostname.
func (p *Policy) IsDemoAccessAllowed(hostname string, hasDemoCookie bool) bool {
	if !hasDemoCookie {
		return false
	}
	n := NormalizeHostname(hostname)
	if n == "" {
		return false
	}
	_, ok := p.demoHosts[n]
	return ok
}

// IsRouteAuthenticated reports whether a request to a protected path may proceed.
func (p *Policy) IsRouteAuthenticated(rr RouteRequest) bool {
	return p.Evaluate(rr).Allowed
}

// Evaluate decides a protected-path request and records why.
func (p *Policy) Evaluate(rr RouteRequest) Decision {
	d := Decision{Hostname: NormalizeHostname(rr.Hostname), DemoCookie: rr.HasDemoCookie}

	switch {
	case p.devBypass(rr.Hostname):
		d.Allowed, d.Reason = true, ReasonDevBypass
	case rr.HasAccessCookie:
		d.Allowed, d.Reason = true, ReasonAccessCookie
	case p.IsDemoAccessAllowed(rr.Hostname, rr.HasDemoCookie):
		d.Allowed, d.Reason = true, ReasonDemo
	default:
		d.Reason = ReasonDenied
	}
	d.Grant = d.Reason
	return d
}

// Decide classifies r and, for protected paths, evaluates its cookies.
func (p *Policy) Decide(r *http.Request) Decision {
	rr := RouteRequest{
		Hostname:        HostnameFromHost(r.Host),
		HasAccessCookie: hasCookie(r, p.accessCookie),
		HasDemoCookie:   hasCookie(r, p.demoCookie),
	}
	d := p.Evaluate(rr)
	d.DemoMode = cookieValue(r, p.demoCookie) == DemoCookieValue
	if IsPublicPath(r.URL.Path) {
		d.Allowed, d.Reason = true, ReasonPublic
	}
	return d
}

// DemoCookieName returns the configured demo cookie name.
func (p *Policy) DemoCookieName() string {
	return p.demoCookie
}

// devBypass never applies in production, whatever the host or flag.
func (p *Policy) devBypass(hostname string) bool {
	if p.production {
		return false
	}
	return p.disableAuth || IsLocalhostHost(hostname)
}

// hasCookie checks presence only; the token itself is validated elsewhere.
func hasCookie(r *http.Request, name string) bool {
	return cookieValue(r, name) != ""
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
