// Command gatectl evaluates the gateway's access policy and forwarding
// rules offline, using the same configuration sources as the server.
package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"prospect-gateway/internal/authgate"
	"prospect-gateway/internal/config"
	"prospect-gateway/internal/service"
)

type cli struct {
	config.CLI `kong:"embed"`

	Decide decideCmd `kong:"cmd,help='Show whether a request would pass the auth gate.'"`
	Target targetCmd `kong:"cmd,help='Show the upstream URL a proxied path is forwarded to.'"`
}

// runEnv is bound into every command's Run method.
type runEnv struct {
	cli *config.CLI
	out io.Writer
}

func (e *runEnv) load() (*config.Config, error) {
	return config.Load(e.cli)
}

type decideCmd struct {
	Path         string `kong:"arg,help='Request path, e.g. /leads/42.'"`
	Host         string `kong:"default='localhost',help='Host header of the simulated request.'"`
	AccessCookie bool   `kong:"name='access-cookie',help='Send a non-empty access cookie.'"`
	DemoCookie   bool   `kong:"name='demo-cookie',help='Send a non-empty demo cookie.'"`
}

func (d *decideCmd) Run(env *runEnv) error {
	cfg, err := env.load()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet, d.Path, http.NoBody)
	if err != nil {
		return fmt.Errorf("parse path %q: %w", d.Path, err)
	}
	req.Host = d.Host
	if d.AccessCookie {
		req.AddCookie(&http.Cookie{Name: cfg.Auth.AccessCookie, Value: "x"})
	}
	if d.DemoCookie {
		req.AddCookie(&http.Cookie{Name: cfg.Auth.DemoCookie, Value: "1"})
	}

	dec := authgate.NewPolicy(cfg.Auth).Decide(req)

	verdict := color.New(color.FgGreen, color.Bold).Sprint("ALLOW")
	if !dec.Allowed {
		verdict = color.New(color.FgRed, color.Bold).Sprint("DENY")
	}
	fmt.Fprintf(env.out, "%s %s (reason=%s, host=%q, mode=%s)\n",
		verdict, req.URL.Path, dec.Reason, dec.Hostname, cfg.Auth.Mode)
	if !dec.Allowed {
		fmt.Fprintf(env.out, "  redirect: %s?next=%s\n", cfg.Server.LoginPath, url.QueryEscape(req.URL.RequestURI()))
	}
	return nil
}

type targetCmd struct {
	Path string `kong:"arg,help='Proxied path with optional query, e.g. /api/proxy/leads?status=new.'"`
}

func (t *targetCmd) Run(env *runEnv) error {
	cfg, err := env.load()
	if err != nil {
		return err
	}

	u, err := url.Parse(t.Path)
	if err != nil {
		return fmt.Errorf("parse path %q: %w", t.Path, err)
	}
	escaped := u.EscapedPath()
	if escaped != config.ProxyMount && !strings.HasPrefix(escaped, config.ProxyMount+"/") {
		return fmt.Errorf("%s is not below %s", escaped, config.ProxyMount)
	}

	segments := service.SplitSegments(strings.TrimPrefix(escaped, config.ProxyMount))
	target := service.BuildTarget(service.NormalizeBaseURL(cfg.Upstream.BaseURL), segments, u.RawQuery)

	fmt.Fprintln(env.out, color.CyanString(target))
	if !cfg.Auth.HasCredential() {
		fmt.Fprintln(env.out, color.YellowString("  warning: no upstream credential; the gateway would answer 500"))
	}
	return nil
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("gatectl"),
		kong.Description("Inspect prospect-gateway access and forwarding decisions."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&runEnv{cli: &c.CLI, out: os.Stdout}))
}
