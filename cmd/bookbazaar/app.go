package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/and161185/bookbazaar/internal/apiclient"
	"github.com/and161185/bookbazaar/internal/config"
	"github.com/and161185/bookbazaar/internal/metrics"
	"github.com/and161185/bookbazaar/internal/service"
	"github.com/and161185/bookbazaar/internal/session"
	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// app is one shell session: the wired client plus the terminal it talks to.
type app struct {
	cfg *config.Config
	svc *service.Services
	api *apiclient.Client
	reg *prometheus.Registry
	log *zap.Logger

	in     *bufio.Scanner
	out    io.Writer
	banner bool
	// secret reads a password without echo; it falls back to a plain line.
	secret func(prompt string) (string, error)
}

func newApp(cfg *config.Config, log *zap.Logger, in io.Reader, out io.Writer) (*app, error) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := session.NewStore(session.WithLogger(log))

	api, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIURL,
		Timeout: cfg.Timeout,
		Breaker: apiclient.BreakerConfig{
			Name:         "bookbazaar-api",
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			FailureRatio: cfg.Breaker.FailureRatio,
			MinRequests:  cfg.Breaker.MinRequests,
		},
		Log:     log,
		Metrics: m,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	a := &app{
		cfg:    cfg,
		svc:    service.New(service.Deps{API: api, Log: log}),
		api:    api,
		reg:    reg,
		log:    log,
		in:     bufio.NewScanner(in),
		out:    out,
		banner: true,
	}
	a.secret = a.readSecret
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		a.secret = a.prompt
	}
	return a, nil
}

// run prints the banner, restores the previous session if the refresh
// cookie allows it, and executes one command per input line.
func (a *app) run(ctx context.Context) error {
	if a.banner {
		fmt.Fprintln(a.out, figure.NewFigure("BookBazaar", "small", true).String())
	}
	if a.svc.Auth.AutoLogin(ctx) {
		s := a.api.Session().Snapshot()
		fmt.Fprintf(a.out, "welcome back, user %d (%s)\n", deref(s.UserID), roleName(s.Role))
	} else {
		fmt.Fprintln(a.out, "not logged in; type 'login' or 'help'")
	}

	for {
		fmt.Fprint(a.out, "> ")
		if !a.in.Scan() {
			fmt.Fprintln(a.out)
			return a.in.Err()
		}
		args := strings.Fields(a.in.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			fmt.Fprintln(a.out, "bye")
			return nil
		}
		if err := a.exec(ctx, args); err != nil {
			fmt.Fprintln(a.out, "error:", describe(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// exec runs one line. A new command tree per line keeps flag values from
// leaking between lines.
func (a *app) exec(ctx context.Context, args []string) error {
	cmd := a.commands()
	cmd.SetArgs(args)
	cmd.SetOut(a.out)
	cmd.SetErr(a.out)
	return cmd.ExecuteContext(ctx)
}

// prompt reads one plain line from the shell input.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", err
		}
		return "", errors.New("input closed")
	}
	return strings.TrimSpace(a.in.Text()), nil
}

func (a *app) readSecret(label string) (string, error) {
	fmt.Fprint(a.out, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func roleName(r string) string {
	if r == "" {
		return "user"
	}
	return r
}
