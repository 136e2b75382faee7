// Command bookbazaar is an interactive shell for the BookBazaar store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/and161185/bookbazaar/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the top-level command. Flags override the environment.
func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var (
		apiURL   string
		logLevel string
		timeout  time.Duration
	)
	loadConfig := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		fl := cmd.Flags()
		if fl.Changed("api-url") {
			cfg.APIURL = apiURL
		}
		if fl.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if fl.Changed("timeout") {
			cfg.Timeout = timeout
		}
		return cfg, cfg.Validate()
	}

	runShell := func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		logger.Info("starting",
			zap.String("version", version),
			zap.String("buildDate", buildDate),
			zap.String("api", cfg.APIURL),
		)

		a, err := newApp(cfg, logger, in, out)
		if err != nil {
			return err
		}
		return a.run(cmd.Context())
	}

	root := &cobra.Command{
		Use:           "bookbazaar",
		Short:         "BookBazaar client shell",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runShell,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&apiURL, "api-url", "", "API base URL (env BOOKBAZAAR_API_URL)")
	pf.StringVar(&logLevel, "log-level", "", "debug|info|warn|error (env BOOKBAZAAR_LOG_LEVEL)")
	pf.DurationVar(&timeout, "timeout", 0, "per-request timeout (env BOOKBAZAAR_TIMEOUT)")

	root.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Start the interactive shell (default)",
			Args:  cobra.NoArgs,
			RunE:  runShell,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "bookbazaar %s (%s)\n", version, buildDate)
			},
		},
	)
	root.SetIn(in)
	root.SetOut(out)
	return root
}

// newLogger writes JSON logs to stderr so they do not mix with shell output.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
