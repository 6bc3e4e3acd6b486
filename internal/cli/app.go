// Package cli is the weavedemo command line: it wires the example user
// service through a cache aspect and either exercises it or prints its plans.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
	flags  wiringFlags
}

func New() *App {
	app := &App{stdout: os.Stdout, stderr: os.Stderr}

	app.root = &cobra.Command{
		Use:   "weavedemo",
		Short: "Method interception and result caching demo",
		Long: `weavedemo routes a small user service through weave aspects:
an OpenTelemetry aspect followed by a cache aspect whose policies the service
declares itself.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := app.root.PersistentFlags()
	pf.StringVar(&app.flags.logger, "log", "logrus", "logger: logrus, zap or slog")
	pf.StringVar(&app.flags.level, "level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&app.flags.provider, "provider", "memory", "default cache provider: memory or distributed")
	pf.StringVar(&app.flags.codec, "codec", "msgpack", "distributed codec: msgpack, json or cbor")
	pf.StringVar(&app.flags.redisAddr, "redis", "", "redis address for the distributed backend (default: in-process bigcache)")
	pf.StringVar(&app.flags.prefix, "prefix", "", "key prefix (default: <process>.<implementation>.)")
	pf.DurationVar(&app.flags.ttl, "ttl", 0, "default TTL for cached methods (default 1m)")
	pf.StringVar(&app.flags.telemetry, "telemetry", "none", "span and metric export: none or stdout (written with the logs)")

	app.root.AddCommand(
		app.newRunCmd(),
		app.newPlansCmd(),
	)
	return app
}

func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs is Execute with explicit arguments, for tests.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}
