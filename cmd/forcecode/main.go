// forcecode deploys single Salesforce source files and reports compile
// problems as positioned diagnostics. It runs as a one-shot CLI or as a
// daemon for editor integrations.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"forcecode/internal/config"
	"forcecode/internal/dispatcher"
	"forcecode/internal/gateway"
	"forcecode/internal/notify"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	projectFile string
	logLevel    string
	logJSON     bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "forcecode",
		Short:         "Deploy Salesforce source files and report compile problems",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return fmt.Errorf("load .env: %w", err)
			}
			return setupLogging(cmd.ErrOrStderr(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.projectFile, "project", config.GetEnv("FORCE_PROJECT_FILE", config.DefaultProjectFile), "Path to force.json")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", config.GetEnv("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")

	cmd.AddCommand(newDeployCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newBundleCommand(opts))
	cmd.AddCommand(newCredentialsCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// setupLogging installs the default logger: text on stderr for commands,
// JSON on stdout for the daemon.
func setupLogging(stderr io.Writer, opts *rootOptions) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(opts.logLevel))); err != nil {
		return fmt.Errorf("invalid --log-level %q", opts.logLevel)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(stderr, handlerOpts)
	if opts.logJSON {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "forcecode", version)
		},
	}
}

// session loads the project and opens a gateway to its org.
func session(ctx context.Context, opts *rootOptions) (config.Project, *gateway.Client, error) {
	project, err := config.LoadProject(ctx, opts.projectFile)
	if err != nil {
		return config.Project{}, nil, err
	}
	if project.InstanceURL == "" || project.AccessToken == "" {
		return project, nil, fmt.Errorf("no org session: set FORCE_INSTANCE_URL and FORCE_ACCESS_TOKEN (or FORCE_ACCESS_TOKEN_FILE)")
	}

	gw, err := gateway.New(gateway.Config{
		InstanceURL: project.InstanceURL,
		AccessToken: project.AccessToken,
		APIVersion:  project.APIVersion,
		Timeout:     config.GetDurationEnv("FORCE_HTTP_TIMEOUT", 0),
	})
	if err != nil {
		return project, nil, err
	}
	return project, gw, nil
}

// callbacks returns an event sink and its dispatcher when the project names
// a callback URL. The caller closes the dispatcher.
func callbacks(project config.Project, metrics dispatcher.MetricsRecorder) (notify.Sink, *dispatcher.MemoryDispatcher) {
	if project.CallbackURL == "" {
		return notify.Discard, nil
	}
	d := dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(), metrics)
	return notify.NewEventSink(d, project.CallbackURL, project.CallbackKey), d
}

func closeDispatcher(ctx context.Context, d *dispatcher.MemoryDispatcher) {
	if d == nil {
		return
	}
	if err := d.Close(ctx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}
	stats := d.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)
}
