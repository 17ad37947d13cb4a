package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"forcecode/internal/api"
	"forcecode/internal/config"
	"forcecode/internal/deploy"
	"forcecode/internal/diagnostics"
	"forcecode/internal/health"
	"forcecode/internal/notify"
	"forcecode/internal/observability"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the deploy daemon",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			opts.logJSON = true
			if !cmd.Flags().Changed("log-level") {
				opts.logLevel = config.GetEnv("LOG_LEVEL", "info")
			}
			return setupLogging(cmd.ErrOrStderr(), opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, cmd.Flags().Changed("project"))
		},
	}
}

func serve(ctx context.Context, opts *rootOptions, projectFlagSet bool) error {
	svcCfg := config.LoadServiceConfig()
	if !projectFlagSet {
		opts.projectFile = svcCfg.ProjectFile
	}

	project, gw, err := session(ctx, opts)
	if err != nil {
		return err
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	var healthOpts []health.Option
	events, eventDispatcher := callbacks(project, metrics)
	if eventDispatcher != nil {
		healthOpts = append(healthOpts, health.WithDispatcher(eventDispatcher))
		slog.Info("Outcome callbacks enabled", "url", project.CallbackURL)
	}

	store := diagnostics.NewStore()
	deployer := deploy.New(gw, deploy.SettingsFromProject(project), store,
		deploy.WithNotifier(notify.Multi{notify.NewLogSink(nil), events}),
		deploy.WithMetrics(metrics),
	)
	healthChecker := health.NewChecker(gw, healthOpts...)

	router := api.NewRouter(api.RouterConfig{
		Deployer:      deployer,
		Diagnostics:   store,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Root:          config.Root(opts.projectFile),
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	// Deploys block for up to MaxPolls poll intervals, so the write
	// timeout leaves room for a full compile.
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*time.Minute + deploy.MaxPolls*project.PollInterval(),
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port, "org", project.InstanceURL)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Fail readiness first so load balancers stop routing new deploys.
	healthChecker.SetShuttingDown()
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	slog.Info("Starting graceful shutdown")
	shutdown(deploy.MaxPolls*project.PollInterval() + 5*time.Second)

	dispatcherCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closeDispatcher(dispatcherCtx, eventDispatcher)

	slog.Info("Shutdown complete")
	return nil
}
