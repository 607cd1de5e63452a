package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/fioncat/csync/internal/logger"
	"github.com/fioncat/csync/internal/telemetry"
	"github.com/fioncat/csync/pkg/api"
	"github.com/fioncat/csync/pkg/auth"
	"github.com/fioncat/csync/pkg/config"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/metrics"
	"github.com/fioncat/csync/pkg/recycler"
	"github.com/fioncat/csync/pkg/revision"
	"github.com/fioncat/csync/pkg/store"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the csync server",
	Long: `Start the csync server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/csync/config.yaml.

Examples:
  # Start in background (default)
  csyncd start

  # Start in foreground
  csyncd start --foreground

  # Start with custom config file
  csyncd start --config /etc/csync/config.yaml

  # Start with environment variable overrides
  CSYNC_LOGGING_LEVEL=DEBUG csyncd start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/csync/csyncd.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/csync/csyncd.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "csync",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "csync",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("csync server starting", "version", Version)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// Open the store; the database file and schema are created on
	// first start.
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("Store opened", "path", cfg.Database.Path)

	// Load or generate the token signing key.
	key, err := auth.LoadOrGenerateKey(cfg.Auth.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load token signing key: %w", err)
	}
	tokens := auth.NewTokenService(key, cfg.Auth.TokenTTL)

	register := revision.NewRegister()

	bus := events.NewBus()
	defer bus.Close()

	if cfg.Admin.Password == "" {
		logger.Warn("Admin password not configured, admin access is disabled")
	}

	// Prometheus metrics (if enabled)
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Host, cfg.Metrics.Port)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	// Background blob expiry. Zero interval means one sweep per TTL.
	sweepInterval := cfg.Recycle.Interval
	if sweepInterval <= 0 {
		sweepInterval = cfg.Recycle.TTL
	}
	rec := recycler.New(st, bus, register, sweepInterval)

	eventsServer := events.NewServer(&cfg.Events, bus, storeCredentialResolver(st), cfg.Admin.Password)

	apiServer := api.NewServer(cfg.API, api.Services{
		Store:         st,
		Register:      register,
		Bus:           bus,
		Tokens:        tokens,
		AdminPassword: cfg.Admin.Password,
		RecycleTTL:    cfg.Recycle.TTL,
		SaltLength:    cfg.Auth.SaltLength,
		Version:       Version,
	})

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	rec.Start(ctx)

	serverErr := make(chan error, 3)
	go func() {
		if err := eventsServer.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("events server: %w", err)
		}
	}()
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("API server: %w", err)
		}
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Signal readiness to the process supervisor once both listeners
	// accept connections. Outside systemd this is a no-op.
	go func() {
		select {
		case <-apiServer.ListenerReady:
		case <-ctx.Done():
			return
		}
		select {
		case <-eventsServer.ListenerReady:
		case <-ctx.Done():
			return
		}
		if _, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
			logger.Debug("sd_notify failed", "error", err)
		}
		logger.Info("Server is ready",
			"api_port", cfg.API.Port,
			"events_port", cfg.Events.Port,
		)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown", "signal", sig.String())
		_, _ = sd.SdNotify(false, sd.SdNotifyStopping)
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
		cancel()
		<-rec.Done()
		return err
	}

	// Reverse startup order: stop accepting work before draining the
	// recycler and closing the bus.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	if err := eventsServer.Stop(shutdownCtx); err != nil {
		logger.Error("events server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	select {
	case <-rec.Done():
	case <-shutdownCtx.Done():
		logger.Warn("recycler did not stop before the shutdown deadline")
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// storeCredentialResolver adapts the store to the event server's
// handshake lookup.
func storeCredentialResolver(st *store.Store) events.CredentialResolver {
	return func(ctx context.Context, user string) (*events.Credential, error) {
		var cred *events.Credential
		err := st.Transaction(ctx, func(tx *store.Tx) error {
			u, err := tx.GetUserPassword(user)
			if err != nil {
				return err
			}
			cred = &events.Credential{Hash: u.Hash, Salt: u.Salt}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return cred, nil
	}
}
