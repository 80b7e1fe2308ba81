package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/biosync/biosync/internal/api"
	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/notify"
	"github.com/biosync/biosync/internal/provider"
	"github.com/biosync/biosync/internal/seed"
	"github.com/biosync/biosync/internal/store"
	syncsvc "github.com/biosync/biosync/internal/sync"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the BioSync server",
	Long: `Start the BioSync server in main mode.

This command starts the scheduler that syncs biometric data on an
interval, plus the HTTP API for manual syncs, credential setup, and
status.

Example:
  biosync serve --config config.yaml --db ./data/biosync.db

The server will start listening on the address configured in the config file.`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 30*time.Second), "Shutdown timeout")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "1.3", "Minimum TLS version (1.2 or 1.3)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting BioSync server...")
		log.Printf("Config path: %s", globalFlags.Config)
		log.Printf("Database path: %s", globalFlags.DBPath)
	}

	// Load configuration
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}

	if globalFlags.Verbose {
		log.Printf("Configuration loaded successfully")
		log.Printf("Server host: %s, port: %d", cfg.Server.Host, cfg.Server.HTTPPort)
		if cfg.Server.TLS.Enabled {
			log.Printf("TLS enabled: true, cert: %s, min_version: %s", cfg.Server.TLS.CertFile, cfg.Server.TLS.MinVersion)
		}
	}

	// Validate TLS configuration if enabled
	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	logger := logging.NewLogger(
		logging.WithLevel(logging.LogLevel(cfg.Server.LogLevel)),
		logging.WithService("biosync"),
	)

	// Create SQLite store with WAL mode enabled
	sqliteStore, err := store.NewSQLiteStoreWithOptions(
		globalFlags.DBPath,
		cfg.Sync.BatchSize,
		envInt("BIOSYNC_RETENTION_DAYS", 365),
	)
	if err != nil {
		return fmt.Errorf("failed to create SQLite store: %w", err)
	}

	creds := credstore.New(sqliteStore.Settings())
	m := metrics.NewMetrics("biosync")

	client := provider.NewClient(cfg.Provider, provider.WithLogger(logger))
	exchanger := provider.NewExchanger(cfg.Provider)
	tokens := syncsvc.NewTokenSource(creds, exchanger, m, logger)
	orchestrator := syncsvc.NewOrchestrator(sqliteStore, creds, tokens, client, m, logger)

	var scheduler *syncsvc.Scheduler
	if cfg.Sync.Enabled {
		scheduler = syncsvc.NewScheduler(orchestrator, cfg.Sync.Interval, m, logger)
		if cfg.Telegram.Enabled {
			notifier := notify.New(cfg.Telegram)
			scheduler.SetOnRun(notifier.RunFinished)
		}
		if err := scheduler.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Printf("Scheduler started (interval: %s)", cfg.Sync.Interval)
	} else {
		log.Printf("Scheduler disabled; syncs run only via the API")
	}

	if cfg.Seed.Enabled {
		importer := seed.NewImporter(cfg.Seed.Path, creds, logger)
		if err := importer.Watch(context.Background()); err != nil {
			log.Printf("Seed watcher warning: %v", err)
		} else if globalFlags.Verbose {
			log.Printf("Watching %s for credential seed files", cfg.Seed.Path)
		}
	}

	loader.SetOnChange(func(next *config.Config) {
		logger.Info("configuration reloaded", "path", globalFlags.Config)
	})
	loader.StartWatcher(time.Minute)

	server := api.NewServer(cfg.Server, cfg.API, creds, orchestrator, scheduler, m, logger)

	setupGracefulShutdown(server, sqliteStore, loader, serveFlags.Timeout)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if cfg.Server.TLS.Enabled {
		log.Printf("Starting BioSync HTTPS server on %s", addr)
	} else {
		log.Printf("Starting BioSync HTTP server on %s", addr)
	}
	log.Printf("Database: %s (WAL mode enabled)", globalFlags.DBPath)

	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// validateTLSConfig validates TLS configuration
func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" {
		return fmt.Errorf("TLS certificate file is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("TLS key file is required when TLS is enabled")
	}

	if _, err := os.Stat(tls.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file does not exist: %s", tls.CertFile)
	}
	if _, err := os.Stat(tls.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file does not exist: %s", tls.KeyFile)
	}

	if tls.MinVersion != "" && tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		return fmt.Errorf("TLS min_version must be either \"1.2\" or \"1.3\", got: %s", tls.MinVersion)
	}

	return nil
}

// setupGracefulShutdown handles graceful shutdown of all components
func setupGracefulShutdown(server *api.Server, sqliteStore *store.SQLiteStore, loader *config.Loader, timeout time.Duration) {
	sigChan := api.SetupSignalHandler()

	go func() {
		sig := api.WaitForSignal(sigChan)
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// Shutdown server (stops the scheduler first)
		log.Println("Shutting down API server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}

		loader.StopWatcher()

		if err := sqliteStore.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}

		log.Println("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
