package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/provider"
	"github.com/biosync/biosync/internal/store"
	syncsvc "github.com/biosync/biosync/internal/sync"
	"github.com/spf13/cobra"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:     "sync",
	Aliases: []string{"pull", "backfill"},
	Short:   "Run a one-shot sync without starting the server",
	Long: `Fetch biometric data for one or more dates and write it to the local
database, then exit.

Examples:
  # Sync today
  biosync sync

  # Backfill the last week
  biosync sync --days 7

  # Sync one specific date
  biosync sync --date 2026-01-15

  # Output results as JSON
  biosync sync --days 3 --json`,
	RunE: runSync,
}

var syncFlags struct {
	Days int
	Date string
}

func init() {
	syncCmd.Flags().IntVar(&syncFlags.Days, "days", 0, "Number of trailing days to sync (overrides config)")
	syncCmd.Flags().StringVar(&syncFlags.Date, "date", "", "Sync a single date (YYYY-MM-DD)")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := logging.LogLevel(cfg.Server.LogLevel)
	if !globalFlags.Verbose {
		logLevel = logging.LevelWarn
	}
	logger := logging.NewLogger(
		logging.WithLevel(logLevel),
		logging.WithService("biosync"),
	)

	sqliteStore, err := store.NewSQLiteStoreWithOptions(
		globalFlags.DBPath,
		cfg.Sync.BatchSize,
		envInt("BIOSYNC_RETENTION_DAYS", 365),
	)
	if err != nil {
		return fmt.Errorf("failed to create SQLite store: %w", err)
	}
	defer func() {
		if err := sqliteStore.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	creds := credstore.New(sqliteStore.Settings())
	m := metrics.NewMetrics("biosync")
	client := provider.NewClient(cfg.Provider, provider.WithLogger(logger))
	exchanger := provider.NewExchanger(cfg.Provider)
	tokens := syncsvc.NewTokenSource(creds, exchanger, m, logger)
	orchestrator := syncsvc.NewOrchestrator(sqliteStore, creds, tokens, client, m, logger)

	ctx := context.Background()

	var results []models.DateResult
	if syncFlags.Date != "" {
		result, err := orchestrator.SyncDate(ctx, syncFlags.Date)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		results = []models.DateResult{result}
	} else {
		days := syncFlags.Days
		if days == 0 {
			days = cfg.Sync.Days
		}
		results, err = orchestrator.Run(ctx, days)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
	}

	return printResults(results)
}

func printResults(results []models.DateResult) error {
	if globalFlags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tRESOURCE\tROWS")
	total := 0
	for _, r := range results {
		for _, resource := range models.Resources() {
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.Date, resource, r.Counts[resource])
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", r.Date, models.ResourceSummary, r.Counts[models.ResourceSummary])
		total += r.TotalRows()
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("Synced %d date(s), %d row(s) total\n", len(results), total)
	return nil
}
