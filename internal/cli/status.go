package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/store"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show credential and last-run state",
	Long: `Inspect the local database: whether an OAuth1 credential is stored,
whether a bearer token is cached and still valid, and when the last
successful sync finished.

Examples:
  biosync status
  biosync status --json`,
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

type statusInfo struct {
	DBPath             string `json:"db_path"`
	CredentialPresent  bool   `json:"credential_present"`
	DisplayName        string `json:"display_name,omitempty"`
	BearerCached       bool   `json:"bearer_cached"`
	BearerValid        bool   `json:"bearer_valid"`
	BearerExpiresAt    string `json:"bearer_expires_at,omitempty"`
	LastRun            string `json:"last_run,omitempty"`
	RowsToday          int    `json:"rows_today"`
	SummaryRowsPresent bool   `json:"summary_present_today"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	sqliteStore, err := store.NewSQLiteStore(globalFlags.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite store: %w", err)
	}
	defer sqliteStore.Close()

	creds := credstore.New(sqliteStore.Settings())

	info := statusInfo{DBPath: globalFlags.DBPath}

	if _, err := creds.OAuth1(); err == nil {
		info.CredentialPresent = true
	}
	info.DisplayName = creds.DisplayName()

	now := time.Now()
	if bearer, err := creds.OAuth2(); err == nil && bearer != nil {
		info.BearerCached = true
		info.BearerValid = !bearer.Expired(now)
		info.BearerExpiresAt = bearer.ExpiresAt.UTC().Format(time.RFC3339)
	}

	if lastRun := creds.LastRun(); !lastRun.IsZero() {
		info.LastRun = lastRun.UTC().Format(time.RFC3339)
	}

	today := now.UTC().Format("2006-01-02")
	for _, resource := range models.Resources() {
		if n, err := sqliteStore.CountForDate(resource, today); err == nil {
			info.RowsToday += n
		}
	}
	if n, err := sqliteStore.CountForDate(models.ResourceSummary, today); err == nil && n > 0 {
		info.SummaryRowsPresent = true
	}

	return printStatus(info)
}

func printStatus(info statusInfo) error {
	if globalFlags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Database:\t%s\n", info.DBPath)
	fmt.Fprintf(w, "Credential:\t%s\n", yesNo(info.CredentialPresent))
	if info.DisplayName != "" {
		fmt.Fprintf(w, "Display name:\t%s\n", info.DisplayName)
	}
	if info.BearerCached {
		fmt.Fprintf(w, "Bearer token:\tcached, valid=%s, expires %s\n", yesNo(info.BearerValid), info.BearerExpiresAt)
	} else {
		fmt.Fprintf(w, "Bearer token:\tnot cached\n")
	}
	if info.LastRun != "" {
		fmt.Fprintf(w, "Last run:\t%s\n", info.LastRun)
	} else {
		fmt.Fprintf(w, "Last run:\tnever\n")
	}
	fmt.Fprintf(w, "Rows today:\t%d\n", info.RowsToday)
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
