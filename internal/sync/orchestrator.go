package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/store"
)

// Orchestrator runs one date's sync: one token resolution, eight concurrent
// resource syncers joined without fail-fast, then the derived daily summary
// row built from what the syncers already fetched.
type Orchestrator struct {
	store   store.Store
	creds   *credstore.CredStore
	tokens  *TokenSource
	client  providerAPI
	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(s store.Store, creds *credstore.CredStore, tokens *TokenSource, client providerAPI, m *metrics.Metrics, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:   s,
		creds:   creds,
		tokens:  tokens,
		client:  client,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// displayName returns the account identifier that keys per-user API paths,
// resolving and persisting it on first use.
func (o *Orchestrator) displayName(ctx context.Context, accessToken string) (string, error) {
	if name := o.creds.DisplayName(); name != "" {
		return name, nil
	}
	name, err := o.client.SocialProfile(ctx, accessToken)
	if err != nil {
		return "", err
	}
	if err := o.creds.SetDisplayName(name); err != nil {
		return "", err
	}
	o.logger.InfoWithContext(ctx, "resolved account display name", "display_name", name)
	return name, nil
}

// ValidateCredential proves the stored long-lived credential works: one
// token resolution plus a profile fetch. Returns the account display name.
func (o *Orchestrator) ValidateCredential(ctx context.Context) (string, error) {
	token, err := o.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	return o.displayName(ctx, token.AccessToken)
}

// SyncDate syncs one calendar date. Credential and exchange failures
// propagate; every resource-level failure is contained inside its syncer slot
// and shows up as a zero count.
func (o *Orchestrator) SyncDate(ctx context.Context, date string) (models.DateResult, error) {
	start := o.now()

	token, err := o.tokens.Token(ctx)
	if err != nil {
		return models.DateResult{}, err
	}
	name, err := o.displayName(ctx, token.AccessToken)
	if err != nil {
		return models.DateResult{}, err
	}

	syncers := o.resourceSyncers()

	type slot struct {
		count int
		part  summaryPart
	}
	slots := make([]slot, len(syncers))

	// All syncers settle before we proceed; one resource's outage must not
	// block or mask the others.
	var wg stdsync.WaitGroup
	for i, s := range syncers {
		wg.Add(1)
		go func(i int, s resourceSyncer) {
			defer wg.Done()
			count, part, err := s.run(ctx, token.AccessToken, name, date)
			if err != nil {
				o.metrics.RecordSyncerFailure(string(s.resource))
				o.logger.ErrorWithContext(ctx, "resource sync failed",
					"resource", string(s.resource),
					"date", date,
					"error", err.Error())
				return
			}
			slots[i] = slot{count: count, part: part}
		}(i, s)
	}
	wg.Wait()

	result := models.DateResult{
		Date:   date,
		Counts: make(map[models.Resource]int, len(syncers)+1),
	}

	// The summary row is derived from the payload parts the syncers threaded
	// back, not from a second round of provider calls.
	summary := &models.DailySummary{Date: date}
	for i, s := range syncers {
		result.Counts[s.resource] = slots[i].count
		o.metrics.RecordRowsWritten(string(s.resource), slots[i].count)
		if slots[i].part != nil {
			slots[i].part(summary)
		}
	}

	if err := o.store.UpsertDailySummary(summary); err != nil {
		o.metrics.RecordSyncerFailure(string(models.ResourceSummary))
		o.logger.ErrorWithContext(ctx, "daily summary write failed", "date", date, "error", err.Error())
		result.Counts[models.ResourceSummary] = 0
	} else {
		result.Counts[models.ResourceSummary] = 1
		o.metrics.RecordRowsWritten(string(models.ResourceSummary), 1)
	}

	result.Duration = o.now().Sub(start)
	o.metrics.RecordSyncDuration(result.Duration.Seconds())
	o.logger.InfoWithContext(ctx, "date synced",
		"date", date,
		"rows", result.TotalRows(),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// Run syncs the trailing N calendar dates, today backwards. A date that fails
// does not abort the remaining dates. The last-run timestamp is persisted
// once any date succeeds.
func (o *Orchestrator) Run(ctx context.Context, days int) ([]models.DateResult, error) {
	if days < 1 {
		days = 1
	}

	today := o.now().UTC()
	results := make([]models.DateResult, 0, days)
	var lastErr error

	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		result, err := o.SyncDate(ctx, date)
		if err != nil {
			lastErr = err
			o.logger.ErrorWithContext(ctx, "date sync aborted", "date", date, "error", err.Error())
			continue
		}
		results = append(results, result)
	}

	if len(results) == 0 {
		return nil, lastErr
	}

	if err := o.creds.SetLastRun(o.now()); err != nil {
		o.logger.ErrorWithContext(ctx, "failed to persist last-run timestamp", "error", err.Error())
	}
	return results, nil
}
