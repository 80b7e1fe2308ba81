// Package sync holds the token refresh path, the eight resource syncers, the
// orchestrator that fans them out per date, and the periodic scheduler.
package sync

import (
	"context"
	"time"

	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/models"
)

// tokenExchanger is the slice of the provider exchanger the token source uses.
type tokenExchanger interface {
	Exchange(ctx context.Context, credential *models.OAuth1Token) (*models.OAuth2Token, error)
}

// TokenSource hands out a usable bearer token: the cached one when it is
// still comfortably inside its lifetime, otherwise the result of exactly one
// exchange, persisted before it is returned.
//
// The orchestrator calls this once per date sync and passes the token down,
// so concurrent syncers never race on a refresh decision.
type TokenSource struct {
	creds     *credstore.CredStore
	exchanger tokenExchanger
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewTokenSource creates a token source.
func NewTokenSource(creds *credstore.CredStore, exchanger tokenExchanger, m *metrics.Metrics, logger *logging.Logger) *TokenSource {
	return &TokenSource{
		creds:     creds,
		exchanger: exchanger,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Token returns a bearer token valid for at least the expiry skew. Absent or
// stale cached tokens trigger one exchange; on exchange failure the stale
// cache is left untouched so the next tick can retry.
func (t *TokenSource) Token(ctx context.Context) (*models.OAuth2Token, error) {
	credential, err := t.creds.OAuth1()
	if err != nil {
		return nil, err
	}

	cached, err := t.creds.OAuth2()
	if err != nil {
		return nil, err
	}
	if cached != nil && !cached.Expired(t.now()) {
		return cached, nil
	}

	fresh, err := t.exchanger.Exchange(ctx, credential)
	if err != nil {
		t.metrics.RecordExchange("failure")
		return nil, err
	}
	t.metrics.RecordExchange("success")

	if err := t.creds.SetOAuth2(fresh); err != nil {
		return nil, err
	}

	t.logger.InfoWithContext(ctx, "bearer token refreshed",
		"expires_at", fresh.ExpiresAt.UTC().Format(time.RFC3339))
	return fresh, nil
}
