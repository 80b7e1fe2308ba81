package sync

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	calls int
	token *models.OAuth2Token
	err   error
}

func (f *fakeExchanger) Exchange(ctx context.Context, credential *models.OAuth1Token) (*models.OAuth2Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.WithOutput(io.Discard))
}

func newTokenFixture(t *testing.T, exchanger *fakeExchanger) (*TokenSource, *credstore.CredStore) {
	t.Helper()
	creds := credstore.New(store.NewMemorySettingsStore())
	ts := NewTokenSource(creds, exchanger, metrics.NewMetrics("test_token"), quietLogger())
	return ts, creds
}

func TestTokenNoCredentialFailsBeforeExchange(t *testing.T) {
	exchanger := &fakeExchanger{}
	ts, _ := newTokenFixture(t, exchanger)

	_, err := ts.Token(context.Background())
	var noCred *errors.ErrNoCredential
	require.ErrorAs(t, err, &noCred)
	require.Zero(t, exchanger.calls)
}

func TestTokenFreshCacheSkipsExchange(t *testing.T) {
	exchanger := &fakeExchanger{}
	ts, creds := newTokenFixture(t, exchanger)

	require.NoError(t, creds.SetOAuth1(&models.OAuth1Token{Token: "tok", TokenSecret: "sec"}))
	require.NoError(t, creds.SetOAuth2(&models.OAuth2Token{
		AccessToken: "cached",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	got, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cached", got.AccessToken)
	require.Zero(t, exchanger.calls)
}

func TestTokenInsideSkewWindowExchangesOnce(t *testing.T) {
	exchanger := &fakeExchanger{token: &models.OAuth2Token{
		AccessToken: "fresh",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	ts, creds := newTokenFixture(t, exchanger)

	require.NoError(t, creds.SetOAuth1(&models.OAuth1Token{Token: "tok", TokenSecret: "sec"}))
	// Expires in 2 minutes: inside the 5 minute skew, so stale.
	require.NoError(t, creds.SetOAuth2(&models.OAuth2Token{
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(2 * time.Minute),
	}))

	got, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", got.AccessToken)
	require.Equal(t, 1, exchanger.calls)

	// The fresh token was persisted before being returned.
	cached, err := creds.OAuth2()
	require.NoError(t, err)
	require.Equal(t, "fresh", cached.AccessToken)
}

func TestTokenAbsentCacheExchanges(t *testing.T) {
	exchanger := &fakeExchanger{token: &models.OAuth2Token{
		AccessToken: "fresh",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	ts, creds := newTokenFixture(t, exchanger)

	require.NoError(t, creds.SetOAuth1(&models.OAuth1Token{Token: "tok", TokenSecret: "sec"}))

	got, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", got.AccessToken)
	require.Equal(t, 1, exchanger.calls)
}

func TestTokenExchangeFailureLeavesStaleCache(t *testing.T) {
	exchanger := &fakeExchanger{err: &errors.ErrExchange{Status: 401, Body: "rejected"}}
	ts, creds := newTokenFixture(t, exchanger)

	require.NoError(t, creds.SetOAuth1(&models.OAuth1Token{Token: "tok", TokenSecret: "sec"}))
	stale := &models.OAuth2Token{AccessToken: "stale", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, creds.SetOAuth2(stale))

	_, err := ts.Token(context.Background())
	var exErr *errors.ErrExchange
	require.ErrorAs(t, err, &exErr)

	// The stale cached token is untouched so the next tick can retry.
	cached, err := creds.OAuth2()
	require.NoError(t, err)
	require.Equal(t, "stale", cached.AccessToken)
}
