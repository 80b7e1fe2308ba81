package credstore

import (
	"testing"
	"time"

	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/store"
	"github.com/stretchr/testify/require"
)

func TestOAuth1MissingReturnsNoCredential(t *testing.T) {
	c := New(store.NewMemorySettingsStore())

	_, err := c.OAuth1()
	require.Error(t, err)

	var noCred *errors.ErrNoCredential
	require.ErrorAs(t, err, &noCred)
}

func TestOAuth1RoundTrip(t *testing.T) {
	c := New(store.NewMemorySettingsStore())

	require.NoError(t, c.SetOAuth1(&models.OAuth1Token{
		Token:       "tok",
		TokenSecret: "secret",
		Domain:      "example.com",
	}))

	got, err := c.OAuth1()
	require.NoError(t, err)
	require.Equal(t, "tok", got.Token)
	require.Equal(t, "secret", got.TokenSecret)
	require.Equal(t, "example.com", got.Domain)
}

func TestSetOAuth1InvalidatesCachedBearer(t *testing.T) {
	c := New(store.NewMemorySettingsStore())

	require.NoError(t, c.SetOAuth2(&models.OAuth2Token{
		AccessToken: "bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	require.NoError(t, c.SetOAuth1(&models.OAuth1Token{Token: "tok", TokenSecret: "secret"}))

	cached, err := c.OAuth2()
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestOAuth2MissingIsNilNotError(t *testing.T) {
	c := New(store.NewMemorySettingsStore())

	cached, err := c.OAuth2()
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestOAuth2RoundTrip(t *testing.T) {
	c := New(store.NewMemorySettingsStore())

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, c.SetOAuth2(&models.OAuth2Token{
		AccessToken: "bearer",
		ExpiresAt:   expires,
	}))

	got, err := c.OAuth2()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "bearer", got.AccessToken)
	require.True(t, got.ExpiresAt.Equal(expires))
}

func TestDisplayName(t *testing.T) {
	c := New(store.NewMemorySettingsStore())

	require.Empty(t, c.DisplayName())
	require.NoError(t, c.SetDisplayName("athlete42"))
	require.Equal(t, "athlete42", c.DisplayName())
}

func TestLastRun(t *testing.T) {
	c := New(store.NewMemorySettingsStore())

	require.True(t, c.LastRun().IsZero())

	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, c.SetLastRun(at))
	require.True(t, c.LastRun().Equal(at))
}
