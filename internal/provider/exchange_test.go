package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestExchanger(t *testing.T, handler http.HandlerFunc) (*Exchanger, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e := NewExchanger(config.ProviderConfig{
		ExchangeURL:    server.URL + "/exchange",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		Timeout:        5 * time.Second,
	}, WithExchangeHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return e, server
}

func validCredential() *models.OAuth1Token {
	return &models.OAuth1Token{Token: "tok", TokenSecret: "sec"}
}

func TestExchangeSendsSignedPost(t *testing.T) {
	var gotAuth, gotContentType, gotBody string
	e, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte(`{"access_token":"bearer-abc","refresh_token":"refresh-xyz","expires_in":3600,"refresh_token_expires_in":86400}`))
	})

	token, err := e.Exchange(context.Background(), validCredential())
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(gotAuth, "OAuth "))
	require.Contains(t, gotAuth, `oauth_consumer_key="ck"`)
	require.Contains(t, gotAuth, `oauth_token="tok"`)
	require.Contains(t, gotAuth, `oauth_signature="`)
	require.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	require.Empty(t, gotBody)

	require.Equal(t, "bearer-abc", token.AccessToken)
	require.Equal(t, "refresh-xyz", token.RefreshToken)
}

func TestExchangeConvertsRelativeExpiryToAbsolute(t *testing.T) {
	e, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"bearer","expires_in":3600,"refresh_token_expires_in":86400}`))
	})

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return at }

	token, err := e.Exchange(context.Background(), validCredential())
	require.NoError(t, err)
	require.True(t, token.ExpiresAt.Equal(at.Add(time.Hour)))
	require.True(t, token.RefreshTokenExpiresAt.Equal(at.Add(24*time.Hour)))
}

func TestExchangeIncludesMFATokenOnlyWhenPresent(t *testing.T) {
	var gotBody string
	handler := func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte(`{"access_token":"bearer","expires_in":3600}`))
	}

	e, _ := newTestExchanger(t, handler)
	_, err := e.Exchange(context.Background(), &models.OAuth1Token{
		Token: "tok", TokenSecret: "sec", MFAToken: "654321",
	})
	require.NoError(t, err)
	require.Equal(t, "mfa_token=654321", gotBody)

	e2, _ := newTestExchanger(t, handler)
	_, err = e2.Exchange(context.Background(), validCredential())
	require.NoError(t, err)
	require.Empty(t, gotBody)
}

func TestExchangeFailureCarriesStatusAndBody(t *testing.T) {
	e, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("signature rejected"))
	})

	_, err := e.Exchange(context.Background(), validCredential())
	require.Error(t, err)

	var exErr *errors.ErrExchange
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, http.StatusUnauthorized, exErr.Status)
	require.Contains(t, exErr.Body, "signature rejected")
}

func TestExchangeRejectsInvalidCredential(t *testing.T) {
	e, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := e.Exchange(context.Background(), &models.OAuth1Token{Token: "only-half"})
	require.Error(t, err)

	var noCred *errors.ErrNoCredential
	require.ErrorAs(t, err, &noCred)
}

func TestExchangeMalformedResponseIsExchangeError(t *testing.T) {
	e, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := e.Exchange(context.Background(), validCredential())
	var exErr *errors.ErrExchange
	require.ErrorAs(t, err, &exErr)
}
