package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/oauth1"
)

// Exchanger converts the long-lived OAuth1 credential pair into a
// short-lived bearer token via one signed POST. This is the only place the
// OAuth1 pair is ever presented to the provider.
type Exchanger struct {
	signer      *oauth1.Signer
	exchangeURL string
	http        *http.Client
	now         func() time.Time
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithExchangeHTTPClient overrides the underlying HTTP client, for tests.
func WithExchangeHTTPClient(httpClient *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.http = httpClient
	}
}

// NewExchanger creates an Exchanger from configuration.
func NewExchanger(cfg config.ProviderConfig, opts ...ExchangerOption) *Exchanger {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	e := &Exchanger{
		signer:      oauth1.NewSigner(cfg.ConsumerKey, cfg.ConsumerSecret),
		exchangeURL: cfg.ExchangeURL,
		http:        newHTTPClient(timeout),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// exchangeResponse is the provider's JSON body: expiries are relative
// seconds, converted to absolute timestamps the moment they arrive.
type exchangeResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

// Exchange performs the signed POST and returns the derived bearer token.
// Any non-2xx response is an ErrExchange, which is fatal to the current sync
// run; the caller leaves its stale cached token in place for the next tick.
func (e *Exchanger) Exchange(ctx context.Context, credential *models.OAuth1Token) (*models.OAuth2Token, error) {
	if !credential.Valid() {
		return nil, &errors.ErrNoCredential{}
	}

	form := url.Values{}
	var signedForm map[string]string
	if credential.MFAToken != "" {
		form.Set("mfa_token", credential.MFAToken)
		signedForm = map[string]string{"mfa_token": credential.MFAToken}
	}

	header := e.signer.AuthHeaderWithParams(http.MethodPost, e.exchangeURL,
		credential.Token, credential.TokenSecret, signedForm)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.exchangeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	received := e.now()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errors.ErrExchange{
			Status: resp.StatusCode,
			Body:   truncate(string(body), maxErrorBody),
		}
	}

	var parsed exchangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &errors.ErrExchange{Status: resp.StatusCode, Body: "malformed exchange response"}
	}
	if parsed.AccessToken == "" {
		return nil, &errors.ErrExchange{Status: resp.StatusCode, Body: "exchange response missing access_token"}
	}

	token := &models.OAuth2Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    received.Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}
	if parsed.RefreshTokenExpiresIn > 0 {
		token.RefreshTokenExpiresAt = received.Add(time.Duration(parsed.RefreshTokenExpiresIn) * time.Second)
	}
	return token, nil
}
