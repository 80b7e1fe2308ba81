// Package credstore persists the credential pair, the cached bearer token,
// and run bookkeeping as JSON blobs in the settings table.
package credstore

import (
	"encoding/json"
	"time"

	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/models"
	"github.com/biosync/biosync/internal/store"
)

// CredStore wraps the settings store with typed accessors.
type CredStore struct {
	settings store.SettingsStore
}

// New creates a credential store over the given settings store.
func New(settings store.SettingsStore) *CredStore {
	return &CredStore{settings: settings}
}

// OAuth1 returns the long-lived credential pair, or ErrNoCredential when none
// has been stored.
func (c *CredStore) OAuth1() (*models.OAuth1Token, error) {
	raw, found := c.settings.Get(store.SettingOAuth1Token)
	if !found {
		return nil, &errors.ErrNoCredential{}
	}

	var token models.OAuth1Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, err
	}
	if !token.Valid() {
		return nil, &errors.ErrNoCredential{}
	}
	return &token, nil
}

// SetOAuth1 stores the long-lived credential pair. Storing a new pair
// invalidates the cached bearer token, which was derived from the old one.
func (c *CredStore) SetOAuth1(token *models.OAuth1Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := c.settings.Set(store.SettingOAuth1Token, string(data)); err != nil {
		return err
	}
	return c.settings.Delete(store.SettingOAuth2Token)
}

// OAuth2 returns the cached bearer token, or nil when none is cached. A nil
// return is not an error: the caller exchanges and caches a fresh one.
func (c *CredStore) OAuth2() (*models.OAuth2Token, error) {
	raw, found := c.settings.Get(store.SettingOAuth2Token)
	if !found {
		return nil, nil
	}

	var token models.OAuth2Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// SetOAuth2 caches a freshly exchanged bearer token.
func (c *CredStore) SetOAuth2(token *models.OAuth2Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.settings.Set(store.SettingOAuth2Token, string(data))
}

// DisplayName returns the provider profile name captured during setup.
func (c *CredStore) DisplayName() string {
	name, _ := c.settings.Get(store.SettingDisplayName)
	return name
}

// SetDisplayName stores the provider profile name.
func (c *CredStore) SetDisplayName(name string) error {
	return c.settings.Set(store.SettingDisplayName, name)
}

// LastRun returns when the most recent sync run finished, or the zero time
// if no run has completed yet.
func (c *CredStore) LastRun() time.Time {
	raw, found := c.settings.Get(store.SettingLastRun)
	if !found {
		return time.Time{}
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return at
}

// SetLastRun records when a sync run finished.
func (c *CredStore) SetLastRun(at time.Time) error {
	return c.settings.Set(store.SettingLastRun, at.UTC().Format(time.RFC3339))
}
