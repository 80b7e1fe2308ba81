package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	_, found := settings.Get(SettingOAuth1Token)
	require.False(t, found)

	require.NoError(t, settings.Set(SettingOAuth1Token, `{"token":"abc"}`))

	value, found := settings.Get(SettingOAuth1Token)
	require.True(t, found)
	require.Equal(t, `{"token":"abc"}`, value)
}

func TestSettingsSetOverwrites(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	require.NoError(t, settings.Set(SettingDisplayName, "first"))
	require.NoError(t, settings.Set(SettingDisplayName, "second"))

	value, found := settings.Get(SettingDisplayName)
	require.True(t, found)
	require.Equal(t, "second", value)
}

func TestSettingsDelete(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	require.NoError(t, settings.Set(SettingLastRun, "2026-03-01T08:00:00Z"))
	require.NoError(t, settings.Delete(SettingLastRun))

	_, found := settings.Get(SettingLastRun)
	require.False(t, found)
}

func TestSettingsSurviveReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Settings().Set(SettingOAuth2Token, `{"access_token":"xyz"}`))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	value, found := s2.Settings().Get(SettingOAuth2Token)
	require.True(t, found)
	require.Equal(t, `{"access_token":"xyz"}`, value)
}
