package store

import (
	"database/sql"
	"time"
)

// SettingsStore provides atomic get/put over key/value state. The credential
// cache and the last-run timestamp live here.
type SettingsStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// SQLiteSettingsStore implements SettingsStore on a settings table in the
// same database as the resource tables.
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore creates a new settings store
func NewSQLiteSettingsStore(db *sql.DB) (*SQLiteSettingsStore, error) {
	store := &SQLiteSettingsStore{db: db}

	if err := store.createTable(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteSettingsStore) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// Get retrieves a setting value
func (s *SQLiteSettingsStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Set stores a setting value, overwriting any previous one
func (s *SQLiteSettingsStore) Set(key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query, key, value, time.Now())
	return err
}

// Delete removes a setting
func (s *SQLiteSettingsStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// Keys for the four persisted credential-state entries.
const (
	SettingOAuth1Token = "oauth1_token"
	SettingOAuth2Token = "oauth2_token"
	SettingDisplayName = "display_name"
	SettingLastRun     = "last_run"
)
