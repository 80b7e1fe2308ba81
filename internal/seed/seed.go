// Package seed imports out-of-band credential files. The login flow that
// produces the long-lived token pair runs on another machine; its output is
// dropped as a JSON file into a watched directory and imported from there.
package seed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/models"
	"github.com/fsnotify/fsnotify"
)

// seedFile is the drop-file format: the long-lived pair plus optional
// account metadata.
type seedFile struct {
	OAuthToken       string `json:"oauth_token"`
	OAuthTokenSecret string `json:"oauth_token_secret"`
	MFAToken         string `json:"mfa_token,omitempty"`
	Domain           string `json:"domain,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
}

// Importer scans and watches a drop directory for credential seed files.
type Importer struct {
	path   string
	creds  *credstore.CredStore
	logger *logging.Logger
}

// NewImporter creates an importer for the given drop directory.
func NewImporter(path string, creds *credstore.CredStore, logger *logging.Logger) *Importer {
	return &Importer{path: path, creds: creds, logger: logger}
}

// Scan imports the newest valid seed file in the drop directory, if any.
// Returns true when a credential was imported.
func (i *Importer) Scan() (bool, error) {
	entries, err := os.ReadDir(i.path)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return false, nil
		}
		return false, err
	}

	imported := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		full := filepath.Join(i.path, entry.Name())
		if err := i.importFile(full); err != nil {
			i.logger.Warn("skipping credential seed file", "file", entry.Name(), "error", err.Error())
			continue
		}
		imported = true
	}
	return imported, nil
}

func (i *Importer) importFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &errors.ErrFileRead{Path: path, Err: err}
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return err
	}

	credential := &models.OAuth1Token{
		Token:       seed.OAuthToken,
		TokenSecret: seed.OAuthTokenSecret,
		MFAToken:    seed.MFAToken,
		Domain:      seed.Domain,
	}
	if !credential.Valid() {
		return &errors.ErrNoCredential{}
	}

	if err := i.creds.SetOAuth1(credential); err != nil {
		return err
	}
	if seed.DisplayName != "" {
		if err := i.creds.SetDisplayName(seed.DisplayName); err != nil {
			return err
		}
	}

	// The file holds a live secret; remove it once it is in the store.
	if err := os.Remove(path); err != nil {
		i.logger.Warn("failed to remove imported seed file", "file", path, "error", err.Error())
	}

	i.logger.Info("imported credential seed", "file", filepath.Base(path))
	return nil
}

// Watch performs an initial scan and then imports on every file dropped into
// the directory until the context is cancelled.
func (i *Importer) Watch(ctx context.Context) error {
	if i.path == "" {
		return nil
	}
	if err := os.MkdirAll(i.path, 0700); err != nil {
		return &errors.ErrDirectoryCreate{Path: i.path, Err: err}
	}

	if _, err := i.Scan(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(i.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					_, _ = i.Scan()
				}
			case <-watcher.Errors:
				// Watcher errors are non-fatal; the next event still scans.
			}
		}
	}()

	return nil
}
