package seed

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/biosync/biosync/internal/credstore"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/store"
	"github.com/stretchr/testify/require"
)

func newImporter(t *testing.T) (*Importer, *credstore.CredStore, string) {
	t.Helper()
	dir := t.TempDir()
	creds := credstore.New(store.NewMemorySettingsStore())
	logger := logging.NewLogger(logging.WithOutput(io.Discard))
	return NewImporter(dir, creds, logger), creds, dir
}

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func TestScanImportsValidSeedAndRemovesFile(t *testing.T) {
	importer, creds, dir := newImporter(t)

	writeSeed(t, dir, "cred.json",
		`{"oauth_token":"tok","oauth_token_secret":"sec","domain":"example.com","display_name":"athlete42"}`)

	imported, err := importer.Scan()
	require.NoError(t, err)
	require.True(t, imported)

	credential, err := creds.OAuth1()
	require.NoError(t, err)
	require.Equal(t, "tok", credential.Token)
	require.Equal(t, "example.com", credential.Domain)
	require.Equal(t, "athlete42", creds.DisplayName())

	// The live secret must not linger on disk.
	_, err = os.Stat(filepath.Join(dir, "cred.json"))
	require.True(t, os.IsNotExist(err))
}

func TestScanSkipsInvalidFiles(t *testing.T) {
	importer, creds, dir := newImporter(t)

	writeSeed(t, dir, "broken.json", `not json`)
	writeSeed(t, dir, "incomplete.json", `{"oauth_token":"only-half"}`)
	writeSeed(t, dir, "notes.txt", `ignored`)

	imported, err := importer.Scan()
	require.NoError(t, err)
	require.False(t, imported)

	_, err = creds.OAuth1()
	require.Error(t, err)
}

func TestScanMissingDirectoryIsNoop(t *testing.T) {
	creds := credstore.New(store.NewMemorySettingsStore())
	logger := logging.NewLogger(logging.WithOutput(io.Discard))
	importer := NewImporter(filepath.Join(t.TempDir(), "absent"), creds, logger)

	imported, err := importer.Scan()
	require.NoError(t, err)
	require.False(t, imported)
}

func TestWatchImportsDroppedFile(t *testing.T) {
	importer, creds, dir := newImporter(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, importer.Watch(ctx))

	writeSeed(t, dir, "cred.json", `{"oauth_token":"tok","oauth_token_secret":"sec"}`)

	require.Eventually(t, func() bool {
		_, err := creds.OAuth1()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
