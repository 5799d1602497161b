package output

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
)

func testOutputConfig() config.OutputConfig {
	cfg := config.OutputConfig{}
	cfg.SetDefaults()
	return cfg
}

func TestFilesystemDelivery_WritesFileAtomically(t *testing.T) {
	dir := t.TempDir()
	d := NewFilesystemDelivery(testOutputConfig())

	dest := domain.FilesystemDestination{
		PathTemplate: filepath.Join(dir, "{{job_id}}.json"),
		Format:       domain.FormatJSONCompact,
		CreateDirs:   true,
		Overwrite:    true,
	}
	err := d.Deliver(context.Background(), dest, json.RawMessage(`{"ok":true}`), map[string]string{"job_id": "abc"})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "abc.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file should remain after a successful write")
}

func TestFilesystemDelivery_RefusesOverwriteByDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	d := NewFilesystemDelivery(testOutputConfig())
	dest := domain.FilesystemDestination{PathTemplate: path, Format: domain.FormatJSONCompact}

	err := d.Deliver(context.Background(), dest, json.RawMessage(`{"new":true}`), nil)
	require.Error(t, err)
}

func TestFilesystemDelivery_BacksUpExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"old":true}`), 0o644))

	d := NewFilesystemDelivery(testOutputConfig())
	dest := domain.FilesystemDestination{
		PathTemplate:   path,
		Format:         domain.FormatJSONCompact,
		Overwrite:      true,
		BackupExisting: true,
	}
	err := d.Deliver(context.Background(), dest, json.RawMessage(`{"new":true}`), nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "original file plus backup should both exist")
}

func TestFilesystemDelivery_CSVFromObjectArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	d := NewFilesystemDelivery(testOutputConfig())

	dest := domain.FilesystemDestination{PathTemplate: path, Format: domain.FormatCSV, Overwrite: true}
	output := json.RawMessage(`[{"b":2,"a":1},{"a":3,"b":4}]`)
	err := d.Deliver(context.Background(), dest, output, nil)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n3,4\n", string(content))
}

func TestFilesystemDelivery_RejectsInvalidPathTemplate(t *testing.T) {
	d := NewFilesystemDelivery(testOutputConfig())
	dest := domain.FilesystemDestination{PathTemplate: "/tmp/{{unterminated", Format: domain.FormatJSONCompact}

	err := d.Deliver(context.Background(), dest, json.RawMessage(`{}`), nil)
	require.Error(t, err)
}
