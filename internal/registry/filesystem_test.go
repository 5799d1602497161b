package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTaskDir(t *testing.T, root, name, uuid, version string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile),
		[]byte(`{"uuid":"`+uuid+`","name":"`+name+`","version":"`+version+`"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, scriptFile), []byte("function run(input) { return input; }"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, inputSchema), []byte(`{"type":"object"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, outputSchema), []byte(`{"type":"object"}`), 0o644))
	return dir
}

func TestFilesystemSource_DiscoversImmediateSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeTaskDir(t, root, "alpha", "00000000-0000-4000-8000-000000000010", "1.0.0")
	writeTaskDir(t, root, "beta", "00000000-0000-4000-8000-000000000011", "1.0.0")

	src := NewFilesystemSource(root, false)
	tasks, err := src.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestFilesystemSource_NonRecursiveIgnoresNestedDirectories(t *testing.T) {
	root := t.TempDir()
	writeTaskDir(t, root, "alpha", "00000000-0000-4000-8000-000000000010", "1.0.0")
	writeTaskDir(t, filepath.Join(root, "group"), "nested", "00000000-0000-4000-8000-000000000012", "1.0.0")

	src := NewFilesystemSource(root, false)
	tasks, err := src.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "a nested task directory should not be found without recursive mode")
}

func TestFilesystemSource_RecursiveFindsNestedDirectories(t *testing.T) {
	root := t.TempDir()
	writeTaskDir(t, root, "alpha", "00000000-0000-4000-8000-000000000010", "1.0.0")
	writeTaskDir(t, filepath.Join(root, "group"), "nested", "00000000-0000-4000-8000-000000000012", "1.0.0")

	src := NewFilesystemSource(root, true)
	tasks, err := src.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestFilesystemSource_RejectsTaskDirMissingRequiredMetadata(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile), []byte(`{"name":"broken"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, scriptFile), []byte("function run(i){return i;}"), 0o644))

	src := NewFilesystemSource(root, false)
	_, err := src.Discover(context.Background())
	require.Error(t, err)
}

func TestFilesystemSource_MissingSchemasDefaultToEmptyObject(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "minimal")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile),
		[]byte(`{"uuid":"00000000-0000-4000-8000-000000000020","name":"minimal","version":"1.0.0"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, scriptFile), []byte("function run(i){return i;}"), 0o644))

	src := NewFilesystemSource(root, false)
	tasks, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.JSONEq(t, `{}`, string(tasks[0].InputSchema))
	assert.JSONEq(t, `{}`, string(tasks[0].OutputSchema))
}

func TestEmbeddedSource_DiscoversBuiltinEcho(t *testing.T) {
	src := NewEmbeddedSource()
	tasks, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "echo", tasks[0].Name)
	assert.NotEmpty(t, tasks[0].Checksum)
}
