package coreconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quasselcore.conf")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	require.NoError(t, writeFileAtomic(path, []byte("new"), 0o640, zap.NewNop()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "quasselcore.conf")
	require.Error(t, writeFileAtomic(path, []byte("x"), 0o600, zap.NewNop()))
}

func TestWriteInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quasselcore.conf")
	require.NoError(t, os.WriteFile(path, []byte("a much longer old content"), 0o600))

	require.NoError(t, writeInPlace(path, []byte("short"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "short", string(data))
}
