package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFileAtomic(path, []byte("new"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone", "data.json")
	assert.Error(t, WriteFileAtomic(path, []byte("x"), 0o644))
}

func TestModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	_, ok := ModTime(path)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	mt, ok := ModTime(path)
	assert.True(t, ok)
	assert.NotZero(t, mt)
}
