package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOlderThan(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "old_audio.wav")
	require.NoError(t, os.WriteFile(stale, []byte("w"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	fresh := filepath.Join(dir, "new_audio.wav")
	require.NoError(t, os.WriteFile(fresh, []byte("w"), 0o644))

	// Subdirectories are not descended into.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	found, err := FindOlderThan(dir, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, found)
}

func TestFindOlderThanMissingDir(t *testing.T) {
	_, err := FindOlderThan(filepath.Join(t.TempDir(), "nope"), time.Now())
	assert.Error(t, err)
}
