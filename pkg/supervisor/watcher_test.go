package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootsWatcherNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roots.yml")
	require.NoError(t, os.WriteFile(path, []byte("/a: a\n"), 0644))

	w, err := NewRootsWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	go w.Run(ctx, changed)

	// other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("/a: b\n"), 0644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestRootsWatcherMissingDirectory(t *testing.T) {
	_, err := NewRootsWatcher(filepath.Join(t.TempDir(), "nope", "roots.yml"))
	assert.Error(t, err)
}
