package sync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlink/vaultlink/internal/vault"
)

const watchWait = 3 * time.Second

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func newWatcherEnv(t *testing.T, mutate func(*Settings), perDir bool) (*Watcher, *inboundEnv) {
	t.Helper()

	in, env := newInboundEnv(t, mutate)
	w := NewWatcher(env.store, env.policy, env.guard, NewIgnoreList(env.store.MetadataDir()), in, clockwork.NewRealClock())
	w.SetDebounceTimeout(50 * time.Millisecond)
	w.forcePerDir = perDir

	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(w.Stop)
	return w, env
}

func vaultHasFile(env *inboundEnv, rel, content string) func() bool {
	return func() bool {
		got, err := env.store.ReadFile(rel)
		return err == nil && got == content
	}
}

func vaultHasFolder(env *inboundEnv, rel string) func() bool {
	return func() bool {
		entry, err := env.store.Stat(rel)
		if err != nil {
			return false
		}
		_, isDir := entry.(*vault.FolderEntry)
		return isDir
	}
}

func vaultMissing(env *inboundEnv, rel string) func() bool {
	return func() bool {
		_, err := env.store.Stat(rel)
		return errors.Is(err, vault.ErrNotExist)
	}
}

func TestWatcher_ExternalCreateReachesVault(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	p := filepath.Join(env.external, "note.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	assert.True(t, waitFor(t, watchWait, vaultHasFile(env, "note.txt", "hello")),
		"external create should reach the vault")
}

// settleGuard waits out the release settle window, so the next external
// event for a just-synced path is not taken for an echo.
func settleGuard() {
	time.Sleep(guardSettleDelay + 100*time.Millisecond)
}

func TestWatcher_ExternalModifyReachesVault(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	p := filepath.Join(env.external, "note.txt")
	require.NoError(t, os.WriteFile(p, []byte("v1"), 0o644))
	require.True(t, waitFor(t, watchWait, vaultHasFile(env, "note.txt", "v1")))
	settleGuard()

	require.NoError(t, os.WriteFile(p, []byte("v2"), 0o644))
	assert.True(t, waitFor(t, watchWait, vaultHasFile(env, "note.txt", "v2")),
		"external modify should reach the vault")
}

func TestWatcher_ExternalDeleteTrashesVaultFile(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	p := filepath.Join(env.external, "gone.txt")
	require.NoError(t, os.WriteFile(p, []byte("bye"), 0o644))
	require.True(t, waitFor(t, watchWait, vaultHasFile(env, "gone.txt", "bye")))
	settleGuard()

	require.NoError(t, os.Remove(p))

	assert.True(t, waitFor(t, watchWait, vaultMissing(env, "gone.txt")),
		"external delete should trash the vault file")

	entries, err := os.ReadDir(env.store.TrashDir())
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "deletion must be a recoverable soft delete")
}

func TestWatcher_EmptyDirMirrored(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	require.NoError(t, os.Mkdir(filepath.Join(env.external, "empty"), 0o755))

	assert.True(t, waitFor(t, watchWait, vaultHasFolder(env, "empty")),
		"empty external directory should be mirrored")
}

func TestWatcher_MovedInTreeIsScanned(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	// Build a tree outside the watched root, then move it in. Only one
	// event fires for the top directory; the contents come from the scan.
	staging := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "tree", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "tree", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "tree", "sub", "b.txt"), []byte("b"), 0o644))

	require.NoError(t, os.Rename(filepath.Join(staging, "tree"), filepath.Join(env.external, "tree")))

	assert.True(t, waitFor(t, watchWait, vaultHasFile(env, "tree/a.txt", "a")))
	assert.True(t, waitFor(t, watchWait, vaultHasFile(env, "tree/sub/b.txt", "b")))
}

func TestWatcher_GuardBlocksSelfInflictedEvents(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	env.guard.Hold("held.txt")

	require.NoError(t, os.WriteFile(filepath.Join(env.external, "held.txt"), []byte("echo"), 0o644))

	// Give the event time to arrive and clear debounce; it must be
	// dropped, not applied.
	time.Sleep(600 * time.Millisecond)
	_, err := env.store.Stat("held.txt")
	assert.ErrorIs(t, err, vault.ErrNotExist, "events for held paths must be dropped")
}

func TestWatcher_GuardDoesNotBlockOtherPaths(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	env.guard.Hold("held.txt")

	require.NoError(t, os.WriteFile(filepath.Join(env.external, "free.txt"), []byte("flows"), 0o644))

	assert.True(t, waitFor(t, watchWait, vaultHasFile(env, "free.txt", "flows")),
		"a hold on one path must not mask events for another")
}

func TestWatcher_IgnoredJunkNeverSyncs(t *testing.T) {
	_, env := newWatcherEnv(t, nil, false)

	require.NoError(t, os.WriteFile(filepath.Join(env.external, ".DS_Store"), []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.external, "real.txt"), []byte("real"), 0o644))

	require.True(t, waitFor(t, watchWait, vaultHasFile(env, "real.txt", "real")))

	_, err := env.store.Stat(".DS_Store")
	assert.ErrorIs(t, err, vault.ErrNotExist)
}

func TestWatcher_ExcludedPathNeverSyncs(t *testing.T) {
	_, env := newWatcherEnv(t, func(s *Settings) {
		s.ExcludedPaths = []string{"private"}
	}, false)

	require.NoError(t, os.MkdirAll(filepath.Join(env.external, "private"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.external, "private", "diary.md"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.external, "public.txt"), []byte("open"), 0o644))

	require.True(t, waitFor(t, watchWait, vaultHasFile(env, "public.txt", "open")))

	_, err := env.store.Stat("private")
	assert.ErrorIs(t, err, vault.ErrNotExist)
}

func TestWatcher_PerDirFallback(t *testing.T) {
	_, env := newWatcherEnv(t, nil, true)

	// A file in the root, then a fresh directory, then a file inside it.
	// The last one only arrives if the new directory got its own watch.
	require.NoError(t, os.WriteFile(filepath.Join(env.external, "root.txt"), []byte("r"), 0o644))
	require.True(t, waitFor(t, watchWait, vaultHasFile(env, "root.txt", "r")))

	require.NoError(t, os.Mkdir(filepath.Join(env.external, "newdir"), 0o755))
	require.True(t, waitFor(t, watchWait, vaultHasFolder(env, "newdir")))

	require.NoError(t, os.WriteFile(filepath.Join(env.external, "newdir", "inner.txt"), []byte("i"), 0o644))
	assert.True(t, waitFor(t, watchWait, vaultHasFile(env, "newdir/inner.txt", "i")),
		"files in directories created after start must be seen in fallback mode")
}

func TestWatcher_MappedExternalFolder(t *testing.T) {
	mapped, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	mappedName := filepath.Base(mapped)

	_, env := newWatcherEnv(t, func(s *Settings) {
		s.ExternalFolders = []string{mapped}
	}, false)

	require.NoError(t, os.WriteFile(filepath.Join(mapped, "doc.txt"), []byte("mapped"), 0o644))

	assert.True(t, waitFor(t, watchWait, vaultHasFile(env, mappedName+"/doc.txt", "mapped")),
		"writes in a mapped folder should land under its vault prefix")
}

func TestWatcher_StopWithoutRootsIsSafe(t *testing.T) {
	in, env := newInboundEnv(t, func(s *Settings) {
		s.ExternalRoot = ""
	})

	w := NewWatcher(env.store, env.policy, env.guard, NewIgnoreList(env.store.MetadataDir()), in, clockwork.NewRealClock())
	require.NoError(t, w.Start(t.Context()))
	w.Stop()
	w.Stop()
}
