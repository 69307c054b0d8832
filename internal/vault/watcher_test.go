package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchedStore(t *testing.T) (*DirStore, <-chan Event) {
	t.Helper()

	store := newTestStore(t)

	w := NewWatcher(store)
	w.SetDebounceTimeout(30 * time.Millisecond)
	w.SetRenameWindow(150 * time.Millisecond)
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(w.Stop)

	return store, w.Events()
}

func expectEvent(t *testing.T, events <-chan Event, kind EventKind, path string) Event {
	t.Helper()

	for {
		select {
		case ev := <-events:
			if ev.Kind == kind && ev.Path == path {
				return ev
			}
			t.Logf("skipping event %s %s", ev.Kind, ev.Path)
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for %s %s", kind, path)
			return Event{}
		}
	}
}

func expectNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()

	select {
	case ev := <-events:
		t.Fatalf("expected no event, got %s %s", ev.Kind, ev.Path)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_FileCreate(t *testing.T) {
	store, events := newWatchedStore(t)

	path := filepath.Join(store.Root(), "note.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ev := expectEvent(t, events, FileCreated, "note.md")
	assert.Empty(t, ev.OldPath)
}

func TestWatcher_FileModify(t *testing.T) {
	store, events := newWatchedStore(t)

	path := filepath.Join(store.Root(), "existing.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	expectEvent(t, events, FileCreated, "existing.md")

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	expectEvent(t, events, FileModified, "existing.md")
}

func TestWatcher_FolderCreateAndRemove(t *testing.T) {
	store, events := newWatchedStore(t)

	dir := filepath.Join(store.Root(), "projects")
	require.NoError(t, os.Mkdir(dir, 0o755))
	expectEvent(t, events, FolderCreated, "projects")

	require.NoError(t, os.RemoveAll(dir))
	expectEvent(t, events, FolderRemoved, "projects")
}

func TestWatcher_FileRemove(t *testing.T) {
	store, events := newWatchedStore(t)

	path := filepath.Join(store.Root(), "gone.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	expectEvent(t, events, FileCreated, "gone.md")

	require.NoError(t, os.Remove(path))
	expectEvent(t, events, FileRemoved, "gone.md")
}

func TestWatcher_FileRename(t *testing.T) {
	store, events := newWatchedStore(t)

	oldPath := filepath.Join(store.Root(), "before.md")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	expectEvent(t, events, FileCreated, "before.md")

	require.NoError(t, os.Rename(oldPath, filepath.Join(store.Root(), "after.md")))

	ev := expectEvent(t, events, FileRenamed, "after.md")
	assert.Equal(t, "before.md", ev.OldPath)
}

func TestWatcher_FolderRename(t *testing.T) {
	store, events := newWatchedStore(t)

	oldDir := filepath.Join(store.Root(), "olddir")
	require.NoError(t, os.Mkdir(oldDir, 0o755))
	expectEvent(t, events, FolderCreated, "olddir")

	require.NoError(t, os.Rename(oldDir, filepath.Join(store.Root(), "newdir")))

	ev := expectEvent(t, events, FolderRenamed, "newdir")
	assert.Equal(t, "olddir", ev.OldPath)
}

func TestWatcher_InternalPathsSilent(t *testing.T) {
	store, events := newWatchedStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.MetadataDir(), "state.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(store.TrashDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(store.TrashDir(), "old.md"), []byte("x"), 0o644))

	expectNoEvent(t, events)
}

func TestWatcher_StoreWritesEmitEvents(t *testing.T) {
	store, events := newWatchedStore(t)

	require.NoError(t, store.CreateFile("via-store.md", "content"))

	// Atomic store writes land via a rename out of the metadata temp dir.
	// The temp half is internal, so a plain create surfaces.
	expectEvent(t, events, FileCreated, "via-store.md")
}
