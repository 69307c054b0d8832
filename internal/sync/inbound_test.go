package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlink/vaultlink/internal/vault"
)

type inboundEnv struct {
	store    *vault.DirStore
	external string
	policy   *Policy
	guard    *Guard
	hashes   *HashCache
	journal  *Journal
	status   *Status
}

func newInboundEnv(t *testing.T, mutate func(*Settings)) (*Inbound, *inboundEnv) {
	t.Helper()

	vaultDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	externalDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	store, err := vault.NewDirStore(vaultDir)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })

	settings := DefaultSettings()
	settings.ExternalRoot = externalDir
	if mutate != nil {
		mutate(settings)
	}
	require.NoError(t, settings.Validate())

	journal := NewJournal(filepath.Join(t.TempDir(), JournalFileName))
	require.NoError(t, journal.Open())
	t.Cleanup(func() { journal.Close() })

	env := &inboundEnv{
		store:    store,
		external: externalDir,
		policy:   NewPolicy(settings),
		guard:    NewGuard(clockwork.NewRealClock()),
		hashes:   NewHashCache(),
		journal:  journal,
		status:   NewStatus(),
	}
	in := NewInbound(store, env.policy, env.guard, env.hashes, env.journal, env.status,
		NewIgnoreList(store.MetadataDir()), clockwork.NewRealClock())
	return in, env
}

func writeExternal(t *testing.T, env *inboundEnv, rel, content string) string {
	t.Helper()
	p := filepath.Join(env.external, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestInbound_FileChangedCreates(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	extPath := writeExternal(t, env, "docs/sub/note.md", "from outside")

	require.NoError(t, in.FileChanged(extPath, "docs/sub/note.md"))

	content, err := env.store.ReadFile("docs/sub/note.md")
	require.NoError(t, err)
	assert.Equal(t, "from outside", content)

	// Intermediate folders were created on the way.
	_, err = env.store.Stat("docs")
	require.NoError(t, err)
	_, err = env.store.Stat("docs/sub")
	require.NoError(t, err)
}

func TestInbound_FileChangedSuppressedWhenIdentical(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	require.NoError(t, env.store.CreateFile("note.txt", "same content"))
	extPath := writeExternal(t, env, "note.txt", "same content")

	require.NoError(t, in.FileChanged(extPath, "note.txt"))

	count, err := env.journal.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count, "identical content must not produce a write")

	// The comparison result is cached, so the next event short-circuits.
	_, ok := env.hashes.Get("note.txt")
	assert.True(t, ok)
}

func TestInbound_FileChangedModifies(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	require.NoError(t, env.store.CreateFile("note.txt", "old"))
	extPath := writeExternal(t, env, "note.txt", "new")

	require.NoError(t, in.FileChanged(extPath, "note.txt"))

	content, err := env.store.ReadFile("note.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", content)

	count, err := env.journal.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInbound_FileChangedSkipsExcluded(t *testing.T) {
	in, env := newInboundEnv(t, func(s *Settings) {
		s.ExcludedPaths = []string{"private"}
	})

	extPath := writeExternal(t, env, "private/diary.md", "secret")

	require.NoError(t, in.FileChanged(extPath, "private/diary.md"))

	_, err := env.store.Stat("private/diary.md")
	assert.ErrorIs(t, err, vault.ErrNotExist)
}

// raceStore reports a path missing even though it exists, forcing the
// create path into the duplicate-exists conflict.
type raceStore struct {
	vault.Store
	missPath string
	misses   int
}

func (r *raceStore) Stat(rel string) (vault.Entry, error) {
	if r.misses > 0 && rel == r.missPath {
		r.misses--
		return nil, vault.ErrNotExist
	}
	return r.Store.Stat(rel)
}

func TestInbound_CreateConflictRetriesAsModify(t *testing.T) {
	_, env := newInboundEnv(t, nil)

	require.NoError(t, env.store.CreateFile("race.txt", "already here"))

	rs := &raceStore{Store: env.store, missPath: "race.txt", misses: 1}
	in := NewInbound(rs, env.policy, env.guard, env.hashes, env.journal, env.status,
		NewIgnoreList(env.store.MetadataDir()), clockwork.NewRealClock())

	extPath := writeExternal(t, env, "race.txt", "external wins")

	require.NoError(t, in.FileChanged(extPath, "race.txt"))

	content, err := env.store.ReadFile("race.txt")
	require.NoError(t, err)
	assert.Equal(t, "external wins", content)
}

func TestInbound_FileDeletedMovesToTrash(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	require.NoError(t, env.store.CreateFile("gone.txt", "bye"))

	require.NoError(t, in.FileDeleted("gone.txt"))

	_, err := env.store.Stat("gone.txt")
	assert.ErrorIs(t, err, vault.ErrNotExist)

	// Soft delete: the file moved into the trash, recoverable.
	entries, err := os.ReadDir(env.store.TrashDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "gone.txt"))
}

func TestInbound_FileDeletedMissingVaultIsNoop(t *testing.T) {
	in, _ := newInboundEnv(t, nil)
	require.NoError(t, in.FileDeleted("never-there.txt"))
}

func TestInbound_DirCreatedChain(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	require.NoError(t, in.DirCreated("a/b/c"))

	for _, rel := range []string{"a", "a/b", "a/b/c"} {
		entry, err := env.store.Stat(rel)
		require.NoError(t, err)
		_, isDir := entry.(*vault.FolderEntry)
		assert.True(t, isDir, "%s should be a folder", rel)
	}

	count, err := env.journal.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestInbound_DirDeletedTrashesSubtree(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	require.NoError(t, env.store.CreateFolder("project"))
	require.NoError(t, env.store.CreateFile("project/a.txt", "a"))

	require.NoError(t, in.DirDeleted("project"))

	_, err := env.store.Stat("project")
	assert.ErrorIs(t, err, vault.ErrNotExist)

	entries, err := os.ReadDir(env.store.TrashDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestInbound_SyncAllTwoPhase(t *testing.T) {
	in, env := newInboundEnv(t, func(s *Settings) {
		s.ExcludedPaths = []string{"skipme"}
	})

	// Empty directory, nested content, junk and an excluded subtree.
	require.NoError(t, os.MkdirAll(filepath.Join(env.external, "empty"), 0o755))
	writeExternal(t, env, "docs/sub/file.txt", "content")
	writeExternal(t, env, ".DS_Store", "junk")
	writeExternal(t, env, "skipme/file.txt", "excluded")

	require.NoError(t, in.SyncAll(context.Background()))

	// Empty directories are mirrored even though no file event would
	// ever surface them.
	entry, err := env.store.Stat("empty")
	require.NoError(t, err)
	_, isDir := entry.(*vault.FolderEntry)
	assert.True(t, isDir)

	content, err := env.store.ReadFile("docs/sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", content)

	_, err = env.store.Stat(".DS_Store")
	assert.ErrorIs(t, err, vault.ErrNotExist)
	_, err = env.store.Stat("skipme")
	assert.ErrorIs(t, err, vault.ErrNotExist)
}

func TestInbound_SyncAllIdempotent(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(env.external, "empty"), 0o755))
	writeExternal(t, env, "docs/a.txt", "a")
	writeExternal(t, env, "docs/b.txt", "b")

	require.NoError(t, in.SyncAll(context.Background()))
	first, err := env.journal.Count()
	require.NoError(t, err)
	require.Greater(t, first, 0)

	// A second pass with no external changes writes nothing.
	require.NoError(t, in.SyncAll(context.Background()))
	second, err := env.journal.Count()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInbound_SyncAllEmptyDirWritesNoFiles(t *testing.T) {
	in, env := newInboundEnv(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(env.external, "hollow"), 0o755))

	require.NoError(t, in.SyncAll(context.Background()))

	entry, err := env.store.Stat("hollow")
	require.NoError(t, err)
	_, isDir := entry.(*vault.FolderEntry)
	assert.True(t, isDir)

	// The whole pass issued exactly one mkdir and no file writes.
	ops, err := env.journal.Recent(10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, OpMkdir, ops[0].Type)
}

// faultyStore fails every write to one path, leaving the rest of the store
// intact.
type faultyStore struct {
	vault.Store
	failRel string
}

func (f *faultyStore) CreateFile(rel string, content string) error {
	if vault.NormPath(rel) == f.failRel {
		return errors.New("disk full")
	}
	return f.Store.CreateFile(rel, content)
}

func TestInbound_SyncAllIsolatesFailures(t *testing.T) {
	_, env := newInboundEnv(t, nil)

	fs := &faultyStore{Store: env.store, failRel: "bad.txt"}
	in := NewInbound(fs, env.policy, env.guard, env.hashes, env.journal, env.status,
		NewIgnoreList(env.store.MetadataDir()), clockwork.NewRealClock())

	writeExternal(t, env, "bad.txt", "doomed")
	writeExternal(t, env, "good.txt", "fine")

	// A failing item is logged and skipped, never aborting the pass.
	require.NoError(t, in.SyncAll(context.Background()))

	content, err := env.store.ReadFile("good.txt")
	require.NoError(t, err)
	assert.Equal(t, "fine", content)

	_, err = env.store.Stat("bad.txt")
	assert.ErrorIs(t, err, vault.ErrNotExist)

	assert.Contains(t, env.status.GetErroredPaths(), "bad.txt")
}

func TestInbound_SyncAllUnconfiguredIsNoop(t *testing.T) {
	in, env := newInboundEnv(t, func(s *Settings) {
		s.ExternalRoot = ""
	})

	writeExternal(t, env, "ignored.txt", "content")

	require.NoError(t, in.SyncAll(context.Background()))

	count, err := env.journal.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInbound_SyncAllRejectsOverlap(t *testing.T) {
	in, _ := newInboundEnv(t, nil)

	in.fullSync.Lock()
	defer in.fullSync.Unlock()

	err := in.SyncAll(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestInbound_SyncAllMappedExternalFolder(t *testing.T) {
	mapped, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	mappedName := filepath.Base(mapped)
	require.NoError(t, os.WriteFile(filepath.Join(mapped, "doc.txt"), []byte("mapped"), 0o644))

	in, env := newInboundEnv(t, func(s *Settings) {
		s.ExternalFolders = []string{mapped}
	})

	require.NoError(t, in.SyncAll(context.Background()))

	// The mapped directory shows up as a top-level vault folder named
	// after its basename.
	content, err := env.store.ReadFile(mappedName + "/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "mapped", content)
}
