package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/vaultlink/vaultlink/internal/utils"
	"github.com/vaultlink/vaultlink/internal/vault"
)

// createRetryDelay is the settle before a lost create race retries as a
// modify.
const createRetryDelay = 250 * time.Millisecond

// ErrSyncInProgress means a full sync is already running. Cycles never
// overlap.
var ErrSyncInProgress = errors.New("full sync already running")

// Inbound propagates external mutations into the vault. Writes only happen
// when content actually differs, so echoes and rescans stay cheap.
type Inbound struct {
	store   vault.Store
	policy  *Policy
	guard   *Guard
	hashes  *HashCache
	journal *Journal
	status  *Status
	ignore  *IgnoreList
	clock   clockwork.Clock

	fullSync sync.Mutex
}

func NewInbound(store vault.Store, policy *Policy, guard *Guard, hashes *HashCache, journal *Journal, status *Status, ignore *IgnoreList, clock clockwork.Clock) *Inbound {
	return &Inbound{
		store:   store,
		policy:  policy,
		guard:   guard,
		hashes:  hashes,
		journal: journal,
		status:  status,
		ignore:  ignore,
		clock:   clock,
	}
}

func (i *Inbound) record(op Op) {
	op.Direction = DirectionInbound
	if err := i.journal.Record(op); err != nil {
		slog.Warn("journal record failed", "op", op.Type, "path", op.Path, "error", err)
	}
}

// FileChanged applies an external file's content to the vault counterpart.
// Identical content is a no-op.
func (i *Inbound) FileChanged(extPath, rel string) error {
	return i.fileChanged(extPath, rel, "")
}

func (i *Inbound) fileChanged(extPath, rel, cycle string) error {
	rel = vault.NormPath(rel)
	if !i.policy.ShouldSync(rel) {
		return nil
	}

	data, err := os.ReadFile(extPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Gone before we got to it. The removal surfaces separately.
			return nil
		}
		return fmt.Errorf("read external %s: %w", rel, err)
	}

	hash := utils.ContentHash(data)
	if known, ok := i.hashes.Get(rel); ok && known == hash {
		return nil
	}

	kind := KindOf(rel)

	entry, err := i.store.Stat(rel)
	switch {
	case errors.Is(err, vault.ErrNotExist):
		return i.createVaultFile(rel, kind, data, hash, cycle)
	case err != nil:
		return fmt.Errorf("stat vault %s: %w", rel, err)
	}

	if _, isDir := entry.(*vault.FolderEntry); isDir {
		slog.Debug("sync skip", "direction", DirectionInbound, "path", rel, "reason", "vault has a folder at this path")
		return nil
	}

	same, err := i.vaultContentEqual(rel, kind, data)
	if err != nil {
		return err
	}
	if same {
		i.hashes.Remember(rel, hash)
		return nil
	}
	return i.modifyVaultFile(rel, kind, data, hash, cycle)
}

func (i *Inbound) vaultContentEqual(rel string, kind FileKind, data []byte) (bool, error) {
	if kind == KindBinary {
		existing, err := i.store.ReadBinary(rel)
		if err != nil {
			return false, fmt.Errorf("read vault %s: %w", rel, err)
		}
		return bytes.Equal(existing, data), nil
	}

	existing, err := i.store.ReadFile(rel)
	if err != nil {
		return false, fmt.Errorf("read vault %s: %w", rel, err)
	}
	return existing == string(data), nil
}

func (i *Inbound) createVaultFile(rel string, kind FileKind, data []byte, hash, cycle string) error {
	i.status.SetSyncing(rel, DirectionInbound)

	if parent := path.Dir(rel); parent != "." {
		if _, err := i.mkdirChain(parent, cycle); err != nil {
			i.status.SetError(rel, err)
			return err
		}
	}

	i.guard.Hold(rel)
	var err error
	if kind == KindBinary {
		err = i.store.CreateBinary(rel, data)
	} else {
		err = i.store.CreateFile(rel, string(data))
	}
	i.guard.Release(rel)

	if errors.Is(err, vault.ErrExists) {
		// Lost a create race. Settle briefly, then apply as a modify.
		slog.Debug("sync create conflict", "path", rel)
		i.clock.Sleep(createRetryDelay)
		return i.modifyVaultFile(rel, kind, data, hash, cycle)
	}
	if err != nil {
		err = fmt.Errorf("create vault %s: %w", rel, err)
		i.status.SetError(rel, err)
		return err
	}

	i.hashes.Remember(rel, hash)
	i.status.SetSynced(rel, int64(len(data)))
	i.record(Op{Cycle: cycle, Type: OpWrite, Path: rel, Detail: humanize.Bytes(uint64(len(data)))})
	slog.Info("sync", "direction", DirectionInbound, "op", OpWrite, "path", rel, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

func (i *Inbound) modifyVaultFile(rel string, kind FileKind, data []byte, hash, cycle string) error {
	i.status.SetSyncing(rel, DirectionInbound)

	i.guard.Hold(rel)
	var err error
	if kind == KindBinary {
		err = i.store.ModifyBinary(rel, data)
	} else {
		err = i.store.ModifyFile(rel, string(data))
	}
	i.guard.Release(rel)

	if err != nil {
		err = fmt.Errorf("modify vault %s: %w", rel, err)
		i.status.SetError(rel, err)
		return err
	}

	i.hashes.Remember(rel, hash)
	i.status.SetSynced(rel, int64(len(data)))
	i.record(Op{Cycle: cycle, Type: OpWrite, Path: rel, Detail: humanize.Bytes(uint64(len(data)))})
	slog.Info("sync", "direction", DirectionInbound, "op", OpWrite, "path", rel, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// mkdirChain creates every missing level of rel, holding each created level
// in the guard so the vault watcher drops the echo.
func (i *Inbound) mkdirChain(rel, cycle string) (int, error) {
	rel = vault.NormPath(rel)

	created := 0
	var prefix string
	for _, seg := range strings.Split(rel, "/") {
		prefix = path.Join(prefix, seg)

		i.guard.Hold(prefix)
		err := i.store.CreateFolder(prefix)
		i.guard.Release(prefix)

		switch {
		case err == nil:
			created++
			i.record(Op{Cycle: cycle, Type: OpMkdir, Path: prefix})
			slog.Info("sync", "direction", DirectionInbound, "op", OpMkdir, "path", prefix)
		case errors.Is(err, vault.ErrExists):
			// level already there
		default:
			return created, fmt.Errorf("create vault folder %s: %w", prefix, err)
		}
	}
	return created, nil
}

// DirCreated mirrors an external directory into the vault, including every
// missing intermediate level. Empty directories count.
func (i *Inbound) DirCreated(rel string) error {
	return i.dirCreated(rel, "")
}

func (i *Inbound) dirCreated(rel, cycle string) error {
	rel = vault.NormPath(rel)
	if !i.policy.ShouldSync(rel) {
		return nil
	}
	_, err := i.mkdirChain(rel, cycle)
	return err
}

// FileDeleted soft-deletes the vault counterpart of a removed external
// file. The trash keeps it recoverable.
func (i *Inbound) FileDeleted(rel string) error {
	rel = vault.NormPath(rel)
	if !i.policy.ShouldSync(rel) {
		return nil
	}
	return i.softDelete(rel)
}

// DirDeleted soft-deletes the vault folder, contents included.
func (i *Inbound) DirDeleted(rel string) error {
	rel = vault.NormPath(rel)
	if !i.policy.ShouldSync(rel) {
		return nil
	}
	return i.softDelete(rel)
}

// softDelete trashes whatever the vault holds at rel. The caller's
// file-or-folder belief comes from watch-event classification; the vault's
// stat is authoritative.
func (i *Inbound) softDelete(rel string) error {
	entry, err := i.store.Stat(rel)
	if errors.Is(err, vault.ErrNotExist) {
		i.hashes.ForgetPrefix(rel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat vault %s: %w", rel, err)
	}

	kind := "file"
	detail := ""
	if _, isDir := entry.(*vault.FolderEntry); isDir {
		kind = "folder"
		detail = "folder"
	}

	i.status.SetSyncing(rel, DirectionInbound)
	i.guard.Hold(rel)
	err = i.store.Trash(rel)
	i.guard.Release(rel)
	if err != nil {
		err = fmt.Errorf("trash vault %s: %w", rel, err)
		i.status.SetError(rel, err)
		return err
	}

	i.hashes.ForgetPrefix(rel)
	i.status.SetSynced(rel, 0)
	i.record(Op{Type: OpTrash, Path: rel, Detail: detail})
	slog.Info("sync", "direction", DirectionInbound, "op", OpTrash, "path", rel, "kind", kind)
	return nil
}

type cycleStats struct {
	dirs     int
	files    int
	failures int
}

// SyncAll runs the two-phase full synchronization: first the directory
// structure of every external root, then file contents. The separation
// guarantees empty directories get mirrored and every parent exists before
// a file lands. Overlapping invocations are rejected.
func (i *Inbound) SyncAll(ctx context.Context) error {
	if !i.fullSync.TryLock() {
		return ErrSyncInProgress
	}
	defer i.fullSync.Unlock()

	if !i.policy.Ready() {
		slog.Debug("full sync skip", "reason", "no external root configured")
		return nil
	}

	cycle := uuid.NewString()
	start := i.clock.Now()
	roots := i.policy.Roots()
	slog.Info("full sync started", "cycle", cycle, "roots", len(roots))

	var stats cycleStats
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		i.syncDirs(ctx, root, cycle, &stats)
	}
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		i.syncFiles(ctx, root, cycle, &stats)
	}

	i.status.SetCycle(cycle)
	slog.Info("full sync finished", "cycle", cycle,
		"dirs", stats.dirs, "files", stats.files, "failures", stats.failures,
		"took", i.clock.Since(start).Round(time.Millisecond))
	return nil
}

// syncDirs is phase 1: mirror the directory structure under one root.
func (i *Inbound) syncDirs(ctx context.Context, root WatchRoot, cycle string, stats *cycleStats) {
	if !utils.DirExists(root.Path) {
		slog.Warn("full sync root missing", "path", root.Path)
		return
	}

	filepath.WalkDir(root.Path, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			slog.Warn("full sync walk", "path", p, "error", err)
			stats.failures++
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, rerr := i.policy.ManagedRel(root, p)
		if rerr != nil {
			// The unmapped root directory itself.
			return nil
		}
		if i.ignore.ShouldIgnore(rel) {
			return fs.SkipDir
		}
		if !i.policy.ShouldSync(rel) {
			// In include-list mode a deeper prefix may still match, so
			// keep walking instead of pruning.
			return nil
		}

		n, err := i.mkdirChain(rel, cycle)
		if err != nil {
			slog.Error("full sync", "op", OpMkdir, "path", rel, "error", err)
			stats.failures++
			return nil
		}
		stats.dirs += n
		return nil
	})
}

// syncFiles is phase 2: file contents under one root.
func (i *Inbound) syncFiles(ctx context.Context, root WatchRoot, cycle string, stats *cycleStats) {
	if !utils.DirExists(root.Path) {
		return
	}

	filepath.WalkDir(root.Path, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			slog.Warn("full sync walk", "path", p, "error", err)
			stats.failures++
			return nil
		}

		rel, rerr := i.policy.ManagedRel(root, p)
		if rerr != nil {
			return nil
		}
		if d.IsDir() {
			if i.ignore.ShouldIgnore(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if i.ignore.ShouldIgnore(rel) || !i.policy.ShouldSync(rel) {
			return nil
		}

		if err := i.fileChanged(p, rel, cycle); err != nil {
			slog.Error("full sync", "op", OpWrite, "path", rel, "error", err)
			stats.failures++
			return nil
		}
		stats.files++
		return nil
	})
}
