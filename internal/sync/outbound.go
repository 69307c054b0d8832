package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/vaultlink/vaultlink/internal/utils"
	"github.com/vaultlink/vaultlink/internal/vault"
)

const externalDirPerm = 0o755

// ErrDeclined means the confirmation callback kept the external counterpart
// of a deleted vault item in place. Not a failure; callers log and move on.
var ErrDeclined = errors.New("external deletion declined")

// Confirm decides whether the external counterpart of a deleted vault path
// may be removed. Deletion is the only destructive external operation, so
// it is the only one gated this way.
type Confirm func(rel string, isDir bool) bool

// Outbound propagates vault mutations to the external tree. Every touched
// path is held in the guard so the external watcher drops the echo.
type Outbound struct {
	store   vault.Store
	policy  *Policy
	guard   *Guard
	hashes  *HashCache
	journal *Journal
	status  *Status
	confirm Confirm
}

func NewOutbound(store vault.Store, policy *Policy, guard *Guard, hashes *HashCache, journal *Journal, status *Status, confirm Confirm) *Outbound {
	return &Outbound{
		store:   store,
		policy:  policy,
		guard:   guard,
		hashes:  hashes,
		journal: journal,
		status:  status,
		confirm: confirm,
	}
}

// skippable reports policy skips that are not failures.
func skippable(err error) bool {
	return errors.Is(err, ErrExcluded) || errors.Is(err, ErrNoExternalRoot)
}

// resolve maps a vault path to its external counterpart, applying the
// participation rules first.
func (o *Outbound) resolve(rel string) (string, error) {
	if !o.policy.ShouldSync(rel) {
		return "", fmt.Errorf("%w: %s", ErrExcluded, rel)
	}
	return o.policy.ExternalPath(rel)
}

func (o *Outbound) readVault(rel string) ([]byte, error) {
	if KindOf(rel) == KindBinary {
		return o.store.ReadBinary(rel)
	}
	content, err := o.store.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

func (o *Outbound) record(op Op) {
	op.Direction = DirectionOutbound
	if err := o.journal.Record(op); err != nil {
		slog.Warn("journal record failed", "op", op.Type, "path", op.Path, "error", err)
	}
}

// SyncFile writes the vault file's content to its external counterpart.
// The external side is never read for comparison; a write is skipped only
// when the content hash matches the last synced hash and the counterpart
// still exists.
func (o *Outbound) SyncFile(rel string) error {
	rel = vault.NormPath(rel)
	extPath, err := o.resolve(rel)
	if err != nil {
		if skippable(err) {
			slog.Debug("sync skip", "direction", DirectionOutbound, "path", rel, "reason", err)
			return nil
		}
		return err
	}

	data, err := o.readVault(rel)
	if err != nil {
		err = fmt.Errorf("read vault file %s: %w", rel, err)
		o.status.SetError(rel, err)
		return err
	}

	hash := utils.ContentHash(data)
	if known, ok := o.hashes.Get(rel); ok && known == hash && utils.FileExists(extPath) {
		slog.Debug("sync skip", "direction", DirectionOutbound, "path", rel, "reason", "content unchanged")
		return nil
	}

	o.status.SetSyncing(rel, DirectionOutbound)

	o.guard.Hold(rel)
	defer o.guard.Release(rel)

	if err := utils.EnsureParent(extPath); err != nil {
		err = fmt.Errorf("create external parent for %s: %w", rel, err)
		o.status.SetError(rel, err)
		return err
	}

	if err := writeExternalFile(extPath, data); err != nil {
		err = fmt.Errorf("write external %s: %w", rel, err)
		o.status.SetError(rel, err)
		return err
	}

	o.hashes.Remember(rel, hash)
	o.status.SetSynced(rel, int64(len(data)))
	o.record(Op{Type: OpWrite, Path: rel, Detail: humanize.Bytes(uint64(len(data)))})
	slog.Info("sync", "direction", DirectionOutbound, "op", OpWrite, "path", rel, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// SyncFolder mirrors a vault folder as an external directory. Idempotent.
func (o *Outbound) SyncFolder(rel string) error {
	rel = vault.NormPath(rel)
	extPath, err := o.resolve(rel)
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	if utils.DirExists(extPath) {
		return nil
	}

	o.guard.Hold(rel)
	defer o.guard.Release(rel)

	if err := os.MkdirAll(extPath, externalDirPerm); err != nil {
		err = fmt.Errorf("create external dir %s: %w", rel, err)
		o.status.SetError(rel, err)
		return err
	}

	o.status.SetSynced(rel, 0)
	o.record(Op{Type: OpMkdir, Path: rel})
	slog.Info("sync", "direction", DirectionOutbound, "op", OpMkdir, "path", rel)
	return nil
}

// HandleFileDeletion removes the external counterpart of a deleted vault
// file, but only with confirmation. A missing counterpart is fine.
func (o *Outbound) HandleFileDeletion(rel string) error {
	rel = vault.NormPath(rel)
	extPath, err := o.resolve(rel)
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	info, err := os.Stat(extPath)
	if errors.Is(err, os.ErrNotExist) {
		o.hashes.Forget(rel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat external %s: %w", rel, err)
	}
	if info.IsDir() {
		// The trees diverged and a directory sits there now. Leave it.
		slog.Debug("sync skip", "direction", DirectionOutbound, "op", OpDelete, "path", rel, "reason", "external is a directory")
		return nil
	}

	if o.confirm == nil || !o.confirm(rel, false) {
		slog.Info("sync", "direction", DirectionOutbound, "op", OpDelete, "path", rel, "result", "declined")
		return ErrDeclined
	}

	o.guard.Hold(rel)
	defer o.guard.Release(rel)

	if err := os.Remove(extPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		err = fmt.Errorf("delete external %s: %w", rel, err)
		o.status.SetError(rel, err)
		return err
	}

	o.hashes.Forget(rel)
	o.status.SetSynced(rel, 0)
	o.record(Op{Type: OpDelete, Path: rel})
	slog.Info("sync", "direction", DirectionOutbound, "op", OpDelete, "path", rel)
	return nil
}

// HandleFolderDeletion removes the external directory mirroring a deleted
// vault folder, with confirmation. The whole subtree is held in the guard
// first so the removal burst cannot re-enter as inbound deletions.
func (o *Outbound) HandleFolderDeletion(rel string) error {
	rel = vault.NormPath(rel)
	extPath, err := o.resolve(rel)
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	info, err := os.Stat(extPath)
	if errors.Is(err, os.ErrNotExist) {
		o.hashes.ForgetPrefix(rel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat external %s: %w", rel, err)
	}
	if !info.IsDir() {
		slog.Debug("sync skip", "direction", DirectionOutbound, "op", OpDelete, "path", rel, "reason", "external is a file")
		return nil
	}

	if o.confirm == nil || !o.confirm(rel, true) {
		slog.Info("sync", "direction", DirectionOutbound, "op", OpDelete, "path", rel, "result", "declined")
		return ErrDeclined
	}

	held := o.holdTree(rel, extPath)
	defer func() {
		for _, h := range held {
			o.guard.Release(h)
		}
	}()

	if err := os.RemoveAll(extPath); err != nil {
		err = fmt.Errorf("delete external dir %s: %w", rel, err)
		o.status.SetError(rel, err)
		return err
	}

	o.hashes.ForgetPrefix(rel)
	o.status.SetSynced(rel, 0)
	o.record(Op{Type: OpDelete, Path: rel, Detail: "folder"})
	slog.Info("sync", "direction", DirectionOutbound, "op", OpDelete, "path", rel, "kind", "folder")
	return nil
}

// holdTree holds rel and every vault path under the external directory.
func (o *Outbound) holdTree(rel, extPath string) []string {
	held := []string{rel}
	o.guard.Hold(rel)
	filepath.WalkDir(extPath, func(p string, _ fs.DirEntry, err error) error {
		if err != nil || p == extPath {
			return nil
		}
		sub, rerr := filepath.Rel(extPath, p)
		if rerr != nil {
			return nil
		}
		childRel := path.Join(rel, filepath.ToSlash(sub))
		o.guard.Hold(childRel)
		held = append(held, childRel)
		return nil
	})
	return held
}

// HandleFileRename renames the external counterpart in place. Returns false
// with a nil error when the external source is missing, so the caller falls
// back to a fresh SyncFile on the new path.
func (o *Outbound) HandleFileRename(oldRel, newRel string) (bool, error) {
	oldRel = vault.NormPath(oldRel)
	newRel = vault.NormPath(newRel)

	extNew, err := o.resolve(newRel)
	if err != nil {
		if skippable(err) {
			return false, nil
		}
		return false, err
	}
	extOld, err := o.policy.ExternalPath(oldRel)
	if err != nil {
		if skippable(err) {
			return false, nil
		}
		return false, err
	}

	if !utils.FileExists(extOld) {
		return false, nil
	}

	o.guard.Hold(oldRel)
	o.guard.Hold(newRel)
	defer o.guard.Release(oldRel)
	defer o.guard.Release(newRel)

	if err := utils.EnsureParent(extNew); err != nil {
		err = fmt.Errorf("create external parent for %s: %w", newRel, err)
		o.status.SetError(newRel, err)
		return false, err
	}
	if err := os.Rename(extOld, extNew); err != nil {
		err = fmt.Errorf("rename external %s to %s: %w", oldRel, newRel, err)
		o.status.SetError(newRel, err)
		return false, err
	}

	if hash, ok := o.hashes.Get(oldRel); ok {
		o.hashes.Remember(newRel, hash)
	}
	o.hashes.Forget(oldRel)
	o.status.SetSynced(newRel, 0)
	o.record(Op{Type: OpRename, Path: newRel, Detail: "from " + oldRel})
	slog.Info("sync", "direction", DirectionOutbound, "op", OpRename, "from", oldRel, "to", newRel)
	return true, nil
}

// HandleFolderRename moves the external directory to the new path. When the
// target already exists the source is merged into it file by file, and the
// source directory stays behind only if something in it could not move.
func (o *Outbound) HandleFolderRename(oldRel, newRel string) error {
	oldRel = vault.NormPath(oldRel)
	newRel = vault.NormPath(newRel)

	extNew, err := o.resolve(newRel)
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}
	extOld, err := o.policy.ExternalPath(oldRel)
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	o.guard.Hold(oldRel)
	o.guard.Hold(newRel)
	defer o.guard.Release(oldRel)
	defer o.guard.Release(newRel)

	srcInfo, err := os.Stat(extOld)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Source never made it outside. Create the target fresh.
		if err := os.MkdirAll(extNew, externalDirPerm); err != nil {
			err = fmt.Errorf("create external dir %s: %w", newRel, err)
			o.status.SetError(newRel, err)
			return err
		}
		o.record(Op{Type: OpMkdir, Path: newRel})
		slog.Info("sync", "direction", DirectionOutbound, "op", OpMkdir, "path", newRel)

	case err != nil:
		return fmt.Errorf("stat external %s: %w", oldRel, err)

	case !srcInfo.IsDir():
		slog.Debug("sync skip", "direction", DirectionOutbound, "op", OpRename, "path", oldRel, "reason", "external is a file")
		return nil

	default:
		dstInfo, err := os.Stat(extNew)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if err := utils.EnsureParent(extNew); err != nil {
				err = fmt.Errorf("create external parent for %s: %w", newRel, err)
				o.status.SetError(newRel, err)
				return err
			}
			if err := os.Rename(extOld, extNew); err != nil {
				err = fmt.Errorf("rename external dir %s to %s: %w", oldRel, newRel, err)
				o.status.SetError(newRel, err)
				return err
			}
			o.record(Op{Type: OpRename, Path: newRel, Detail: "from " + oldRel})
			slog.Info("sync", "direction", DirectionOutbound, "op", OpRename, "from", oldRel, "to", newRel, "kind", "folder")

		case err != nil:
			return fmt.Errorf("stat external %s: %w", newRel, err)

		case dstInfo.IsDir():
			o.mergeExternalDir(extOld, extNew, oldRel, newRel)
			// Drops the source only once everything moved out.
			if err := os.Remove(extOld); err != nil {
				slog.Debug("sync merge source kept", "path", oldRel, "error", err)
			}
			o.record(Op{Type: OpMerge, Path: newRel, Detail: "from " + oldRel})
			slog.Info("sync", "direction", DirectionOutbound, "op", OpMerge, "from", oldRel, "to", newRel)

		default:
			slog.Debug("sync skip", "direction", DirectionOutbound, "op", OpRename, "path", newRel, "reason", "external target is a file")
			return nil
		}
	}

	o.hashes.ForgetPrefix(oldRel)
	o.hashes.ForgetPrefix(newRel)
	o.status.SetSynced(newRel, 0)
	return nil
}

// mergeExternalDir moves everything under src into dst, overwriting files
// and recursing into subdirectories. Emptied source subdirectories are
// removed. Per-item failures skip that item and keep going.
func (o *Outbound) mergeExternalDir(srcDir, dstDir, srcRel, dstRel string) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		slog.Error("sync", "direction", DirectionOutbound, "op", OpMerge, "path", srcRel, "error", err)
		return
	}

	for _, entry := range entries {
		srcPath := filepath.Join(srcDir, entry.Name())
		dstPath := filepath.Join(dstDir, entry.Name())
		srcChild := path.Join(srcRel, entry.Name())
		dstChild := path.Join(dstRel, entry.Name())

		o.guard.Hold(srcChild)
		o.guard.Hold(dstChild)

		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, externalDirPerm); err != nil {
				slog.Error("sync", "direction", DirectionOutbound, "op", OpMerge, "path", dstChild, "error", err)
				o.guard.Release(srcChild)
				o.guard.Release(dstChild)
				continue
			}
			o.mergeExternalDir(srcPath, dstPath, srcChild, dstChild)
			if err := os.Remove(srcPath); err != nil {
				slog.Debug("sync merge source kept", "path", srcChild, "error", err)
			}
		} else {
			if err := utils.CopyFile(srcPath, dstPath); err != nil {
				slog.Error("sync", "direction", DirectionOutbound, "op", OpMerge, "path", dstChild, "error", err)
				o.guard.Release(srcChild)
				o.guard.Release(dstChild)
				continue
			}
			if err := os.Remove(srcPath); err != nil {
				slog.Error("sync", "direction", DirectionOutbound, "op", OpMerge, "path", srcChild, "error", err)
			}
		}

		o.guard.Release(srcChild)
		o.guard.Release(dstChild)
	}
}

// writeExternalFile writes data atomically next to the destination. The
// temp name matches the built-in ignore list so the watcher never
// dispatches it.
func writeExternalFile(dest string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".vl.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", dest, err)
	}

	success = true
	return nil
}
