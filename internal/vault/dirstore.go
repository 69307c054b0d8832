package vault

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"github.com/vaultlink/vaultlink/internal/utils"
)

const (
	// MetadataDirName holds vault-internal state (lock, journal, settings,
	// temp files). Never listed, never synced.
	MetadataDirName = ".vaultlink"

	// TrashDirName receives soft-deleted items.
	TrashDirName = ".trash"

	lockFileName = "vaultlink.lock"
	tmpDirName   = "tmp"

	trashStampLayout = "20060102-150405.000000000"
)

// DirStore is a Store rooted at a local directory. Mutations are atomic
// (temp file + rename) and deletion is a move into the trash directory.
type DirStore struct {
	root  string
	fs    afero.Fs
	flock *flock.Flock
}

var _ Store = (*DirStore)(nil)

type DirStoreOption func(*DirStore)

// WithFs replaces the backing filesystem. Instance locking is disabled for
// non-OS filesystems.
func WithFs(fsys afero.Fs) DirStoreOption {
	return func(s *DirStore) {
		s.fs = fsys
	}
}

func NewDirStore(rootDir string, opts ...DirStoreOption) (*DirStore, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root %q: %w", rootDir, err)
	}

	s := &DirStore{
		root: root,
		fs:   afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, ok := s.fs.(*afero.OsFs); ok {
		s.flock = flock.New(filepath.Join(root, MetadataDirName, lockFileName))
	}

	return s, nil
}

// Open prepares the vault directories and takes the instance lock.
func (s *DirStore) Open() error {
	if err := s.fs.MkdirAll(s.MetadataDir(), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	if s.flock != nil {
		locked, err := s.flock.TryLock()
		if err != nil {
			return fmt.Errorf("lock vault: %w", err)
		}
		if !locked {
			return ErrLocked
		}
	}

	slog.Info("vault open", "root", s.root)
	return nil
}

// Close releases the instance lock. Safe to call when Open failed.
func (s *DirStore) Close() error {
	if s.flock == nil || !s.flock.Locked() {
		return nil
	}

	if err := s.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock vault: %w", err)
	}
	return s.fs.Remove(s.flock.Path())
}

func (s *DirStore) Root() string {
	return s.root
}

func (s *DirStore) MetadataDir() string {
	return filepath.Join(s.root, MetadataDirName)
}

func (s *DirStore) TrashDir() string {
	return filepath.Join(s.root, TrashDirName)
}

// AbsPath returns the absolute path for a vault-relative path.
func (s *DirStore) AbsPath(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(NormPath(rel)))
}

// RelPath converts an absolute path under the vault root to a normalized
// vault-relative path.
func (s *DirStore) RelPath(absPath string) (string, error) {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil {
		return "", err
	}
	return NormPath(rel), nil
}

// Internal reports whether a vault-relative path is vault bookkeeping
// (metadata or trash) rather than content.
func (s *DirStore) Internal(rel string) bool {
	top := TopSegment(rel)
	return top == MetadataDirName || top == TrashDirName
}

func (s *DirStore) normRel(rel string) (string, error) {
	n := NormPath(rel)
	if n == "" || n == "." || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	if s.Internal(n) {
		return "", fmt.Errorf("%w: %q is vault internal", ErrInvalidPath, rel)
	}
	return n, nil
}

func (s *DirStore) Stat(rel string) (Entry, error) {
	n, err := s.normRel(rel)
	if err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(s.AbsPath(n))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, n)
		}
		return nil, err
	}

	return entryFromInfo(n, info), nil
}

func (s *DirStore) List(rel string) ([]Entry, error) {
	n := NormPath(rel)
	if n == "." {
		n = ""
	}
	if n != "" {
		var err error
		if n, err = s.normRel(n); err != nil {
			return nil, err
		}
	}

	infos, err := afero.ReadDir(s.fs, s.AbsPath(n))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, n)
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		childRel := NormPath(path.Join(n, info.Name()))
		if s.Internal(childRel) {
			continue
		}
		entries = append(entries, entryFromInfo(childRel, info))
	}
	return entries, nil
}

// Walk visits every entry under rel depth-first, skipping vault internals.
// The walk root itself is not visited.
func (s *DirStore) Walk(rel string, fn func(Entry) error) error {
	n := NormPath(rel)
	if n == "." {
		n = ""
	}

	rootAbs := s.AbsPath(n)
	return afero.Walk(s.fs, rootAbs, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == rootAbs {
			return nil
		}

		childRel, relErr := s.RelPath(p)
		if relErr != nil {
			return relErr
		}
		if s.Internal(childRel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		return fn(entryFromInfo(childRel, info))
	})
}

func (s *DirStore) ReadFile(rel string) (string, error) {
	data, err := s.ReadBinary(rel)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *DirStore) ReadBinary(rel string) ([]byte, error) {
	n, err := s.normRel(rel)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.AbsPath(n))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, n)
		}
		return nil, err
	}
	return data, nil
}

func (s *DirStore) CreateFile(rel string, content string) error {
	return s.CreateBinary(rel, []byte(content))
}

func (s *DirStore) CreateBinary(rel string, data []byte) error {
	n, err := s.normRel(rel)
	if err != nil {
		return err
	}

	if _, err := s.fs.Stat(s.AbsPath(n)); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, n)
	}

	return s.writeAtomic(s.AbsPath(n), data)
}

func (s *DirStore) ModifyFile(rel string, content string) error {
	return s.ModifyBinary(rel, []byte(content))
}

func (s *DirStore) ModifyBinary(rel string, data []byte) error {
	n, err := s.normRel(rel)
	if err != nil {
		return err
	}

	info, err := s.fs.Stat(s.AbsPath(n))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, n)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a folder", ErrInvalidPath, n)
	}

	return s.writeAtomic(s.AbsPath(n), data)
}

func (s *DirStore) CreateFolder(rel string) error {
	n, err := s.normRel(rel)
	if err != nil {
		return err
	}

	if _, err := s.fs.Stat(s.AbsPath(n)); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, n)
	}

	if err := s.fs.Mkdir(s.AbsPath(n), 0o755); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: parent of %s", ErrNotExist, n)
		}
		return err
	}
	return nil
}

func (s *DirStore) Rename(oldRel, newRel string) error {
	oldN, err := s.normRel(oldRel)
	if err != nil {
		return err
	}
	newN, err := s.normRel(newRel)
	if err != nil {
		return err
	}

	if _, err := s.fs.Stat(s.AbsPath(oldN)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, oldN)
		}
		return err
	}
	if _, err := s.fs.Stat(s.AbsPath(newN)); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, newN)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.AbsPath(newN)), 0o755); err != nil {
		return err
	}
	return s.fs.Rename(s.AbsPath(oldN), s.AbsPath(newN))
}

func (s *DirStore) Trash(rel string) error {
	n, err := s.normRel(rel)
	if err != nil {
		return err
	}

	if _, err := s.fs.Stat(s.AbsPath(n)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, n)
		}
		return err
	}

	if err := s.fs.MkdirAll(s.TrashDir(), 0o755); err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}

	// Timestamped names keep repeated deletes of the same path apart.
	stamp := time.Now().UTC().Format(trashStampLayout)
	dest := filepath.Join(s.TrashDir(), stamp+"-"+path.Base(n))

	if err := s.fs.Rename(s.AbsPath(n), dest); err != nil {
		return fmt.Errorf("trash %s: %w", n, err)
	}
	return nil
}

// writeAtomic stages data in the metadata temp dir and renames it into
// place, so readers never observe a half-written file.
func (s *DirStore) writeAtomic(absPath string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}

	tmpDir := filepath.Join(s.MetadataDir(), tmpDirName)
	if err := s.fs.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("ensure temp dir: %w", err)
	}

	tempFile, err := afero.TempFile(s.fs, tmpDir, filepath.Base(absPath)+".vl.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			s.fs.Remove(tempPath)
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

	if err := s.fs.Rename(tempPath, absPath); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", absPath, err)
	}

	success = true
	return nil
}

func entryFromInfo(rel string, info os.FileInfo) Entry {
	if info.IsDir() {
		return &FolderEntry{Path: rel}
	}
	return &FileEntry{
		Path:    rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
