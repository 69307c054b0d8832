package vault

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrExists      = errors.New("vault: already exists")
	ErrNotExist    = errors.New("vault: does not exist")
	ErrInvalidPath = errors.New("vault: invalid path")
	ErrLocked      = errors.New("vault locked by another process")
)

// Store is the managed document collection. All paths are vault-relative,
// slash-separated. Text and binary content travel through separate methods
// because callers decide the kind per file.
type Store interface {
	Root() string

	Stat(rel string) (Entry, error)
	List(rel string) ([]Entry, error)
	Walk(rel string, fn func(Entry) error) error

	ReadFile(rel string) (string, error)
	ReadBinary(rel string) ([]byte, error)

	// CreateFile and CreateBinary fail with ErrExists when the path is
	// already present.
	CreateFile(rel string, content string) error
	CreateBinary(rel string, data []byte) error

	// ModifyFile and ModifyBinary fail with ErrNotExist when the path is
	// missing.
	ModifyFile(rel string, content string) error
	ModifyBinary(rel string, data []byte) error

	// CreateFolder creates a single directory level and fails with
	// ErrExists when it is already present.
	CreateFolder(rel string) error

	Rename(oldRel, newRel string) error

	// Trash soft-deletes: the item moves into the vault trash and stays
	// recoverable.
	Trash(rel string) error
}

// NormPath cleans a vault path, replaces backslashes with slashes and trims
// leading slashes.
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}

// TopSegment returns the first path segment of a normalized vault path.
func TopSegment(rel string) string {
	rel = NormPath(rel)
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}
