package vault

import "time"

// Entry is one item in a vault listing. It is a closed variant: every Entry
// is either a *FileEntry or a *FolderEntry, so consumers type-switch instead
// of probing strings.
type Entry interface {
	RelPath() string
	isEntry()
}

type FileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func (e *FileEntry) RelPath() string { return e.Path }
func (*FileEntry) isEntry()          {}

type FolderEntry struct {
	Path string
}

func (e *FolderEntry) RelPath() string { return e.Path }
func (*FolderEntry) isEntry()          {}
