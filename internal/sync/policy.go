package sync

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vaultlink/vaultlink/internal/vault"
)

var (
	// ErrNoExternalRoot means sync is unconfigured. Callers treat it as a
	// silent no-op, not a failure.
	ErrNoExternalRoot = errors.New("no external root configured")

	// ErrExcluded marks a path the policy keeps out of sync.
	ErrExcluded = errors.New("path excluded from sync")
)

// FileKind tells callers which vault content API to use for a path.
type FileKind string

const (
	KindText   FileKind = "text"
	KindBinary FileKind = "binary"
)

var binaryExtensions = map[string]struct{}{
	// images
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {}, "svg": {}, "webp": {}, "ico": {},
	// documents
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "ppt": {}, "pptx": {},
	// archives
	"zip": {}, "tar": {}, "gz": {}, "7z": {}, "rar": {},
	// audio
	"mp3": {}, "wav": {}, "ogg": {}, "flac": {}, "m4a": {},
	// video
	"mp4": {}, "avi": {}, "mkv": {}, "mov": {}, "webm": {},
	// executables
	"exe": {}, "dll": {}, "so": {}, "bin": {},
	// fonts
	"ttf": {}, "otf": {}, "woff": {}, "woff2": {},
}

// KindOf classifies a path by extension. Unknown extensions are text.
func KindOf(rel string) FileKind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(rel), "."))
	if _, ok := binaryExtensions[ext]; ok {
		return KindBinary
	}
	return KindText
}

// WatchRoot is one watched external directory and the vault folder it maps
// to. Prefix is empty for the external root itself.
type WatchRoot struct {
	Path   string
	Prefix string
}

type extFolder struct {
	abs  string
	base string
}

// Policy decides which vault paths sync and where they land externally.
// Safe for concurrent use; Reload swaps the rules in place.
type Policy struct {
	mu       sync.RWMutex
	root     string
	mode     Mode
	excluded []string
	included []string
	folders  []extFolder
}

func NewPolicy(s *Settings) *Policy {
	p := &Policy{}
	p.Reload(s)
	return p
}

// Reload replaces the policy rules from settings.
func (p *Policy) Reload(s *Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.root = s.ExternalRoot
	p.mode = s.Mode
	p.excluded = normPrefixes(s.ExcludedPaths)
	p.included = normPrefixes(s.IncludedPaths)

	p.folders = p.folders[:0]
	for _, folder := range s.ExternalFolders {
		p.folders = append(p.folders, extFolder{
			abs:  folder,
			base: path.Base(filepath.ToSlash(folder)),
		})
	}
}

// Ready reports whether any external destination is configured.
func (p *Policy) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root != "" || len(p.folders) > 0
}

// ShouldSync applies the mode rules to a vault path. Prefix matching is
// segment-exact: "ab/c" is not under the prefix "a".
func (p *Policy) ShouldSync(rel string) bool {
	rel = vault.NormPath(rel)
	if rel == "" || rel == "." {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	switch p.mode {
	case ModeIncludeListOnly:
		for _, prefix := range p.included {
			if underPrefix(rel, prefix) {
				return true
			}
		}
		top := vault.TopSegment(rel)
		for _, folder := range p.folders {
			if folder.base == top {
				return true
			}
		}
		return false
	default:
		for _, prefix := range p.excluded {
			if underPrefix(rel, prefix) {
				return false
			}
		}
		return true
	}
}

// ExternalPath maps a vault path to its mirror location. Paths under a
// mapped folder substitute that folder's directory; everything else lands
// under the external root.
func (p *Policy) ExternalPath(rel string) (string, error) {
	rel = vault.NormPath(rel)
	if rel == "" || rel == "." {
		return "", fmt.Errorf("%w: %q", vault.ErrInvalidPath, rel)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	top := vault.TopSegment(rel)
	for _, folder := range p.folders {
		if folder.base != top {
			continue
		}
		rest := strings.TrimPrefix(rel, top)
		rest = strings.TrimLeft(rest, "/")
		if rest == "" {
			return folder.abs, nil
		}
		return filepath.Join(folder.abs, filepath.FromSlash(rest)), nil
	}

	if p.root == "" {
		return "", ErrNoExternalRoot
	}
	return filepath.Join(p.root, filepath.FromSlash(rel)), nil
}

// Roots lists every watched external directory with its vault prefix.
func (p *Policy) Roots() []WatchRoot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roots := make([]WatchRoot, 0, len(p.folders)+1)
	if p.root != "" {
		roots = append(roots, WatchRoot{Path: p.root})
	}
	for _, folder := range p.folders {
		roots = append(roots, WatchRoot{Path: folder.abs, Prefix: folder.base})
	}
	return roots
}

// ManagedRel maps an absolute external path under a watch root back to its
// vault path.
func (p *Policy) ManagedRel(root WatchRoot, absPath string) (string, error) {
	rel, err := filepath.Rel(root.Path, absPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s outside watch root %s", vault.ErrInvalidPath, absPath, root.Path)
	}

	if rel == "." {
		if root.Prefix == "" {
			return "", fmt.Errorf("%w: watch root itself", vault.ErrInvalidPath)
		}
		return root.Prefix, nil
	}

	n := vault.NormPath(rel)
	if root.Prefix != "" {
		return vault.NormPath(path.Join(root.Prefix, n)), nil
	}
	return n, nil
}

func underPrefix(rel, prefix string) bool {
	if prefix == "" {
		return true
	}
	return rel == prefix || strings.HasPrefix(rel, prefix+"/")
}

func normPrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		if strings.TrimSpace(prefix) == "" {
			// Empty prefix is the include-everything wildcard.
			out = append(out, "")
			continue
		}
		out = append(out, vault.NormPath(prefix))
	}
	return out
}
