package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rjeczalik/notify"

	"github.com/vaultlink/vaultlink/internal/vault"
)

const (
	watchBufferSize      = 64
	defaultWatchDebounce = 200 * time.Millisecond
)

// watchMode tracks how one external root is subscribed.
type watchMode int

const (
	watchRecursive watchMode = iota
	watchPerDir
)

func (m watchMode) String() string {
	if m == watchPerDir {
		return "per-directory"
	}
	return "recursive"
}

// rootWatch is the subscription state of one external root. In per-dir
// fallback mode dirs holds every directory with a live watch.
type rootWatch struct {
	root WatchRoot
	mode watchMode
	dirs mapset.Set[string]
}

// Watcher owns the external-side filesystem subscriptions. Raw events are
// filtered through the ignore list, the guard and the policy, classified by
// stat, debounced for file content, and dispatched into Inbound.
type Watcher struct {
	store   vault.Store
	policy  *Policy
	guard   *Guard
	ignore  *IgnoreList
	inbound *Inbound
	clock   clockwork.Clock

	rawEvents chan notify.EventInfo
	roots     []*rootWatch
	active    bool

	done chan struct{}
	wg   sync.WaitGroup

	eventTimers     map[string]clockwork.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration

	// forcePerDir skips the recursive attempt; tests exercise the
	// fallback path with it.
	forcePerDir bool
}

func NewWatcher(store vault.Store, policy *Policy, guard *Guard, ignore *IgnoreList, inbound *Inbound, clock clockwork.Clock) *Watcher {
	return &Watcher{
		store:           store,
		policy:          policy,
		guard:           guard,
		ignore:          ignore,
		inbound:         inbound,
		clock:           clock,
		done:            make(chan struct{}),
		eventTimers:     make(map[string]clockwork.Timer),
		debounceTimeout: defaultWatchDebounce,
	}
}

// SetDebounceTimeout sets the debounce timeout for file content events
func (w *Watcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounceTimeout = timeout
}

// Start subscribes every configured external root and runs the event loop.
// A root that cannot be watched at all is skipped with a warning; sync for
// it degrades to the periodic full pass.
func (w *Watcher) Start(ctx context.Context) error {
	roots := w.policy.Roots()
	if len(roots) == 0 {
		slog.Info("external watcher idle", "reason", "no external root configured")
		return nil
	}

	w.rawEvents = make(chan notify.EventInfo, watchBufferSize)

	for _, root := range roots {
		rw, err := w.subscribe(root)
		if err != nil {
			slog.Warn("external watcher skipping root", "dir", root.Path, "error", err)
			continue
		}
		w.roots = append(w.roots, rw)
		slog.Info("external watcher start", "dir", root.Path, "mode", rw.mode)
	}
	if len(w.roots) == 0 {
		notify.Stop(w.rawEvents)
		return nil
	}

	w.active = true
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// subscribe attempts one recursive watch first and falls back to watching
// the root plus every subdirectory individually.
func (w *Watcher) subscribe(root WatchRoot) (*rootWatch, error) {
	if !w.forcePerDir {
		err := notify.Watch(root.Path+"/...", w.rawEvents, notify.All)
		if err == nil {
			return &rootWatch{root: root, mode: watchRecursive}, nil
		}
		slog.Warn("recursive watch rejected, falling back to per-directory", "dir", root.Path, "error", err)
	}

	rw := &rootWatch{root: root, mode: watchPerDir, dirs: mapset.NewSet[string]()}
	walkErr := filepath.WalkDir(root.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root.Path {
			if rel, rerr := w.policy.ManagedRel(root, p); rerr == nil && w.ignore.ShouldIgnore(rel) {
				return fs.SkipDir
			}
		}
		if werr := notify.Watch(p, w.rawEvents, notify.All); werr != nil {
			slog.Warn("watch dir failed", "dir", p, "error", werr)
			return nil
		}
		rw.dirs.Add(p)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if rw.dirs.Cardinality() == 0 {
		return nil, fmt.Errorf("no directories watched under %s", root.Path)
	}
	return rw, nil
}

// Stop stops the subscriptions and waits for the event loop. Safe to call
// when Start never subscribed anything.
func (w *Watcher) Stop() {
	if !w.active {
		return
	}
	w.active = false

	close(w.done)
	notify.Stop(w.rawEvents)
	w.wg.Wait()

	w.debounceMu.Lock()
	for p, timer := range w.eventTimers {
		timer.Stop()
		delete(w.eventTimers, p)
	}
	w.debounceMu.Unlock()

	slog.Info("external watcher stopped")
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}
			w.handleRawEvent(event)
		}
	}
}

func (w *Watcher) handleRawEvent(event notify.EventInfo) {
	p := event.Path()

	rw := w.findRoot(p)
	if rw == nil {
		return
	}
	rel, err := w.policy.ManagedRel(rw.root, p)
	if err != nil {
		return
	}

	if w.ignore.ShouldIgnore(rel) {
		return
	}
	if w.guard.Blocked(rel) {
		slog.Debug("external watcher", "path", rel, "skip", "self-inflicted")
		return
	}

	info, statErr := os.Stat(p)
	switch {
	case statErr == nil && info.IsDir():
		w.handleDir(rw, p, rel, event)
	case statErr == nil:
		if !w.policy.ShouldSync(rel) {
			return
		}
		// Content events arrive in bursts while a file is written, so
		// reading is deferred until they settle.
		w.debounce(p, rel)
	default:
		w.handleGone(rw, p, rel)
	}
}

// findRoot picks the subscription owning the path, deepest root first.
func (w *Watcher) findRoot(p string) *rootWatch {
	var best *rootWatch
	for _, rw := range w.roots {
		if p == rw.root.Path || strings.HasPrefix(p, rw.root.Path+string(filepath.Separator)) {
			if best == nil || len(rw.root.Path) > len(best.root.Path) {
				best = rw
			}
		}
	}
	return best
}

func (w *Watcher) handleDir(rw *rootWatch, p, rel string, event notify.EventInfo) {
	// In fallback mode every directory needs its own subscription, no
	// matter what the policy says: a deeper include prefix may still
	// match below it.
	if rw.mode == watchPerDir && !rw.dirs.Contains(p) {
		if err := notify.Watch(p, w.rawEvents, notify.All); err != nil {
			slog.Warn("watch dir failed", "dir", p, "error", err)
		} else {
			rw.dirs.Add(p)
		}
	}

	switch event.Event() {
	case notify.Create, notify.Rename:
		if w.policy.ShouldSync(rel) {
			if err := w.inbound.DirCreated(rel); err != nil {
				slog.Error("external watcher", "op", "dir create", "path", rel, "error", err)
			}
		}
		// A directory moved in from outside arrives as one event with no
		// events for its contents. Scan it.
		w.scanDir(rw, p)
	}
}

// scanDir picks up entries that existed before the subscription went live.
// Contents are dispatched through the same paths as live events, so the
// difference checks keep rescans cheap.
func (w *Watcher) scanDir(rw *rootWatch, dir string) {
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := w.policy.ManagedRel(rw.root, p)
		if rerr != nil {
			return nil
		}
		if w.ignore.ShouldIgnore(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rw.mode == watchPerDir && !rw.dirs.Contains(p) {
				if werr := notify.Watch(p, w.rawEvents, notify.All); werr != nil {
					slog.Warn("watch dir failed", "dir", p, "error", werr)
				} else {
					rw.dirs.Add(p)
				}
			}
			if p != dir && w.policy.ShouldSync(rel) {
				if err := w.inbound.DirCreated(rel); err != nil {
					slog.Error("external watcher", "op", "dir create", "path", rel, "error", err)
				}
			}
			return nil
		}

		if w.policy.ShouldSync(rel) {
			w.debounce(p, rel)
		}
		return nil
	})
}

// handleGone handles a path that no longer stats. Disappearance always
// means deletion here; the vault's own record decides whether it was a
// file or a directory, because the gone path can no longer tell.
func (w *Watcher) handleGone(rw *rootWatch, p, rel string) {
	w.cancelPending(p)

	if !w.policy.ShouldSync(rel) {
		return
	}

	entry, err := w.store.Stat(rel)
	if errors.Is(err, vault.ErrNotExist) {
		return
	}
	if err != nil {
		slog.Error("external watcher", "op", "delete", "path", rel, "error", err)
		return
	}

	if _, isDir := entry.(*vault.FolderEntry); isDir {
		if rw.mode == watchPerDir {
			w.pruneDirs(rw, p)
		}
		if err := w.inbound.DirDeleted(rel); err != nil {
			slog.Error("external watcher", "op", "dir delete", "path", rel, "error", err)
		}
		return
	}

	if err := w.inbound.FileDeleted(rel); err != nil {
		slog.Error("external watcher", "op", "file delete", "path", rel, "error", err)
	}
}

// pruneDirs drops the bookkeeping for a removed directory subtree. The
// kernel already dropped the underlying watches with the directories.
func (w *Watcher) pruneDirs(rw *rootWatch, dir string) {
	prefix := dir + string(filepath.Separator)
	for _, watched := range rw.dirs.ToSlice() {
		if watched == dir || strings.HasPrefix(watched, prefix) {
			rw.dirs.Remove(watched)
		}
	}
}

func (w *Watcher) debounce(p, rel string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.eventTimers[p]; exists {
		timer.Stop()
	}
	w.eventTimers[p] = w.clock.AfterFunc(w.debounceTimeout, func() {
		w.flush(p, rel)
	})
}

func (w *Watcher) cancelPending(p string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.eventTimers[p]; exists {
		timer.Stop()
		delete(w.eventTimers, p)
	}
}

func (w *Watcher) flush(p, rel string) {
	w.debounceMu.Lock()
	delete(w.eventTimers, p)
	w.debounceMu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	// A hold may have started while the event sat in the debounce window.
	if w.guard.Blocked(rel) {
		return
	}

	if err := w.inbound.FileChanged(p, rel); err != nil {
		slog.Error("external watcher", "op", "file change", "path", rel, "error", err)
	}
}
