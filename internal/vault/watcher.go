package vault

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rjeczalik/notify"
)

type EventKind string

const (
	FileCreated   EventKind = "file_created"
	FileModified  EventKind = "file_modified"
	FileRemoved   EventKind = "file_removed"
	FileRenamed   EventKind = "file_renamed"
	FolderCreated EventKind = "folder_created"
	FolderRemoved EventKind = "folder_removed"
	FolderRenamed EventKind = "folder_renamed"
)

// Event is a semantic vault mutation. Paths are vault-relative; OldPath is
// set for renames only.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string
}

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 50 * time.Millisecond
	defaultRenameWindow    = 400 * time.Millisecond
)

// Watcher turns raw filesystem notifications on the vault root into semantic
// events. Writes are debounced per path because a single save produces a
// burst of write notifications. A disappearance and an appearance of the
// same kind inside the rename window pair into a single rename event;
// otherwise the disappearance degrades to a removal.
type Watcher struct {
	store  *DirStore
	raw    chan notify.EventInfo
	events chan Event

	debounceMu      sync.Mutex
	pendingKinds    map[string]EventKind
	eventTimers     map[string]*time.Timer
	debounceTimeout time.Duration

	pendingMu    sync.Mutex
	pendingGone  map[string]*goneEntry
	renameWindow time.Duration

	// dirs tracks known folders so a vanished path can be classified
	// without a stat.
	dirs mapset.Set[string]

	done chan struct{}
	wg   sync.WaitGroup
}

type goneEntry struct {
	isDir bool
	timer *time.Timer
}

func NewWatcher(store *DirStore) *Watcher {
	return &Watcher{
		store:           store,
		pendingKinds:    make(map[string]EventKind),
		eventTimers:     make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
		pendingGone:     make(map[string]*goneEntry),
		renameWindow:    defaultRenameWindow,
		dirs:            mapset.NewSet[string](),
		done:            make(chan struct{}),
	}
}

// SetDebounceTimeout sets the per-path write debounce.
func (w *Watcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounceTimeout = timeout
}

// SetRenameWindow sets how long a disappearance waits for its matching
// appearance before degrading to a removal.
func (w *Watcher) SetRenameWindow(window time.Duration) {
	w.renameWindow = window
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("vault watcher start", "root", w.store.Root())

	w.raw = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan Event, eventBufferSize)

	// Seed the folder set so removals classify correctly from the start.
	if err := w.store.Walk("", func(e Entry) error {
		if fe, ok := e.(*FolderEntry); ok {
			w.dirs.Add(fe.Path)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := notify.Watch(w.store.Root()+"/...", w.raw, notify.All); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

func (w *Watcher) Stop() {
	slog.Info("vault watcher stopping")

	close(w.done)
	if w.raw != nil {
		notify.Stop(w.raw)
	}
	w.wg.Wait()

	w.debounceMu.Lock()
	for path, timer := range w.eventTimers {
		timer.Stop()
		delete(w.eventTimers, path)
		delete(w.pendingKinds, path)
	}
	w.debounceMu.Unlock()

	w.pendingMu.Lock()
	for path, gone := range w.pendingGone {
		gone.timer.Stop()
		delete(w.pendingGone, path)
	}
	w.pendingMu.Unlock()

	slog.Info("vault watcher stopped")
}

func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.wg.Done()
		close(w.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.raw:
			if !ok {
				return
			}

			rel, err := w.store.RelPath(ev.Path())
			if err != nil || rel == "." || rel == "" || w.store.Internal(rel) {
				continue
			}

			switch ev.Event() {
			case notify.Write:
				w.debounce(rel, FileModified)
			case notify.Create:
				w.handleAppear(rel, false)
			case notify.Remove:
				w.handleGone(rel)
			case notify.Rename:
				// Both halves of a move arrive as Rename. A stat tells
				// them apart.
				if _, err := w.store.Stat(rel); err == nil {
					w.handleAppear(rel, true)
				} else if errors.Is(err, ErrNotExist) {
					w.handleGone(rel)
				}
			}
		}
	}
}

func (w *Watcher) handleAppear(rel string, moved bool) {
	entry, err := w.store.Stat(rel)
	if err != nil {
		// Already gone again; the burst sorted itself out.
		return
	}

	_, isDir := entry.(*FolderEntry)

	if moved {
		if old, ok := w.takePendingGone(isDir); ok {
			if isDir {
				w.dirs.Remove(old)
				w.retargetDirs(old, rel)
				w.dirs.Add(rel)
				w.emit(Event{Kind: FolderRenamed, Path: rel, OldPath: old})
			} else {
				w.emit(Event{Kind: FileRenamed, Path: rel, OldPath: old})
			}
			return
		}
	}

	if isDir {
		w.dirs.Add(rel)
		w.emit(Event{Kind: FolderCreated, Path: rel})
		return
	}

	// New files settle through the write debouncer so the create event
	// carries finished content.
	w.debounce(rel, FileCreated)
}

func (w *Watcher) handleGone(rel string) {
	// A pending write for a path that no longer exists is moot.
	w.debounceMu.Lock()
	if timer, exists := w.eventTimers[rel]; exists {
		timer.Stop()
		delete(w.eventTimers, rel)
		delete(w.pendingKinds, rel)
	}
	w.debounceMu.Unlock()

	isDir := w.dirs.Contains(rel)

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if prev, exists := w.pendingGone[rel]; exists {
		prev.timer.Stop()
	}

	gone := &goneEntry{isDir: isDir}
	gone.timer = time.AfterFunc(w.renameWindow, func() {
		w.expireGone(rel)
	})
	w.pendingGone[rel] = gone
}

// expireGone fires when no appearance paired with a disappearance in time.
func (w *Watcher) expireGone(rel string) {
	w.pendingMu.Lock()
	gone, exists := w.pendingGone[rel]
	if !exists {
		w.pendingMu.Unlock()
		return
	}
	delete(w.pendingGone, rel)
	w.pendingMu.Unlock()

	if gone.isDir {
		w.dirs.Remove(rel)
		w.emit(Event{Kind: FolderRemoved, Path: rel})
	} else {
		w.emit(Event{Kind: FileRemoved, Path: rel})
	}
}

// takePendingGone claims a parked disappearance of the same kind.
func (w *Watcher) takePendingGone(isDir bool) (string, bool) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	for rel, gone := range w.pendingGone {
		if gone.isDir == isDir {
			gone.timer.Stop()
			delete(w.pendingGone, rel)
			return rel, true
		}
	}
	return "", false
}

// retargetDirs rewrites tracked folder paths under a renamed folder.
func (w *Watcher) retargetDirs(oldPrefix, newPrefix string) {
	for _, dir := range w.dirs.ToSlice() {
		if strings.HasPrefix(dir, oldPrefix+"/") {
			w.dirs.Remove(dir)
			w.dirs.Add(newPrefix + dir[len(oldPrefix):])
		}
	}
}

func (w *Watcher) debounce(rel string, kind EventKind) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.eventTimers[rel]; exists {
		timer.Stop()
		delete(w.eventTimers, rel)
	}

	// A create followed by writes stays a create.
	if prev, exists := w.pendingKinds[rel]; !exists || prev != FileCreated {
		w.pendingKinds[rel] = kind
	}

	timer := time.AfterFunc(w.debounceTimeout, func() {
		w.flush(rel)
	})
	w.eventTimers[rel] = timer
}

func (w *Watcher) flush(rel string) {
	w.debounceMu.Lock()
	kind, exists := w.pendingKinds[rel]
	if !exists {
		w.debounceMu.Unlock()
		return
	}
	delete(w.pendingKinds, rel)
	delete(w.eventTimers, rel)
	w.debounceMu.Unlock()

	// The path may have vanished while the debounce ran.
	if _, err := w.store.Stat(rel); err != nil {
		return
	}

	w.emit(Event{Kind: kind, Path: rel})
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
		slog.Debug("vault watcher", "event", ev.Kind, "path", ev.Path)
	case <-w.done:
	default:
		slog.Warn("vault watcher dropped", "reason", "channel full", "path", ev.Path)
	}
}
