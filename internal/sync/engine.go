package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vaultlink/vaultlink/internal/vault"
)

// statusRetention is how long errored path entries survive on the status
// board before the periodic pass sweeps them.
const statusRetention = time.Hour

// Engine ties the two sync directions together. It owns the shared pieces
// (settings, policy, guard, hash cache, journal, status board) and runs
// the vault watcher, the external watcher and the periodic full-sync loop.
type Engine struct {
	store        *vault.DirStore
	settingsPath string

	settingsMu sync.RWMutex
	settings   *Settings

	policy  *Policy
	guard   *Guard
	hashes  *HashCache
	journal *Journal
	status  *Status
	ignore  *IgnoreList
	clock   clockwork.Clock

	outbound *Outbound
	inbound  *Inbound

	vaultWatcher *vault.Watcher

	// mu guards lifecycle state and the external watcher, which is
	// rebuilt on reconfigure.
	mu              sync.Mutex
	externalWatcher *Watcher
	started         bool
	runCtx          context.Context
	cancel          context.CancelFunc

	reload chan struct{}
	wg     sync.WaitGroup
}

// NewEngine loads the sync settings from the vault metadata dir and wires
// up both directions. confirm decides outbound deletions; a nil confirm
// declines them all. A nil clock means wall time.
func NewEngine(store *vault.DirStore, confirm Confirm, clock clockwork.Clock) (*Engine, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	settingsPath := filepath.Join(store.MetadataDir(), SettingsFileName)
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load sync settings: %w", err)
	}

	policy := NewPolicy(settings)
	guard := NewGuard(clock)
	hashes := NewHashCache()
	journal := NewJournal(filepath.Join(store.MetadataDir(), JournalFileName))
	status := NewStatus()
	ignore := NewIgnoreList(store.MetadataDir())

	inbound := NewInbound(store, policy, guard, hashes, journal, status, ignore, clock)

	return &Engine{
		store:           store,
		settingsPath:    settingsPath,
		settings:        settings,
		policy:          policy,
		guard:           guard,
		hashes:          hashes,
		journal:         journal,
		status:          status,
		ignore:          ignore,
		clock:           clock,
		outbound:        NewOutbound(store, policy, guard, hashes, journal, status, confirm),
		inbound:         inbound,
		vaultWatcher:    vault.NewWatcher(store),
		externalWatcher: NewWatcher(store, policy, guard, ignore, inbound, clock),
		reload:          make(chan struct{}, 1),
	}, nil
}

// Start opens the journal and brings up both watchers. The initial full
// sync runs inside the loop goroutine so startup is not blocked by a
// large external tree.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("sync engine already started")
	}

	if err := e.journal.Open(); err != nil {
		return fmt.Errorf("open sync journal: %w", err)
	}
	e.ignore.Load()

	e.runCtx, e.cancel = context.WithCancel(ctx)

	if err := e.vaultWatcher.Start(e.runCtx); err != nil {
		e.cancel()
		e.journal.Close()
		return fmt.Errorf("start vault watcher: %w", err)
	}
	if err := e.externalWatcher.Start(e.runCtx); err != nil {
		e.vaultWatcher.Stop()
		e.cancel()
		e.journal.Close()
		return fmt.Errorf("start external watcher: %w", err)
	}

	e.started = true
	e.wg.Add(2)
	go e.dispatchVaultEvents()
	go e.runSyncLoop()

	slog.Info("sync engine started", "vault", e.store.Root())
	return nil
}

// Stop halts the watchers and waits for in-flight work to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	watcher := e.externalWatcher
	e.mu.Unlock()

	e.cancel()
	e.vaultWatcher.Stop()
	watcher.Stop()
	e.wg.Wait()

	if err := e.journal.Close(); err != nil {
		slog.Warn("close sync journal", "error", err)
	}
	slog.Info("sync engine stopped")
}

func (e *Engine) dispatchVaultEvents() {
	defer e.wg.Done()

	for {
		select {
		case <-e.runCtx.Done():
			return
		case event, ok := <-e.vaultWatcher.Events():
			if !ok {
				return
			}
			e.handleVaultEvent(event)
		}
	}
}

func (e *Engine) handleVaultEvent(event vault.Event) {
	rel := event.Path
	if e.ignore.ShouldIgnore(rel) {
		return
	}
	if e.guard.Blocked(rel) {
		slog.Debug("vault event suppressed", "kind", event.Kind, "path", rel)
		return
	}

	var err error
	switch event.Kind {
	case vault.FileCreated:
		err = e.outbound.SyncFile(rel)
	case vault.FileModified:
		if !e.syncOnWrite() {
			return
		}
		err = e.outbound.SyncFile(rel)
	case vault.FileRemoved:
		err = e.outbound.HandleFileDeletion(rel)
	case vault.FileRenamed:
		var renamed bool
		renamed, err = e.outbound.HandleFileRename(event.OldPath, rel)
		if err == nil && !renamed {
			// No external counterpart to move, write it fresh.
			err = e.outbound.SyncFile(rel)
		}
	case vault.FolderCreated:
		err = e.outbound.SyncFolder(rel)
	case vault.FolderRemoved:
		err = e.outbound.HandleFolderDeletion(rel)
	case vault.FolderRenamed:
		err = e.outbound.HandleFolderRename(event.OldPath, rel)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrDeclined):
		slog.Info("outbound deletion declined", "path", rel)
	default:
		slog.Error("outbound sync", "kind", event.Kind, "path", rel, "error", err)
	}
}

// runSyncLoop performs the initial full pass and then repeats it on the
// configured interval. A fresh timer per round keeps slow cycles from
// queuing ticks.
func (e *Engine) runSyncLoop() {
	defer e.wg.Done()

	e.fullSync("startup")

	for {
		interval := e.syncInterval()
		if interval <= 0 {
			// Periodic sync disabled until a reconfigure turns it on.
			select {
			case <-e.runCtx.Done():
				return
			case <-e.reload:
				continue
			}
		}

		timer := e.clock.NewTimer(interval)
		select {
		case <-e.runCtx.Done():
			timer.Stop()
			return
		case <-e.reload:
			timer.Stop()
		case <-timer.Chan():
			e.fullSync("interval")
			e.status.Cleanup(statusRetention)
		}
	}
}

func (e *Engine) fullSync(trigger string) {
	err := e.inbound.SyncAll(e.runCtx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		slog.Debug("full sync already running", "trigger", trigger)
	case errors.Is(err, context.Canceled):
	default:
		slog.Error("full sync", "trigger", trigger, "error", err)
	}
}

func (e *Engine) syncInterval() time.Duration {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return time.Duration(e.settings.SyncInterval) * time.Second
}

func (e *Engine) syncOnWrite() bool {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings.SyncOnWrite
}

// Reconfigure validates and persists new settings, swaps the routing
// policy and rebuilds the external watcher so the watch set matches the
// new roots.
func (e *Engine) Reconfigure(settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("settings is nil")
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := SaveSettings(e.settingsPath, settings); err != nil {
		return fmt.Errorf("save sync settings: %w", err)
	}

	e.settingsMu.Lock()
	e.settings = settings
	e.settingsMu.Unlock()

	e.policy.Reload(settings)

	e.mu.Lock()
	if e.started {
		e.externalWatcher.Stop()
		e.externalWatcher = NewWatcher(e.store, e.policy, e.guard, e.ignore, e.inbound, e.clock)
		if err := e.externalWatcher.Start(e.runCtx); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("restart external watcher: %w", err)
		}

		select {
		case e.reload <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()

	slog.Info("sync engine reconfigured",
		"external_root", settings.ExternalRoot,
		"interval", settings.SyncInterval,
		"sync_on_write", settings.SyncOnWrite)
	return nil
}

// SyncNow runs one inbound full pass immediately.
func (e *Engine) SyncNow(ctx context.Context) error {
	return e.inbound.SyncAll(ctx)
}

// PushAll mirrors the entire vault outward, folders first so every parent
// exists before its contents. Per-item failures are logged and skipped.
func (e *Engine) PushAll(ctx context.Context) error {
	if !e.policy.Ready() {
		slog.Debug("push skipped", "reason", "no external root configured")
		return nil
	}

	start := e.clock.Now()
	var dirs, files, failures int

	err := e.store.Walk("", func(entry vault.Entry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		folder, ok := entry.(*vault.FolderEntry)
		if !ok {
			return nil
		}
		if e.ignore.ShouldIgnore(folder.Path) {
			return nil
		}
		if err := e.outbound.SyncFolder(folder.Path); err != nil {
			failures++
			slog.Error("push folder", "path", folder.Path, "error", err)
			return nil
		}
		dirs++
		return nil
	})
	if err != nil {
		return err
	}

	err = e.store.Walk("", func(entry vault.Entry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		file, ok := entry.(*vault.FileEntry)
		if !ok {
			return nil
		}
		if e.ignore.ShouldIgnore(file.Path) {
			return nil
		}
		if err := e.outbound.SyncFile(file.Path); err != nil {
			failures++
			slog.Error("push file", "path", file.Path, "error", err)
			return nil
		}
		files++
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("push finished",
		"dirs", dirs,
		"files", files,
		"failures", failures,
		"took", e.clock.Since(start).Round(time.Millisecond))
	return nil
}

// SyncPath pushes a single vault path outward. Folders are mirrored with
// their entire contents.
func (e *Engine) SyncPath(ctx context.Context, rel string) error {
	rel = vault.NormPath(rel)

	entry, err := e.store.Stat(rel)
	if err != nil {
		return err
	}

	if _, ok := entry.(*vault.FileEntry); ok {
		return e.outbound.SyncFile(rel)
	}

	if err := e.outbound.SyncFolder(rel); err != nil {
		return err
	}
	return e.store.Walk(rel, func(entry vault.Entry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch ent := entry.(type) {
		case *vault.FolderEntry:
			if err := e.outbound.SyncFolder(ent.Path); err != nil {
				slog.Error("push folder", "path", ent.Path, "error", err)
			}
		case *vault.FileEntry:
			if err := e.outbound.SyncFile(ent.Path); err != nil {
				slog.Error("push file", "path", ent.Path, "error", err)
			}
		}
		return nil
	})
}

// Settings returns a copy of the active settings.
func (e *Engine) Settings() Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return *e.settings
}

// Status exposes the live per-path sync state board.
func (e *Engine) Status() *Status {
	return e.status
}

// History returns the most recent journal entries, newest first.
func (e *Engine) History(limit int) ([]Op, error) {
	return e.journal.Recent(limit)
}

// Store exposes the vault this engine syncs.
func (e *Engine) Store() *vault.DirStore {
	return e.store
}
