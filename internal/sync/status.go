package sync

import (
	"fmt"
	"sync"
	"time"
)

// SyncState represents the state of a sync operation
type SyncState string

const (
	SyncStatePending SyncState = "pending"
	SyncStateSyncing SyncState = "syncing"
	SyncStateSynced  SyncState = "synced"
	SyncStateError   SyncState = "error"
)

// PathStatus represents the sync status of a single path
type PathStatus struct {
	State       SyncState
	Direction   Direction
	Error       error
	ErrorCount  int
	LastUpdated time.Time
}

func (s *PathStatus) String() string {
	return fmt.Sprintf("State: %s, Direction: %s, Error: %v, ErrorCount: %d", s.State, s.Direction, s.Error, s.ErrorCount)
}

// Overview summarizes the sync engine state for the control plane.
type Overview struct {
	Syncing    int    `json:"syncing"`
	Errors     int    `json:"errors"`
	TotalOps   int64  `json:"total_ops"`
	TotalBytes int64  `json:"total_bytes"`
	LastCycle  string `json:"last_cycle,omitempty"`
	LastSync   string `json:"last_sync,omitempty"`
}

// Status tracks in-flight and failed paths plus running totals.
// Paths that sync cleanly are dropped from tracking on completion.
type Status struct {
	mu    sync.RWMutex
	files map[string]*PathStatus

	totalOps   int64
	totalBytes int64
	lastCycle  string
	lastSync   time.Time
}

func NewStatus() *Status {
	return &Status{
		files: make(map[string]*PathStatus),
	}
}

// getOrCreateStatus gets existing status or creates a new one
func (s *Status) getOrCreateStatus(path string) *PathStatus {
	if status, exists := s.files[path]; exists {
		return status
	}

	status := &PathStatus{
		State:       SyncStatePending,
		LastUpdated: time.Now(),
	}
	s.files[path] = status
	return status
}

// SetSyncing marks a path as being synced in the given direction.
func (s *Status) SetSyncing(path string, direction Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	status.State = SyncStateSyncing
	status.Direction = direction
	status.Error = nil
	status.LastUpdated = time.Now()
}

// SetSynced marks a path clean and drops it from tracking.
func (s *Status) SetSynced(path string, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalOps++
	s.totalBytes += bytes
	delete(s.files, path)
}

// SetError marks a path failed. The entry stays tracked until the path
// syncs cleanly or Cleanup ages it out.
func (s *Status) SetError(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	status.State = SyncStateError
	status.Error = err
	status.ErrorCount++
	status.LastUpdated = time.Now()
}

// SetCycle records the most recent completed full sync.
func (s *Status) SetCycle(cycleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCycle = cycleID
	s.lastSync = time.Now()
}

// GetStatus returns a copy of the status of a specific path
func (s *Status) GetStatus(path string) (PathStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, exists := s.files[path]
	if !exists {
		return PathStatus{}, false
	}
	return *status, true
}

func (s *Status) GetErrorCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status, ok := s.files[path]; ok {
		return status.ErrorCount
	}
	return 0
}

// GetSyncingCount returns the number of paths currently syncing
func (s *Status) GetSyncingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, status := range s.files {
		if status.State == SyncStateSyncing {
			count++
		}
	}
	return count
}

// GetErroredPaths returns a copy of all paths in error state
func (s *Status) GetErroredPaths() map[string]PathStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	errored := make(map[string]PathStatus)
	for path, status := range s.files {
		if status.State == SyncStateError {
			errored[path] = *status
		}
	}
	return errored
}

// GetAllStatus returns a copy of all tracked path statuses
func (s *Status) GetAllStatus() map[string]PathStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]PathStatus, len(s.files))
	for path, status := range s.files {
		result[path] = *status
	}
	return result
}

// GetOverview returns the aggregate counters for the control plane.
func (s *Status) GetOverview() Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ov := Overview{
		TotalOps:   s.totalOps,
		TotalBytes: s.totalBytes,
		LastCycle:  s.lastCycle,
	}
	if !s.lastSync.IsZero() {
		ov.LastSync = s.lastSync.Format(time.RFC3339)
	}
	for _, status := range s.files {
		switch status.State {
		case SyncStateSyncing:
			ov.Syncing++
		case SyncStateError:
			ov.Errors++
		}
	}
	return ov
}

// Cleanup removes stale error entries older than the specified duration.
// An error on a path that was since deleted would otherwise stay forever.
func (s *Status) Cleanup(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for path, status := range s.files {
		if status.State == SyncStateError && status.LastUpdated.Before(cutoff) {
			delete(s.files, path)
		}
	}
}
