package sync

import (
	"errors"
	"testing"
	"time"
)

func TestStatus_SyncedPathsAreDropped(t *testing.T) {
	s := NewStatus()

	s.SetSyncing("docs/a.txt", DirectionOutbound)
	if got := s.GetSyncingCount(); got != 1 {
		t.Fatalf("expected 1 syncing path, got %d", got)
	}

	s.SetSynced("docs/a.txt", 128)
	if _, ok := s.GetStatus("docs/a.txt"); ok {
		t.Fatal("expected clean path to be dropped from tracking")
	}

	ov := s.GetOverview()
	if ov.TotalOps != 1 || ov.TotalBytes != 128 {
		t.Fatalf("unexpected totals: %+v", ov)
	}
}

func TestStatus_ErrorsAccumulate(t *testing.T) {
	s := NewStatus()

	s.SetError("docs/b.txt", errors.New("disk full"))
	s.SetError("docs/b.txt", errors.New("disk full"))

	status, ok := s.GetStatus("docs/b.txt")
	if !ok {
		t.Fatal("expected errored path to stay tracked")
	}
	if status.State != SyncStateError || status.ErrorCount != 2 {
		t.Fatalf("unexpected status: %s", status.String())
	}

	errored := s.GetErroredPaths()
	if len(errored) != 1 {
		t.Fatalf("expected 1 errored path, got %d", len(errored))
	}

	// A clean sync clears the error entry.
	s.SetSynced("docs/b.txt", 64)
	if s.GetErrorCount("docs/b.txt") != 0 {
		t.Fatal("expected error count reset after clean sync")
	}
}

func TestStatus_CleanupDropsStaleErrors(t *testing.T) {
	s := NewStatus()

	s.SetError("gone/old.txt", errors.New("no such file"))
	s.mu.Lock()
	s.files["gone/old.txt"].LastUpdated = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	s.SetError("live/new.txt", errors.New("no such file"))

	s.Cleanup(time.Hour)

	if _, ok := s.GetStatus("gone/old.txt"); ok {
		t.Fatal("expected stale error to be cleaned up")
	}
	if _, ok := s.GetStatus("live/new.txt"); !ok {
		t.Fatal("expected recent error to survive cleanup")
	}
}

func TestStatus_OverviewCountsStates(t *testing.T) {
	s := NewStatus()

	s.SetSyncing("a.txt", DirectionInbound)
	s.SetSyncing("b.txt", DirectionOutbound)
	s.SetError("c.txt", errors.New("boom"))
	s.SetCycle("cycle-42")

	ov := s.GetOverview()
	if ov.Syncing != 2 || ov.Errors != 1 {
		t.Fatalf("unexpected overview: %+v", ov)
	}
	if ov.LastCycle != "cycle-42" || ov.LastSync == "" {
		t.Fatalf("expected cycle fields set: %+v", ov)
	}
}
