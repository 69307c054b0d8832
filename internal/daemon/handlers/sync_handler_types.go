package handlers

import (
	"time"

	"github.com/vaultlink/vaultlink/internal/sync"
)

// AckResponse acknowledges an accepted operation.
type AckResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// SyncFileRequest names one vault path to push outward.
type SyncFileRequest struct {
	Path string `json:"path"`
}

// PathStateInfo is the wire form of one tracked path's state.
type PathStateInfo struct {
	Path        string    `json:"path"`
	State       string    `json:"state"`
	Direction   string    `json:"direction"`
	Error       string    `json:"error,omitempty"`
	ErrorCount  int       `json:"error_count,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// SyncStatusResponse pairs the overview with per-path detail.
type SyncStatusResponse struct {
	Overview sync.Overview   `json:"overview"`
	Paths    []PathStateInfo `json:"paths"`
}

// HistoryResponse is one page of the sync journal, newest first.
type HistoryResponse struct {
	Ops []sync.Op `json:"ops"`
}
