package linksdk

import "time"

// DaemonInfo is the unauthenticated banner served at the API root.
type DaemonInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DaemonStatus describes the daemon process and its sync engine.
type DaemonStatus struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	PID          int      `json:"pid"`
	UptimeSecs   int64    `json:"uptime_secs"`
	MemoryBytes  uint64   `json:"memory_bytes"`
	Vault        string   `json:"vault"`
	ExternalRoot string   `json:"external_root"`
	Overview     Overview `json:"overview"`
}

// Overview summarizes engine activity.
type Overview struct {
	Syncing    int    `json:"syncing"`
	Errors     int    `json:"errors"`
	TotalOps   int64  `json:"total_ops"`
	TotalBytes int64  `json:"total_bytes"`
	LastCycle  string `json:"last_cycle,omitempty"`
	LastSync   string `json:"last_sync,omitempty"`
}

// PathState is the live state of one tracked path. Cleanly synced paths
// are not tracked, so these are in-flight or failed entries.
type PathState struct {
	Path        string    `json:"path"`
	State       string    `json:"state"`
	Direction   string    `json:"direction"`
	Error       string    `json:"error,omitempty"`
	ErrorCount  int       `json:"error_count,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// SyncStatusResponse pairs the overview with per-path detail.
type SyncStatusResponse struct {
	Overview Overview    `json:"overview"`
	Paths    []PathState `json:"paths"`
}

// SyncFileRequest names one vault path to push outward.
type SyncFileRequest struct {
	Path string `json:"path"`
}

// AckResponse acknowledges an accepted operation.
type AckResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// HistoryOp is one journal entry.
type HistoryOp struct {
	ID        string    `json:"id"`
	Cycle     string    `json:"cycle,omitempty"`
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"`
	Type      string    `json:"op"`
	Path      string    `json:"path"`
	Detail    string    `json:"detail,omitempty"`
}

// HistoryResponse is the journal page returned by the daemon.
type HistoryResponse struct {
	Ops []HistoryOp `json:"ops"`
}

// SyncSettings mirrors the vault's persisted sync configuration.
type SyncSettings struct {
	Version         int      `json:"version"`
	ExternalRoot    string   `json:"external_root"`
	SyncOnWrite     bool     `json:"sync_on_write"`
	SyncInterval    int      `json:"sync_interval"`
	Mode            string   `json:"mode"`
	ExcludedPaths   []string `json:"excluded_paths"`
	IncludedPaths   []string `json:"included_paths"`
	ExternalFolders []string `json:"external_folders"`
	Debug           bool     `json:"debug"`
	HighlightColor  string   `json:"highlight_color"`
}
