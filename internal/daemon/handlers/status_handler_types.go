package handlers

import "github.com/vaultlink/vaultlink/internal/sync"

// StatusResponse describes the daemon process and its sync engine.
type StatusResponse struct {
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	PID          int           `json:"pid"`
	UptimeSecs   int64         `json:"uptime_secs"`
	MemoryBytes  uint64        `json:"memory_bytes"`
	Vault        string        `json:"vault"`
	ExternalRoot string        `json:"external_root"`
	Overview     sync.Overview `json:"overview"`
}
