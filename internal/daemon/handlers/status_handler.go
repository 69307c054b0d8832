package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/vaultlink/vaultlink/internal/sync"
	"github.com/vaultlink/vaultlink/internal/version"
)

// StatusHandler serves daemon process and engine state.
type StatusHandler struct {
	engine *sync.Engine
}

func NewStatusHandler(engine *sync.Engine) *StatusHandler {
	return &StatusHandler{engine: engine}
}

func (h *StatusHandler) Status(c *gin.Context) {
	resp := &StatusResponse{
		Name:         version.AppName,
		Version:      version.Version,
		PID:          os.Getpid(),
		Vault:        h.engine.Store().Root(),
		ExternalRoot: h.engine.Settings().ExternalRoot,
		Overview:     h.engine.Status().GetOverview(),
	}

	// Process stats are best effort.
	if proc, err := process.NewProcess(int32(resp.PID)); err == nil {
		if created, err := proc.CreateTime(); err == nil {
			resp.UptimeSecs = (time.Now().UnixMilli() - created) / 1000
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			resp.MemoryBytes = mem.RSS
		}
	}

	c.PureJSON(http.StatusOK, resp)
}
