package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vaultlink/vaultlink/internal/sync"
	"github.com/vaultlink/vaultlink/internal/vault"
)

// SyncHandler exposes the sync engine's operations.
type SyncHandler struct {
	engine *sync.Engine
}

func NewSyncHandler(engine *sync.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

func (h *SyncHandler) SyncNow(c *gin.Context) {
	err := h.engine.SyncNow(c.Request.Context())
	switch {
	case err == nil:
		c.PureJSON(http.StatusOK, &AckResponse{Status: "completed"})
	case errors.Is(err, sync.ErrSyncInProgress):
		AbortWithError(c, http.StatusConflict, CodeSyncBusy, err)
	default:
		AbortWithError(c, http.StatusInternalServerError, CodeInternalError, err)
	}
}

func (h *SyncHandler) Push(c *gin.Context) {
	if err := h.engine.PushAll(c.Request.Context()); err != nil {
		AbortWithError(c, http.StatusInternalServerError, CodeInternalError, err)
		return
	}
	c.PureJSON(http.StatusOK, &AckResponse{Status: "completed"})
}

func (h *SyncHandler) SyncFile(c *gin.Context) {
	var req SyncFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}
	if req.Path == "" {
		AbortWithError(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Errorf("path is required"))
		return
	}

	err := h.engine.SyncPath(c.Request.Context(), req.Path)
	switch {
	case err == nil:
		c.PureJSON(http.StatusOK, &AckResponse{Status: "completed", Path: req.Path})
	case errors.Is(err, vault.ErrNotExist):
		AbortWithError(c, http.StatusNotFound, CodeNotFound, err)
	default:
		AbortWithError(c, http.StatusInternalServerError, CodeInternalError, err)
	}
}

func (h *SyncHandler) Status(c *gin.Context) {
	board := h.engine.Status()
	tracked := board.GetAllStatus()

	paths := make([]PathStateInfo, 0, len(tracked))
	for rel, st := range tracked {
		info := PathStateInfo{
			Path:        rel,
			State:       string(st.State),
			Direction:   string(st.Direction),
			ErrorCount:  st.ErrorCount,
			LastUpdated: st.LastUpdated,
		}
		if st.Error != nil {
			info.Error = st.Error.Error()
		}
		paths = append(paths, info)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Path < paths[j].Path })

	c.PureJSON(http.StatusOK, &SyncStatusResponse{
		Overview: board.GetOverview(),
		Paths:    paths,
	})
}

func (h *SyncHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Errorf("bad limit %q", raw))
			return
		}
		limit = parsed
	}

	ops, err := h.engine.History(limit)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, CodeInternalError, err)
		return
	}

	c.PureJSON(http.StatusOK, &HistoryResponse{Ops: ops})
}
