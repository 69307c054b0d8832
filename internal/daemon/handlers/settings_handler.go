package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vaultlink/vaultlink/internal/sync"
)

// SettingsHandler reads and live-updates the vault's sync settings.
type SettingsHandler struct {
	engine *sync.Engine
}

func NewSettingsHandler(engine *sync.Engine) *SettingsHandler {
	return &SettingsHandler{engine: engine}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	settings := h.engine.Settings()
	c.PureJSON(http.StatusOK, &settings)
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var settings sync.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		AbortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}

	if err := h.engine.Reconfigure(&settings); err != nil {
		AbortWithError(c, http.StatusBadRequest, CodeInvalidSettings, err)
		return
	}

	applied := h.engine.Settings()
	c.PureJSON(http.StatusOK, &applied)
}
