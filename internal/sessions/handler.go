package sessions

import (
	"github.com/gin-gonic/gin"

	"github.com/Axshuman/live-polling-system/internal/engine"
	"github.com/Axshuman/live-polling-system/pkg/response"
)

// Handler serves the read-only HTTP view of a session for consumers that
// don't hold a WebSocket connection.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a sessions handler.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Param("id"))
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, snap)
}
