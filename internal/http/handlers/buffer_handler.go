// README: Buffer handlers: wave countdown state and the manual dispatch button.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"expo/internal/modules/buffer"
	"expo/internal/types"
)

type BufferHandler struct {
	buffer *buffer.Service
}

func NewBufferHandler(svc *buffer.Service) *BufferHandler {
	return &BufferHandler{buffer: svc}
}

type bufferStateResponse struct {
	Empty            bool       `json:"empty"`
	OrderIDs         []types.ID `json:"order_ids,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
}

// State serves the shared countdown for the expedition board.
func (h *BufferHandler) State(c *gin.Context) {
	now := time.Now()
	w, err := h.buffer.CurrentWave(c.Request.Context(), now)
	if errors.Is(err, buffer.ErrEmptyBuffer) {
		writeJSON(c, http.StatusOK, bufferStateResponse{Empty: true})
		return
	}
	if err != nil {
		writeBufferError(c, err)
		return
	}
	expires := w.ExpiresAt()
	writeJSON(c, http.StatusOK, bufferStateResponse{
		OrderIDs:         w.OrderIDs,
		ExpiresAt:        &expires,
		RemainingSeconds: int(w.Remaining(now).Seconds()),
	})
}

// DispatchNow releases the current wave regardless of remaining time.
func (h *BufferHandler) DispatchNow(c *gin.Context) {
	if err := h.buffer.DispatchNow(c.Request.Context()); err != nil {
		writeBufferError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"dispatched": true})
}
