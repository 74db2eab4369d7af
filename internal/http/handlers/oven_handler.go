// README: Oven board handler: per-item countdowns and the one-shot alert flag.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"expo/internal/modules/oven"
)

type OvenHandler struct {
	oven *oven.Service
}

func NewOvenHandler(svc *oven.Service) *OvenHandler {
	return &OvenHandler{oven: svc}
}

func (h *OvenHandler) Snapshot(c *gin.Context) {
	entries, err := h.oven.Snapshot(c.Request.Context(), time.Now())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, entries)
}
