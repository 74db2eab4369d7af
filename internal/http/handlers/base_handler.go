// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"expo/internal/modules/buffer"
	"expo/internal/modules/item"
	"expo/internal/modules/order"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// Conflict-class errors map to 409: the tablet refreshes its board and the
// operator retries against current state.
func writeItemError(c *gin.Context, err error) {
	switch err {
	case item.ErrBadRequest:
		writeError(c, http.StatusBadRequest, err.Error())
	case item.ErrNotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case item.ErrClaimConflict, item.ErrNotClaimedByCaller, item.ErrInvalidState, item.ErrConflict:
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeOrderError(c *gin.Context, err error) {
	switch err {
	case order.ErrBadRequest:
		writeError(c, http.StatusBadRequest, err.Error())
	case order.ErrNotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case order.ErrInvalidState, order.ErrConflict, order.ErrSiblingsPending:
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeBufferError(c *gin.Context, err error) {
	switch err {
	case buffer.ErrEmptyBuffer:
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
