// README: Item handlers for the sector tablets: queue, claim, release, oven, ready.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"expo/internal/config"
	"expo/internal/modules/item"
	"expo/internal/types"
)

type ItemHandler struct {
	items *item.Service
	fifo  config.FifoSettings
}

func NewItemHandler(svc *item.Service, fifo config.FifoSettings) *ItemHandler {
	return &ItemHandler{items: svc, fifo: fifo}
}

type itemResponse struct {
	ID              types.ID   `json:"id"`
	OrderID         types.ID   `json:"order_id"`
	Sector          *string    `json:"sector"`
	Product         string     `json:"product"`
	Quantity        int        `json:"quantity"`
	Notes           string     `json:"notes,omitempty"`
	Flavors         string     `json:"flavors,omitempty"`
	EdgeType        string     `json:"edge_type,omitempty"`
	Status          string     `json:"status"`
	ClaimedBy       *types.ID  `json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	OvenEntryAt     *time.Time `json:"oven_entry_at,omitempty"`
	EstimatedExitAt *time.Time `json:"estimated_exit_at,omitempty"`
	ReadyAt         *time.Time `json:"ready_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	AgeLevel        string     `json:"age_level,omitempty"`
}

func toItemResponse(it *item.Item) itemResponse {
	var sector *string
	if it.Sector != nil {
		s := string(*it.Sector)
		sector = &s
	}
	return itemResponse{
		ID:              it.ID,
		OrderID:         it.OrderID,
		Sector:          sector,
		Product:         it.Product,
		Quantity:        it.Quantity,
		Notes:           it.Notes,
		Flavors:         it.Flavors,
		EdgeType:        it.EdgeType,
		Status:          string(it.Status),
		ClaimedBy:       it.ClaimedBy,
		ClaimedAt:       it.ClaimedAt,
		OvenEntryAt:     it.OvenEntryAt,
		EstimatedExitAt: it.EstimatedExitAt,
		ReadyAt:         it.ReadyAt,
		CreatedAt:       it.CreatedAt,
	}
}

func toItemResponses(items []*item.Item) []itemResponse {
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = toItemResponse(it)
	}
	return out
}

// List serves the production queue: ?sector=bar&status=pending,in_prep
func (h *ItemHandler) List(c *gin.Context) {
	var f item.QueueFilter
	if v := c.Query("sector"); v != "" {
		s := types.Sector(v)
		f.Sector = &s
	}
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			f.Statuses = append(f.Statuses, item.Status(s))
		}
	}
	items, err := h.items.ListQueue(c.Request.Context(), f)
	if err != nil {
		writeItemError(c, err)
		return
	}
	now := time.Now()
	out := toItemResponses(items)
	for i, it := range items {
		if it.Status == item.StatusPending || it.Status == item.StatusInPrep {
			out[i].AgeLevel = string(item.AgeLevelFor(it.CreatedAt, now, h.fifo))
		}
	}
	writeJSON(c, http.StatusOK, out)
}

type operatorReq struct {
	OperatorID string `json:"operator_id"`
}

func (h *ItemHandler) Claim(c *gin.Context) {
	var req operatorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.items.Claim(c.Request.Context(), item.ClaimCommand{
		ItemID:     types.ID(c.Param("id")),
		OperatorID: types.ID(req.OperatorID),
	})
	if err != nil {
		writeItemError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"item_id": c.Param("id"), "status": item.StatusInPrep})
}

func (h *ItemHandler) Release(c *gin.Context) {
	var req operatorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.items.Release(c.Request.Context(), item.ReleaseCommand{
		ItemID:     types.ID(c.Param("id")),
		OperatorID: types.ID(req.OperatorID),
	})
	if err != nil {
		writeItemError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"item_id": c.Param("id"), "status": item.StatusPending})
}

type ovenReq struct {
	OperatorID  string `json:"operator_id"`
	OvenSeconds int    `json:"oven_seconds"`
}

func (h *ItemHandler) Oven(c *gin.Context) {
	var req ovenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.items.SendToOven(c.Request.Context(), item.OvenCommand{
		ItemID:      types.ID(c.Param("id")),
		OperatorID:  types.ID(req.OperatorID),
		OvenSeconds: req.OvenSeconds,
	})
	if err != nil {
		writeItemError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"item_id": c.Param("id"), "status": item.StatusInOven})
}

func (h *ItemHandler) Ready(c *gin.Context) {
	res, err := h.items.MarkReady(c.Request.Context(), item.ReadyCommand{
		ItemID: types.ID(c.Param("id")),
	})
	if err != nil {
		writeItemError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"item_id":       c.Param("id"),
		"status":        item.StatusReady,
		"already_ready": res.AlreadyReady,
	})
}
