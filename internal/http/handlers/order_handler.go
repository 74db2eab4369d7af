// README: Order handlers for the expedition board: list, detail, dispatch actions.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"expo/internal/modules/item"
	"expo/internal/modules/order"
	"expo/internal/types"
)

type OrderHandler struct {
	orders *order.Service
	items  *item.Service
}

func NewOrderHandler(orders *order.Service, items *item.Service) *OrderHandler {
	return &OrderHandler{orders: orders, items: items}
}

type orderResponse struct {
	ID           types.ID        `json:"id"`
	ExternalRef  *string         `json:"external_ref,omitempty"`
	CustomerName string          `json:"customer_name"`
	Address      string          `json:"address,omitempty"`
	Total        decimal.Decimal `json:"total"`
	OrderType    string          `json:"order_type"`
	Status       string          `json:"status"`
	Urgent       bool            `json:"urgent"`
	NotifyError  *string         `json:"notify_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ReadyAt      *time.Time      `json:"ready_at,omitempty"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
	Items        []itemResponse  `json:"items,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		ExternalRef:  o.ExternalRef,
		CustomerName: o.CustomerName,
		Address:      o.Address,
		Total:        o.Total,
		OrderType:    string(o.OrderType),
		Status:       string(o.Status),
		Urgent:       o.Urgent,
		NotifyError:  o.NotifyError,
		CreatedAt:    o.CreatedAt,
		ReadyAt:      o.ReadyAt,
		DispatchedAt: o.DispatchedAt,
	}
}

// List serves the expedition board: ?status=pending,waiting_buffer,ready
func (h *OrderHandler) List(c *gin.Context) {
	var statuses []order.Status
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			statuses = append(statuses, order.Status(s))
		}
	}
	orders, err := h.orders.List(c.Request.Context(), statuses)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	writeJSON(c, http.StatusOK, out)
}

// Get returns the order with its decomposed items.
func (h *OrderHandler) Get(c *gin.Context) {
	id := types.ID(c.Param("id"))
	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	items, err := h.items.ListByOrder(c.Request.Context(), id)
	if err != nil {
		writeItemError(c, err)
		return
	}
	resp := toOrderResponse(o)
	resp.Items = toItemResponses(items)
	writeJSON(c, http.StatusOK, resp)
}

// MasterReady force-completes the order's oven block and releases the order.
func (h *OrderHandler) MasterReady(c *gin.Context) {
	var req operatorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.orders.MasterReady(c.Request.Context(), order.MasterReadyCommand{
		OrderID:    types.ID(c.Param("id")),
		OperatorID: types.ID(req.OperatorID),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"order_id": c.Param("id")})
}

func (h *OrderHandler) Collected(c *gin.Context) {
	err := h.orders.MarkCollected(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"order_id": c.Param("id"), "status": order.StatusDispatched})
}

func (h *OrderHandler) ForceClose(c *gin.Context) {
	err := h.orders.ForceClose(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"order_id": c.Param("id")})
}

func (h *OrderHandler) RetryNotify(c *gin.Context) {
	err := h.orders.RetryNotify(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	o, err := h.orders.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"order_id":     o.ID,
		"notify_error": o.NotifyError,
	})
}
