// README: Webhook handlers for upstream order ingestion and cancellation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"expo/internal/modules/item"
	"expo/internal/modules/order"
	"expo/internal/types"
)

type WebhookHandler struct {
	orders *order.Service
	items  *item.Service
}

func NewWebhookHandler(orders *order.Service, items *item.Service) *WebhookHandler {
	return &WebhookHandler{orders: orders, items: items}
}

type webhookItemReq struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Sector   string `json:"sector"`
	Notes    string `json:"notes"`
	Flavors  string `json:"flavors"`
	EdgeType string `json:"edge_type"`
}

type webhookOrderReq struct {
	Ref          string           `json:"ref"`
	CustomerName string           `json:"customer_name"`
	Address      string           `json:"address"`
	Lat          *float64         `json:"lat"`
	Lng          *float64         `json:"lng"`
	Total        decimal.Decimal  `json:"total"`
	OrderType    string           `json:"order_type"`
	Items        []webhookItemReq `json:"items"`
}

// CreateOrder ingests an upstream order and decomposes it into items.
func (h *WebhookHandler) CreateOrder(c *gin.Context) {
	var req webhookOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.IngestCommand{
		ExternalRef:  req.Ref,
		CustomerName: req.CustomerName,
		Address:      req.Address,
		Lat:          req.Lat,
		Lng:          req.Lng,
		Total:        req.Total,
		OrderType:    order.OrderType(req.OrderType),
		Items:        make([]order.IngestItem, len(req.Items)),
	}
	for i, it := range req.Items {
		var sector *types.Sector
		if it.Sector != "" {
			s := types.Sector(it.Sector)
			sector = &s
		}
		cmd.Items[i] = order.IngestItem{
			Product:  it.Product,
			Quantity: it.Quantity,
			Sector:   sector,
			Notes:    it.Notes,
			Flavors:  it.Flavors,
			EdgeType: it.EdgeType,
		}
	}
	id, err := h.orders.Ingest(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"order_id": id, "status": order.StatusPending})
}

// CancelOrder handles the upstream cancellation callback. An unknown ref is a
// success: the order was already cleared locally.
func (h *WebhookHandler) CancelOrder(c *gin.Context) {
	if err := h.orders.CancelByExternalRef(c.Request.Context(), c.Param("ref")); err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ref": c.Param("ref")})
}

// CancelItem handles upstream removal of a single item from an order.
func (h *WebhookHandler) CancelItem(c *gin.Context) {
	if err := h.items.Cancel(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeItemError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"item_id": c.Param("id")})
}
