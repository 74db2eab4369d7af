// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expo/internal/config"
	"expo/internal/http/handlers"
	"expo/internal/http/middleware"
	"expo/internal/modules/buffer"
	"expo/internal/modules/item"
	"expo/internal/modules/order"
	"expo/internal/modules/oven"
	"expo/internal/realtime"
)

type ServerDeps struct {
	Order  *order.Service
	Item   *item.Service
	Buffer *buffer.Service
	Oven   *oven.Service
	Hub    *realtime.Hub
	Fifo   config.FifoSettings
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	webhook := handlers.NewWebhookHandler(s.deps.Order, s.deps.Item)
	r.POST("/api/webhooks/orders", webhook.CreateOrder)
	r.POST("/api/webhooks/orders/:ref/cancel", webhook.CancelOrder)
	r.POST("/api/webhooks/items/:id/cancel", webhook.CancelItem)

	itemHandler := handlers.NewItemHandler(s.deps.Item, s.deps.Fifo)
	r.GET("/api/items", itemHandler.List)
	r.POST("/api/items/:id/claim", itemHandler.Claim)
	r.POST("/api/items/:id/release", itemHandler.Release)
	r.POST("/api/items/:id/oven", itemHandler.Oven)
	r.POST("/api/items/:id/ready", itemHandler.Ready)

	orderHandler := handlers.NewOrderHandler(s.deps.Order, s.deps.Item)
	r.GET("/api/orders", orderHandler.List)
	r.GET("/api/orders/:id", orderHandler.Get)
	r.POST("/api/orders/:id/master-ready", orderHandler.MasterReady)
	r.POST("/api/orders/:id/collected", orderHandler.Collected)
	r.POST("/api/orders/:id/force-close", orderHandler.ForceClose)
	r.POST("/api/orders/:id/retry-notify", orderHandler.RetryNotify)

	bufferHandler := handlers.NewBufferHandler(s.deps.Buffer)
	r.GET("/api/buffer", bufferHandler.State)
	r.POST("/api/buffer/dispatch-now", bufferHandler.DispatchNow)

	ovenHandler := handlers.NewOvenHandler(s.deps.Oven)
	r.GET("/api/oven", ovenHandler.Snapshot)

	if s.deps.Hub != nil {
		r.GET("/ws", gin.WrapF(s.deps.Hub.HandleWS))
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
