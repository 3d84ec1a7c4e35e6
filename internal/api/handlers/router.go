package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/langchou/tesbridge/pkg/ws"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/auth/token", h.UpdateToken)
		api.GET("/entities", h.ListEntities)

		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin", h.GetVehicle)
		api.POST("/vehicles/:vin/wake", h.WakeVehicle)
		api.GET("/vehicles/:vin/covers", h.ListCovers)
		api.POST("/vehicles/:vin/covers/:key/:action", h.ActuateCover)

		// 能源站点
		api.GET("/sites", h.ListSites)
		api.GET("/sites/:id", h.GetSite)

		// 协调器缓存
		api.GET("/data/:kind/:id", h.GetSnapshot)
		api.PATCH("/data/:kind/:id", h.WriteData)
		api.POST("/data/:kind/:id/refresh", h.Refresh)
		api.GET("/data/:kind/:id/history", h.GetHistory)
		api.GET("/data/:kind/:id/keys/:key", h.GetValue)
		api.GET("/data/:kind/:id/keys/:key/exactly", h.Exactly)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 监控
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"entry_state": h.entry.State(),
		"ws_clients":  h.wsHub.ClientCount(),
	})
}

// GetStatus 集成与协调器状态
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.entry.Status()})
}

// UpdateToken 更新 access token 并重新加载
// POST /api/auth/token
func (h *Handler) UpdateToken(c *gin.Context) {
	var req struct {
		AccessToken string `json:"access_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.entry.Reauth(c.Request.Context(), req.AccessToken); err != nil {
		h.writeError(c, err)
		return
	}

	if h.onToken != nil {
		if err := h.onToken(req.AccessToken); err != nil {
			h.logger.Error("Failed to save token", zap.Error(err))
		}
	}

	h.logger.Info("Token updated via API")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "entry_state": h.entry.State()})
}
