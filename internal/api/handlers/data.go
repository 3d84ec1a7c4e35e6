package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/coordinator"
)

func (h *Handler) lookupCoordinator(c *gin.Context) (*coordinator.Coordinator, bool) {
	co, err := h.entry.Coordinator(coordinator.Kind(c.Param("kind")), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return co, true
}

// GetSnapshot 获取协调器完整缓存
// GET /api/data/:kind/:id
func (h *Handler) GetSnapshot(c *gin.Context) {
	co, ok := h.lookupCoordinator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":                co.Snapshot(),
		"updated_once":        co.UpdatedOnce(),
		"last_update_success": co.LastUpdateSuccess(),
	})
}

// GetValue 读取单个键
// GET /api/data/:kind/:id/keys/:key
func (h *Handler) GetValue(c *gin.Context) {
	co, ok := h.lookupCoordinator(c)
	if !ok {
		return
	}
	key := c.Param("key")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"key":     key,
		"present": co.Has(key),
		"value":   co.Read(key, nil),
	}})
}

// Exactly 判断键的值是否与 value 完全相同
// GET /api/data/:kind/:id/keys/:key/exactly?value=<json>
// value 不是合法 JSON 时按字符串比较
func (h *Handler) Exactly(c *gin.Context) {
	co, ok := h.lookupCoordinator(c)
	if !ok {
		return
	}

	raw, ok := c.GetQuery("value")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing value"})
		return
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	match, known := co.Exactly(c.Param("key"), value)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"match": match,
		"known": known,
	}})
}

// WriteData 写入缓存并通知订阅者，不访问远端
// PATCH /api/data/:kind/:id
func (h *Handler) WriteData(c *gin.Context) {
	co, ok := h.lookupCoordinator(c)
	if !ok {
		return
	}

	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil || len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	kv := make([]coordinator.KV, 0, len(req))
	for k, v := range req {
		kv = append(kv, coordinator.KV{Key: k, Value: v})
	}
	co.Write(kv...)

	h.logger.Info("Cache written via API",
		zap.String("kind", string(co.Kind())),
		zap.String("id", co.ID()),
		zap.Int("keys", len(kv)),
	)
	c.JSON(http.StatusOK, gin.H{"data": co.Snapshot()})
}

// Refresh 立即刷新，与进行中的刷新合并
// POST /api/data/:kind/:id/refresh
func (h *Handler) Refresh(c *gin.Context) {
	co, ok := h.lookupCoordinator(c)
	if !ok {
		return
	}

	if err := co.Refresh(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": co.Snapshot()})
}

// GetHistory 获取状态区间，按时间倒序
// GET /api/data/:kind/:id/history?page=1&per_page=20
func (h *Handler) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "History is disabled"})
		return
	}
	co, ok := h.lookupCoordinator(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage

	states, err := h.history.ListByResource(c.Request.Context(), string(co.Kind()), co.ID(), perPage, offset)
	if err != nil {
		h.logger.Error("Failed to list states", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list states"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": states,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
		},
	})
}
