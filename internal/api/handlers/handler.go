package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/api/teslemetry"
	"github.com/langchou/tesbridge/internal/coordinator"
	"github.com/langchou/tesbridge/internal/entity"
	"github.com/langchou/tesbridge/internal/integration"
	"github.com/langchou/tesbridge/internal/models"
	"github.com/langchou/tesbridge/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	entry    *integration.Entry
	wsHub    *ws.Hub
	upgrader websocket.Upgrader

	// 新 token 生效后调用，用于持久化
	onToken func(token string) error

	// 未配置数据库时为空
	history History
}

// History 状态历史查询
type History interface {
	ListByResource(ctx context.Context, kind, resourceID string, limit, offset int) ([]*models.State, error)
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, entry *integration.Entry, wsHub *ws.Hub, onToken func(token string) error) *Handler {
	return &Handler{
		logger:  logger.Named("http"),
		entry:   entry,
		wsHub:   wsHub,
		onToken: onToken,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// SetHistory 启用状态历史接口
func (h *Handler) SetHistory(history History) {
	h.history = history
}

// writeError 把领域错误映射为 HTTP 状态码
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var (
		authErr    *coordinator.AuthFailedError
		updateErr  *coordinator.UpdateFailedError
		wakeErr    *entity.WakeError
		commandErr *teslemetry.CommandError
	)

	switch {
	case errors.Is(err, integration.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrNotSupported):
		status = http.StatusMethodNotAllowed
	case errors.As(err, &authErr), errors.Is(err, integration.ErrReauthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, integration.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, entity.ErrWakeTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &wakeErr), errors.As(err, &commandErr), errors.As(err, &updateErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
