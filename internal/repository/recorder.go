package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/coordinator"
	"github.com/langchou/tesbridge/internal/models"
)

// 非车辆资源的状态
const (
	StateOK     = "ok"
	StateFailed = "failed"
)

// StateStore 状态区间存储
type StateStore interface {
	Transition(ctx context.Context, s *models.State) error
}

// Recorder 订阅协调器更新，状态变化时写入一条新区间
// Handle 只入队，写库在 Run 的 goroutine 中进行
type Recorder struct {
	store  StateStore
	logger *zap.Logger
	queue  chan coordinator.Update

	// 仅由 Run 访问
	last map[string]string
}

// NewRecorder 创建状态记录器
func NewRecorder(store StateStore, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.Named("recorder"),
		queue:  make(chan coordinator.Update, 256),
		last:   make(map[string]string),
	}
}

// Handle 订阅回调，队列满时丢弃
func (r *Recorder) Handle(u coordinator.Update) {
	// 乐观写入不代表远端状态
	if len(u.Keys) > 0 {
		return
	}
	select {
	case r.queue <- u:
	default:
		r.logger.Warn("Recorder queue full, dropping update", zap.String("id", u.ID))
	}
}

// Run 持续写库直到 ctx 结束
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-r.queue:
			r.record(ctx, u)
		}
	}
}

// StateOf 从更新中提取状态
// 车辆取缓存中的 state，失败时为 failed
func StateOf(u coordinator.Update) (state, reason string) {
	if !u.Success {
		if u.Err != nil {
			reason = u.Err.Error()
		}
		return StateFailed, reason
	}
	if u.Kind == coordinator.KindVehicle {
		if s, ok := u.Data["state"].(string); ok && s != "" {
			return s, ""
		}
	}
	return StateOK, ""
}

func (r *Recorder) record(ctx context.Context, u coordinator.Update) {
	state, reason := StateOf(u)
	key := string(u.Kind) + "/" + u.ID
	if r.last[key] == state {
		return
	}

	at := u.Time
	if at.IsZero() {
		at = time.Now()
	}

	s := &models.State{
		Kind:       string(u.Kind),
		ResourceID: u.ID,
		State:      state,
		Reason:     reason,
		StartTime:  at,
	}
	if err := r.store.Transition(ctx, s); err != nil {
		r.logger.Error("Failed to record state", zap.String("kind", s.Kind), zap.String("id", s.ResourceID), zap.Error(err))
		return
	}

	r.last[key] = state
	r.logger.Debug("State recorded",
		zap.String("kind", s.Kind),
		zap.String("id", s.ResourceID),
		zap.String("state", state),
	)
}
