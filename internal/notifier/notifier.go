package notifier

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/coordinator"
)

const queueSize = 256

// StatePayload 发布到状态主题的内容
type StatePayload struct {
	Kind    coordinator.Kind       `json:"kind"`
	ID      string                 `json:"id"`
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Time    time.Time              `json:"time"`
	Data    map[string]interface{} `json:"data"`
}

// Notifier 把协调器的缓存变化转发给 Publisher
// Handle 只入队，由 Run 所在的 goroutine 发布
type Notifier struct {
	pub    Publisher
	root   string
	logger *zap.Logger
	queue  chan coordinator.Update
}

// New 创建转发器
func New(pub Publisher, root string, logger *zap.Logger) *Notifier {
	return &Notifier{
		pub:    pub,
		root:   root,
		logger: logger.Named("notifier"),
		queue:  make(chan coordinator.Update, queueSize),
	}
}

// Handle 订阅回调，队列满时丢弃
func (n *Notifier) Handle(u coordinator.Update) {
	select {
	case n.queue <- u:
	default:
		n.logger.Warn("Notify queue full, dropping update",
			zap.String("kind", string(u.Kind)),
			zap.String("id", u.ID),
		)
	}
}

// Run 持续发布直到 ctx 结束
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-n.queue:
			n.publish(ctx, u)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, u coordinator.Update) {
	payload := StatePayload{
		Kind:    u.Kind,
		ID:      u.ID,
		Success: u.Success,
		Time:    u.Time,
		Data:    u.Data,
	}
	if u.Err != nil {
		payload.Error = u.Err.Error()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Failed to marshal state", zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	topic := StateTopic(n.root, u.Kind, u.ID)
	if err := n.pub.Publish(pubCtx, topic, true, data); err != nil {
		n.logger.Warn("Failed to publish state", zap.String("topic", topic), zap.Error(err))
		return
	}
	n.logger.Debug("State published", zap.String("topic", topic))
}
