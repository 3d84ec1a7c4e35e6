package notifier

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/coordinator"
)

// 在线状态负载
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// MQTTConfig MQTT 连接参数
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TopicRoot string
	KeepAlive uint16
}

// Publisher 发布接口
type Publisher interface {
	Publish(ctx context.Context, topic string, retain bool, payload []byte) error
}

// MQTT 基于 autopaho 的发布者，断线后自动重连
type MQTT struct {
	cfg    MQTTConfig
	logger *zap.Logger
	cm     *autopaho.ConnectionManager
}

// StatusTopic 服务在线状态主题，遗嘱消息发布为 offline
func StatusTopic(root string) string {
	return root + "/status"
}

// StateTopic 协调器缓存主题
func StateTopic(root string, kind coordinator.Kind, id string) string {
	return fmt.Sprintf("%s/%s/%s/state", root, kind, id)
}

// NewMQTT 连接 Broker
func NewMQTT(ctx context.Context, cfg MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	brokerURL, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mqtt broker url: %w", err)
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}

	m := &MQTT{cfg: cfg, logger: logger.Named("mqtt")}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                10 * time.Second,
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   StatusTopic(cfg.TopicRoot),
			Payload: []byte(PayloadOffline),
			QoS:     1,
			Retain:  true,
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnClientError: func(err error) {
				m.logger.Error("MQTT client error", zap.Error(err))
			},
		},
		OnConnectionUp: m.onConnectionUp,
		OnConnectError: func(err error) {
			m.logger.Warn("MQTT connection failed, retrying", zap.Error(err))
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("connect mqtt: %w", err)
	}
	m.cm = cm

	m.logger.Info("MQTT client started", zap.String("broker", cfg.BrokerURL), zap.String("client_id", cfg.ClientID))
	return m, nil
}

func (m *MQTT) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	m.logger.Info("MQTT connection established")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   StatusTopic(m.cfg.TopicRoot),
		QoS:     1,
		Retain:  true,
		Payload: []byte(PayloadOnline),
	}); err != nil {
		m.logger.Warn("Failed to publish online status", zap.Error(err))
	}
}

// Publish 以 QoS 1 发布
func (m *MQTT) Publish(ctx context.Context, topic string, retain bool, payload []byte) error {
	_, err := m.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Retain:  retain,
		Payload: payload,
	})
	return err
}

// Close 发布 offline 后断开
func (m *MQTT) Close(ctx context.Context) {
	if err := m.Publish(ctx, StatusTopic(m.cfg.TopicRoot), true, []byte(PayloadOffline)); err != nil {
		m.logger.Warn("Failed to publish offline status", zap.Error(err))
	}
	if err := m.cm.Disconnect(ctx); err != nil {
		m.logger.Warn("MQTT disconnect", zap.Error(err))
	}
	m.logger.Info("MQTT client disconnected")
}
