package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/tesbridge/internal/coordinator"
)

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, retain: retain, payload: payload})
	return nil
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published{}, f.msgs...)
}

func TestStateTopic(t *testing.T) {
	assert.Equal(t, "tesbridge/vehicle/VIN1/state", StateTopic("tesbridge", coordinator.KindVehicle, "VIN1"))
	assert.Equal(t, "home/energy_live/42/state", StateTopic("home", coordinator.KindEnergyLive, "42"))
	assert.Equal(t, "home/status", StatusTopic("home"))
}

func TestNotifierPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, "tesbridge", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n.Handle(coordinator.Update{
		Kind:    coordinator.KindVehicle,
		ID:      "VIN1",
		Data:    map[string]interface{}{"state": "online"},
		Success: true,
		Time:    now,
	})
	n.Handle(coordinator.Update{
		Kind: coordinator.KindEnergyInfo,
		ID:   "42",
		Err:  errors.New("boom"),
		Time: now,
	})

	require.Eventually(t, func() bool {
		return len(pub.messages()) == 2
	}, time.Second, 5*time.Millisecond)

	msgs := pub.messages()
	assert.Equal(t, "tesbridge/vehicle/VIN1/state", msgs[0].topic)
	assert.True(t, msgs[0].retain)

	var first StatePayload
	require.NoError(t, json.Unmarshal(msgs[0].payload, &first))
	assert.True(t, first.Success)
	assert.Equal(t, "online", first.Data["state"])
	assert.Empty(t, first.Error)

	var second StatePayload
	require.NoError(t, json.Unmarshal(msgs[1].payload, &second))
	assert.Equal(t, "tesbridge/energy_info/42/state", msgs[1].topic)
	assert.False(t, second.Success)
	assert.Equal(t, "boom", second.Error)
}

func TestNotifierDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, "tesbridge", zap.NewNop())

	// 未运行 Run，队列满后 Handle 不阻塞
	for i := 0; i < queueSize+10; i++ {
		n.Handle(coordinator.Update{Kind: coordinator.KindVehicle, ID: "VIN1"})
	}
	assert.Len(t, n.queue, queueSize)
}

func TestNotifierPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	n := New(pub, "tesbridge", zap.NewNop())

	n.publish(context.Background(), coordinator.Update{Kind: coordinator.KindVehicle, ID: "VIN1"})
	assert.Empty(t, pub.messages())
}
