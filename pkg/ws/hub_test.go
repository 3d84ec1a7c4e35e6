package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan struct{}) {
	t.Helper()

	h := NewHub(zap.NewNop())
	h.SetInitDataProvider(func() interface{} {
		return map[string]string{"state": "loaded"}
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(cancel)
	return h, cancel, stopped
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(h, conn)
		c.Register()
		go c.ReadPump()
		go c.WritePump()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubBroadcast(t *testing.T) {
	h, _, _ := startHub(t)
	conn := dial(t, h)

	first := readMessage(t, conn)
	assert.Equal(t, MsgTypeInit, first["type"])
	assert.Equal(t, map[string]interface{}{"state": "loaded"}, first["data"])
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.BroadcastEntryState("loaded", "reauth_required")
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeEntryState, msg["type"])
	assert.Equal(t, map[string]interface{}{"from": "loaded", "state": "reauth_required"}, msg["data"])

	h.BroadcastStateUpdate(map[string]interface{}{"id": "42"})
	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeStateUpdate, msg["type"])
}

func TestHubStoppedDoesNotBlockClients(t *testing.T) {
	h, cancel, stopped := startHub(t)
	cancel()
	<-stopped

	c := NewClient(h, nil)
	done := make(chan struct{})
	go func() {
		c.Register()
		c.Unregister()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client blocked on stopped hub")
	}

	_, ok := <-c.send
	assert.False(t, ok)
}
