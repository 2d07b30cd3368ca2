package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/infrastructure/config"
)

// setupHub 启动 Hub 与一个按 ?chat= 订阅的测试服务
func setupHub(t *testing.T, handle InboundHandler) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	hub.Start()
	t.Cleanup(hub.Stop)

	up := NewUpgrader(hub, &config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = up.Serve(w, r, r.URL.Query().Get("chat"), handle)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func waitSubscribers(t *testing.T, hub *Hub, chatID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(chatID) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsToChatSubscribers(t *testing.T) {
	hub, url := setupHub(t, nil)
	a := dial(t, url+"?chat=c1")
	b := dial(t, url+"?chat=c2")
	waitSubscribers(t, hub, "c1", 1)
	waitSubscribers(t, hub, "c2", 1)

	msg := &chat.Message{ID: "m1", ChatID: "c1", SenderKind: chat.SenderCustomer, Content: "Xin chào"}
	require.NoError(t, hub.HandleEvent(&events.ChatMessageEvent{Message: msg, EventTime: time.Now()}))

	f := readFrame(t, a)
	assert.Equal(t, FrameMessage, f.Type)
	assert.Equal(t, "c1", f.ChatID)
	data, ok := f.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Xin chào", data["content"])

	require.NoError(t, hub.HandleEvent(&events.ChatClosedEvent{ChatID: "c2", EventTime: time.Now()}))
	f = readFrame(t, b)
	assert.Equal(t, FrameChatClosed, f.Type)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := a.ReadMessage()
	assert.Error(t, err, "c1 does not receive c2 events")
}

func TestHub_InboundReply(t *testing.T) {
	hub, url := setupHub(t, func(_ context.Context, c *Client, payload []byte) *Frame {
		return &Frame{Type: FrameTurnResult, ChatID: c.ChatID(), Data: string(payload)}
	})
	conn := dial(t, url+"?chat=c1")
	waitSubscribers(t, hub, "c1", 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	f := readFrame(t, conn)
	assert.Equal(t, FrameTurnResult, f.Type)
	assert.Equal(t, "ping", f.Data)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, url := setupHub(t, nil)
	conn := dial(t, url+"?chat=c1")
	waitSubscribers(t, hub, "c1", 1)

	require.NoError(t, conn.Close())
	waitSubscribers(t, hub, "c1", 0)
}
