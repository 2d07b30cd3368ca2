// Package websocket 按会话分组的 WebSocket 推送
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// 推送帧类型
const (
	FrameMessage    = "message"
	FrameChatClosed = "chat_closed"
	FrameTurnResult = "turn_result"
	FrameError      = "error"
)

// Frame 推送给客户端的数据帧
type Frame struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	Data   any    `json:"data,omitempty"`
}

// Hub 会话连接管理中心
type Hub struct {
	// 按会话 ID 分组的连接
	chats      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	logger     *slog.Logger
}

type envelope struct {
	chatID string
	data   []byte
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		chats:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 256),
		done:       make(chan struct{}),
		logger:     log.NewModuleLogger("websocket", "hub"),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for chatID, clients := range h.chats {
				for c := range clients {
					close(c.send)
				}
				delete(h.chats, chatID)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.chats[c.chatID] == nil {
				h.chats[c.chatID] = make(map[*Client]bool)
			}
			h.chats[c.chatID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.chats[msg.chatID] {
				select {
				case c.send <- msg.data:
				default:
					// 发送缓冲区满，断开慢客户端
					h.logger.Warn("Send buffer full, dropping client", "chat_id", msg.chatID)
					h.remove(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove 调用方持有写锁
func (h *Hub) remove(c *Client) {
	clients, ok := h.chats[c.chatID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.chats, c.chatID)
	}
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	go h.Run()
}

// Stop 关闭全部连接并停止 Hub
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register 注册连接
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister 注销连接
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribers 会话当前的连接数
func (h *Hub) Subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}

// BroadcastToChat 向指定会话广播
func (h *Hub) BroadcastToChat(chatID string, frame *Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &envelope{chatID: chatID, data: data}:
	case <-h.done:
	}
	return nil
}

// HandleEvent 实现 events.Handler：新消息与会话关闭推送给订阅者
func (h *Hub) HandleEvent(event events.Event) error {
	switch e := event.(type) {
	case *events.ChatMessageEvent:
		if e.Message == nil {
			return nil
		}
		return h.BroadcastToChat(e.Message.ChatID, &Frame{Type: FrameMessage, ChatID: e.Message.ChatID, Data: e.Message})
	case *events.ChatClosedEvent:
		return h.BroadcastToChat(e.ChatID, &Frame{Type: FrameChatClosed, ChatID: e.ChatID})
	}
	return nil
}
