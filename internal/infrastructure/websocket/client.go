package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// InboundHandler 处理客户端发来的帧，返回值写回该客户端
type InboundHandler func(ctx context.Context, c *Client, payload []byte) *Frame

// Client 单个 WebSocket 连接，只订阅一个会话
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	chatID string
	send   chan []byte
	logger *slog.Logger
}

// Upgrader 连接升级器
type Upgrader struct {
	upgrader websocket.Upgrader
	hub      *Hub
	logger   *slog.Logger
}

// NewUpgrader 创建升级器
func NewUpgrader(hub *Hub, cfg *config.WebSocketConfig) *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // 前端与 API 分域部署
			},
		},
		hub:    hub,
		logger: log.NewModuleLogger("websocket", "client"),
	}
}

// Serve 升级连接并订阅会话，阻塞到连接关闭
func (u *Upgrader) Serve(w http.ResponseWriter, r *http.Request, chatID string, handle InboundHandler) error {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		hub:    u.hub,
		conn:   conn,
		chatID: chatID,
		send:   make(chan []byte, sendBuffer),
		logger: u.logger.With("chat_id", chatID),
	}
	u.hub.Register(c)
	c.logger.Debug("Client subscribed")

	go c.writePump()
	c.readPump(r.Context(), handle)
	return nil
}

// ChatID 订阅的会话
func (c *Client) ChatID() string {
	return c.chatID
}

// Reply 只发给当前客户端
func (c *Client) Reply(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to marshal frame", "error", err)
		return
	}
	defer func() {
		// 连接已被 Hub 关闭
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping reply")
	}
}

// readPump 读取客户端帧，连接断开时注销
func (c *Client) readPump(ctx context.Context, handle InboundHandler) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
		c.logger.Debug("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Connection read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if handle == nil {
			continue
		}
		if reply := handle(ctx, c, payload); reply != nil {
			c.Reply(reply)
		}
	}
}

// writePump 写出队列中的帧并定时 Ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
