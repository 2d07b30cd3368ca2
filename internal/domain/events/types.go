// Package events 定义领域事件类型和接口
// 用于消息推送、向量索引同步等旁路处理
package events

import (
	"time"

	"github.com/shopmind/backend/internal/domain/chat"
)

// EventType 事件类型标识
type EventType string

// 会话相关事件类型
const (
	// ChatMessageCreated 消息已持久化
	ChatMessageCreated EventType = "chat.message.created"
	// ChatClosed 会话已关闭
	ChatClosed EventType = "chat.closed"
)

// 实体相关事件类型
const (
	// EntityUpserted 实体新增或修改，需要重新向量化
	EntityUpserted EventType = "entity.upserted"
	// EntityDeleted 实体删除，需要清理向量点
	EntityDeleted EventType = "entity.deleted"
)

// Event 领域事件接口
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// ChatMessageEvent 消息事件
type ChatMessageEvent struct {
	Message   *chat.Message
	EventTime time.Time
}

// Type 实现 Event
func (e *ChatMessageEvent) Type() EventType { return ChatMessageCreated }

// Timestamp 实现 Event
func (e *ChatMessageEvent) Timestamp() time.Time { return e.EventTime }

// ChatClosedEvent 会话关闭事件
type ChatClosedEvent struct {
	ChatID    string
	EventTime time.Time
}

// Type 实现 Event
func (e *ChatClosedEvent) Type() EventType { return ChatClosed }

// Timestamp 实现 Event
func (e *ChatClosedEvent) Timestamp() time.Time { return e.EventTime }

// EntityKind 可被向量化的实体类型
type EntityKind string

const (
	EntityProduct   EntityKind = "product"
	EntityCategory  EntityKind = "category"
	EntityFAQ       EntityKind = "faq"
	EntityReview    EntityKind = "review"
	EntityChat      EntityKind = "chat"
	EntitySearchLog EntityKind = "search_log"
)

// EntityEvent 实体变更事件
type EntityEvent struct {
	EventType EventType
	Kind      EntityKind
	// ID 实体 ID 的字符串形式（分类 ID 为路径）
	ID        string
	EventTime time.Time
}

// Type 实现 Event
func (e *EntityEvent) Type() EventType { return e.EventType }

// Timestamp 实现 Event
func (e *EntityEvent) Timestamp() time.Time { return e.EventTime }
