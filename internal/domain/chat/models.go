// Package chat 会话与消息领域模型
package chat

import (
	"time"
)

// Status 会话状态，只允许 active → closed
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// SenderKind 消息发送方类型
type SenderKind string

const (
	SenderCustomer      SenderKind = "customer"
	SenderShop          SenderKind = "shop"
	SenderAgent         SenderKind = "agent"
	SenderAgentResponse SenderKind = "agent_response"
	SenderSystem        SenderKind = "system"
)

// Valid 是否为已知发送方
func (k SenderKind) Valid() bool {
	switch k {
	case SenderCustomer, SenderShop, SenderAgent, SenderAgentResponse, SenderSystem:
		return true
	}
	return false
}

// IsHuman 是否为人工发送方（顾客或店主）
func (k SenderKind) IsHuman() bool {
	return k == SenderCustomer || k == SenderShop
}

// Chat 会话
// 约束：ShopID 与 CustomerID 至少一个非空；LastActivity 不早于任何所属消息的创建时间
type Chat struct {
	ID           string         `json:"id"`
	ShopID       *int64         `json:"shop_id,omitempty"`
	CustomerID   *int64         `json:"customer_id,omitempty"`
	Status       Status         `json:"status"`
	LastActivity time.Time      `json:"last_activity"`
	Context      map[string]any `json:"context,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsClosed 会话是否已关闭
func (c *Chat) IsClosed() bool {
	return c.Status == StatusClosed
}

// Message 会话消息
type Message struct {
	ID         string         `json:"id"`
	ChatID     string         `json:"chat_id"`
	SenderKind SenderKind     `json:"sender_kind"`
	SenderID   string         `json:"sender_id"`
	Content    string         `json:"content"`
	IsRead     bool           `json:"is_read"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Summary 会话列表项
type Summary struct {
	Chat        *Chat    `json:"chat"`
	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// ListFilter 会话列表过滤条件
type ListFilter struct {
	ShopID     *int64
	CustomerID *int64
	Status     Status
	Limit      int
}

// Context 键
const (
	// ContextRouting 最近一轮的路由决策
	ContextRouting = "routing"
	// ContextLastViewedProduct 最近查看的商品 ID
	ContextLastViewedProduct = "last_viewed_product_id"
	// ContextPendingProfileUpdate 等待用户确认的资料修改
	ContextPendingProfileUpdate = "pending_profile_update"
)
