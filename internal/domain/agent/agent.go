// Package agent 专职代理的统一契约
package agent

import (
	"context"
	"errors"

	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
)

// Name 代理名称（封闭集合）
type Name string

const (
	SearchDiscovery   Name = "search_discovery"
	ProductInfo       Name = "product_info"
	Recommendation    Name = "recommendation"
	ProductComparison Name = "product_comparison"
	PolicyQA          Name = "policy_qa"
	UserProfile       Name = "user_profile"
	ShopManagement    Name = "shop_management"
	General           Name = "general"
)

// Names 全部代理
var Names = []Name{
	SearchDiscovery, ProductInfo, Recommendation, ProductComparison,
	PolicyQA, UserProfile, ShopManagement, General,
}

// ParseName 解析代理名称，未知返回 false
func ParseName(s string) (Name, bool) {
	for _, n := range Names {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// Kind 响应类别
type Kind string

const (
	KindAnswer       Kind = "answer"
	KindNotFound     Kind = "not_found"
	KindClarify      Kind = "clarification"
	KindConfirmation Kind = "confirmation"
	KindError        Kind = "error"
)

// ErrNoResult 代理无法作答，由编排器转交通用检索应答
var ErrNoResult = errors.New("agent produced no result")

// Request 代理输入
type Request struct {
	ChatID     string
	Message    string
	Intent     intent.Label
	Entities   intent.Entities
	SenderKind chat.SenderKind
	// UserID 顾客 ID 或店铺 ID，取决于 SenderKind
	UserID int64
	// Context 会话上下文（只读）
	Context map[string]any
}

// IsShop 是否店主消息
func (r *Request) IsShop() bool {
	return r.SenderKind == chat.SenderShop
}

// ContextInt64 读取会话上下文中的整数
func (r *Request) ContextInt64(key string) (int64, bool) {
	return intent.Entities(r.Context).Int64(key)
}

// Response 代理输出
type Response struct {
	Content     string `json:"content"`
	SourceAgent Name   `json:"source_agent"`
	Kind        Kind   `json:"kind"`
	// Data 辅助数据，例如商品列表、对比表
	Data map[string]any `json:"data,omitempty"`
	// Sources 检索到的依据，写入消息元数据
	Sources []Source `json:"sources,omitempty"`
	// ContextUpdates 需要合并进会话上下文的键值，nil 值表示删除
	ContextUpdates map[string]any `json:"-"`
}

// Source 回答依据
type Source struct {
	Collection string  `json:"collection"`
	ID         string  `json:"id"`
	Score      float32 `json:"score,omitempty"`
}

// Agent 专职代理
type Agent interface {
	Name() Name
	Handle(ctx context.Context, req *Request) (*Response, error)
}
