package chat

import "context"

// Repository 会话仓储接口
type Repository interface {
	// Create 创建会话，ID 已存在时返回 ErrChatExists
	Create(ctx context.Context, chat *Chat) error
	// Get 获取会话，不存在返回 nil, nil
	Get(ctx context.Context, id string) (*Chat, error)
	// List 按店铺或顾客列出会话
	List(ctx context.Context, filter ListFilter) ([]*Summary, error)
	// Close 关闭会话，重复关闭不报错
	Close(ctx context.Context, id string) error
	// Delete 删除会话及其消息
	Delete(ctx context.Context, id string) error
	// UpdateContext 覆盖会话上下文
	UpdateContext(ctx context.Context, id string, ctxBag map[string]any) error

	// AppendMessage 追加消息，并在同一事务内推进会话 last_activity
	// 同一会话内消息创建时间严格递增
	AppendMessage(ctx context.Context, msg *Message) error
	// History 按创建时间升序返回消息，limit <= 0 表示全部；有 limit 时返回最近的 limit 条
	History(ctx context.Context, chatID string, limit int) ([]*Message, error)
	// MarkRead 将对方发送的消息标记为已读，返回更新条数
	MarkRead(ctx context.Context, chatID string, reader SenderKind) (int, error)
}
