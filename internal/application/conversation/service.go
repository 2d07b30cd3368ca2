// Package conversation 会话存储服务：创建、历史、关闭、列表、已读与删除
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// maxListLimit 列表单次最多返回的会话数
const maxListLimit = 200

// CreateInput 创建会话参数
type CreateInput struct {
	// ID 为空时自动生成
	ID         string `json:"id,omitempty"`
	CustomerID *int64 `json:"customer_id,omitempty"`
	ShopID     *int64 `json:"shop_id,omitempty"`
}

// Service 会话服务
// 每条持久化的消息都发布 chat.message.created 事件
type Service struct {
	chats     chat.Repository
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService 创建会话服务
func NewService(chats chat.Repository, publisher events.Publisher) *Service {
	return &Service{
		chats:     chats,
		publisher: publisher,
		logger:    log.NewModuleLogger("conversation", "service"),
	}
}

// Create 创建会话，顾客与店铺至少提供一个
func (s *Service) Create(ctx context.Context, in CreateInput) (*chat.Chat, error) {
	if !validID(in.CustomerID) && !validID(in.ShopID) {
		return nil, apperr.NewValidationError("customer_id", chat.ErrNoParticipant.Error())
	}
	if !validID(in.CustomerID) {
		in.CustomerID = nil
	}
	if !validID(in.ShopID) {
		in.ShopID = nil
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	c := &chat.Chat{ID: id, CustomerID: in.CustomerID, ShopID: in.ShopID, Status: chat.StatusActive}
	if err := s.chats.Create(ctx, c); err != nil {
		if errors.Is(err, chat.ErrChatExists) {
			return nil, apperr.NewValidationError("id", "chat already exists")
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to create chat: %w", err))
	}

	s.logger.Info("Chat created",
		"chat_id", c.ID,
		"customer_id", derefOrZero(c.CustomerID),
		"shop_id", derefOrZero(c.ShopID),
	)
	return c, nil
}

// Get 读取会话，不存在返回 ErrNotFound
func (s *Service) Get(ctx context.Context, id string) (*chat.Chat, error) {
	c, err := s.chats.Get(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to get chat: %w", err))
	}
	if c == nil {
		return nil, apperr.Wrap(apperr.ErrNotFound, fmt.Errorf("%w: %s", chat.ErrChatNotFound, id))
	}
	return c, nil
}

// Ensure 读取会话，不存在时以发送方身份创建
// 并发创建同一 ID 时回读已存在的记录，不会产生重复会话
func (s *Service) Ensure(ctx context.Context, id string, sender chat.SenderKind, userID int64) (*chat.Chat, bool, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		c, err := s.chats.Get(ctx, id)
		if err != nil {
			return nil, false, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to get chat: %w", err))
		}
		if c != nil {
			return c, false, nil
		}
	}

	if userID <= 0 {
		return nil, false, apperr.NewValidationError("user_id", "a new chat needs a customer or shop id")
	}
	in := CreateInput{ID: id}
	if sender == chat.SenderShop {
		in.ShopID = &userID
	} else {
		in.CustomerID = &userID
	}

	c, err := s.Create(ctx, in)
	if err == nil {
		return c, true, nil
	}
	if id != "" && apperr.IsValidationError(err) {
		// 另一轮请求抢先创建
		existing, getErr := s.Get(ctx, id)
		if getErr == nil {
			return existing, false, nil
		}
	}
	return nil, false, err
}

// Append 持久化消息并发布事件
func (s *Service) Append(ctx context.Context, msg *chat.Message) error {
	if err := s.chats.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			return apperr.Wrap(apperr.ErrNotFound, err)
		}
		return apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to append message: %w", err))
	}
	s.publisher.Publish(&events.ChatMessageEvent{Message: msg, EventTime: time.Now()})
	return nil
}

// History 按时间升序返回消息，limit <= 0 返回全部
func (s *Service) History(ctx context.Context, id string, limit int) ([]*chat.Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	messages, err := s.chats.History(ctx, id, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to load history: %w", err))
	}
	return messages, nil
}

// Close 关闭会话，消息保留；重复关闭不报错
func (s *Service) Close(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsClosed() {
		return nil
	}
	if err := s.chats.Close(ctx, id); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to close chat: %w", err))
	}
	s.publisher.Publish(&events.ChatClosedEvent{ChatID: id, EventTime: time.Now()})
	s.logger.Info("Chat closed", "chat_id", id)
	return nil
}

// List 按顾客或店铺列出会话
func (s *Service) List(ctx context.Context, filter chat.ListFilter) ([]*chat.Summary, error) {
	if !validID(filter.CustomerID) && !validID(filter.ShopID) {
		return nil, apperr.NewValidationError("customer_id", "customer_id or shop_id is required")
	}
	if filter.Status != "" && filter.Status != chat.StatusActive && filter.Status != chat.StatusClosed {
		return nil, apperr.NewValidationError("status", "status must be active or closed")
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	summaries, err := s.chats.List(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list chats: %w", err))
	}
	return summaries, nil
}

// MarkRead 读者将对方消息标为已读
func (s *Service) MarkRead(ctx context.Context, id string, reader chat.SenderKind) (int, error) {
	if reader != chat.SenderCustomer && reader != chat.SenderShop {
		return 0, apperr.NewValidationError("reader", "reader must be customer or shop")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return 0, err
	}
	n, err := s.chats.MarkRead(ctx, id, reader)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to mark messages read: %w", err))
	}
	return n, nil
}

// Delete 删除会话及消息，并清理会话向量
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.chats.Delete(ctx, id); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to delete chat: %w", err))
	}
	s.publisher.Publish(&events.EntityEvent{
		EventType: events.EntityDeleted,
		Kind:      events.EntityChat,
		ID:        id,
		EventTime: time.Now(),
	})
	s.logger.Info("Chat deleted", "chat_id", id)
	return nil
}

// UpdateContext 覆盖会话上下文
func (s *Service) UpdateContext(ctx context.Context, id string, bag map[string]any) error {
	if err := s.chats.UpdateContext(ctx, id, bag); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to update chat context: %w", err))
	}
	return nil
}

func validID(id *int64) bool {
	return id != nil && *id > 0
}

func derefOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
