package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopmind/backend/internal/domain/chat"
)

// chatRepository 会话仓储实现
type chatRepository struct {
	db  *DB
	now func() time.Time
}

// NewChatRepository 创建会话仓储实例
func NewChatRepository(db *DB) chat.Repository {
	return &chatRepository{db: db, now: time.Now}
}

// Create 创建会话
func (r *chatRepository) Create(ctx context.Context, c *chat.Chat) error {
	if c.ShopID == nil && c.CustomerID == nil {
		return chat.ErrNoParticipant
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := r.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.LastActivity.IsZero() {
		c.LastActivity = c.CreatedAt
	}
	if c.Status == "" {
		c.Status = chat.StatusActive
	}

	ctxJSON, err := marshalMap(c.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal chat context: %w", err)
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO chats (id, shop_id, customer_id, status, last_activity, context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		nullInt64Ptr(c.ShopID),
		nullInt64Ptr(c.CustomerID),
		string(c.Status),
		toMillis(c.LastActivity),
		ctxJSON,
		toMillis(c.CreatedAt),
		toMillis(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return chat.ErrChatExists
		}
		return persistErr("create chat", err)
	}
	return nil
}

const chatColumns = `id, shop_id, customer_id, status, last_activity, context, created_at, updated_at`

// Get 获取会话
func (r *chatRepository) Get(ctx context.Context, id string) (*chat.Chat, error) {
	var (
		c chat.Chat
		s chatScan
	)
	err := r.db.queryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, []any{id}, s.dest(&c)...)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query chat", err)
	}
	if err := s.apply(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// List 按店铺或顾客列出会话，按最近活跃时间降序
func (r *chatRepository) List(ctx context.Context, filter chat.ListFilter) ([]*chat.Summary, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ShopID != nil {
		conds = append(conds, "c.shop_id = ?")
		args = append(args, *filter.ShopID)
	}
	if filter.CustomerID != nil {
		conds = append(conds, "c.customer_id = ?")
		args = append(args, *filter.CustomerID)
	}
	if filter.Status != "" {
		conds = append(conds, "c.status = ?")
		args = append(args, string(filter.Status))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	// 未读数只统计人工发送的消息
	query := fmt.Sprintf(`
		SELECT c.id, c.shop_id, c.customer_id, c.status, c.last_activity, c.context, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM chat_messages m
				WHERE m.chat_id = c.id AND m.is_read = 0 AND m.sender_kind IN ('customer', 'shop'))
		FROM chats c
		%s
		ORDER BY c.last_activity DESC
		LIMIT %d`, where, limit)

	var summaries []*chat.Summary
	err := r.db.query(ctx, query, args, func(rows *sql.Rows) error {
		var (
			c      chat.Chat
			s      chatScan
			unread int
		)
		if err := rows.Scan(append(s.dest(&c), &unread)...); err != nil {
			return err
		}
		if err := s.apply(&c); err != nil {
			return err
		}
		summaries = append(summaries, &chat.Summary{Chat: &c, UnreadCount: unread})
		return nil
	})
	if err != nil {
		return nil, persistErr("list chats", err)
	}

	for _, s := range summaries {
		last, err := r.History(ctx, s.Chat.ID, 1)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			s.LastMessage = last[0]
		}
	}
	return summaries, nil
}

// Close 关闭会话，状态单调
func (r *chatRepository) Close(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx,
		`UPDATE chats SET status = ?, updated_at = ? WHERE id = ?`,
		string(chat.StatusClosed), toMillis(r.now()), id,
	)
	if err != nil {
		return persistErr("close chat", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

// Delete 删除会话，消息通过外键级联删除
func (r *chatRepository) Delete(ctx context.Context, id string) error {
	return r.db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// 部分 sqlite 连接可能未开启外键，显式删除消息
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM chat_messages WHERE chat_id = ?`), id); err != nil {
			return persistErr("delete chat messages", err)
		}
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM chats WHERE id = ?`), id); err != nil {
			return persistErr("delete chat", err)
		}
		return nil
	})
}

// UpdateContext 覆盖会话上下文
func (r *chatRepository) UpdateContext(ctx context.Context, id string, ctxBag map[string]any) error {
	data, err := marshalMap(ctxBag)
	if err != nil {
		return fmt.Errorf("failed to marshal chat context: %w", err)
	}
	res, err := r.db.exec(ctx,
		`UPDATE chats SET context = ?, updated_at = ? WHERE id = ?`,
		data, toMillis(r.now()), id,
	)
	if err != nil {
		return persistErr("update chat context", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

// AppendMessage 追加消息
// 创建时间严格晚于会话内已有消息，并在同一事务中推进 last_activity
func (r *chatRepository) AppendMessage(ctx context.Context, msg *chat.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	metadata, err := marshalMap(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}

	return r.db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var lastActivity int64
		err := tx.QueryRowContext(ctx,
			r.db.Rebind(`SELECT last_activity FROM chats WHERE id = ?`), msg.ChatID,
		).Scan(&lastActivity)
		if err != nil {
			if isNoRows(err) {
				return chat.ErrChatNotFound
			}
			return persistErr("lock chat", err)
		}

		// 同一毫秒内的消息也要严格递增
		var maxCreated sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			r.db.Rebind(`SELECT MAX(created_at) FROM chat_messages WHERE chat_id = ?`), msg.ChatID,
		).Scan(&maxCreated); err != nil {
			return persistErr("query last message", err)
		}

		created := toMillis(r.now())
		if maxCreated.Valid && created <= maxCreated.Int64 {
			created = maxCreated.Int64 + 1
		}
		msg.CreatedAt = fromMillis(created)

		if _, err := tx.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO chat_messages (id, chat_id, sender_kind, sender_id, content, is_read, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			msg.ID, msg.ChatID, string(msg.SenderKind), msg.SenderID, msg.Content,
			boolToInt(msg.IsRead), metadata, created,
		); err != nil {
			return persistErr("insert message", err)
		}

		newActivity := lastActivity
		if created > newActivity {
			newActivity = created
		}
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			`UPDATE chats SET last_activity = ?, updated_at = ? WHERE id = ?`),
			newActivity, created, msg.ChatID,
		); err != nil {
			return persistErr("bump chat activity", err)
		}
		return nil
	})
}

// History 按创建时间升序返回消息
func (r *chatRepository) History(ctx context.Context, chatID string, limit int) ([]*chat.Message, error) {
	query := `
		SELECT id, chat_id, sender_kind, sender_id, content, is_read, metadata, created_at
		FROM chat_messages
		WHERE chat_id = ?
		ORDER BY created_at ASC`
	args := []any{chatID}
	if limit > 0 {
		// 取最近 limit 条，再按时间升序返回
		query = `
		SELECT id, chat_id, sender_kind, sender_id, content, is_read, metadata, created_at FROM (
			SELECT id, chat_id, sender_kind, sender_id, content, is_read, metadata, created_at
			FROM chat_messages
			WHERE chat_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		) recent
		ORDER BY created_at ASC`
		args = append(args, limit)
	}

	var messages []*chat.Message
	err := r.db.query(ctx, query, args, func(rows *sql.Rows) error {
		var (
			m         chat.Message
			kind      string
			isRead    int
			metadata  string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &kind, &m.SenderID, &m.Content, &isRead, &metadata, &createdAt); err != nil {
			return err
		}
		m.SenderKind = chat.SenderKind(kind)
		m.IsRead = isRead == 1
		m.CreatedAt = fromMillis(createdAt)
		md, err := unmarshalMap(metadata)
		if err != nil {
			return err
		}
		m.Metadata = md
		messages = append(messages, &m)
		return nil
	})
	if err != nil {
		return nil, persistErr("query chat history", err)
	}
	return messages, nil
}

// MarkRead 标记对方消息为已读
func (r *chatRepository) MarkRead(ctx context.Context, chatID string, reader chat.SenderKind) (int, error) {
	res, err := r.db.exec(ctx,
		`UPDATE chat_messages SET is_read = 1 WHERE chat_id = ? AND is_read = 0 AND sender_kind <> ?`,
		chatID, string(reader),
	)
	if err != nil {
		return 0, persistErr("mark messages read", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// chatScan 会话行的中间扫描结果
type chatScan struct {
	shopID, customerID             sql.NullInt64
	status, context                string
	lastActivity, created, updated int64
}

func (s *chatScan) dest(c *chat.Chat) []any {
	return []any{&c.ID, &s.shopID, &s.customerID, &s.status, &s.lastActivity, &s.context, &s.created, &s.updated}
}

func (s *chatScan) apply(c *chat.Chat) error {
	c.ShopID = int64Ptr(s.shopID)
	c.CustomerID = int64Ptr(s.customerID)
	c.Status = chat.Status(s.status)
	c.LastActivity = fromMillis(s.lastActivity)
	c.CreatedAt = fromMillis(s.created)
	c.UpdatedAt = fromMillis(s.updated)
	ctxBag, err := unmarshalMap(s.context)
	if err != nil {
		return fmt.Errorf("failed to unmarshal chat context: %w", err)
	}
	c.Context = ctxBag
	return nil
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMap(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

var _ chat.Repository = (*chatRepository)(nil)
