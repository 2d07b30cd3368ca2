package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/chat"
)

func newTestChat(t *testing.T, repo chat.Repository, customerID int64) *chat.Chat {
	t.Helper()
	c := &chat.Chat{CustomerID: &customerID}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func TestChatRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	c := newTestChat(t, repo, 7)
	assert.NotEmpty(t, c.ID, "创建后应自动生成 ID")
	assert.Equal(t, chat.StatusActive, c.Status)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), *got.CustomerID)
	assert.Nil(t, got.ShopID)
	assert.Empty(t, got.Context)

	// 不存在返回 nil, nil
	missing, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestChatRepository_CreateValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	// 没有参与方
	err := repo.Create(ctx, &chat.Chat{})
	assert.ErrorIs(t, err, chat.ErrNoParticipant)

	// ID 重复
	c := newTestChat(t, repo, 1)
	shopID := int64(1)
	err = repo.Create(ctx, &chat.Chat{ID: c.ID, ShopID: &shopID})
	assert.ErrorIs(t, err, chat.ErrChatExists)
}

func TestChatRepository_AppendMessageOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db).(*chatRepository)
	ctx := context.Background()

	// 固定时钟：同一毫秒内追加的消息仍需严格递增
	fixed := time.UnixMilli(1_700_000_000_000)
	repo.now = func() time.Time { return fixed }

	c := newTestChat(t, repo, 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendMessage(ctx, &chat.Message{
			ChatID:     c.ID,
			SenderKind: chat.SenderCustomer,
			SenderID:   "1",
			Content:    "xin chào",
		}))
	}

	history, err := repo.History(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt), "消息时间应严格递增")
	}

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.LastActivity.Before(history[len(history)-1].CreatedAt),
		"last_activity 不应早于最后一条消息")
}

func TestChatRepository_AppendMessageUnknownChat(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)

	err := repo.AppendMessage(context.Background(), &chat.Message{
		ChatID: "missing", SenderKind: chat.SenderCustomer, Content: "hi",
	})
	assert.ErrorIs(t, err, chat.ErrChatNotFound)
}

func TestChatRepository_HistoryLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	c := newTestChat(t, repo, 1)
	for _, content := range []string{"một", "hai", "ba", "bốn"} {
		require.NoError(t, repo.AppendMessage(ctx, &chat.Message{
			ChatID: c.ID, SenderKind: chat.SenderCustomer, SenderID: "1", Content: content,
			Metadata: map[string]any{"n": content},
		}))
	}

	recent, err := repo.History(ctx, c.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ba", recent[0].Content, "应返回最近两条并按时间升序")
	assert.Equal(t, "bốn", recent[1].Content)
	assert.Equal(t, "bốn", recent[1].Metadata["n"])
}

func TestChatRepository_MarkReadAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	c := newTestChat(t, repo, 42)
	require.NoError(t, repo.AppendMessage(ctx, &chat.Message{
		ChatID: c.ID, SenderKind: chat.SenderCustomer, SenderID: "42", Content: "còn hàng không?",
	}))
	require.NoError(t, repo.AppendMessage(ctx, &chat.Message{
		ChatID: c.ID, SenderKind: chat.SenderAgentResponse, SenderID: "search_discovery", Content: "còn ạ",
	}))

	customerID := int64(42)
	summaries, err := repo.List(ctx, chat.ListFilter{CustomerID: &customerID})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].UnreadCount, "只统计人工消息的未读数")
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "còn ạ", summaries[0].LastMessage.Content)

	// 店主读取：顾客发送的消息被标记已读
	n, err := repo.MarkRead(ctx, c.ID, chat.SenderShop)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	summaries, err = repo.List(ctx, chat.ListFilter{CustomerID: &customerID})
	require.NoError(t, err)
	assert.Equal(t, 0, summaries[0].UnreadCount)
}

func TestChatRepository_CloseUpdateContextDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	c := newTestChat(t, repo, 1)
	require.NoError(t, repo.UpdateContext(ctx, c.ID, map[string]any{
		chat.ContextLastViewedProduct: float64(12),
	}))
	require.NoError(t, repo.Close(ctx, c.ID))
	// 重复关闭不报错
	require.NoError(t, repo.Close(ctx, c.ID))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsClosed())
	assert.Equal(t, float64(12), got.Context[chat.ContextLastViewedProduct])

	require.NoError(t, repo.AppendMessage(ctx, &chat.Message{
		ChatID: c.ID, SenderKind: chat.SenderSystem, Content: "closed",
	}))
	require.NoError(t, repo.Delete(ctx, c.ID))

	got, err = repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	history, err := repo.History(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history, "删除会话应同时删除消息")

	assert.ErrorIs(t, repo.Close(ctx, "missing"), chat.ErrChatNotFound)
	assert.ErrorIs(t, repo.UpdateContext(ctx, "missing", nil), chat.ErrChatNotFound)
}
