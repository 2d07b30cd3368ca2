package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/application/conversation"
	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/testutil"
)

func setupServer(t *testing.T) (*MCPServer, *testutil.Fixture) {
	t.Helper()
	f := testutil.NewFixture(t)
	f.Seed(t)
	indexer := retrieval.NewIndexer(f.Embedder, f.Index, retrieval.Repositories{
		Products:   f.Products,
		Categories: f.Categories,
		FAQs:       f.FAQs,
		Reviews:    f.Reviews,
		SearchLogs: f.SearchLogs,
		Chats:      f.Chats,
	})
	_, err := indexer.Reindex(context.Background())
	require.NoError(t, err)

	svc := retrieval.NewService(f.Embedder, f.Index, llm.NewTokenCounter(), &config.ChatConfig{MaxContextTokens: 1500})
	conversations := conversation.NewService(f.Chats, testutil.NewPublisher())
	return NewServer(nil, conversations, svc), f
}

func TestSearchProductsTool(t *testing.T) {
	s, _ := setupServer(t)
	ctx := context.Background()

	_, out, err := s.searchProductsTool(ctx, nil, SearchProductsInput{Query: "Samsung Galaxy S23"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Products)
	assert.LessOrEqual(t, out.Count, defaultToolK)
	assert.Equal(t, testutil.GalaxyS23ID, out.Products[0].ID)
	assert.Equal(t, "Samsung Galaxy S23", out.Products[0].Name)

	_, out, err = s.searchProductsTool(ctx, nil, SearchProductsInput{Query: "điện thoại", K: 100, ShopID: testutil.OtherShopID})
	require.NoError(t, err)
	for _, p := range out.Products {
		assert.Contains(t, []int64{4, 6, 8}, p.ID, "only products of the filtered shop")
	}

	_, _, err = s.searchProductsTool(ctx, nil, SearchProductsInput{Query: "  "})
	assert.Error(t, err)
}

func TestContextForPromptTool(t *testing.T) {
	s, _ := setupServer(t)

	_, pc, err := s.contextForPromptTool(context.Background(), nil, ContextForPromptInput{Query: ""})
	require.NoError(t, err)
	assert.Empty(t, pc.Text)
	assert.Empty(t, pc.Products)
}

func TestGetChatHistoryTool(t *testing.T) {
	s, f := setupServer(t)
	ctx := context.Background()
	f.NewChat(t, "chat-1", testutil.Int64(testutil.CustomerID), nil)

	for _, m := range []*chat.Message{
		{ChatID: "chat-1", SenderKind: chat.SenderCustomer, SenderID: "42", Content: "Xin chào"},
		{ChatID: "chat-1", SenderKind: chat.SenderAgent, SenderID: "general", Content: "Chào bạn"},
	} {
		require.NoError(t, s.conversations.Append(ctx, m))
	}

	_, out, err := s.getChatHistoryTool(ctx, nil, GetChatHistoryInput{ChatID: "chat-1"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "Xin chào", out.Messages[0].Content)
	assert.Equal(t, string(chat.SenderAgent), out.Messages[1].SenderKind)

	_, out, err = s.getChatHistoryTool(ctx, nil, GetChatHistoryInput{ChatID: "chat-1", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Chào bạn", out.Messages[0].Content)

	_, _, err = s.getChatHistoryTool(ctx, nil, GetChatHistoryInput{ChatID: "missing"})
	assert.Error(t, err)
	_, _, err = s.getChatHistoryTool(ctx, nil, GetChatHistoryInput{})
	assert.Error(t, err)
}
