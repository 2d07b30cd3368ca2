package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/application/agents"
	"github.com/shopmind/backend/internal/application/conversation"
	"github.com/shopmind/backend/internal/application/orchestrator"
	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/application/shop"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/ml"
	"github.com/shopmind/backend/internal/infrastructure/websocket"
	"github.com/shopmind/backend/internal/interfaces/http/response"
	"github.com/shopmind/backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedPredictor struct{}

func (fixedPredictor) Predict(context.Context, string) *intent.Prediction {
	return &intent.Prediction{Label: intent.GeneralInquiry, Confidence: 0.4}
}

type apiEnv struct {
	router    *gin.Engine
	completer *testutil.Completer
	fixture   *testutil.Fixture
}

// setupRouter 组装会话与检索路由，LLM 默认全部失败
func setupRouter(t *testing.T) *apiEnv {
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

	cfg := &config.ChatConfig{FrontendBaseURL: "https://shop.example", MaxClassifierChars: 500, MaxContextTokens: 1500}
	completer := testutil.NewCompleter()
	publisher := testutil.NewPublisher()
	svc := retrieval.NewService(f.Embedder, f.Index, llm.NewTokenCounter(), cfg)
	resolver := agents.NewProductResolver(f.Products, svc)
	policy := agents.NewPolicyAgent(svc, completer)
	registry := agents.NewRegistry(
		agents.NewSearchAgent(svc, f.Products, f.Categories, f.SearchLogs, publisher, completer, cfg),
		agents.NewProductInfoAgent(resolver, completer, cfg),
		agents.NewRecommendationAgent(svc, resolver, f.Products, f.Customers,
			agents.NewRecommendScorer(ml.NewArtifactStore(t.TempDir())), completer, cfg),
		agents.NewComparisonAgent(resolver, completer, cfg),
		policy,
		agents.NewUserProfileAgent(f.Customers, f.Categories, completer),
		agents.NewGeneralAgent(svc, resolver, completer),
	)
	dispatcher := shop.NewDispatcher(
		shop.NewProductManager(f.Products, resolver, publisher, completer),
		shop.NewInventoryAgent(f.Products, resolver, publisher),
		shop.NewMarketingAgent(f.Coupons),
		shop.NewAnalyticsAgent(f.Orders),
		shop.NewCustomerServiceAgent(f.Chats),
		shop.NewPolicyAgent(policy),
		completer,
	)
	chats := conversation.NewService(f.Chats, publisher)
	orch := orchestrator.NewOrchestrator(chats, registry, dispatcher, fixedPredictor{}, completer,
		orchestrator.NewEntityExtractor(f.Brands, f.Categories), cfg)

	hub := websocket.NewHub()
	chatHandler := NewChatHandler(chats, orch, websocket.NewUpgrader(hub, &config.WebSocketConfig{}))
	searchHandler := NewSearchHandler(svc, indexer)

	router := gin.New()
	api := router.Group("/api/v1")
	{
		api.POST("/chats", chatHandler.Create)
		api.GET("/chats", chatHandler.List)
		api.POST("/chats/:id/messages", chatHandler.SubmitTurn)
		api.GET("/chats/:id/messages", chatHandler.History)
		api.POST("/chats/:id/close", chatHandler.Close)
		api.POST("/chats/:id/read", chatHandler.MarkRead)
		api.DELETE("/chats/:id", chatHandler.Delete)
		api.POST("/search", searchHandler.Search)
		api.GET("/products/:id/similar", searchHandler.Similar)
		api.POST("/admin/reindex", searchHandler.Reindex)
	}
	return &apiEnv{router: router, completer: completer, fixture: f}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

// TestChatHandler_Lifecycle 创建、发消息、历史、已读、关闭、删除
func TestChatHandler_Lifecycle(t *testing.T) {
	env := setupRouter(t)
	env.completer.Reply("intent_classifier", `{"intent":"general_inquiry","entities":{},"target_agent":"","confidence":0.8}`)
	env.completer.Reply("general_answer", "Chào bạn, mình có thể giúp gì?")

	code, resp := env.do(t, http.MethodPost, "/api/v1/chats", map[string]any{"id": "chat-1", "customer_id": testutil.CustomerID})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, resp["code"])

	code, resp = env.do(t, http.MethodPost, "/api/v1/chats/chat-1/messages", SubmitTurnRequest{UserID: testutil.CustomerID, Text: "Xin chào"})
	require.Equal(t, http.StatusOK, code)
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "响应应包含 data 字段")
	assert.Equal(t, "chat-1", data["chat_id"])
	assert.Equal(t, "general", data["source_agent"])
	assert.Equal(t, "Chào bạn, mình có thể giúp gì?", data["content"])

	code, resp = env.do(t, http.MethodGet, "/api/v1/chats/chat-1/messages", nil)
	require.Equal(t, http.StatusOK, code)
	messages, ok := resp["data"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)

	code, resp = env.do(t, http.MethodGet, "/api/v1/chats?customer_id=42", nil)
	require.Equal(t, http.StatusOK, code)
	summaries, ok := resp["data"].([]any)
	require.True(t, ok)
	assert.Len(t, summaries, 1)

	code, _ = env.do(t, http.MethodPost, "/api/v1/chats/chat-1/read", MarkReadRequest{Reader: "customer"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/chats/chat-1/close", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = env.do(t, http.MethodPost, "/api/v1/chats/chat-1/messages", SubmitTurnRequest{UserID: testutil.CustomerID, Text: "Còn ở đó không?"})
	assert.Equal(t, http.StatusConflict, code)
	assert.EqualValues(t, response.CodeChatClosed, resp["code"])

	code, _ = env.do(t, http.MethodDelete, "/api/v1/chats/chat-1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, resp = env.do(t, http.MethodGet, "/api/v1/chats/chat-1/messages", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.EqualValues(t, response.CodeNotFound, resp["code"])
}

func TestChatHandler_SubmitTurnValidation(t *testing.T) {
	env := setupRouter(t)

	code, resp := env.do(t, http.MethodPost, "/api/v1/chats/chat-x/messages", map[string]any{"user_id": 42})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.EqualValues(t, response.CodeInvalidParam, resp["code"])

	code, resp = env.do(t, http.MethodPost, "/api/v1/chats/chat-x/messages", SubmitTurnRequest{UserID: 42, SenderKind: "agent", Text: "hi"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, resp["detail"], "校验错误应带 detail")
}

func TestSearchHandler(t *testing.T) {
	env := setupRouter(t)

	code, resp := env.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "Samsung Galaxy S23", K: 3})
	require.Equal(t, http.StatusOK, code)
	data := resp["data"].(map[string]any)
	assert.EqualValues(t, 3, data["count"])

	code, resp = env.do(t, http.MethodPost, "/api/v1/search", SearchRequest{Query: "bảo hành", Collection: "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp["detail"], "collection")

	code, resp = env.do(t, http.MethodGet, "/api/v1/products/123/similar?k=2", nil)
	require.Equal(t, http.StatusOK, code)
	data = resp["data"].(map[string]any)
	results := data["results"].([]any)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "123", r.(map[string]any)["id"], "不应包含自身")
	}

	code, resp = env.do(t, http.MethodPost, "/api/v1/admin/reindex", nil)
	require.Equal(t, http.StatusOK, code)
	data = resp["data"].(map[string]any)
	assert.NotEmpty(t, data["reindexed"])
}
