package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/application/agents"
	"github.com/shopmind/backend/internal/application/conversation"
	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/application/shop"
	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/ml"
	"github.com/shopmind/backend/internal/testutil"
)

// stubPredictor 固定返回的意图先验
type stubPredictor struct {
	prediction *intent.Prediction
}

func (s *stubPredictor) Predict(context.Context, string) *intent.Prediction {
	return s.prediction
}

type turnEnv struct {
	fixture      *testutil.Fixture
	completer    *testutil.Completer
	predictor    *stubPredictor
	orchestrator *Orchestrator
	chats        *conversation.Service
}

// setupTurn 组装完整的代理链路，LLM 默认全部失败
func setupTurn(t *testing.T) *turnEnv {
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

	cfg := &config.ChatConfig{
		FrontendBaseURL:    "https://shop.example",
		MaxClassifierChars: 500,
		MaxContextTokens:   1500,
	}
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
	predictor := &stubPredictor{prediction: &intent.Prediction{Label: intent.GeneralInquiry, Confidence: 0.4}}
	o := NewOrchestrator(chats, registry, dispatcher, predictor, completer,
		NewEntityExtractor(f.Brands, f.Categories), cfg)

	return &turnEnv{
		fixture:      f,
		completer:    completer,
		predictor:    predictor,
		orchestrator: o,
		chats:        chats,
	}
}

func customerTurn(chatID, text string) TurnInput {
	return TurnInput{ChatID: chatID, UserID: testutil.CustomerID, SenderKind: chat.SenderCustomer, Text: text}
}

func shopTurn(chatID, text string) TurnInput {
	return TurnInput{ChatID: chatID, UserID: testutil.ShopID, SenderKind: chat.SenderShop, Text: text}
}

func TestSubmitTurn_Search(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)
	env.completer.Reply("intent_classifier", `{"intent":"product_search","entities":{"brand":"Samsung"},"target_agent":"","confidence":0.91}`)

	res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-new", "Tìm điện thoại Samsung dưới 10 triệu"))
	require.NoError(t, err)
	assert.True(t, res.ChatCreated)
	assert.Equal(t, agent.SearchDiscovery, res.SourceAgent)
	assert.Equal(t, intent.ProductSearch, res.Intent)
	assert.Equal(t, SourceLLM, res.RoutingSource)
	assert.InDelta(t, 0.91, res.Confidence, 1e-9)
	assert.Equal(t, "Samsung", res.Entities.String(intent.KeyBrand))
	assert.Equal(t, int64(10_000_000), res.Entities.PriceRange().Max)
	assert.Equal(t, "Điện thoại", res.Entities.String(intent.KeyCategory))

	calls := env.completer.Calls("intent_classifier")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "general_inquiry")
	assert.NotContains(t, calls[0].System, "shop_management (")

	history, err := env.chats.History(ctx, "chat-new", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, chat.SenderCustomer, history[0].SenderKind)
	assert.Equal(t, "Tìm điện thoại Samsung dưới 10 triệu", history[0].Content)
	assert.Equal(t, chat.SenderAgentResponse, history[1].SenderKind)
	assert.Equal(t, res.ResponseMessageID, history[1].ID)
	assert.Equal(t, "product_search", history[1].Metadata["intent"])
	assert.Equal(t, "search_discovery", history[1].Metadata["source_agent"])
	assert.Contains(t, history[1].Metadata, "entities")
	assert.Contains(t, history[1].Metadata, "confidence")

	c, err := env.chats.Get(ctx, "chat-new")
	require.NoError(t, err)
	routing, ok := c.Context[chat.ContextRouting].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "product_search", routing["intent"])
	assert.Equal(t, SourceLLM, routing["source"])
}

func TestSubmitTurn_Comparison(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)
	env.completer.Reply("intent_classifier", `{"intent":"compare_products","entities":{},"confidence":0.88}`)

	res, err := env.orchestrator.SubmitTurn(ctx, shopTurn("", "So sánh iPhone 13 và Samsung S22"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ChatID)
	assert.Equal(t, agent.ProductComparison, res.SourceAgent)
	assert.Equal(t, agent.KindAnswer, res.Kind)

	hits, ok := res.Data["products"].([]agents.ProductHit)
	require.True(t, ok)
	require.Len(t, hits, 2)

	table, ok := res.Data["comparison_table"].(agents.ComparisonTable)
	require.True(t, ok)
	for _, attr := range []string{agents.ColumnName, agents.ColumnPrice, agents.ColumnBrandName, "ram"} {
		assert.Contains(t, table.Attributes, attr)
	}
	summary, _ := res.Data["comparison_summary"].(string)
	assert.Contains(t, summary, "iPhone 13")
	assert.Contains(t, summary, "Samsung Galaxy S22")

	calls := env.completer.Calls("intent_classifier")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "shop_management")
}

func TestSubmitTurn_Policy(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)
	env.completer.Reply("intent_classifier", `{"intent":"policy_question","entities":{}}`)

	res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-policy", "bảo hành bao lâu?"))
	require.NoError(t, err)
	assert.Equal(t, agent.PolicyQA, res.SourceAgent)
	assert.Equal(t, intent.PolicyQuestion, res.Intent)
	assert.Contains(t, res.Content, "12 tháng")
	assert.InDelta(t, 0.4, res.Confidence, 1e-9, "missing llm confidence keeps the prior")
}

func TestSubmitTurn_ClassifierFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("llm failure uses the ml prior", func(t *testing.T) {
		env := setupTurn(t)
		env.predictor.prediction = &intent.Prediction{Label: intent.ProductSearch, Confidence: 0.64}

		res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-fb", "Tìm điện thoại Samsung dưới 10 triệu"))
		require.NoError(t, err)
		assert.Equal(t, intent.ProductSearch, res.Intent)
		assert.Equal(t, SourceMLFallback, res.RoutingSource)
		assert.InDelta(t, 0.64, res.Confidence, 1e-9)
		assert.Equal(t, agent.SearchDiscovery, res.SourceAgent)
		assert.Equal(t, "Samsung", res.Entities.String(intent.KeyBrand), "heuristics still fill entities")
		assert.NotEmpty(t, res.Content)

		history, err := env.chats.History(ctx, "chat-fb", 0)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("unparsable json", func(t *testing.T) {
		env := setupTurn(t)
		env.predictor.prediction = &intent.Prediction{Label: intent.PolicyQuestion, Confidence: 0.7}
		env.completer.Reply("intent_classifier", "Tôi nghĩ đây là câu hỏi chính sách")

		res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-json", "bảo hành bao lâu?"))
		require.NoError(t, err)
		assert.Equal(t, intent.PolicyQuestion, res.Intent)
		assert.Equal(t, SourceMLFallback, res.RoutingSource)
		assert.Equal(t, agent.PolicyQA, res.SourceAgent)
	})

	t.Run("unknown intent", func(t *testing.T) {
		env := setupTurn(t)
		env.completer.Reply("intent_classifier", `{"intent":"weather","confidence":0.99}`)
		env.completer.Reply("general_answer", "Chào bạn!")

		res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-unknown", "hôm nay trời đẹp"))
		require.NoError(t, err)
		assert.Equal(t, intent.GeneralInquiry, res.Intent)
		assert.Equal(t, agent.General, res.SourceAgent)
		assert.Equal(t, "Chào bạn!", res.Content)
	})

	t.Run("nil prediction", func(t *testing.T) {
		env := setupTurn(t)
		env.predictor.prediction = nil
		env.completer.Reply("general_answer", "Xin chào")

		res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-nil", "xin chào"))
		require.NoError(t, err)
		assert.Equal(t, intent.GeneralInquiry, res.Intent)
		assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	})
}

func TestSubmitTurn_TargetOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("customer cannot reach shop management", func(t *testing.T) {
		env := setupTurn(t)
		env.completer.Reply("intent_classifier", `{"intent":"general_inquiry","target_agent":"shop_management"}`)
		env.completer.Reply("general_answer", "Mình chưa rõ ý bạn.")

		res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-ov", "tồn kho còn bao nhiêu"))
		require.NoError(t, err)
		assert.Equal(t, string(agent.General), res.TargetAgent)
		assert.Equal(t, agent.General, res.SourceAgent)
	})

	t.Run("named agent wins over the table", func(t *testing.T) {
		env := setupTurn(t)
		env.completer.Reply("intent_classifier", `{"intent":"review_inquiry","target_agent":"policy_qa"}`)

		res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-ov2", "bảo hành bao lâu?"))
		require.NoError(t, err)
		assert.Equal(t, intent.ReviewInquiry, res.Intent)
		assert.Equal(t, agent.PolicyQA, res.SourceAgent)
	})
}

func TestSubmitTurn_ShopKeywords(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)

	res, err := env.orchestrator.SubmitTurn(ctx, shopTurn("shop-chat", "Nhập thêm 10 chiếc Galaxy S23"))
	require.NoError(t, err)
	assert.Equal(t, SourceShopKeywords, res.RoutingSource)
	assert.Equal(t, intent.ShopManagement, res.Intent)
	assert.Equal(t, agent.ShopManagement, res.SourceAgent)
	assert.Equal(t, shop.SubInventory, res.Data["sub_agent"])
	assert.Empty(t, env.completer.Calls("intent_classifier"), "keyword routing skips the classifier")

	p, err := env.fixture.Products.Get(ctx, testutil.GalaxyS23ID)
	require.NoError(t, err)
	assert.Equal(t, 25, p.Stock)
}

func TestSubmitTurn_ProfileConfirmation(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)
	env.completer.Reply("intent_classifier", `{"intent":"user_profile","confidence":0.9}`)

	res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-profile", "cập nhật email thành new@example.com"))
	require.NoError(t, err)
	assert.Equal(t, agent.KindConfirmation, res.Kind)

	c, err := env.chats.Get(ctx, "chat-profile")
	require.NoError(t, err)
	_, pending := agents.PendingProfileUpdate(c.Context)
	require.True(t, pending)

	res, err = env.orchestrator.SubmitTurn(ctx, customerTurn("chat-profile", "Đồng ý"))
	require.NoError(t, err)
	assert.Equal(t, SourceConfirmation, res.RoutingSource)
	assert.Equal(t, agent.UserProfile, res.SourceAgent)
	assert.Equal(t, agent.KindAnswer, res.Kind)
	assert.Len(t, env.completer.Calls("intent_classifier"), 1)

	customer, err := env.fixture.Customers.Get(ctx, testutil.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", customer.Email)

	c, err = env.chats.Get(ctx, "chat-profile")
	require.NoError(t, err)
	assert.NotContains(t, c.Context, chat.ContextPendingProfileUpdate)
}

func TestSubmitTurn_PendingUpdateExpiresAfterOneTurn(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)
	env.completer.Reply("general_answer", "Mình có thể giúp gì thêm cho bạn?")

	env.completer.Reply("intent_classifier", `{"intent":"user_profile","confidence":0.9}`)
	res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-expire", "cập nhật email thành new@example.com"))
	require.NoError(t, err)
	require.Equal(t, agent.KindConfirmation, res.Kind)

	env.completer.Reply("intent_classifier", `{"intent":"product_search","confidence":0.9}`)
	for _, text := range []string{"tìm điện thoại Samsung", "tìm tai nghe Sony"} {
		res, err = env.orchestrator.SubmitTurn(ctx, customerTurn("chat-expire", text))
		require.NoError(t, err)
		assert.Equal(t, SourceLLM, res.RoutingSource)

		c, err := env.chats.Get(ctx, "chat-expire")
		require.NoError(t, err)
		assert.NotContains(t, c.Context, chat.ContextPendingProfileUpdate)
	}

	env.completer.Reply("intent_classifier", `{"intent":"general_inquiry","confidence":0.8}`)
	res, err = env.orchestrator.SubmitTurn(ctx, customerTurn("chat-expire", "ok"))
	require.NoError(t, err)
	assert.NotEqual(t, SourceConfirmation, res.RoutingSource)
	assert.NotEqual(t, agent.UserProfile, res.SourceAgent)

	customer, err := env.fixture.Customers.Get(ctx, testutil.CustomerID)
	require.NoError(t, err)
	assert.NotEqual(t, "new@example.com", customer.Email)
}

func TestSubmitTurn_QuestionWhilePending(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)

	env.completer.Reply("intent_classifier", `{"intent":"user_profile","confidence":0.9}`)
	_, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-question", "cập nhật email thành new@example.com"))
	require.NoError(t, err)

	env.completer.Reply("intent_classifier", `{"intent":"product_search","confidence":0.9}`)
	res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-question", "còn tai nghe nào không"))
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, res.RoutingSource)
	assert.Equal(t, agent.SearchDiscovery, res.SourceAgent)
}

func TestSubmitTurn_GeneralFailure(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)
	env.completer.Fail("general_answer", apperr.Wrap(apperr.ErrUpstreamUnavailable, errors.New("connection refused")))

	res, err := env.orchestrator.SubmitTurn(ctx, customerTurn("chat-err", "xin chào"))
	require.NoError(t, err)
	assert.Equal(t, agent.KindError, res.Kind)
	assert.NotEmpty(t, res.Content)
	assert.NotContains(t, res.Content, "connection refused")

	history, err := env.chats.History(ctx, "chat-err", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSubmitTurn_Rejections(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)

	for name, in := range map[string]TurnInput{
		"empty text":    customerTurn("c", "   "),
		"bad sender":    {ChatID: "c", UserID: 1, SenderKind: chat.SenderAgent, Text: "hi"},
		"missing user":  {ChatID: "c", SenderKind: chat.SenderCustomer, Text: "hi"},
		"negative user": {ChatID: "c", UserID: -3, SenderKind: chat.SenderShop, Text: "hi"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.orchestrator.SubmitTurn(ctx, in)
			require.Error(t, err)
			assert.True(t, apperr.IsValidationError(err))
		})
	}

	t.Run("closed chat", func(t *testing.T) {
		env.fixture.NewChat(t, "closed", testutil.Int64(testutil.CustomerID), nil)
		require.NoError(t, env.chats.Close(ctx, "closed"))

		_, err := env.orchestrator.SubmitTurn(ctx, customerTurn("closed", "còn hàng không"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrChatClosed))

		history, err := env.chats.History(ctx, "closed", 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestSubmitTurn_SerializesPerChat(t *testing.T) {
	ctx := context.Background()
	env := setupTurn(t)
	env.completer.Reply("general_answer", "Vâng")

	const turns = 4
	var wg sync.WaitGroup
	errs := make([]error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.orchestrator.SubmitTurn(ctx, customerTurn("busy", fmt.Sprintf("xin chào %d", i)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	history, err := env.chats.History(ctx, "busy", 0)
	require.NoError(t, err)
	require.Len(t, history, 2*turns)
	for i, m := range history {
		if i%2 == 0 {
			assert.Equal(t, chat.SenderCustomer, m.SenderKind)
		} else {
			assert.Equal(t, chat.SenderAgentResponse, m.SenderKind)
		}
	}
	assert.Zero(t, env.orchestrator.locks.size())
}

func TestAgentFor(t *testing.T) {
	for label, want := range map[intent.Label]agent.Name{
		intent.ProductSearch:   agent.SearchDiscovery,
		intent.ProductInfo:     agent.ProductInfo,
		intent.Recommendation:  agent.Recommendation,
		intent.CompareProducts: agent.ProductComparison,
		intent.UserProfile:     agent.UserProfile,
		intent.PolicyQuestion:  agent.PolicyQA,
		intent.ReviewInquiry:   agent.General,
		intent.CartManagement:  agent.General,
		intent.OrderTracking:   agent.General,
		intent.SupportRequest:  agent.General,
		intent.GeneralInquiry:  agent.General,
	} {
		assert.Equal(t, want, AgentFor(label), label)
	}
}

func TestChatLocks(t *testing.T) {
	locks := newChatLocks()
	unlock, err := locks.acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locks.acquire(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)

	other, err := locks.acquire(context.Background(), "b")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.Zero(t, locks.size())
}
