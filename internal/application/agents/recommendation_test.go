package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/infrastructure/ml"
	"github.com/shopmind/backend/internal/testutil"
)

func (e *testEnv) recommendation() *RecommendationAgent {
	f := e.fixture
	return NewRecommendationAgent(e.retrieval, e.resolver, f.Products, f.Customers, e.scorer, e.completer, e.cfg)
}

func TestRecommendScorer(t *testing.T) {
	ctx := context.Background()
	store := ml.NewArtifactStore(t.TempDir())
	scorer := NewRecommendScorer(store)

	user := UserFeatures{
		PreferredCategory:     testutil.PhoneCatID,
		PreferredBrand:        "Samsung",
		PriceMin:              5_000_000,
		PriceMax:              20_000_000,
		TotalPurchases:        2,
		AvgPurchaseValue:      11_250_000,
		DaysSinceLastPurchase: 3,
	}
	candidates := []*catalog.Product{
		{ID: 2, CategoryID: testutil.PhoneCatID, BrandName: "Samsung", Price: 14_000_000, RatingAverage: 4.5},
		{ID: 8, CategoryID: testutil.FashionCatID, Price: 150_000, RatingAverage: 4.1},
	}

	scores, err := scorer.Score(ctx, user, candidates)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Greater(t, scores[0], scores[1])
	assert.True(t, store.Exists(ml.ArtifactRecommendModel), "trained model should be persisted")

	t.Run("warm start loads persisted model", func(t *testing.T) {
		reloaded := NewRecommendScorer(store)
		require.NoError(t, reloaded.WarmStart(ctx))
		again, err := reloaded.Score(ctx, user, candidates)
		require.NoError(t, err)
		assert.InDeltaSlice(t, scores, again, 1e-9)
	})
}

func TestNewUserFeatures(t *testing.T) {
	now := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	last := now.Add(-48 * time.Hour)

	t.Run("anonymous", func(t *testing.T) {
		u := NewUserFeatures(nil, nil, now)
		assert.Empty(t, u.PreferredCategory)
		assert.Equal(t, float64(noPurchaseDays), u.DaysSinceLastPurchase)
	})

	t.Run("stats fill missing preferences", func(t *testing.T) {
		customer := &catalog.Customer{Preferences: catalog.Preferences{PriceMax: 10_000_000}}
		stats := &catalog.PurchaseStats{
			TotalPurchases: 3, AvgPurchaseValue: 5_000_000, LastPurchaseAt: &last,
			TopCategory: testutil.LaptopCatID, TopBrand: "Dell",
		}
		u := NewUserFeatures(customer, stats, now)
		assert.Equal(t, testutil.LaptopCatID, u.PreferredCategory)
		assert.Equal(t, "Dell", u.PreferredBrand)
		assert.Equal(t, int64(10_000_000), u.PriceMax)
		assert.InDelta(t, 2.0, u.DaysSinceLastPurchase, 1e-9)
	})

	t.Run("explicit preferences win", func(t *testing.T) {
		customer := &catalog.Customer{Preferences: catalog.Preferences{
			Categories: []string{testutil.PhoneCatID}, Brands: []string{"Samsung"},
		}}
		stats := &catalog.PurchaseStats{TopCategory: testutil.LaptopCatID, TopBrand: "Dell"}
		u := NewUserFeatures(customer, stats, now)
		assert.Equal(t, testutil.PhoneCatID, u.PreferredCategory)
		assert.Equal(t, "Samsung", u.PreferredBrand)
	})
}

func TestRecommendationAgent(t *testing.T) {
	ctx := context.Background()

	t.Run("personalized from preferences", func(t *testing.T) {
		env := setupAgents(t)
		resp, err := env.recommendation().Handle(ctx, customerRequest("gợi ý cho mình vài sản phẩm", nil))
		require.NoError(t, err)
		assert.Equal(t, agent.Recommendation, resp.SourceAgent)
		assert.Equal(t, StrategyPersonalized, resp.Data["strategy"])

		hits := productHits(t, resp)
		require.NotEmpty(t, hits)
		assert.LessOrEqual(t, len(hits), defaultK)
		for i, h := range hits {
			assert.True(t, inCategory(h.CategoryID, testutil.PhoneCatID), h.Name)
			assert.Positive(t, h.Stock, h.Name)
			if i > 0 {
				assert.GreaterOrEqual(t, hits[i-1].Score, h.Score)
			}
		}
		assert.Contains(t, resp.Content, "sở thích của bạn")
	})

	t.Run("contextual from last viewed", func(t *testing.T) {
		env := setupAgents(t)
		req := customerRequest("có sản phẩm nào tương tự không", nil)
		req.Context = map[string]any{chat.ContextLastViewedProduct: testutil.GalaxyS23ID}

		resp, err := env.recommendation().Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, StrategyContextual, resp.Data["strategy"])
		assert.Contains(t, resp.Content, "Samsung Galaxy S23")
		for _, h := range productHits(t, resp) {
			assert.NotEqual(t, testutil.GalaxyS23ID, h.ID)
		}
	})

	t.Run("infeasible llm strategy falls back", func(t *testing.T) {
		env := setupAgents(t)
		env.completer.Reply("recommendation_strategy", `{"strategy":"similar","reason":"no product given"}`)
		req := customerRequest("sản phẩm nào đang bán chạy", nil)
		req.UserID = 0

		resp, err := env.recommendation().Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, StrategyTrending, resp.Data["strategy"])
		assert.NotEmpty(t, productHits(t, resp))
	})

	t.Run("llm chooses similar for named product", func(t *testing.T) {
		env := setupAgents(t)
		env.completer.Reply("recommendation_strategy", `{"strategy":"similar"}`)
		req := customerRequest("máy giống iPhone 13", map[string]any{"product_name": "iPhone 13"})

		resp, err := env.recommendation().Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, StrategySimilar, resp.Data["strategy"])
		assert.Contains(t, resp.Content, "tương tự iPhone 13")
		require.Len(t, env.completer.Calls("recommendation_strategy"), 1)
	})
}
