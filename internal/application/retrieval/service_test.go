package retrieval

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/vector"
	"github.com/shopmind/backend/internal/testutil"
)

// setupRetrieval 预置数据并建好全部索引
func setupRetrieval(t *testing.T) (*testutil.Fixture, *Service, *Indexer) {
	t.Helper()

	f := testutil.NewFixture(t)
	f.Seed(t)

	indexer := NewIndexer(f.Embedder, f.Index, Repositories{
		Products:   f.Products,
		Categories: f.Categories,
		FAQs:       f.FAQs,
		Reviews:    f.Reviews,
		SearchLogs: f.SearchLogs,
		Chats:      f.Chats,
	})
	_, err := indexer.Reindex(context.Background())
	require.NoError(t, err)

	svc := NewService(f.Embedder, f.Index, llm.NewTokenCounter(), &config.ChatConfig{MaxContextTokens: 1500})
	return f, svc, indexer
}

func TestSimilarToID(t *testing.T) {
	_, svc, _ := setupRetrieval(t)
	ctx := context.Background()
	source := strconv.FormatInt(testutil.GalaxyS23ID, 10)

	results, err := svc.SimilarToID(ctx, vector.CollectionProducts, source, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)

	seen := map[string]bool{}
	for i, r := range results {
		assert.NotEqual(t, source, r.ID)
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}

	t.Run("k zero", func(t *testing.T) {
		results, err := svc.SimilarToID(ctx, vector.CollectionProducts, source, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown source", func(t *testing.T) {
		results, err := svc.SimilarToID(ctx, vector.CollectionProducts, "99999", 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("k larger than collection", func(t *testing.T) {
		results, err := svc.SimilarToID(ctx, vector.CollectionProducts, source, 50)
		require.NoError(t, err)
		assert.Len(t, results, len(testutil.Products())-1)
	})
}

func TestSemanticSearch(t *testing.T) {
	_, svc, _ := setupRetrieval(t)
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		results, err := svc.SemanticSearch(ctx, "  ", vector.CollectionProducts, 5, vector.SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("k zero", func(t *testing.T) {
		results, err := svc.SemanticSearch(ctx, "điện thoại", vector.CollectionProducts, 0, vector.SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("sorted, bounded and above threshold", func(t *testing.T) {
		threshold := float32(0.1)
		results, err := svc.SemanticSearch(ctx, "điện thoại Samsung Galaxy", vector.CollectionProducts, 3,
			vector.SearchOptions{Threshold: vector.Threshold(threshold)})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.LessOrEqual(t, len(results), 3)
		for i, r := range results {
			assert.GreaterOrEqual(t, r.Score, threshold)
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
			}
		}
		assert.Contains(t, results[0].String(vector.PayloadName), "Samsung Galaxy")
	})

	t.Run("payload filter", func(t *testing.T) {
		results, err := svc.SemanticSearch(ctx, "sản phẩm", vector.CollectionProducts, 10,
			vector.SearchOptions{Filter: map[string]any{vector.PayloadCategoryID: testutil.LaptopCatID}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Dell XPS 13", results[0].String(vector.PayloadName))
	})
}

func TestContextForPrompt(t *testing.T) {
	_, svc, _ := setupRetrieval(t)
	ctx := context.Background()
	opts := ContextOptions{PerCollectionK: 3, Threshold: 0}

	t.Run("empty query gives empty context", func(t *testing.T) {
		pc, err := svc.ContextForPrompt(ctx, "", DefaultContextOptions())
		require.NoError(t, err)
		assert.True(t, pc.Empty())
		assert.Empty(t, pc.Products)
	})

	t.Run("exact product match comes first", func(t *testing.T) {
		pc, err := svc.ContextForPrompt(ctx, "iPhone 13 bảo hành bao lâu", opts)
		require.NoError(t, err)
		require.NotEmpty(t, pc.ExactMatches)
		assert.Equal(t, "iPhone 13", pc.ExactMatches[0].String(vector.PayloadName))
		assert.True(t, strings.HasPrefix(pc.Text, SectionProducts+":\nProduct: iPhone 13"), pc.Text)
		assert.Contains(t, pc.Text, SectionFAQs)
		assert.Contains(t, pc.Text, "\n\n")
	})

	t.Run("sections respect threshold", func(t *testing.T) {
		pc, err := svc.ContextForPrompt(ctx, "bảo hành bao lâu", DefaultContextOptions())
		require.NoError(t, err)
		for _, r := range append(append(pc.Products, pc.FAQs...), pc.Categories...) {
			assert.GreaterOrEqual(t, r.Score, float32(0.6))
		}
	})
}

// failingIndex 指定集合的查询总是失败
type failingIndex struct {
	vector.Index
	collection string
}

func (f *failingIndex) Search(ctx context.Context, collection string, vec []float32, k int, opts vector.SearchOptions) ([]vector.SearchResult, error) {
	if collection == f.collection {
		return nil, errors.New("vector store down")
	}
	return f.Index.Search(ctx, collection, vec, k, opts)
}

func TestContextForPrompt_SearchFailureYieldsEmptySection(t *testing.T) {
	f, _, _ := setupRetrieval(t)
	svc := NewService(f.Embedder, &failingIndex{Index: f.Index, collection: vector.CollectionFAQs},
		llm.NewTokenCounter(), &config.ChatConfig{MaxContextTokens: 1500})

	pc, err := svc.ContextForPrompt(context.Background(), "điện thoại Samsung bảo hành", ContextOptions{PerCollectionK: 3})
	require.NoError(t, err)
	assert.Empty(t, pc.FAQs)
	assert.NotEmpty(t, pc.Products)
	assert.NotContains(t, pc.Text, SectionFAQs)
}

func TestContextForPrompt_TokenBudget(t *testing.T) {
	f, full, _ := setupRetrieval(t)
	tokens := llm.NewTokenCounter()
	small := NewService(f.Embedder, f.Index, tokens, &config.ChatConfig{MaxContextTokens: 20})
	ctx := context.Background()
	opts := ContextOptions{PerCollectionK: 3}

	whole, err := full.ContextForPrompt(ctx, "điện thoại Samsung", opts)
	require.NoError(t, err)
	cut, err := small.ContextForPrompt(ctx, "điện thoại Samsung", opts)
	require.NoError(t, err)

	assert.Less(t, len(cut.Text), len(whole.Text))
	assert.True(t, strings.HasPrefix(whole.Text, cut.Text))
}
