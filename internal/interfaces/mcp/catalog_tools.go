package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// SearchProductsInput 商品检索工具输入
type SearchProductsInput struct {
	Query  string `json:"query" jsonschema:"What the customer is looking for, in natural language (required)"`
	K      int    `json:"k,omitempty" jsonschema:"Number of results to return, defaults to 5, max 20"`
	ShopID int64  `json:"shop_id,omitempty" jsonschema:"Only return products sold by this shop"`
}

// SearchProductsOutput 商品检索工具输出
type SearchProductsOutput struct {
	Products []ProductHit `json:"products" jsonschema:"Matching products, best match first"`
	Count    int          `json:"count" jsonschema:"Number of products returned"`
}

// ProductHit 精简的商品检索结果
type ProductHit struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Brand    string  `json:"brand,omitempty"`
	Category string  `json:"category,omitempty"`
	Score    float32 `json:"score" jsonschema:"Similarity score between 0 and 1"`
}

// ContextForPromptInput 检索上下文工具输入
type ContextForPromptInput struct {
	Query          string `json:"query" jsonschema:"Question to build context for (required)"`
	PerCollectionK int    `json:"per_collection_k,omitempty" jsonschema:"Results per collection, defaults to 3"`
}

const (
	defaultToolK = 5
	maxToolK     = 20
)

func (s *MCPServer) searchProductsTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchProductsInput,
) (*mcp.CallToolResult, SearchProductsOutput, error) {
	output := SearchProductsOutput{Products: []ProductHit{}}
	if strings.TrimSpace(input.Query) == "" {
		return nil, output, fmt.Errorf("query is required")
	}
	k := input.K
	if k <= 0 {
		k = defaultToolK
	}
	if k > maxToolK {
		k = maxToolK
	}
	opts := vector.SearchOptions{}
	if input.ShopID > 0 {
		opts.Filter = map[string]any{vector.PayloadSellerID: input.ShopID}
	}

	results, err := s.retrieval.SemanticSearch(ctx, input.Query, vector.CollectionProducts, k, opts)
	if err != nil {
		s.logger.Warn("search_products failed", "error", err)
		return nil, output, fmt.Errorf("search failed: %w", err)
	}
	for _, r := range results {
		output.Products = append(output.Products, ProductHit{
			ID:       r.IDInt64(),
			Name:     r.String(vector.PayloadName),
			Price:    r.Float(vector.PayloadPrice),
			Brand:    r.String(vector.PayloadBrandName),
			Category: r.String(vector.PayloadCategoryName),
			Score:    r.Score,
		})
	}
	output.Count = len(output.Products)
	return nil, output, nil
}

func (s *MCPServer) contextForPromptTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ContextForPromptInput,
) (*mcp.CallToolResult, retrieval.PromptContext, error) {
	opts := retrieval.DefaultContextOptions()
	if input.PerCollectionK > 0 {
		opts.PerCollectionK = min(input.PerCollectionK, maxToolK)
	}
	pc, err := s.retrieval.ContextForPrompt(ctx, input.Query, opts)
	if err != nil {
		s.logger.Warn("context_for_prompt failed", "error", err)
		return nil, retrieval.PromptContext{}, fmt.Errorf("context retrieval failed: %w", err)
	}
	if pc == nil {
		return nil, retrieval.PromptContext{}, nil
	}
	return nil, *pc, nil
}
