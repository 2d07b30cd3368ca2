package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

const (
	// resolveCandidates 名称解析时取的语义候选数
	resolveCandidates = 5
	// resolveThreshold 名称没有逐词命中时，语义候选需要达到的相似度
	resolveThreshold = 0.3
)

// ProductResolver 按 ID、名称或自由描述定位商品
type ProductResolver struct {
	products  catalog.ProductRepository
	retrieval *retrieval.Service
	logger    *slog.Logger
}

// NewProductResolver 创建商品解析器
func NewProductResolver(products catalog.ProductRepository, retrieval *retrieval.Service) *ProductResolver {
	return &ProductResolver{
		products:  products,
		retrieval: retrieval,
		logger:    log.NewModuleLogger("agents", "resolver"),
	}
}

// ByID 按 ID 读取，不存在返回 nil
func (r *ProductResolver) ByID(ctx context.Context, id int64) (*catalog.Product, error) {
	p, err := r.products.Get(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to get product %d: %w", id, err))
	}
	return p, nil
}

// ByName 按名称解析
// 先做名称模糊匹配；没有命中时做语义检索，优先选择名称包含全部查询词的候选，
// 否则取得分最高且不低于阈值的候选。都不满足返回 nil，由调用方追问
func (r *ProductResolver) ByName(ctx context.Context, name string) (*catalog.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	matches, err := r.products.FindByName(ctx, name, resolveCandidates)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to find product by name: %w", err))
	}
	if len(matches) > 0 {
		folded := intent.Fold(name)
		for _, p := range matches {
			if intent.Fold(p.Name) == folded {
				return p, nil
			}
		}
		return matches[0], nil
	}

	results, err := r.retrieval.SemanticSearch(ctx, name, vector.CollectionProducts, resolveCandidates, vector.SearchOptions{})
	if err != nil {
		return nil, upstream(err)
	}
	best := pickByName(name, results)
	if best == nil {
		r.logger.Debug("No product matched name", "name", name, "candidates", len(results))
		return nil, nil
	}
	return r.ByID(ctx, best.IDInt64())
}

// ByDescription 按自由描述检索最相近的商品
func (r *ProductResolver) ByDescription(ctx context.Context, text string) (*catalog.Product, *vector.SearchResult, error) {
	results, err := r.retrieval.SemanticSearch(ctx, text, vector.CollectionProducts, 1,
		vector.SearchOptions{Threshold: vector.Threshold(resolveThreshold)})
	if err != nil {
		return nil, nil, upstream(err)
	}
	if len(results) == 0 {
		return nil, nil, nil
	}
	p, err := r.ByID(ctx, results[0].IDInt64())
	if err != nil || p == nil {
		return nil, nil, err
	}
	return p, &results[0], nil
}

// Many 按 ID 与名称解析多个商品，按出现顺序去重；解析不到的名称跟随返回
func (r *ProductResolver) Many(ctx context.Context, ids []int64, names []string) ([]*catalog.Product, []string, error) {
	var (
		out        []*catalog.Product
		unresolved []string
	)
	seen := make(map[int64]struct{})
	add := func(p *catalog.Product) {
		if _, dup := seen[p.ID]; dup {
			return
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}

	if len(ids) > 0 {
		products, err := r.products.GetMany(ctx, ids)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to get products: %w", err))
		}
		byID := make(map[int64]*catalog.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}
		for _, id := range ids {
			if p, ok := byID[id]; ok {
				add(p)
			}
		}
	}
	for _, name := range names {
		p, err := r.ByName(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if p == nil {
			unresolved = append(unresolved, name)
			continue
		}
		add(p)
	}
	return out, unresolved, nil
}

// pickByName 从候选中挑选：名称逐词包含查询词者优先，其次为达到阈值的最高分
func pickByName(name string, results []vector.SearchResult) *vector.SearchResult {
	terms := words(name)
	if len(terms) == 0 {
		return nil
	}
	for i := range results {
		candidate := make(map[string]struct{})
		for _, w := range words(results[i].String(vector.PayloadName)) {
			candidate[w] = struct{}{}
		}
		all := true
		for _, t := range terms {
			if _, ok := candidate[t]; !ok {
				all = false
				break
			}
		}
		if all {
			return &results[i]
		}
	}
	if len(results) > 0 && results[0].Score >= resolveThreshold {
		return &results[0]
	}
	return nil
}

// words 折叠后的词序列
func words(s string) []string {
	return strings.FieldsFunc(intent.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
