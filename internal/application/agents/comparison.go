package agents

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// 对比侧重点
const (
	FocusPrice          = "price"
	FocusFeatures       = "features"
	FocusSpecifications = "specifications"
	FocusAll            = "all"
)

// 对比表固定列
const (
	ColumnName             = "name"
	ColumnPrice            = "price"
	ColumnBrandName        = "brand_name"
	ColumnCategoryName     = "category_name"
	ColumnRatingAverage    = "rating_average"
	ColumnShortDescription = "short_description"
)

// maxCompared 一次最多对比的商品数
const maxCompared = 4

const comparisonPrompt = `You extract the products a Vietnamese shopper wants to compare.
Return a JSON object:
{
  "product_names": ["each product exactly as written by the customer"],
  "product_ids": [numeric ids if the customer gave any],
  "focus": "price" | "features" | "specifications" | "all"
}
Use "all" when the customer does not say what matters to them.`

var (
	comparePrefix    = regexp.MustCompile(`(?i)^\s*(so\s+sánh|so\s+sanh|compare|đối\s+chiếu)\s+`)
	compareSeparator = regexp.MustCompile(`(?i)\s*,\s*|\s+(và|va|với|voi|vs\.?|hay|hoặc|or|and|with)\s+`)
	compareTrailer   = regexp.MustCompile(`(?i)(\s*(giúp\s+(mình|tôi|em)|với|đi|nhé|nha|nhe|ạ|được\s+không|không|[?.!]))*\s*$`)
)

// ComparisonTable 对比表，Values[属性] 与商品列表一一对应
type ComparisonTable struct {
	Attributes []string            `json:"attributes"`
	Values     map[string][]string `json:"values"`
}

// comparisonQuery 对比请求
type comparisonQuery struct {
	ProductNames []string `json:"product_names"`
	ProductIDs   []int64  `json:"product_ids"`
	Focus        string   `json:"focus"`
}

// ComparisonAgent 商品对比代理
type ComparisonAgent struct {
	resolver  *ProductResolver
	completer llm.Completer
	baseURL   string
	logger    *slog.Logger
}

// NewComparisonAgent 创建对比代理
func NewComparisonAgent(resolver *ProductResolver, completer llm.Completer, cfg *config.ChatConfig) *ComparisonAgent {
	return &ComparisonAgent{
		resolver:  resolver,
		completer: completer,
		baseURL:   cfg.FrontendBaseURL,
		logger:    log.NewModuleLogger("agents", "comparison"),
	}
}

// Name 实现 agent.Agent
func (a *ComparisonAgent) Name() agent.Name {
	return agent.ProductComparison
}

// Handle 解析两个及以上商品，生成对比表与摘要
func (a *ComparisonAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	q := a.parse(ctx, req)

	products, unresolved, err := a.resolver.Many(ctx, q.ProductIDs, q.ProductNames)
	if err != nil {
		return failure(a.Name(), a.logger, err), nil
	}
	if len(products) > maxCompared {
		products = products[:maxCompared]
	}

	hits := make([]ProductHit, len(products))
	for i, p := range products {
		hits[i] = hitFromProduct(p, a.baseURL)
	}

	if len(products) < 2 {
		a.logger.Debug("Not enough products to compare",
			"chat_id", req.ChatID,
			"resolved", len(products),
			"unresolved", unresolved,
		)
		content := "Cần ít nhất hai sản phẩm để so sánh. Bạn cho mình biết tên sản phẩm thứ hai nhé."
		if len(unresolved) > 0 {
			content = fmt.Sprintf("Mình chưa tìm thấy: %s. Cần ít nhất hai sản phẩm để so sánh, bạn kiểm tra lại tên giúp mình nhé.",
				strings.Join(unresolved, ", "))
		}
		resp := clarify(a.Name(), content)
		resp.Data = map[string]any{"products": hits, "unresolved": unresolved}
		return resp, nil
	}

	table := buildComparisonTable(products, q.Focus)
	summary := summarizeComparison(products)

	var b strings.Builder
	b.WriteString(renderTable(table))
	b.WriteString("\n\n" + summary)
	if len(unresolved) > 0 {
		fmt.Fprintf(&b, "\nMình chưa tìm thấy: %s.", strings.Join(unresolved, ", "))
	}

	resp := answer(a.Name(), b.String())
	resp.Data = map[string]any{
		"products":           hits,
		"comparison_table":   table,
		"comparison_summary": summary,
		"focus":              q.Focus,
	}
	resp.Sources = productSources(hits)
	return resp, nil
}

// parse LLM 提取商品与侧重点，失败时使用实体与拆分规则
func (a *ComparisonAgent) parse(ctx context.Context, req *agent.Request) *comparisonQuery {
	q := &comparisonQuery{}
	completeJSON(ctx, a.completer, a.logger, &llm.Request{
		Task:        "comparison_parse",
		System:      comparisonPrompt,
		User:        req.Message,
		Temperature: llm.Temperature(0),
	}, q)

	if len(q.ProductIDs) == 0 {
		q.ProductIDs = req.Entities.Int64s(intent.KeyProductIDs)
		if id, ok := req.Entities.Int64(intent.KeyProductID); ok {
			q.ProductIDs = append(q.ProductIDs, id)
		}
	}
	if len(q.ProductNames) == 0 {
		q.ProductNames = req.Entities.Strings(intent.KeyProductNames)
		if name := req.Entities.String(intent.KeyProductName); name != "" {
			q.ProductNames = append(q.ProductNames, name)
		}
	}
	if len(q.ProductIDs)+len(q.ProductNames) < 2 {
		q.ProductNames = append(q.ProductNames, splitCompared(req.Message)...)
	}
	q.ProductNames = uniqueFolded(q.ProductNames)

	switch q.Focus {
	case FocusPrice, FocusFeatures, FocusSpecifications, FocusAll:
	default:
		q.Focus = focusFromText(req.Message)
	}
	return q
}

// splitCompared 从 "so sánh A và B" 一类句式中拆出商品名
func splitCompared(message string) []string {
	loc := comparePrefix.FindStringIndex(message)
	if loc == nil {
		return nil
	}
	rest := compareTrailer.ReplaceAllString(message[loc[1]:], "")
	var names []string
	for _, part := range compareSeparator.Split(rest, -1) {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	if len(names) < 2 {
		return nil
	}
	return names
}

func uniqueFolded(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := intent.Fold(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(n))
	}
	return out
}

func focusFromText(message string) string {
	folded := " " + intent.Fold(message) + " "
	switch {
	case strings.Contains(folded, " gia "), strings.Contains(folded, "re hon"), strings.Contains(folded, "dat hon"):
		return FocusPrice
	case strings.Contains(folded, "thong so"), strings.Contains(folded, "cau hinh"):
		return FocusSpecifications
	case strings.Contains(folded, "tinh nang"), strings.Contains(folded, "dac diem"):
		return FocusFeatures
	}
	return FocusAll
}

// commonSpecKeys 所有商品都具备的规格键，按字典序
func commonSpecKeys(products []*catalog.Product) []string {
	if len(products) == 0 {
		return nil
	}
	var keys []string
	for _, k := range products[0].SpecKeys() {
		shared := true
		for _, p := range products[1:] {
			if _, ok := p.Specifications[k]; !ok {
				shared = false
				break
			}
		}
		if shared {
			keys = append(keys, k)
		}
	}
	return keys
}

// buildComparisonTable 固定列加共有规格，再按侧重点筛选
func buildComparisonTable(products []*catalog.Product, focus string) ComparisonTable {
	specs := commonSpecKeys(products)

	var attrs []string
	switch focus {
	case FocusPrice:
		attrs = []string{ColumnName, ColumnPrice}
	case FocusFeatures:
		attrs = []string{ColumnName, ColumnBrandName, ColumnCategoryName, ColumnRatingAverage, ColumnShortDescription}
	case FocusSpecifications:
		attrs = append([]string{ColumnName}, specs...)
	default:
		attrs = append([]string{ColumnName, ColumnPrice, ColumnBrandName, ColumnCategoryName, ColumnRatingAverage, ColumnShortDescription}, specs...)
	}

	table := ComparisonTable{Attributes: attrs, Values: make(map[string][]string, len(attrs))}
	for _, attr := range attrs {
		values := make([]string, len(products))
		for i, p := range products {
			values[i] = attributeValue(p, attr)
		}
		table.Values[attr] = values
	}
	return table
}

func attributeValue(p *catalog.Product, attr string) string {
	switch attr {
	case ColumnName:
		return p.Name
	case ColumnPrice:
		return catalog.FormatPrice(p.Price)
	case ColumnBrandName:
		return p.BrandName
	case ColumnCategoryName:
		return p.CategoryName
	case ColumnRatingAverage:
		return fmt.Sprintf("%.1f/5", p.RatingAverage)
	case ColumnShortDescription:
		return p.ShortDescription
	}
	return p.Specifications[attr]
}

// renderTable 每个属性一行，首行为商品名
func renderTable(table ComparisonTable) string {
	var b strings.Builder
	for i, attr := range table.Attributes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", attr, strings.Join(table.Values[attr], " | "))
	}
	return b.String()
}

// summarizeComparison 比较价格、评分、品牌与分类
func summarizeComparison(products []*catalog.Product) string {
	names := make([]string, len(products))
	cheapest, priciest, best := products[0], products[0], products[0]
	for i, p := range products {
		names[i] = p.Name
		if p.Price < cheapest.Price {
			cheapest = p
		}
		if p.Price > priciest.Price {
			priciest = p
		}
		if p.RatingAverage > best.RatingAverage {
			best = p
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "So sánh %s: ", joinVietnamese(names))
	if cheapest.Price == priciest.Price {
		fmt.Fprintf(&b, "các sản phẩm có cùng mức giá %s. ", catalog.FormatPrice(cheapest.Price))
	} else {
		fmt.Fprintf(&b, "%s rẻ nhất (%s), %s đắt nhất (%s). ",
			cheapest.Name, catalog.FormatPrice(cheapest.Price),
			priciest.Name, catalog.FormatPrice(priciest.Price))
	}
	fmt.Fprintf(&b, "%s được đánh giá cao nhất (%.1f/5).", best.Name, best.RatingAverage)

	if brands := distinct(products, func(p *catalog.Product) string { return p.BrandName }); len(brands) > 1 {
		fmt.Fprintf(&b, " Thương hiệu: %s.", strings.Join(brands, ", "))
	}
	categories := distinct(products, func(p *catalog.Product) string { return p.CategoryName })
	switch {
	case len(categories) == 1:
		fmt.Fprintf(&b, " Cùng danh mục %s.", categories[0])
	case len(categories) > 1:
		fmt.Fprintf(&b, " Khác danh mục: %s.", strings.Join(categories, ", "))
	}
	return b.String()
}

func distinct(products []*catalog.Product, field func(*catalog.Product) string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range products {
		v := field(p)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// joinVietnamese "A, B và C"
func joinVietnamese(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " và " + items[len(items)-1]
}
