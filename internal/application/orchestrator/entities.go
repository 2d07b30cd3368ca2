package orchestrator

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// 价格短语（已 Fold）
var (
	betweenRe = regexp.MustCompile(`\b(?:tu|khoang tu|trong khoang)\s+` + intent.AmountPattern + `\s*(?:den|toi|-|~)\s*` + intent.AmountPattern)
	rangeRe   = regexp.MustCompile(intent.AmountPattern + `\s*(?:-|~|den)\s*` + intent.AmountPattern)
	maxRe     = regexp.MustCompile(`\b(?:duoi|toi da|khong qua|it hon|re hon|nho hon|under|below)\s*` + intent.AmountPattern)
	minRe     = regexp.MustCompile(`\b(?:tren|it nhat|toi thieu|lon hon|dat hon|over|above)\s*` + intent.AmountPattern)
	aroundRe  = regexp.MustCompile(`\b(?:khoang|tam|around)\s+` + intent.AmountPattern)

	productIDRe = regexp.MustCompile(`(?:#|\bma\s+(?:sp|san\s+pham)\s*|\bsan\s+pham\s+so\s+|\bproduct\s+id\s*:?\s*)(\d+)\b`)
	orderIDRe   = regexp.MustCompile(`\b(?:don\s+hang|ma\s+don|order)\s*#?\s*(\d+)\b`)
)

// aroundSpread "khoảng X" 的上下浮动比例
const aroundSpread = 0.2

// EntityExtractor 规则实体抽取：价格区间、显式编号、品牌、分类
// 结果只用于补齐 LLM 未给出的实体
type EntityExtractor struct {
	brands     catalog.BrandRepository
	categories catalog.CategoryRepository
	logger     *slog.Logger
}

// NewEntityExtractor 创建规则实体抽取器
func NewEntityExtractor(brands catalog.BrandRepository, categories catalog.CategoryRepository) *EntityExtractor {
	return &EntityExtractor{
		brands:     brands,
		categories: categories,
		logger:     log.NewModuleLogger("orchestrator", "entities"),
	}
}

// Extract 从消息中抽取实体
func (x *EntityExtractor) Extract(ctx context.Context, text string) intent.Entities {
	folded := intent.Fold(text)
	out := intent.Entities{}

	if r := ExtractPriceRange(folded); !r.IsZero() {
		out[intent.KeyPriceRange] = map[string]any{"min": r.Min, "max": r.Max}
	}
	if m := productIDRe.FindStringSubmatch(folded); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			out[intent.KeyProductID] = id
		}
	}
	if m := orderIDRe.FindStringSubmatch(folded); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			out[intent.KeyOrderID] = id
		}
	}

	padded := " " + wordsOnly(folded) + " "
	brands, err := x.brands.List(ctx)
	if err != nil {
		x.logger.Warn("Failed to load brands for entity extraction", "error", err)
	}
	for _, b := range brands {
		if name := wordsOnly(intent.Fold(b.Name)); name != "" && strings.Contains(padded, " "+name+" ") {
			out[intent.KeyBrand] = b.Name
			break
		}
	}

	categories, err := x.categories.List(ctx)
	if err != nil {
		x.logger.Warn("Failed to load categories for entity extraction", "error", err)
	}
	longest := 0
	for _, c := range categories {
		name := wordsOnly(intent.Fold(c.Name))
		if name != "" && len(name) > longest && strings.Contains(padded, " "+name+" ") {
			out[intent.KeyCategory] = c.Name
			longest = len(name)
		}
	}
	return out
}

// ExtractPriceRange 解析已 Fold 文本中的价格区间
func ExtractPriceRange(folded string) intent.PriceRange {
	if m := betweenRe.FindStringSubmatch(folded); m != nil {
		return rangeOf(m[1], m[2], m[3], m[4])
	}
	if m := maxRe.FindStringSubmatch(folded); m != nil {
		if v, ok := amountOf(m[1], m[2]); ok {
			return intent.PriceRange{Max: v}
		}
	}
	if m := minRe.FindStringSubmatch(folded); m != nil {
		if v, ok := amountOf(m[1], m[2]); ok {
			return intent.PriceRange{Min: v}
		}
	}
	if m := rangeRe.FindStringSubmatch(folded); m != nil && (m[2] != "" || m[4] != "") {
		return rangeOf(m[1], m[2], m[3], m[4])
	}
	if m := aroundRe.FindStringSubmatch(folded); m != nil && m[2] != "" {
		if v, ok := amountOf(m[1], m[2]); ok {
			spread := int64(float64(v) * aroundSpread)
			return intent.PriceRange{Min: v - spread, Max: v + spread}
		}
	}
	return intent.PriceRange{}
}

// rangeOf "từ 5 đến 10 triệu"：只有后一个数带单位时共用该单位
func rangeOf(lowNum, lowUnit, highNum, highUnit string) intent.PriceRange {
	if lowUnit == "" {
		lowUnit = highUnit
	}
	low, okLow := amountOf(lowNum, lowUnit)
	high, okHigh := amountOf(highNum, highUnit)
	if !okLow || !okHigh {
		return intent.PriceRange{}
	}
	if low > high {
		low, high = high, low
	}
	return intent.PriceRange{Min: low, Max: high}
}

// amountOf 金额需要带单位或足够大，避免把型号数字当作价格
func amountOf(number, unit string) (int64, bool) {
	v, ok := intent.AmountFromParts(number, unit)
	if !ok {
		return 0, false
	}
	if unit == "" && v < 1000 {
		return 0, false
	}
	return v, true
}

// wordsOnly 只保留字母数字并以单个空格分隔
func wordsOnly(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}), " ")
}
