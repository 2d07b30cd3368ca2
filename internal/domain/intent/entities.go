package intent

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// 实体键
const (
	KeyProductID    = "product_id"
	KeyProductIDs   = "product_ids"
	KeyProductName  = "product_name"
	KeyProductNames = "product_names"
	KeyCategory     = "category"
	KeyCategoryID   = "category_id"
	KeyBrand        = "brand"
	KeyPriceRange   = "price_range"
	KeyUserID       = "user_id"
	KeyOrderID      = "order_id"
	KeyAttributes   = "attributes"
	KeySubIntent    = "sub_intent"
)

// integerKeys 需要从数字字符串转为整数的键
var integerKeys = []string{KeyProductID, KeyUserID, KeyCategoryID, KeyOrderID}

// Entities 从消息中抽取的实体，值必须可 JSON 序列化
type Entities map[string]any

// PriceRange 价格区间（越南盾），0 表示不限
type PriceRange struct {
	Min int64 `json:"min,omitempty"`
	Max int64 `json:"max,omitempty"`
}

// IsZero 是否未设置
func (r PriceRange) IsZero() bool {
	return r.Min == 0 && r.Max == 0
}

// Contains 价格是否落在区间内
func (r PriceRange) Contains(price int64) bool {
	if r.Min > 0 && price < r.Min {
		return false
	}
	if r.Max > 0 && price > r.Max {
		return false
	}
	return true
}

// Normalize 规范化实体
// product_id、user_id、category_id、order_id 为数字字符串时转为 int64，
// product_ids 元素同样处理，price_range 统一为 {min,max} 的 int64，其余原样保留
func (e Entities) Normalize() Entities {
	out := make(Entities, len(e))
	for k, v := range e {
		if v == nil {
			continue
		}
		out[k] = v
	}
	for _, key := range integerKeys {
		if v, ok := out[key]; ok {
			if n, ok := toInt64(v); ok {
				out[key] = n
			}
		}
	}
	if raw, ok := out[KeyProductIDs]; ok {
		if ids := toInt64Slice(raw); len(ids) > 0 {
			out[KeyProductIDs] = ids
		} else {
			delete(out, KeyProductIDs)
		}
	}
	if raw, ok := out[KeyPriceRange]; ok {
		if r, ok := parsePriceRange(raw); ok {
			out[KeyPriceRange] = map[string]any{"min": r.Min, "max": r.Max}
		} else {
			delete(out, KeyPriceRange)
		}
	}
	return out
}

// Merge 用 other 补齐缺失的键，已有值不覆盖
func (e Entities) Merge(other Entities) Entities {
	out := make(Entities, len(e)+len(other))
	for k, v := range other {
		out[k] = v
	}
	for k, v := range e {
		if isBlank(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// String 读取字符串实体
func (e Entities) String(key string) string {
	switch v := e[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		if n, ok := toInt64(v); ok {
			return strconv.FormatInt(n, 10)
		}
		return ""
	}
}

// Int64 读取整数实体
func (e Entities) Int64(key string) (int64, bool) {
	v, ok := e[key]
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// Int64s 读取整数列表实体，单个值也视为列表
func (e Entities) Int64s(key string) []int64 {
	return toInt64Slice(e[key])
}

// Strings 读取字符串列表实体，单个字符串也视为列表
func (e Entities) Strings(key string) []string {
	switch v := e[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

// PriceRange 读取价格区间
func (e Entities) PriceRange() PriceRange {
	r, _ := parsePriceRange(e[KeyPriceRange])
	return r
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func parsePriceRange(raw any) (PriceRange, bool) {
	var r PriceRange
	switch v := raw.(type) {
	case PriceRange:
		r = v
	case *PriceRange:
		if v == nil {
			return r, false
		}
		r = *v
	case map[string]any:
		r.Min = priceValue(v["min"])
		r.Max = priceValue(v["max"])
	case map[string]int64:
		r.Min, r.Max = v["min"], v["max"]
	default:
		return r, false
	}
	if r.Min > 0 && r.Max > 0 && r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	return r, !r.IsZero()
}

// priceValue 接受数字、数字字符串以及 "10 triệu" 之类的口语金额
func priceValue(v any) int64 {
	if n, ok := toInt64(v); ok && n > 0 {
		return n
	}
	if s, ok := v.(string); ok {
		if n, ok := ParseAmount(s); ok {
			return n
		}
	}
	return 0
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func toInt64Slice(raw any) []int64 {
	switch v := raw.(type) {
	case []int64:
		return v
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			if n, ok := toInt64(item); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		if n, ok := toInt64(v); ok {
			return []int64{n}
		}
	}
	return nil
}
