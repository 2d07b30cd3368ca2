package vector

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// 载荷字段
const (
	PayloadName             = "name"
	PayloadPrice            = "price"
	PayloadShortDescription = "short_description"
	PayloadRatingAverage    = "rating_average"
	PayloadCategoryID       = "category_id"
	PayloadCategoryName     = "category_name"
	PayloadBrandName        = "brand_name"
	PayloadTopic            = "topic"
	PayloadBrandID          = "brand_id"
	PayloadSellerID         = "seller_id"
	PayloadTextContent      = "text_content"
	PayloadQuestion         = "question"
	PayloadAnswer           = "answer"
	PayloadStock            = "stock"
	PayloadSoldCount        = "sold_count"
	PayloadProductID        = "product_id"
	PayloadRating           = "rating"
	PayloadQuery            = "query"
	PayloadChatID           = "chat_id"
	PayloadCreatedAt        = "created_at"
)

// String 读取字符串字段，数字会被格式化
func (r SearchResult) String(key string) string {
	return payloadString(r.Payload, key)
}

// Int64 读取整数字段，兼容浮点与数字字符串
func (r SearchResult) Int64(key string) int64 {
	return payloadInt64(r.Payload, key)
}

// Float 读取浮点字段
func (r SearchResult) Float(key string) float64 {
	return payloadFloat(r.Payload, key)
}

// IDInt64 将结果 ID 解析为整数，非数字 ID 返回 0
func (r SearchResult) IDInt64() int64 {
	n, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func payloadString(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func payloadInt64(p map[string]any, key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func payloadFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	case float32:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
