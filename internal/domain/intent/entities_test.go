package intent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntities_Normalize(t *testing.T) {
	raw := Entities{
		"product_id":  "123",
		"user_id":     float64(42),
		"category_id": "dien-tu/dien-thoai", // 非数字保持字符串
		"order_id":    "abc",
		"brand":       "Samsung",
		"price_range": map[string]any{"max": "10 triệu"},
		"product_ids": []any{"1", 2.0, "x"},
		"empty":       nil,
	}

	got := raw.Normalize()

	assert.Equal(t, int64(123), got["product_id"])
	assert.Equal(t, int64(42), got["user_id"])
	assert.Equal(t, "dien-tu/dien-thoai", got["category_id"])
	assert.Equal(t, "abc", got["order_id"])
	assert.Equal(t, "Samsung", got["brand"])
	assert.Equal(t, []int64{1, 2}, got["product_ids"])
	assert.Equal(t, map[string]any{"min": int64(0), "max": int64(10000000)}, got["price_range"])
	assert.NotContains(t, got, "empty")

	// 规范化结果可 JSON 序列化
	_, err := json.Marshal(got)
	require.NoError(t, err)
}

func TestEntities_NumericCategoryID(t *testing.T) {
	got := Entities{"category_id": "17"}.Normalize()
	assert.Equal(t, int64(17), got["category_id"])
}

func TestEntities_PriceRangeSwapped(t *testing.T) {
	e := Entities{"price_range": map[string]any{"min": 9000000.0, "max": 5000000.0}}.Normalize()
	r := e.PriceRange()
	assert.Equal(t, int64(5000000), r.Min)
	assert.Equal(t, int64(9000000), r.Max)
	assert.True(t, r.Contains(7000000))
	assert.False(t, r.Contains(9500000))
}

func TestEntities_Merge(t *testing.T) {
	llm := Entities{"brand": "Samsung", "category": ""}
	heuristic := Entities{"brand": "samsung", "category": "điện thoại", "price_range": map[string]any{"max": int64(10000000)}}

	got := llm.Merge(heuristic)
	assert.Equal(t, "Samsung", got["brand"], "LLM 结果优先")
	assert.Equal(t, "điện thoại", got["category"], "空值由启发式补齐")
	assert.Equal(t, int64(10000000), got.PriceRange().Max)
}

func TestEntities_Accessors(t *testing.T) {
	e := Entities{
		"product_name":  "  iPhone 13 ",
		"product_names": []any{"iPhone 13", "", "Samsung S22"},
		"product_id":    json.Number("77"),
	}

	assert.Equal(t, "iPhone 13", e.String(KeyProductName))
	assert.Equal(t, []string{"iPhone 13", "Samsung S22"}, e.Strings(KeyProductNames))
	id, ok := e.Int64(KeyProductID)
	assert.True(t, ok)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, "77", e.String(KeyProductID))
	assert.Equal(t, []int64{77}, e.Int64s(KeyProductID))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"10 triệu", 10_000_000, true},
		{"1,5tr", 1_500_000, true},
		{"500k", 500_000, true},
		{"10.000.000đ", 10_000_000, true},
		{"2 tỷ", 2_000_000_000, true},
		{"12990000", 12_990_000, true},
		{"15 củ", 15_000_000, true},
		{"rẻ", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "tim dien thoai samsung duoi 10 trieu", Fold("Tìm điện thoại Samsung dưới 10 triệu"))
	assert.Equal(t, "bao hanh bao lau?", Fold("bảo hành bao lâu?"))
}

func TestLabel(t *testing.T) {
	l, ok := ParseLabel("compare_products")
	assert.True(t, ok)
	assert.Equal(t, CompareProducts, l)

	_, ok = ParseLabel("shop_management")
	assert.False(t, ok)
	assert.Len(t, Labels, 11)
}

func TestParseConfirmation(t *testing.T) {
	tests := []struct {
		in        string
		confirmed bool
		matched   bool
	}{
		{"Đồng ý", true, true},
		{"ok shop", true, true},
		{"Tôi đồng ý ạ", true, true},
		{"có", true, true},
		{"không đồng ý", false, true},
		{"thôi hủy đi", false, true},
		{"tìm điện thoại Samsung", false, false},
		{"không", false, true},
		{"Không cần đâu, cảm ơn shop", false, true},
		{"thôi", false, true},
		{"còn tai nghe nào không", false, false},
		{"nó có màu đen không", false, false},
		{"chỉ một cái thôi", false, false},
		{"", false, false},
		{"mình đồng ý nhưng muốn hỏi thêm về chính sách bảo hành của shop", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			confirmed, matched := ParseConfirmation(tt.in)
			assert.Equal(t, tt.matched, matched)
			assert.Equal(t, tt.confirmed, confirmed)
		})
	}
}
