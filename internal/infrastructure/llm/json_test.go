package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]any
		ok      bool
	}{
		{
			name:    "strict json",
			content: `{"intent":"product_search","confidence":0.9}`,
			want:    map[string]any{"intent": "product_search", "confidence": json.Number("0.9")},
			ok:      true,
		},
		{
			name:    "fenced json",
			content: "Đây là kết quả:\n```json\n{\"intent\": \"policy_question\"}\n```\nCảm ơn",
			want:    map[string]any{"intent": "policy_question"},
			ok:      true,
		},
		{
			name:    "json in prose",
			content: `Sure! {"intent": "recommendation", "entities": {"brand": "Samsung"}} hope this helps {x}`,
			want:    map[string]any{"intent": "recommendation", "entities": map[string]any{"brand": "Samsung"}},
			ok:      true,
		},
		{
			name:    "braces inside strings",
			content: `result: {"text": "a } tricky { value", "n": 1}`,
			want:    map[string]any{"text": "a } tricky { value", "n": json.Number("1")},
			ok:      true,
		},
		{
			name:    "invalid first candidate",
			content: `{not json} then {"ok": true}`,
			want:    map[string]any{"ok": true},
			ok:      true,
		},
		{
			name:    "no json",
			content: "Xin lỗi, tôi không hiểu.",
			ok:      false,
		},
		{
			name:    "empty",
			content: "   ",
			ok:      false,
		},
		{
			name:    "array is not an object",
			content: `[1, 2, 3]`,
			ok:      false,
		},
		{
			name:    "unbalanced outer falls back to inner object",
			content: `{"a": {"b": 1}`,
			want:    map[string]any{"b": json.Number("1")},
			ok:      true,
		},
		{
			name:    "unbalanced",
			content: `{"a": [1, 2`,
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractObject(tt.content)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestExtractJSON_Struct(t *testing.T) {
	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	require.True(t, ExtractJSON("```\n{\"intent\":\"compare_products\",\"confidence\":0.75}\n```", &out))
	assert.Equal(t, "compare_products", out.Intent)
	assert.InDelta(t, 0.75, out.Confidence, 1e-9)

	// 解析失败时保持原值
	out.Intent = "keep"
	assert.False(t, ExtractJSON("no json here", &out))
	assert.Equal(t, "keep", out.Intent)
}

func TestTokenCounter(t *testing.T) {
	c := NewTokenCounter()

	assert.Equal(t, 0, c.Count(""))
	assert.Greater(t, c.Count("Tìm điện thoại Samsung dưới 10 triệu"), 0)

	long := strings.Repeat("điện thoại giá rẻ ", 200)
	truncated := c.Truncate(long, 20)
	assert.LessOrEqual(t, c.Count(truncated), 20)
	assert.True(t, strings.HasPrefix(long, truncated))

	short := "xin chào"
	assert.Equal(t, short, c.Truncate(short, 100))
	assert.Equal(t, short, c.Truncate(short, 0))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "điện", TruncateRunes("điện thoại", 4))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "abc", TruncateRunes("abc", 0))
}
