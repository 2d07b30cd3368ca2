package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/testutil"
)

func TestExtractPriceRange(t *testing.T) {
	tests := []struct {
		text string
		want intent.PriceRange
	}{
		{"Tìm điện thoại Samsung dưới 10 triệu", intent.PriceRange{Max: 10_000_000}},
		{"tai nghe tối đa 500k", intent.PriceRange{Max: 500_000}},
		{"laptop trên 20tr", intent.PriceRange{Min: 20_000_000}},
		{"từ 5 đến 10 triệu", intent.PriceRange{Min: 5_000_000, Max: 10_000_000}},
		{"giá 7-9 triệu", intent.PriceRange{Min: 7_000_000, Max: 9_000_000}},
		{"khoảng 10 triệu", intent.PriceRange{Min: 8_000_000, Max: 12_000_000}},
		{"iPhone 13 còn hàng không", intent.PriceRange{}},
		{"dưới 5", intent.PriceRange{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPriceRange(intent.Fold(tt.text)))
		})
	}
}

func TestEntityExtractor_Extract(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	f.Seed(t)
	x := NewEntityExtractor(f.Brands, f.Categories)

	t.Run("brand category and price", func(t *testing.T) {
		got := x.Extract(ctx, "Tìm điện thoại Samsung dưới 10 triệu")
		assert.Equal(t, "Samsung", got.String(intent.KeyBrand))
		assert.Equal(t, "Điện thoại", got.String(intent.KeyCategory))
		assert.Equal(t, int64(10_000_000), got.PriceRange().Max)
	})

	t.Run("explicit ids", func(t *testing.T) {
		got := x.Extract(ctx, "cho mình xem sản phẩm #123 và đơn hàng 998")
		id, ok := got.Int64(intent.KeyProductID)
		assert.True(t, ok)
		assert.Equal(t, int64(123), id)
		order, ok := got.Int64(intent.KeyOrderID)
		assert.True(t, ok)
		assert.Equal(t, int64(998), order)
	})

	t.Run("brand must be a whole word", func(t *testing.T) {
		got := x.Extract(ctx, "máy delluxe")
		assert.Empty(t, got.String(intent.KeyBrand))
	})

	t.Run("nothing to extract", func(t *testing.T) {
		assert.Empty(t, x.Extract(ctx, "xin chào"))
	})
}
