package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/catalog"
)

// setupTestDB 创建临时 sqlite 数据库并执行迁移
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// seedCatalog 写入测试用的分类、品牌、店铺与商品
func seedCatalog(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	categories := NewCategoryRepository(db)
	for _, c := range []*catalog.Category{
		{ID: "dien-tu", Name: "Điện tử"},
		{ID: "dien-tu/dien-thoai", Name: "Điện thoại", ParentID: "dien-tu"},
		{ID: "thoi-trang", Name: "Thời trang"},
	} {
		require.NoError(t, categories.Upsert(ctx, c))
	}

	brands := NewBrandRepository(db)
	require.NoError(t, brands.Upsert(ctx, &catalog.Brand{ID: 1, Name: "Apple"}))
	require.NoError(t, brands.Upsert(ctx, &catalog.Brand{ID: 2, Name: "Samsung"}))

	shops := NewShopRepository(db)
	require.NoError(t, shops.Upsert(ctx, &catalog.Shop{ID: 1, Name: "Shop Một"}))
	require.NoError(t, shops.Upsert(ctx, &catalog.Shop{ID: 2, Name: "Shop Hai"}))

	products := NewProductRepository(db)
	for _, p := range []*catalog.Product{
		{ID: 1, Name: "iPhone 15", Price: 25_000_000, CategoryID: "dien-tu/dien-thoai", BrandID: 1, ShopID: 1,
			Stock: 10, RatingAverage: 4.8, ReviewCount: 120, SoldCount: 300,
			Specifications: map[string]string{"ram": "6GB", "storage": "128GB"}},
		{ID: 2, Name: "Samsung Galaxy S24", Price: 22_000_000, CategoryID: "dien-tu/dien-thoai", BrandID: 2, ShopID: 1,
			Stock: 3, RatingAverage: 4.6, ReviewCount: 80, SoldCount: 150,
			Specifications: map[string]string{"ram": "8GB", "storage": "256GB"}},
		{ID: 3, Name: "Áo thun basic", Price: 150_000, CategoryID: "thoi-trang", ShopID: 2,
			Stock: 0, RatingAverage: 4.1, ReviewCount: 10, SoldCount: 500},
	} {
		require.NoError(t, products.Upsert(ctx, p))
	}
}
