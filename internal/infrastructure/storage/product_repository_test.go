package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/catalog"
)

func TestProductRepository_GetWithNames(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	p, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "iPhone 15", p.Name)
	assert.Equal(t, "Điện thoại", p.CategoryName)
	assert.Equal(t, "Apple", p.BrandName)
	assert.Equal(t, "Shop Một", p.ShopName)
	assert.Equal(t, "6GB", p.Specifications["ram"])
	assert.Equal(t, []string{"ram", "storage"}, p.SpecKeys())

	// 无品牌的商品
	shirt, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, shirt.BrandID)
	assert.Empty(t, shirt.BrandName)
	assert.False(t, shirt.InStock())

	missing, err := repo.Get(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProductRepository_GetManyKeepsOrder(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	repo := NewProductRepository(db)

	products, err := repo.GetMany(context.Background(), []int64{3, 99, 1})
	require.NoError(t, err)
	require.Len(t, products, 2, "不存在的 ID 被跳过")
	assert.Equal(t, int64(3), products[0].ID)
	assert.Equal(t, int64(1), products[1].ID)
}

func TestProductRepository_FindByName(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	products, err := repo.FindByName(ctx, "IPHONE", 5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(1), products[0].ID)

	products, err = repo.FindByName(ctx, "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestProductRepository_PopularIncludesSubcategories(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	products, err := repo.Popular(ctx, "dien-tu", 10)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID, "销量高的排前面")

	all, err := repo.Popular(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)
}

func TestProductRepository_StockAndPrice(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	low, err := repo.LowStock(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, int64(2), low[0].ID)

	require.NoError(t, repo.UpdatePrice(ctx, 2, 20_000_000))
	require.NoError(t, repo.UpdateStock(ctx, 2, 50))
	p, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000_000), p.Price)
	assert.Equal(t, 50, p.Stock)

	assert.ErrorIs(t, repo.UpdatePrice(ctx, 99, 1), catalog.ErrProductNotFound)
}

func TestProductRepository_PagingAndDelete(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	page, err := repo.ListPage(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].ID)

	require.NoError(t, repo.Delete(ctx, 3))
	ids, err := repo.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}
