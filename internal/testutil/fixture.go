package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/infrastructure/storage"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// EmbeddingDim 测试向量维度
const EmbeddingDim = 512

// 预置数据中的关键 ID
const (
	CustomerID   int64 = 42
	ShopID       int64 = 1
	OtherShopID  int64 = 2
	IPhone13ID   int64 = 1
	GalaxyS22ID  int64 = 2
	GalaxyS23ID  int64 = 123
	WarrantyFAQ  int64 = 1
	PhoneCatID         = "dien-tu/dien-thoai"
	LaptopCatID        = "dien-tu/laptop"
	FashionCatID       = "thoi-trang"
)

// Fixture 迁移好的 sqlite、全部仓储、内存向量索引与哈希向量化
type Fixture struct {
	DB         *storage.DB
	Chats      chat.Repository
	Products   catalog.ProductRepository
	Categories catalog.CategoryRepository
	Brands     catalog.BrandRepository
	Shops      catalog.ShopRepository
	Customers  catalog.CustomerRepository
	FAQs       catalog.FAQRepository
	Reviews    catalog.ReviewRepository
	Orders     catalog.OrderRepository
	Coupons    catalog.CouponRepository
	SearchLogs catalog.SearchLogRepository

	Index    *vector.MemoryIndex
	Embedder *HashEmbedder
}

// NewFixture 创建空的测试环境
func NewFixture(t testing.TB) *Fixture {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "shopmind.db"))
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() { _ = db.Close() })

	return &Fixture{
		DB:         db,
		Chats:      storage.NewChatRepository(db),
		Products:   storage.NewProductRepository(db),
		Categories: storage.NewCategoryRepository(db),
		Brands:     storage.NewBrandRepository(db),
		Shops:      storage.NewShopRepository(db),
		Customers:  storage.NewCustomerRepository(db),
		FAQs:       storage.NewFAQRepository(db),
		Reviews:    storage.NewReviewRepository(db),
		Orders:     storage.NewOrderRepository(db),
		Coupons:    storage.NewCouponRepository(db),
		SearchLogs: storage.NewSearchLogRepository(db),
		Index:      vector.NewMemoryIndex(),
		Embedder:   NewHashEmbedder(EmbeddingDim),
	}
}

// Products 预置商品
func Products() []*catalog.Product {
	phone := PhoneCatID
	return []*catalog.Product{
		{ID: IPhone13ID, Name: "iPhone 13", ShortDescription: "Điện thoại Apple màn hình 6.1 inch",
			Description: "iPhone 13 với chip A15 Bionic, camera kép 12MP và thời lượng pin cả ngày.",
			Price:       15_000_000, CategoryID: phone, BrandID: 1, ShopID: ShopID, Stock: 12,
			RatingAverage: 4.7, ReviewCount: 210, SoldCount: 540,
			Specifications: map[string]string{"ram": "4GB", "storage": "128GB", "screen": "6.1 inch", "chip": "A15 Bionic"}},
		{ID: GalaxyS22ID, Name: "Samsung Galaxy S22", ShortDescription: "Điện thoại Samsung flagship nhỏ gọn",
			Description: "Galaxy S22 với Snapdragon 8 Gen 1, màn hình Dynamic AMOLED 120Hz.",
			Price:       14_000_000, CategoryID: phone, BrandID: 2, ShopID: ShopID, Stock: 8,
			RatingAverage: 4.5, ReviewCount: 150, SoldCount: 320,
			Specifications: map[string]string{"ram": "8GB", "storage": "128GB", "screen": "6.1 inch", "refresh_rate": "120Hz"}},
		{ID: 3, Name: "Samsung Galaxy A54", ShortDescription: "Điện thoại Samsung tầm trung pin trâu",
			Description: "Galaxy A54 pin 5000mAh, chống nước IP67.",
			Price:       8_500_000, CategoryID: phone, BrandID: 2, ShopID: ShopID, Stock: 30,
			RatingAverage: 4.4, ReviewCount: 95, SoldCount: 410,
			Specifications: map[string]string{"ram": "8GB", "storage": "256GB"}},
		{ID: 4, Name: "Xiaomi Redmi Note 13", ShortDescription: "Điện thoại Xiaomi giá rẻ",
			Description: "Redmi Note 13 màn hình AMOLED, sạc nhanh 33W.",
			Price:       5_000_000, CategoryID: phone, BrandID: 3, ShopID: OtherShopID, Stock: 50,
			RatingAverage: 4.2, ReviewCount: 60, SoldCount: 700,
			Specifications: map[string]string{"ram": "6GB", "storage": "128GB"}},
		{ID: 5, Name: "iPhone 15 Pro", ShortDescription: "Điện thoại Apple cao cấp khung titan",
			Description: "iPhone 15 Pro chip A17 Pro, cổng USB-C.",
			Price:       28_000_000, CategoryID: phone, BrandID: 1, ShopID: ShopID, Stock: 2,
			RatingAverage: 4.9, ReviewCount: 80, SoldCount: 150,
			Specifications: map[string]string{"ram": "8GB", "storage": "256GB"}},
		{ID: 6, Name: "Dell XPS 13", ShortDescription: "Laptop Dell mỏng nhẹ",
			Description: "Dell XPS 13 Intel Core i7, màn hình 13.4 inch.",
			Price:       35_000_000, CategoryID: LaptopCatID, BrandID: 4, ShopID: OtherShopID, Stock: 5,
			RatingAverage: 4.6, ReviewCount: 40, SoldCount: 60,
			Specifications: map[string]string{"ram": "16GB", "storage": "512GB"}},
		{ID: 7, Name: "Samsung Galaxy A15", ShortDescription: "Điện thoại Samsung giá rẻ",
			Description: "Galaxy A15 màn hình lớn, pin 5000mAh.",
			Price:       4_500_000, CategoryID: phone, BrandID: 2, ShopID: ShopID, Stock: 0,
			RatingAverage: 4.0, ReviewCount: 30, SoldCount: 260,
			Specifications: map[string]string{"ram": "4GB", "storage": "128GB"}},
		{ID: 8, Name: "Áo thun basic", ShortDescription: "Áo thun cotton",
			Description: "Áo thun cotton 100%, nhiều màu.",
			Price:       150_000, CategoryID: FashionCatID, ShopID: OtherShopID, Stock: 100,
			RatingAverage: 4.1, ReviewCount: 10, SoldCount: 900},
		{ID: GalaxyS23ID, Name: "Samsung Galaxy S23", ShortDescription: "Điện thoại Samsung flagship",
			Description: "Galaxy S23 với Snapdragon 8 Gen 2, camera 50MP.",
			Price:       18_000_000, CategoryID: phone, BrandID: 2, ShopID: ShopID, Stock: 15,
			RatingAverage: 4.8, ReviewCount: 120, SoldCount: 280,
			Specifications: map[string]string{"ram": "8GB", "storage": "256GB", "screen": "6.1 inch"}},
	}
}

// FAQs 预置常见问题
func FAQs() []*catalog.FAQ {
	return []*catalog.FAQ{
		{ID: WarrantyFAQ, Question: "Chính sách bảo hành", Answer: "Bảo hành 12 tháng", Category: "warranty"},
		{ID: 2, Question: "Chính sách đổi trả", Answer: "Đổi trả miễn phí trong 7 ngày", Category: "return"},
		{ID: 3, Question: "Phí vận chuyển", Answer: "Miễn phí giao hàng cho đơn từ 500 nghìn", Category: "shipping"},
	}
}

// Seed 写入分类、品牌、店铺、顾客、商品、FAQ、评价与订单
func (f *Fixture) Seed(t testing.TB) {
	t.Helper()
	ctx := context.Background()

	for _, c := range []*catalog.Category{
		{ID: "dien-tu", Name: "Điện tử"},
		{ID: PhoneCatID, Name: "Điện thoại", ParentID: "dien-tu"},
		{ID: LaptopCatID, Name: "Laptop", ParentID: "dien-tu"},
		{ID: FashionCatID, Name: "Thời trang"},
	} {
		require.NoError(t, f.Categories.Upsert(ctx, c))
	}
	for _, b := range []*catalog.Brand{
		{ID: 1, Name: "Apple"},
		{ID: 2, Name: "Samsung"},
		{ID: 3, Name: "Xiaomi"},
		{ID: 4, Name: "Dell"},
	} {
		require.NoError(t, f.Brands.Upsert(ctx, b))
	}
	require.NoError(t, f.Shops.Upsert(ctx, &catalog.Shop{ID: ShopID, Name: "Shop Điện Thoại"}))
	require.NoError(t, f.Shops.Upsert(ctx, &catalog.Shop{ID: OtherShopID, Name: "Shop Tổng Hợp"}))

	require.NoError(t, f.Customers.Upsert(ctx, &catalog.Customer{
		ID: CustomerID, Name: "Nguyễn Văn A", Email: "a@example.com", Phone: "0901234567",
		Preferences: catalog.Preferences{
			Categories: []string{PhoneCatID},
			Brands:     []string{"Samsung"},
			PriceMin:   5_000_000,
			PriceMax:   20_000_000,
		},
	}))

	for _, p := range Products() {
		require.NoError(t, f.Products.Upsert(ctx, p))
	}
	for _, q := range FAQs() {
		require.NoError(t, f.FAQs.Upsert(ctx, q))
	}
	require.NoError(t, f.Reviews.Create(ctx, &catalog.Review{
		ProductID: GalaxyS22ID, CustomerID: CustomerID, Rating: 5, Comment: "Máy chạy mượt, pin ổn",
	}))

	require.NoError(t, f.Orders.Create(ctx, &catalog.Order{
		CustomerID: CustomerID, ShopID: ShopID, Status: "completed",
		Items:     []catalog.OrderItem{{ProductID: 3, Quantity: 1, UnitPrice: 8_500_000}},
		CreatedAt: time.Now().Add(-30 * 24 * time.Hour),
	}))
	require.NoError(t, f.Orders.Create(ctx, &catalog.Order{
		CustomerID: CustomerID, ShopID: ShopID, Status: "completed",
		Items: []catalog.OrderItem{{ProductID: GalaxyS22ID, Quantity: 1, UnitPrice: 14_000_000}},
	}))
}

// NewChat 创建测试会话
func (f *Fixture) NewChat(t testing.TB, id string, customerID, shopID *int64) *chat.Chat {
	t.Helper()
	c := &chat.Chat{ID: id, CustomerID: customerID, ShopID: shopID}
	require.NoError(t, f.Chats.Create(context.Background(), c))
	return c
}

// Int64 返回指针
func Int64(v int64) *int64 {
	return &v
}
