package catalog

import (
	"context"
	"time"
)

// 所有 Get 方法在实体不存在时返回 nil, nil

// ProductRepository 商品仓储
type ProductRepository interface {
	Get(ctx context.Context, id int64) (*Product, error)
	GetMany(ctx context.Context, ids []int64) ([]*Product, error)
	// FindByName 名称模糊匹配，按评分降序
	FindByName(ctx context.Context, name string, limit int) ([]*Product, error)
	ListByShop(ctx context.Context, shopID int64, limit int) ([]*Product, error)
	// Popular 按销量与评分排序，categoryID 为空表示不限分类
	Popular(ctx context.Context, categoryID string, limit int) ([]*Product, error)
	// LowStock 库存不高于阈值的商品
	LowStock(ctx context.Context, shopID int64, threshold int) ([]*Product, error)
	// ListPage 按 ID 升序分页，用于重建索引
	ListPage(ctx context.Context, afterID int64, limit int) ([]*Product, error)
	IDs(ctx context.Context) ([]int64, error)
	Upsert(ctx context.Context, p *Product) error
	UpdatePrice(ctx context.Context, id int64, price int64) error
	UpdateStock(ctx context.Context, id int64, stock int) error
	Delete(ctx context.Context, id int64) error
}

// CategoryRepository 分类仓储
type CategoryRepository interface {
	Get(ctx context.Context, id string) (*Category, error)
	List(ctx context.Context) ([]*Category, error)
	Upsert(ctx context.Context, c *Category) error
}

// BrandRepository 品牌仓储
type BrandRepository interface {
	Get(ctx context.Context, id int64) (*Brand, error)
	List(ctx context.Context) ([]*Brand, error)
	Upsert(ctx context.Context, b *Brand) error
}

// ShopRepository 店铺仓储
type ShopRepository interface {
	Get(ctx context.Context, id int64) (*Shop, error)
	Upsert(ctx context.Context, s *Shop) error
}

// CustomerRepository 顾客仓储
type CustomerRepository interface {
	Get(ctx context.Context, id int64) (*Customer, error)
	Upsert(ctx context.Context, c *Customer) error
	UpdateProfile(ctx context.Context, id int64, update *ProfileUpdate) (*Customer, error)
	PurchaseStats(ctx context.Context, id int64) (*PurchaseStats, error)
}

// FAQRepository 常见问题仓储
type FAQRepository interface {
	Get(ctx context.Context, id int64) (*FAQ, error)
	List(ctx context.Context) ([]*FAQ, error)
	Upsert(ctx context.Context, f *FAQ) error
}

// ReviewRepository 评价仓储
type ReviewRepository interface {
	Get(ctx context.Context, id int64) (*Review, error)
	ListByProduct(ctx context.Context, productID int64, limit int) ([]*Review, error)
	List(ctx context.Context) ([]*Review, error)
	Create(ctx context.Context, r *Review) error
}

// OrderRepository 订单仓储
type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]*Order, error)
	ShopStats(ctx context.Context, shopID int64, since time.Time, top int) (*ShopStats, error)
}

// CouponRepository 优惠券仓储
type CouponRepository interface {
	Create(ctx context.Context, c *Coupon) error
	ListActive(ctx context.Context, shopID int64, now time.Time) ([]*Coupon, error)
	Deactivate(ctx context.Context, shopID int64, code string) error
}

// SearchLogRepository 搜索记录仓储
type SearchLogRepository interface {
	Create(ctx context.Context, l *SearchLog) error
	Get(ctx context.Context, id int64) (*SearchLog, error)
	List(ctx context.Context, limit int) ([]*SearchLog, error)
}
