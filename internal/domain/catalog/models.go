// Package catalog 商品目录领域模型：商品、分类、品牌、店铺、顾客、FAQ、评价、订单、优惠券
package catalog

import (
	"sort"
	"time"
)

// Product 商品
type Product struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	ShortDescription string            `json:"short_description"`
	Description      string            `json:"description"`
	Price            int64             `json:"price"`
	CategoryID       string            `json:"category_id"`
	CategoryName     string            `json:"category_name,omitempty"`
	BrandID          int64             `json:"brand_id"`
	BrandName        string            `json:"brand_name,omitempty"`
	ShopID           int64             `json:"shop_id"`
	ShopName         string            `json:"shop_name,omitempty"`
	Stock            int               `json:"stock"`
	RatingAverage    float64           `json:"rating_average"`
	ReviewCount      int               `json:"review_count"`
	SoldCount        int               `json:"sold_count"`
	Specifications   map[string]string `json:"specifications,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// InStock 是否有货
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// SpecKeys 按字典序返回规格键
func (p *Product) SpecKeys() []string {
	keys := make([]string, 0, len(p.Specifications))
	for k := range p.Specifications {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Category 分类，ID 为斜杠分隔的路径，例如 "dien-tu/dien-thoai"
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ParentID    string `json:"parent_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Brand 品牌
type Brand struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Shop 店铺
type Shop struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Preferences 顾客偏好
type Preferences struct {
	Categories []string `json:"categories,omitempty"`
	Brands     []string `json:"brands,omitempty"`
	PriceMin   int64    `json:"price_min,omitempty"`
	PriceMax   int64    `json:"price_max,omitempty"`
	Language   string   `json:"language,omitempty"`
}

// Customer 顾客
type Customer struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Address     string      `json:"address,omitempty"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ProfileUpdate 顾客资料修改，nil 字段保持不变
type ProfileUpdate struct {
	Name        *string      `json:"name,omitempty"`
	Email       *string      `json:"email,omitempty"`
	Phone       *string      `json:"phone,omitempty"`
	Address     *string      `json:"address,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// IsEmpty 是否没有任何修改
func (u *ProfileUpdate) IsEmpty() bool {
	return u == nil || (u.Name == nil && u.Email == nil && u.Phone == nil && u.Address == nil && u.Preferences == nil)
}

// Apply 将修改应用到顾客
func (u *ProfileUpdate) Apply(c *Customer) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.Address != nil {
		c.Address = *u.Address
	}
	if u.Preferences != nil {
		c.Preferences = *u.Preferences
	}
}

// PurchaseStats 顾客购买统计
type PurchaseStats struct {
	TotalPurchases   int        `json:"total_purchases"`
	AvgPurchaseValue float64    `json:"avg_purchase_value"`
	LastPurchaseAt   *time.Time `json:"last_purchase_at,omitempty"`
	// TopCategory 购买最多的分类
	TopCategory string `json:"top_category,omitempty"`
	// TopBrand 购买最多的品牌
	TopBrand string `json:"top_brand,omitempty"`
}

// FAQ 常见问题
type FAQ struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
	ShopID   *int64 `json:"shop_id,omitempty"`
}

// Review 商品评价
type Review struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	CustomerID int64     `json:"customer_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderItem 订单行
type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// Order 订单
type Order struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customer_id"`
	ShopID     int64       `json:"shop_id"`
	Status     string      `json:"status"`
	Total      int64       `json:"total"`
	Items      []OrderItem `json:"items,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ProductSales 商品销量
type ProductSales struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Revenue   int64  `json:"revenue"`
}

// ShopStats 店铺经营统计
type ShopStats struct {
	Since       time.Time      `json:"since"`
	OrderCount  int            `json:"order_count"`
	Revenue     int64          `json:"revenue"`
	TopProducts []ProductSales `json:"top_products"`
}

// Coupon 优惠券
type Coupon struct {
	ID              int64     `json:"id"`
	ShopID          int64     `json:"shop_id"`
	Code            string    `json:"code"`
	DiscountPercent int       `json:"discount_percent"`
	ExpiresAt       time.Time `json:"expires_at"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// SearchLog 搜索记录
type SearchLog struct {
	ID         int64     `json:"id"`
	CustomerID *int64    `json:"customer_id,omitempty"`
	Query      string    `json:"query"`
	CreatedAt  time.Time `json:"created_at"`
}
