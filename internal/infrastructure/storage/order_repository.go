package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopmind/backend/internal/domain/catalog"
)

// orderRepository 订单仓储实现
type orderRepository struct {
	db *DB
}

// NewOrderRepository 创建订单仓储实例
func NewOrderRepository(db *DB) catalog.OrderRepository {
	return &orderRepository{db: db}
}

// Create 创建订单及订单行，Total 为 0 时按订单行计算
func (r *orderRepository) Create(ctx context.Context, o *catalog.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.Total == 0 {
		for _, item := range o.Items {
			o.Total += item.UnitPrice * int64(item.Quantity)
		}
	}

	return r.db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, r.db.Rebind(`
			INSERT INTO orders (customer_id, shop_id, status, total, created_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id`),
			o.CustomerID, o.ShopID, o.Status, o.Total, toMillis(o.CreatedAt),
		).Scan(&o.ID); err != nil {
			return persistErr("insert order", err)
		}
		for _, item := range o.Items {
			if _, err := tx.ExecContext(ctx, r.db.Rebind(`
				INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`),
				o.ID, item.ProductID, item.Quantity, item.UnitPrice,
			); err != nil {
				return persistErr("insert order item", err)
			}
			if _, err := tx.ExecContext(ctx, r.db.Rebind(
				`UPDATE products SET sold_count = sold_count + ? WHERE id = ?`),
				item.Quantity, item.ProductID,
			); err != nil {
				return persistErr("bump sold count", err)
			}
		}
		return nil
	})
}

// ListByCustomer 顾客最近的订单
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]*catalog.Order, error) {
	var orders []*catalog.Order
	err := r.db.query(ctx, `
		SELECT id, customer_id, shop_id, status, total, created_at
		FROM orders WHERE customer_id = ? ORDER BY created_at DESC LIMIT ?`,
		[]any{customerID, limitOrDefault(limit, 10)},
		func(rows *sql.Rows) error {
			var (
				o         catalog.Order
				createdAt int64
			)
			if err := rows.Scan(&o.ID, &o.CustomerID, &o.ShopID, &o.Status, &o.Total, &createdAt); err != nil {
				return err
			}
			o.CreatedAt = fromMillis(createdAt)
			orders = append(orders, &o)
			return nil
		})
	if err != nil {
		return nil, persistErr("list customer orders", err)
	}
	return orders, nil
}

// ShopStats 店铺自 since 起的经营统计
func (r *orderRepository) ShopStats(ctx context.Context, shopID int64, since time.Time, top int) (*catalog.ShopStats, error) {
	stats := &catalog.ShopStats{Since: since}

	var revenue sql.NullInt64
	err := r.db.queryRow(ctx, `
		SELECT COUNT(*), SUM(total) FROM orders
		WHERE shop_id = ? AND created_at >= ? AND status <> 'cancelled'`,
		[]any{shopID, toMillis(since)}, &stats.OrderCount, &revenue)
	if err != nil {
		return nil, persistErr("query shop stats", err)
	}
	stats.Revenue = revenue.Int64

	err = r.db.query(ctx, `
		SELECT p.id, p.name, SUM(oi.quantity) AS qty, SUM(oi.quantity * oi.unit_price) AS rev
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE o.shop_id = ? AND o.created_at >= ? AND o.status <> 'cancelled'
		GROUP BY p.id, p.name
		ORDER BY qty DESC, rev DESC
		LIMIT ?`,
		[]any{shopID, toMillis(since), limitOrDefault(top, 5)},
		func(rows *sql.Rows) error {
			var s catalog.ProductSales
			if err := rows.Scan(&s.ProductID, &s.Name, &s.Quantity, &s.Revenue); err != nil {
				return err
			}
			stats.TopProducts = append(stats.TopProducts, s)
			return nil
		})
	if err != nil {
		return nil, persistErr("query top products", err)
	}
	return stats, nil
}

// couponRepository 优惠券仓储实现
type couponRepository struct {
	db *DB
}

// NewCouponRepository 创建优惠券仓储实例
func NewCouponRepository(db *DB) catalog.CouponRepository {
	return &couponRepository{db: db}
}

// Create 创建优惠券，优惠码统一大写
func (r *couponRepository) Create(ctx context.Context, c *catalog.Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.Active = true

	err := r.db.queryRow(ctx, `
		INSERT INTO coupons (shop_id, code, discount_percent, expires_at, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?) RETURNING id`,
		[]any{c.ShopID, c.Code, c.DiscountPercent, toMillis(c.ExpiresAt), toMillis(c.CreatedAt)}, &c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrCouponExists
		}
		return persistErr("insert coupon", err)
	}
	return nil
}

// ListActive 店铺当前有效的优惠券
func (r *couponRepository) ListActive(ctx context.Context, shopID int64, now time.Time) ([]*catalog.Coupon, error) {
	var coupons []*catalog.Coupon
	err := r.db.query(ctx, `
		SELECT id, shop_id, code, discount_percent, expires_at, active, created_at
		FROM coupons WHERE shop_id = ? AND active = 1 AND expires_at > ?
		ORDER BY expires_at ASC`,
		[]any{shopID, toMillis(now)},
		func(rows *sql.Rows) error {
			var (
				c                    catalog.Coupon
				active               int
				expiresAt, createdAt int64
			)
			if err := rows.Scan(&c.ID, &c.ShopID, &c.Code, &c.DiscountPercent, &expiresAt, &active, &createdAt); err != nil {
				return err
			}
			c.Active = active == 1
			c.ExpiresAt = fromMillis(expiresAt)
			c.CreatedAt = fromMillis(createdAt)
			coupons = append(coupons, &c)
			return nil
		})
	if err != nil {
		return nil, persistErr("list coupons", err)
	}
	return coupons, nil
}

// Deactivate 停用优惠券
func (r *couponRepository) Deactivate(ctx context.Context, shopID int64, code string) error {
	_, err := r.db.exec(ctx, `UPDATE coupons SET active = 0 WHERE shop_id = ? AND code = ?`,
		shopID, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return persistErr("deactivate coupon", err)
	}
	return nil
}

var (
	_ catalog.OrderRepository  = (*orderRepository)(nil)
	_ catalog.CouponRepository = (*couponRepository)(nil)
)
