package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopmind/backend/internal/domain/catalog"
)

// customerRepository 顾客仓储实现
type customerRepository struct {
	db *DB
}

// NewCustomerRepository 创建顾客仓储实例
func NewCustomerRepository(db *DB) catalog.CustomerRepository {
	return &customerRepository{db: db}
}

// Get 获取顾客
func (r *customerRepository) Get(ctx context.Context, id int64) (*catalog.Customer, error) {
	var (
		c                    catalog.Customer
		prefs                string
		createdAt, updatedAt int64
	)
	err := r.db.queryRow(ctx, `
		SELECT id, name, email, phone, address, preferences, created_at, updated_at
		FROM customers WHERE id = ?`,
		[]any{id}, &c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &prefs, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query customer", err)
	}
	if prefs != "" {
		if err := json.Unmarshal([]byte(prefs), &c.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// Upsert 新增或更新顾客
func (r *customerRepository) Upsert(ctx context.Context, c *catalog.Customer) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	prefs, err := json.Marshal(c.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO customers (id, name, email, phone, address, preferences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address,
			preferences = excluded.preferences,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, string(prefs),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return persistErr("upsert customer", err)
	}
	return nil
}

// UpdateProfile 应用资料修改并返回修改后的顾客
func (r *customerRepository) UpdateProfile(ctx context.Context, id int64, update *catalog.ProfileUpdate) (*catalog.Customer, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, catalog.ErrCustomerNotFound
	}
	if update.IsEmpty() {
		return c, nil
	}
	update.Apply(c)
	if err := r.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PurchaseStats 购买统计，已取消订单不计入
func (r *customerRepository) PurchaseStats(ctx context.Context, id int64) (*catalog.PurchaseStats, error) {
	var (
		stats    catalog.PurchaseStats
		avg      sql.NullFloat64
		lastTime sql.NullInt64
	)
	err := r.db.queryRow(ctx, `
		SELECT COUNT(*), AVG(total), MAX(created_at)
		FROM orders WHERE customer_id = ? AND status <> 'cancelled'`,
		[]any{id}, &stats.TotalPurchases, &avg, &lastTime)
	if err != nil {
		return nil, persistErr("query purchase stats", err)
	}
	stats.AvgPurchaseValue = avg.Float64
	if lastTime.Valid {
		t := fromMillis(lastTime.Int64)
		stats.LastPurchaseAt = &t
	}
	if stats.TotalPurchases == 0 {
		return &stats, nil
	}

	stats.TopCategory, err = r.topDimension(ctx, id, "p.category_id")
	if err != nil {
		return nil, err
	}
	stats.TopBrand, err = r.topDimension(ctx, id, "b.name")
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// topDimension 按购买件数统计最多的分类或品牌
func (r *customerRepository) topDimension(ctx context.Context, customerID int64, column string) (string, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, SUM(oi.quantity) AS qty
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		LEFT JOIN brands b ON b.id = p.brand_id
		WHERE o.customer_id = ? AND o.status <> 'cancelled' AND %[1]s IS NOT NULL
		GROUP BY %[1]s
		ORDER BY qty DESC
		LIMIT 1`, column)

	var (
		value sql.NullString
		qty   int64
	)
	err := r.db.queryRow(ctx, query, []any{customerID}, &value, &qty)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", persistErr("query purchase dimension", err)
	}
	return value.String, nil
}

var _ catalog.CustomerRepository = (*customerRepository)(nil)
