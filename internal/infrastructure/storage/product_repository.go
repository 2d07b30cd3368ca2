package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopmind/backend/internal/domain/catalog"
)

// productRepository 商品仓储实现
type productRepository struct {
	db *DB
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(db *DB) catalog.ProductRepository {
	return &productRepository{db: db}
}

// productSelect 商品查询，连带分类、品牌、店铺名称
const productSelect = `
	SELECT p.id, p.name, p.short_description, p.description, p.price,
		p.category_id, COALESCE(c.name, ''), p.brand_id, COALESCE(b.name, ''), p.shop_id, COALESCE(s.name, ''),
		p.stock, p.rating_average, p.review_count, p.sold_count, p.specifications, p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN brands b ON b.id = p.brand_id
	LEFT JOIN shops s ON s.id = p.shop_id`

// scanProduct 扫描一行商品
func scanProduct(scan func(dest ...any) error) (*catalog.Product, error) {
	var (
		p                    catalog.Product
		categoryID           sql.NullString
		brandID, shopID      sql.NullInt64
		specs                string
		createdAt, updatedAt int64
	)
	if err := scan(
		&p.ID, &p.Name, &p.ShortDescription, &p.Description, &p.Price,
		&categoryID, &p.CategoryName, &brandID, &p.BrandName, &shopID, &p.ShopName,
		&p.Stock, &p.RatingAverage, &p.ReviewCount, &p.SoldCount, &specs, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.CategoryID = categoryID.String
	p.BrandID = brandID.Int64
	p.ShopID = shopID.Int64
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	if specs != "" && specs != "{}" {
		if err := json.Unmarshal([]byte(specs), &p.Specifications); err != nil {
			return nil, fmt.Errorf("failed to unmarshal specifications: %w", err)
		}
	}
	return &p, nil
}

func (r *productRepository) list(ctx context.Context, op, query string, args ...any) ([]*catalog.Product, error) {
	var products []*catalog.Product
	err := r.db.query(ctx, query, args, func(rows *sql.Rows) error {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, persistErr(op, err)
	}
	return products, nil
}

// Get 根据 ID 获取商品
func (r *productRepository) Get(ctx context.Context, id int64) (*catalog.Product, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, r.db.Rebind(productSelect+` WHERE p.id = ?`), id)
	p, err := scanProduct(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query product", err)
	}
	return p, nil
}

// GetMany 批量获取商品，保持 ids 的顺序，跳过不存在的 ID
func (r *productRepository) GetMany(ctx context.Context, ids []int64) ([]*catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := r.list(ctx, "query products",
		productSelect+` WHERE p.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*catalog.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	ordered := make([]*catalog.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// FindByName 名称模糊匹配
func (r *productRepository) FindByName(ctx context.Context, name string, limit int) ([]*catalog.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return r.list(ctx, "find products by name",
		productSelect+` WHERE LOWER(p.name) LIKE ? ORDER BY p.rating_average DESC, p.sold_count DESC LIMIT ?`,
		"%"+strings.ToLower(name)+"%", limitOrDefault(limit, 10))
}

// ListByShop 列出店铺商品
func (r *productRepository) ListByShop(ctx context.Context, shopID int64, limit int) ([]*catalog.Product, error) {
	return r.list(ctx, "list shop products",
		productSelect+` WHERE p.shop_id = ? ORDER BY p.updated_at DESC LIMIT ?`,
		shopID, limitOrDefault(limit, 20))
}

// Popular 热门商品
func (r *productRepository) Popular(ctx context.Context, categoryID string, limit int) ([]*catalog.Product, error) {
	query := productSelect
	var args []any
	if categoryID != "" {
		// 包含子分类
		query += ` WHERE (p.category_id = ? OR p.category_id LIKE ?)`
		args = append(args, categoryID, categoryID+"/%")
	}
	query += ` ORDER BY p.sold_count DESC, p.rating_average * p.review_count DESC, p.id ASC LIMIT ?`
	args = append(args, limitOrDefault(limit, 10))
	return r.list(ctx, "list popular products", query, args...)
}

// LowStock 库存不高于阈值的商品
func (r *productRepository) LowStock(ctx context.Context, shopID int64, threshold int) ([]*catalog.Product, error) {
	return r.list(ctx, "list low stock products",
		productSelect+` WHERE p.shop_id = ? AND p.stock <= ? ORDER BY p.stock ASC, p.id ASC`,
		shopID, threshold)
}

// ListPage 按 ID 分页
func (r *productRepository) ListPage(ctx context.Context, afterID int64, limit int) ([]*catalog.Product, error) {
	return r.list(ctx, "page products",
		productSelect+` WHERE p.id > ? ORDER BY p.id ASC LIMIT ?`,
		afterID, limitOrDefault(limit, 100))
}

// IDs 全部商品 ID
func (r *productRepository) IDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, r.db, `SELECT id FROM products ORDER BY id`)
}

// Upsert 新增或更新商品
func (r *productRepository) Upsert(ctx context.Context, p *catalog.Product) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	specs := "{}"
	if len(p.Specifications) > 0 {
		data, err := json.Marshal(p.Specifications)
		if err != nil {
			return fmt.Errorf("failed to marshal specifications: %w", err)
		}
		specs = string(data)
	}

	_, err := r.db.exec(ctx, `
		INSERT INTO products (id, name, short_description, description, price, category_id, brand_id, shop_id,
			stock, rating_average, review_count, sold_count, specifications, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			short_description = excluded.short_description,
			description = excluded.description,
			price = excluded.price,
			category_id = excluded.category_id,
			brand_id = excluded.brand_id,
			shop_id = excluded.shop_id,
			stock = excluded.stock,
			rating_average = excluded.rating_average,
			review_count = excluded.review_count,
			sold_count = excluded.sold_count,
			specifications = excluded.specifications,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.ShortDescription, p.Description, p.Price,
		nullString(p.CategoryID), nullInt64(p.BrandID), nullInt64(p.ShopID),
		p.Stock, p.RatingAverage, p.ReviewCount, p.SoldCount, specs,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return persistErr("upsert product", err)
	}
	return nil
}

// UpdatePrice 修改价格
func (r *productRepository) UpdatePrice(ctx context.Context, id int64, price int64) error {
	return r.updateColumn(ctx, "price", id, price)
}

// UpdateStock 修改库存
func (r *productRepository) UpdateStock(ctx context.Context, id int64, stock int) error {
	return r.updateColumn(ctx, "stock", id, stock)
}

func (r *productRepository) updateColumn(ctx context.Context, column string, id int64, value any) error {
	res, err := r.db.exec(ctx,
		fmt.Sprintf(`UPDATE products SET %s = ?, updated_at = ? WHERE id = ?`, column),
		value, toMillis(time.Now()), id,
	)
	if err != nil {
		return persistErr("update product "+column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// Delete 删除商品
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.exec(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return persistErr("delete product", err)
	}
	return nil
}

func queryIDs(ctx context.Context, db *DB, query string, args ...any) ([]int64, error) {
	var ids []int64
	err := db.query(ctx, query, args, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, persistErr("query ids", err)
	}
	return ids, nil
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

var _ catalog.ProductRepository = (*productRepository)(nil)
