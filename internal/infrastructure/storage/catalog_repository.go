package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopmind/backend/internal/domain/catalog"
)

// categoryRepository 分类仓储实现
type categoryRepository struct {
	db *DB
}

// NewCategoryRepository 创建分类仓储实例
func NewCategoryRepository(db *DB) catalog.CategoryRepository {
	return &categoryRepository{db: db}
}

// Get 获取分类
func (r *categoryRepository) Get(ctx context.Context, id string) (*catalog.Category, error) {
	var (
		c        catalog.Category
		parentID sql.NullString
	)
	err := r.db.queryRow(ctx, `SELECT id, name, parent_id, description FROM categories WHERE id = ?`,
		[]any{id}, &c.ID, &c.Name, &parentID, &c.Description)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query category", err)
	}
	c.ParentID = parentID.String
	return &c, nil
}

// List 全部分类
func (r *categoryRepository) List(ctx context.Context) ([]*catalog.Category, error) {
	var categories []*catalog.Category
	err := r.db.query(ctx, `SELECT id, name, parent_id, description FROM categories ORDER BY id`, nil,
		func(rows *sql.Rows) error {
			var (
				c        catalog.Category
				parentID sql.NullString
			)
			if err := rows.Scan(&c.ID, &c.Name, &parentID, &c.Description); err != nil {
				return err
			}
			c.ParentID = parentID.String
			categories = append(categories, &c)
			return nil
		})
	if err != nil {
		return nil, persistErr("list categories", err)
	}
	return categories, nil
}

// Upsert 新增或更新分类
func (r *categoryRepository) Upsert(ctx context.Context, c *catalog.Category) error {
	_, err := r.db.exec(ctx, `
		INSERT INTO categories (id, name, parent_id, description) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id, description = excluded.description`,
		c.ID, c.Name, nullString(c.ParentID), c.Description)
	if err != nil {
		return persistErr("upsert category", err)
	}
	return nil
}

// brandRepository 品牌仓储实现
type brandRepository struct {
	db *DB
}

// NewBrandRepository 创建品牌仓储实例
func NewBrandRepository(db *DB) catalog.BrandRepository {
	return &brandRepository{db: db}
}

// Get 获取品牌
func (r *brandRepository) Get(ctx context.Context, id int64) (*catalog.Brand, error) {
	var b catalog.Brand
	err := r.db.queryRow(ctx, `SELECT id, name, description FROM brands WHERE id = ?`,
		[]any{id}, &b.ID, &b.Name, &b.Description)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query brand", err)
	}
	return &b, nil
}

// List 全部品牌
func (r *brandRepository) List(ctx context.Context) ([]*catalog.Brand, error) {
	var brands []*catalog.Brand
	err := r.db.query(ctx, `SELECT id, name, description FROM brands ORDER BY name`, nil,
		func(rows *sql.Rows) error {
			var b catalog.Brand
			if err := rows.Scan(&b.ID, &b.Name, &b.Description); err != nil {
				return err
			}
			brands = append(brands, &b)
			return nil
		})
	if err != nil {
		return nil, persistErr("list brands", err)
	}
	return brands, nil
}

// Upsert 新增或更新品牌
func (r *brandRepository) Upsert(ctx context.Context, b *catalog.Brand) error {
	_, err := r.db.exec(ctx, `
		INSERT INTO brands (id, name, description) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		b.ID, b.Name, b.Description)
	if err != nil {
		return persistErr("upsert brand", err)
	}
	return nil
}

// shopRepository 店铺仓储实现
type shopRepository struct {
	db *DB
}

// NewShopRepository 创建店铺仓储实例
func NewShopRepository(db *DB) catalog.ShopRepository {
	return &shopRepository{db: db}
}

// Get 获取店铺
func (r *shopRepository) Get(ctx context.Context, id int64) (*catalog.Shop, error) {
	var (
		s         catalog.Shop
		createdAt int64
	)
	err := r.db.queryRow(ctx, `SELECT id, name, description, created_at FROM shops WHERE id = ?`,
		[]any{id}, &s.ID, &s.Name, &s.Description, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query shop", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

// Upsert 新增或更新店铺
func (r *shopRepository) Upsert(ctx context.Context, s *catalog.Shop) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.db.exec(ctx, `
		INSERT INTO shops (id, name, description, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		s.ID, s.Name, s.Description, toMillis(s.CreatedAt))
	if err != nil {
		return persistErr("upsert shop", err)
	}
	return nil
}

var (
	_ catalog.CategoryRepository = (*categoryRepository)(nil)
	_ catalog.BrandRepository    = (*brandRepository)(nil)
	_ catalog.ShopRepository     = (*shopRepository)(nil)
)
