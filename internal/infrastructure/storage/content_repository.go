package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopmind/backend/internal/domain/catalog"
)

// faqRepository FAQ 仓储实现
type faqRepository struct {
	db *DB
}

// NewFAQRepository 创建 FAQ 仓储实例
func NewFAQRepository(db *DB) catalog.FAQRepository {
	return &faqRepository{db: db}
}

func scanFAQ(scan func(dest ...any) error) (*catalog.FAQ, error) {
	var (
		f      catalog.FAQ
		shopID sql.NullInt64
	)
	if err := scan(&f.ID, &f.Question, &f.Answer, &f.Category, &shopID); err != nil {
		return nil, err
	}
	f.ShopID = int64Ptr(shopID)
	return &f, nil
}

// Get 获取 FAQ
func (r *faqRepository) Get(ctx context.Context, id int64) (*catalog.FAQ, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, r.db.Rebind(
		`SELECT id, question, answer, category, shop_id FROM faqs WHERE id = ?`), id)
	f, err := scanFAQ(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query faq", err)
	}
	return f, nil
}

// List 全部 FAQ
func (r *faqRepository) List(ctx context.Context) ([]*catalog.FAQ, error) {
	var faqs []*catalog.FAQ
	err := r.db.query(ctx, `SELECT id, question, answer, category, shop_id FROM faqs ORDER BY id`, nil,
		func(rows *sql.Rows) error {
			f, err := scanFAQ(rows.Scan)
			if err != nil {
				return err
			}
			faqs = append(faqs, f)
			return nil
		})
	if err != nil {
		return nil, persistErr("list faqs", err)
	}
	return faqs, nil
}

// Upsert 新增或更新 FAQ，ID 为 0 时自动分配
func (r *faqRepository) Upsert(ctx context.Context, f *catalog.FAQ) error {
	if f.ID == 0 {
		err := r.db.queryRow(ctx, `
			INSERT INTO faqs (question, answer, category, shop_id) VALUES (?, ?, ?, ?) RETURNING id`,
			[]any{f.Question, f.Answer, f.Category, nullInt64Ptr(f.ShopID)}, &f.ID)
		if err != nil {
			return persistErr("insert faq", err)
		}
		return nil
	}

	_, err := r.db.exec(ctx, `
		INSERT INTO faqs (id, question, answer, category, shop_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			question = excluded.question, answer = excluded.answer,
			category = excluded.category, shop_id = excluded.shop_id`,
		f.ID, f.Question, f.Answer, f.Category, nullInt64Ptr(f.ShopID))
	if err != nil {
		return persistErr("upsert faq", err)
	}
	return r.db.syncSequence(ctx, "faqs")
}

// reviewRepository 评价仓储实现
type reviewRepository struct {
	db *DB
}

// NewReviewRepository 创建评价仓储实例
func NewReviewRepository(db *DB) catalog.ReviewRepository {
	return &reviewRepository{db: db}
}

const reviewColumns = `id, product_id, customer_id, rating, comment, created_at`

func scanReview(scan func(dest ...any) error) (*catalog.Review, error) {
	var (
		rv        catalog.Review
		createdAt int64
	)
	if err := scan(&rv.ID, &rv.ProductID, &rv.CustomerID, &rv.Rating, &rv.Comment, &createdAt); err != nil {
		return nil, err
	}
	rv.CreatedAt = fromMillis(createdAt)
	return &rv, nil
}

func (r *reviewRepository) list(ctx context.Context, query string, args ...any) ([]*catalog.Review, error) {
	var reviews []*catalog.Review
	err := r.db.query(ctx, query, args, func(rows *sql.Rows) error {
		rv, err := scanReview(rows.Scan)
		if err != nil {
			return err
		}
		reviews = append(reviews, rv)
		return nil
	})
	if err != nil {
		return nil, persistErr("list reviews", err)
	}
	return reviews, nil
}

// Get 获取评价
func (r *reviewRepository) Get(ctx context.Context, id int64) (*catalog.Review, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+reviewColumns+` FROM reviews WHERE id = ?`), id)
	rv, err := scanReview(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query review", err)
	}
	return rv, nil
}

// ListByProduct 商品的最新评价
func (r *reviewRepository) ListByProduct(ctx context.Context, productID int64, limit int) ([]*catalog.Review, error) {
	return r.list(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE product_id = ? ORDER BY created_at DESC LIMIT ?`,
		productID, limitOrDefault(limit, 10))
}

// List 全部评价
func (r *reviewRepository) List(ctx context.Context) ([]*catalog.Review, error) {
	return r.list(ctx, `SELECT `+reviewColumns+` FROM reviews ORDER BY id`)
}

// Create 新增评价并刷新商品评分
func (r *reviewRepository) Create(ctx context.Context, rv *catalog.Review) error {
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = time.Now()
	}
	return r.db.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, r.db.Rebind(`
			INSERT INTO reviews (product_id, customer_id, rating, comment, created_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id`),
			rv.ProductID, rv.CustomerID, rv.Rating, rv.Comment, toMillis(rv.CreatedAt),
		).Scan(&rv.ID); err != nil {
			return persistErr("insert review", err)
		}
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`
			UPDATE products SET
				review_count = (SELECT COUNT(*) FROM reviews WHERE product_id = ?),
				rating_average = (SELECT AVG(rating) FROM reviews WHERE product_id = ?)
			WHERE id = ?`),
			rv.ProductID, rv.ProductID, rv.ProductID,
		); err != nil {
			return persistErr("refresh product rating", err)
		}
		return nil
	})
}

// searchLogRepository 搜索记录仓储实现
type searchLogRepository struct {
	db *DB
}

// NewSearchLogRepository 创建搜索记录仓储实例
func NewSearchLogRepository(db *DB) catalog.SearchLogRepository {
	return &searchLogRepository{db: db}
}

func scanSearchLog(scan func(dest ...any) error) (*catalog.SearchLog, error) {
	var (
		l          catalog.SearchLog
		customerID sql.NullInt64
		createdAt  int64
	)
	if err := scan(&l.ID, &customerID, &l.Query, &createdAt); err != nil {
		return nil, err
	}
	l.CustomerID = int64Ptr(customerID)
	l.CreatedAt = fromMillis(createdAt)
	return &l, nil
}

// Create 记录一次搜索
func (r *searchLogRepository) Create(ctx context.Context, l *catalog.SearchLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	err := r.db.queryRow(ctx,
		`INSERT INTO search_logs (customer_id, query, created_at) VALUES (?, ?, ?) RETURNING id`,
		[]any{nullInt64Ptr(l.CustomerID), l.Query, toMillis(l.CreatedAt)}, &l.ID)
	if err != nil {
		return persistErr("insert search log", err)
	}
	return nil
}

// Get 获取搜索记录
func (r *searchLogRepository) Get(ctx context.Context, id int64) (*catalog.SearchLog, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, r.db.Rebind(
		`SELECT id, customer_id, query, created_at FROM search_logs WHERE id = ?`), id)
	l, err := scanSearchLog(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, persistErr("query search log", err)
	}
	return l, nil
}

// List 最近的搜索记录
func (r *searchLogRepository) List(ctx context.Context, limit int) ([]*catalog.SearchLog, error) {
	var logs []*catalog.SearchLog
	err := r.db.query(ctx,
		`SELECT id, customer_id, query, created_at FROM search_logs ORDER BY id DESC LIMIT ?`,
		[]any{limitOrDefault(limit, 1000)},
		func(rows *sql.Rows) error {
			l, err := scanSearchLog(rows.Scan)
			if err != nil {
				return err
			}
			logs = append(logs, l)
			return nil
		})
	if err != nil {
		return nil, persistErr("list search logs", err)
	}
	return logs, nil
}

var (
	_ catalog.FAQRepository       = (*faqRepository)(nil)
	_ catalog.ReviewRepository    = (*reviewRepository)(nil)
	_ catalog.SearchLogRepository = (*searchLogRepository)(nil)
)
