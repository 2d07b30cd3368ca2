// Package storage 关系库访问：sqlite（本地/测试）与 postgres（部署），
// 迁移脚本内嵌于二进制，由 golang-migrate 执行
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // 注册 pgx database/sql 驱动
	_ "modernc.org/sqlite"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/infrastructure/config"
)

// Dialect SQL 方言
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// defaultQueryTimeout 单次读写的默认超时
const defaultQueryTimeout = 5 * time.Second

// DB 带方言与超时信息的数据库连接
type DB struct {
	*sql.DB
	dialect Dialect
	timeout time.Duration
}

// Dialect 返回方言
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Open 按配置打开数据库并执行迁移
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	default:
		db, err = OpenSQLite(ctx, cfg.Path)
	}
	if err != nil {
		return nil, err
	}
	if cfg.QueryTimeout > 0 {
		db.timeout = cfg.QueryTimeout
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// OpenSQLite 打开 sqlite 数据库（不执行迁移）
// 外键、WAL 与 busy_timeout 通过 DSN pragma 对每个连接生效
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 单连接串行写入，避免事务升级写锁时的 SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, dialect: DialectSQLite, timeout: defaultQueryTimeout}, nil
}

// openPostgres 通过 pgx 驱动打开 postgres 连接池
func openPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
	return OpenPostgresDSN(ctx, dsn, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
}

// OpenPostgresDSN 使用连接串打开 postgres（不执行迁移）
func OpenPostgresDSN(ctx context.Context, dsn string, maxOpen, maxIdle int, lifetime time.Duration) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, dialect: DialectPostgres, timeout: defaultQueryTimeout}, nil
}

// Rebind 将 ? 占位符转换为当前方言的形式
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withTimeout 为单次读写附加超时
func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// exec 执行写语句
func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return d.ExecContext(ctx, d.Rebind(query), args...)
}

// queryRow 查询单行并扫描
func (d *DB) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return d.QueryRowContext(ctx, d.Rebind(query), args...).Scan(dest...)
}

// query 查询多行，scan 对每一行调用
func (d *DB) query(ctx context.Context, query string, args []any, scan func(rows *sql.Rows) error) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// inTx 在事务中执行 fn，fn 返回错误时回滚
func (d *DB) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// syncSequence postgres 下显式写入 ID 后推进自增序列
func (d *DB) syncSequence(ctx context.Context, table string) error {
	if d.dialect != DialectPostgres {
		return nil
	}
	q := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM %s), 1))",
		table, table,
	)
	_, err := d.exec(ctx, q)
	return err
}

// persistErr 统一标记持久化错误
func persistErr(op string, err error) error {
	return apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to %s: %w", op, err))
}

// isNoRows 是否为查询无结果
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation 是否为唯一约束冲突（sqlite 与 postgres）
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: PRIMARY KEY")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullInt64Ptr(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// placeholders 生成 n 个 ? 占位符
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
