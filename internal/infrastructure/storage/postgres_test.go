package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
)

// setupPostgresDB 启动 postgres 容器并执行迁移，-short 模式下跳过
func setupPostgresDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shopmind"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := OpenPostgresDSN(ctx, dsn, 5, 2, time.Minute)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgres_ChatAndCatalog(t *testing.T) {
	db := setupPostgresDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	products := NewProductRepository(db)
	found, err := products.FindByName(ctx, "galaxy", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Samsung", found[0].BrandName)

	// 显式 ID 写入后自增序列仍可用
	faqs := NewFAQRepository(db)
	require.NoError(t, faqs.Upsert(ctx, &catalog.FAQ{ID: 5, Question: "q", Answer: "a"}))
	f := &catalog.FAQ{Question: "q2", Answer: "a2"}
	require.NoError(t, faqs.Upsert(ctx, f))
	assert.Greater(t, f.ID, int64(5))

	chats := NewChatRepository(db)
	shopID := int64(1)
	c := &chat.Chat{ShopID: &shopID}
	require.NoError(t, chats.Create(ctx, c))
	for i := 0; i < 3; i++ {
		require.NoError(t, chats.AppendMessage(ctx, &chat.Message{
			ChatID: c.ID, SenderKind: chat.SenderShop, SenderID: "1", Content: "doanh thu tuần này?",
		}))
	}
	history, err := chats.History(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[2].CreatedAt.After(history[1].CreatedAt))

	coupons := NewCouponRepository(db)
	require.NoError(t, coupons.Create(ctx, &catalog.Coupon{ShopID: 1, Code: "A", DiscountPercent: 5, ExpiresAt: time.Now().Add(time.Hour)}))
	assert.ErrorIs(t, coupons.Create(ctx, &catalog.Coupon{ShopID: 1, Code: "a", DiscountPercent: 5, ExpiresAt: time.Now().Add(time.Hour)}),
		catalog.ErrCouponExists)
}
