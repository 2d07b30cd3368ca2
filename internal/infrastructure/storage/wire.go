package storage

import (
	"context"

	"github.com/google/wire"

	"github.com/shopmind/backend/internal/infrastructure/config"
)

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,              // 提供数据库连接（含迁移）
	NewChatRepository,      // 会话与消息仓储
	NewProductRepository,   // 商品仓储
	NewCategoryRepository,  // 分类仓储
	NewBrandRepository,     // 品牌仓储
	NewShopRepository,      // 店铺仓储
	NewCustomerRepository,  // 顾客仓储
	NewFAQRepository,       // FAQ 仓储
	NewReviewRepository,    // 评价仓储
	NewOrderRepository,     // 订单仓储
	NewCouponRepository,    // 优惠券仓储
	NewSearchLogRepository, // 搜索记录仓储
)

// ProvideDB 打开数据库并返回清理函数
func ProvideDB(cfg *config.DatabaseConfig) (*DB, func(), error) {
	db, err := Open(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}
