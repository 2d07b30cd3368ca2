package embedding

import (
	"context"

	"github.com/google/wire"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// ProviderSet 向量化网关 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideGateway,
	wire.Bind(new(Embedder), new(*Gateway)),
)

// ProvideGateway 创建网关；配置了 Redis 时启用查询向量缓存，Redis 不可用时降级为无缓存
func ProvideGateway(cfg *config.EmbeddingConfig, redisCfg *config.RedisConfig) (*Gateway, func(), error) {
	cleanup := func() {}
	var opts []Option

	if redisCfg.Addr != "" {
		cache, closeCache, err := NewRedisCache(context.Background(), redisCfg.Addr, redisCfg.Password, redisCfg.DB, redisCfg.TTL)
		if err != nil {
			log.NewModuleLogger("embedding", "wire").Warn("Redis unavailable, embedding cache disabled",
				"addr", redisCfg.Addr,
				"error", err,
			)
		} else {
			opts = append(opts, WithCache(cache))
			cleanup = closeCache
		}
	}

	return NewGateway(cfg, opts...), cleanup, nil
}
