package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shopmind/backend/internal/infrastructure/log"
)

// Cache 查询向量缓存
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// noopCache 未配置 Redis 时的空缓存
type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]float32, bool) { return nil, false }
func (noopCache) Set(context.Context, string, []float32)        {}

// redisCache 基于 Redis 的向量缓存，向量以小端 float32 序列存储
type redisCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache 创建 Redis 缓存并检查连通性
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (Cache, func(), error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &redisCache{rdb: rdb, ttl: ttl, logger: log.NewModuleLogger("embedding", "cache")}, func() { _ = rdb.Close() }, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Debug("Embedding cache read failed", "error", err)
		}
		return nil, false
	}
	vec, ok := decodeVector(data)
	return vec, ok
}

func (c *redisCache) Set(ctx context.Context, key string, vec []float32) {
	if err := c.rdb.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.Debug("Embedding cache write failed", "error", err)
	}
}

// cacheKey 缓存键：模型 + 维度 + 文本摘要
func cacheKey(model string, dim int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("shopmind:emb:%s:%d:%s", model, dim, hex.EncodeToString(sum[:]))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, bool) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true
}
