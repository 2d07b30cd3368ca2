// Package vector 向量索引：集合管理、写入、删除、近邻查询与按 ID 读取
package vector

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"strconv"
)

// 物理集合名称
const (
	CollectionProducts   = "product_embeddings"
	CollectionCategories = "category_embeddings"
	CollectionFAQs       = "faq_embeddings"
	CollectionReviews    = "review_embeddings"
	CollectionChats      = "chat_embeddings"
	CollectionSearchLogs = "search_log_embeddings"
)

// Collections 全部集合
var Collections = []string{
	CollectionProducts,
	CollectionCategories,
	CollectionFAQs,
	CollectionReviews,
	CollectionChats,
	CollectionSearchLogs,
}

// PayloadOriginalID 载荷中保存实体原始 ID 的键
const PayloadOriginalID = "original_id"

// Point 向量点
type Point struct {
	// ID 实体 ID 的字符串形式，数字 ID 原样使用，复合 ID 写入时哈希
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchResult 查询结果
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SearchOptions 查询选项
type SearchOptions struct {
	// Threshold 非 nil 时丢弃得分低于阈值的结果
	Threshold *float32
	// Filter 载荷字段精确匹配，值支持 string、int、int64、bool
	Filter map[string]any
}

// Threshold 便于构造 SearchOptions.Threshold
func Threshold(v float32) *float32 {
	return &v
}

// Index 向量索引
type Index interface {
	// EnsureCollection 创建余弦距离集合，已存在时不做任何事
	EnsureCollection(ctx context.Context, name string, dim int) error
	// Upsert 写入向量点，同 ID 覆盖向量与载荷
	Upsert(ctx context.Context, collection string, points ...Point) error
	// Delete 删除向量点，未知 ID 不报错
	Delete(ctx context.Context, collection string, ids ...string) error
	// Search 近邻查询，按得分降序，k <= 0 返回空结果
	Search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]SearchResult, error)
	// Retrieve 按 ID 读取，不存在返回 nil, nil
	Retrieve(ctx context.Context, collection, id string) (*Point, error)
	// ListIDs 列出集合中全部实体 ID（原始形式）
	ListIDs(ctx context.Context, collection string) ([]string, error)
	Close() error
}

// PointNum 将实体 ID 映射为向量库的整数 ID
// 非负整数 ID 原样使用；其他 ID（如分类路径）取 MD5 摘要的低 31 位
func PointNum(id string) uint64 {
	if n, err := strconv.ParseUint(id, 10, 63); err == nil {
		return n
	}
	sum := md5.Sum([]byte(id))
	return uint64(binary.BigEndian.Uint32(sum[12:]) & 0x7fffffff)
}

// withOriginalID 复制载荷并写入原始 ID
func withOriginalID(id string, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out[PayloadOriginalID] = id
	return out
}

// originalID 从载荷恢复原始 ID，缺失时使用整数 ID
func originalID(num uint64, payload map[string]any) string {
	if s, ok := payload[PayloadOriginalID].(string); ok && s != "" {
		return s
	}
	return strconv.FormatUint(num, 10)
}
