package vector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// MemoryIndex 进程内向量索引，线性扫描计算余弦相似度
// 用于本地开发与测试
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	logger      *slog.Logger
}

type memoryCollection struct {
	dim    int
	points map[uint64]Point
}

// NewMemoryIndex 创建内存索引
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		collections: make(map[string]*memoryCollection),
		logger:      log.NewModuleLogger("vector", "memory"),
	}
}

// Close 实现 Index
func (m *MemoryIndex) Close() error {
	return nil
}

// EnsureCollection 确保集合存在
func (m *MemoryIndex) EnsureCollection(_ context.Context, name string, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; !ok {
		m.collections[name] = &memoryCollection{dim: dim, points: make(map[uint64]Point)}
	}
	return nil
}

// Upsert 写入向量点
func (m *MemoryIndex) Upsert(ctx context.Context, collection string, points ...Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if c.dim > 0 && len(p.Vector) != c.dim {
			return apperr.Wrap(apperr.ErrInvalidInput, fmt.Errorf("vector of point %s has dimension %d, collection %s expects %d", p.ID, len(p.Vector), collection, c.dim))
		}
		num := PointNum(p.ID)
		// 与 Qdrant 一致，碰撞时后写覆盖
		if existing, ok := c.points[num]; ok && existing.ID != p.ID {
			m.logger.Warn("Point id collision, overwriting",
				"collection", collection,
				"point_num", num,
				"stored", existing.ID,
				"incoming", p.ID,
			)
		}
		c.points[num] = Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: withOriginalID(p.ID, p.Payload),
		}
	}
	return nil
}

// Delete 删除向量点
func (m *MemoryIndex) Delete(_ context.Context, collection string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		num := PointNum(id)
		if p, ok := c.points[num]; ok && p.ID == id {
			delete(c.points, num)
		}
	}
	return nil
}

// Search 近邻查询
func (m *MemoryIndex) Search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if !matchFilter(p.Payload, opts.Filter) {
			continue
		}
		score := cosine(vector, p.Vector)
		if opts.Threshold != nil && score < *opts.Threshold {
			continue
		}
		results = append(results, SearchResult{
			ID:      p.ID,
			Score:   score,
			Payload: copyPayload(p.Payload),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Retrieve 按 ID 读取
func (m *MemoryIndex) Retrieve(_ context.Context, collection, id string) (*Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	p, ok := c.points[PointNum(id)]
	if !ok || p.ID != id {
		return nil, nil
	}
	return &Point{
		ID:      p.ID,
		Vector:  append([]float32(nil), p.Vector...),
		Payload: copyPayload(p.Payload),
	}, nil
}

// ListIDs 列出全部 ID，按字典序
func (m *MemoryIndex) ListIDs(_ context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(c.points))
	for _, p := range c.points {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// collection 调用方需持有锁
func (m *MemoryIndex) collection(name string) (*memoryCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, fmt.Errorf("collection %s does not exist", name))
	}
	return c, nil
}

// copyPayload 复制载荷，去掉内部使用的原始 ID
func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == PayloadOriginalID {
			continue
		}
		out[k] = v
	}
	return out
}

func matchFilter(payload, filter map[string]any) bool {
	for field, want := range filter {
		got, ok := payload[field]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// cosine 余弦相似度，零向量得分为 0
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ Index = (*MemoryIndex)(nil)
