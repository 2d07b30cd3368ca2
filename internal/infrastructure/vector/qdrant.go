package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// scrollPageSize ListIDs 每页拉取数量
const scrollPageSize = 256

// QdrantIndex 基于 Qdrant gRPC 的向量索引
type QdrantIndex struct {
	client  *qdrant.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewQdrantIndex 连接 Qdrant
func NewQdrantIndex(host string, port int, timeout time.Duration) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("failed to create qdrant client: %w", err))
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &QdrantIndex{
		client:  client,
		timeout: timeout,
		logger:  log.NewModuleLogger("vector", "qdrant"),
	}, nil
}

// Close 关闭连接
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// EnsureCollection 确保集合存在
func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string, dim int) error {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return q.fail("check collection", name, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return q.fail("create collection", name, err)
	}
	q.logger.Info("Collection created", "collection", name, "dimension", dim)
	return nil
}

// Upsert 写入向量点
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points ...Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(withOriginalID(p.ID, p.Payload))
		if err != nil {
			return apperr.Wrap(apperr.ErrInvalidInput, fmt.Errorf("failed to convert payload of point %s: %w", p.ID, err))
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(PointNum(p.ID)),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: payload,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return q.fail("upsert points", collection, err)
	}
	return nil
}

// Delete 删除向量点
func (q *QdrantIndex) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         deleteSelector(ids),
	})
	if err != nil {
		return q.fail("delete points", collection, err)
	}
	return nil
}

// Search 近邻查询
func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}

	filter, err := buildFilter(opts.Filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         filter,
		ScoreThreshold: opts.Threshold,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, q.fail("query points", collection, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		payload := payloadFromValues(p.GetPayload())
		results = append(results, SearchResult{
			ID:      originalID(p.GetId().GetNum(), payload),
			Score:   p.GetScore(),
			Payload: stripOriginalID(payload),
		})
	}
	return results, nil
}

// Retrieve 按 ID 读取向量与载荷
func (q *QdrantIndex) Retrieve(ctx context.Context, collection, id string) (*Point, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(PointNum(id))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, q.fail("get point", collection, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	p := points[0]
	payload := payloadFromValues(p.GetPayload())
	// 哈希碰撞时视为不存在
	if got := originalID(p.GetId().GetNum(), payload); got != id {
		q.logger.Warn("Point id collision",
			"collection", collection,
			"requested", id,
			"stored", got,
		)
		return nil, nil
	}

	var vec []float32
	if dense := p.GetVectors().GetVector().GetDenseVector(); dense != nil {
		vec = dense.GetData()
	}
	if len(vec) == 0 {
		return nil, apperr.Wrap(apperr.ErrInvalidResponse, fmt.Errorf("point %s in %s has no dense vector", id, collection))
	}

	return &Point{
		ID:      id,
		Vector:  vec,
		Payload: stripOriginalID(payload),
	}, nil
}

// ListIDs 滚动遍历集合，返回全部原始 ID
func (q *QdrantIndex) ListIDs(ctx context.Context, collection string) ([]string, error) {
	var (
		ids    []string
		offset *qdrant.PointId
	)
	for {
		page, next, err := q.scroll(ctx, collection, offset)
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			ids = append(ids, originalID(p.GetId().GetNum(), payloadFromValues(p.GetPayload())))
		}
		if next == nil || len(page) == 0 {
			return ids, nil
		}
		offset = next
	}
}

func (q *QdrantIndex) scroll(ctx context.Context, collection string, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	page, next, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Offset:         offset,
		Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload:    qdrant.NewWithPayloadInclude(PayloadOriginalID),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, nil, q.fail("scroll points", collection, err)
	}
	return page, next, nil
}

func (q *QdrantIndex) fail(op, collection string, err error) error {
	q.logger.Error("Qdrant request failed",
		"operation", op,
		"collection", collection,
		"error", err,
	)
	return apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("failed to %s in %s: %w", op, collection, err))
}

// buildFilter 将精确匹配条件转换为 Qdrant 过滤器
func buildFilter(conditions map[string]any) (*qdrant.Filter, error) {
	if len(conditions) == 0 {
		return nil, nil
	}
	must := make([]*qdrant.Condition, 0, len(conditions))
	for field, value := range conditions {
		switch v := value.(type) {
		case string:
			must = append(must, qdrant.NewMatchKeyword(field, v))
		case int:
			must = append(must, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			must = append(must, qdrant.NewMatchInt(field, v))
		case bool:
			must = append(must, qdrant.NewMatchBool(field, v))
		default:
			return nil, fmt.Errorf("unsupported filter value type %T for field %s", value, field)
		}
	}
	return &qdrant.Filter{Must: must}, nil
}

// deleteSelector 按整数 ID 定位，同时要求原始 ID 一致，哈希碰撞的其他实体不会被误删
func deleteSelector(ids []string) *qdrant.PointsSelector {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDNum(PointNum(id)))
	}
	return qdrant.NewPointsSelectorFilter(&qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewHasID(pointIDs...),
			qdrant.NewMatchKeywords(PayloadOriginalID, ids...),
		},
	})
}

// payloadFromValues 将 Qdrant Value 转回 Go 值
func payloadFromValues(values map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return payloadFromValues(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, fromValue(item))
		}
		return out
	default:
		return nil
	}
}

func stripOriginalID(payload map[string]any) map[string]any {
	delete(payload, PayloadOriginalID)
	return payload
}

var _ Index = (*QdrantIndex)(nil)
