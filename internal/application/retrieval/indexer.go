package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/infrastructure/embedding"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

const (
	// indexBatchSize 每批向量化的文档数
	indexBatchSize = 32
	// productPageSize 单次按 ID 批量读取的商品数
	productPageSize = 500
	// maxIndexedChats 重建索引时读取的已关闭会话上限
	maxIndexedChats = 10000
	// maxIndexedSearchLogs 重建索引时读取的搜索记录上限
	maxIndexedSearchLogs = 5000
	// eventTimeout 单个事件的处理时限
	eventTimeout = 30 * time.Second
)

// AllKinds 全部可向量化的实体类型
var AllKinds = []events.EntityKind{
	events.EntityProduct,
	events.EntityCategory,
	events.EntityFAQ,
	events.EntityReview,
	events.EntityChat,
	events.EntitySearchLog,
}

// CollectionFor 实体类型对应的集合
func CollectionFor(kind events.EntityKind) (string, error) {
	switch kind {
	case events.EntityProduct:
		return vector.CollectionProducts, nil
	case events.EntityCategory:
		return vector.CollectionCategories, nil
	case events.EntityFAQ:
		return vector.CollectionFAQs, nil
	case events.EntityReview:
		return vector.CollectionReviews, nil
	case events.EntityChat:
		return vector.CollectionChats, nil
	case events.EntitySearchLog:
		return vector.CollectionSearchLogs, nil
	}
	return "", apperr.NewValidationError("kind", fmt.Sprintf("unknown entity kind %q", kind))
}

// IndexStats 单个集合的同步结果
type IndexStats struct {
	Kind       events.EntityKind `json:"kind"`
	Collection string            `json:"collection"`
	Indexed    int               `json:"indexed"`
	Deleted    int               `json:"deleted"`
}

// Repositories 索引器读取的仓储
type Repositories struct {
	Products   catalog.ProductRepository
	Categories catalog.CategoryRepository
	FAQs       catalog.FAQRepository
	Reviews    catalog.ReviewRepository
	SearchLogs catalog.SearchLogRepository
	Chats      chat.Repository
}

// Indexer 实体到向量索引的同步：单条写入、全量重建与对账
type Indexer struct {
	embedder embedding.Embedder
	index    vector.Index
	repos    Repositories
	logger   *slog.Logger
}

// NewIndexer 创建索引器
func NewIndexer(embedder embedding.Embedder, index vector.Index, repos Repositories) *Indexer {
	return &Indexer{
		embedder: embedder,
		index:    index,
		repos:    repos,
		logger:   log.NewModuleLogger("retrieval", "indexer"),
	}
}

// EnsureCollections 创建全部集合（幂等）
func (x *Indexer) EnsureCollections(ctx context.Context) error {
	for _, name := range vector.Collections {
		if err := x.index.EnsureCollection(ctx, name, x.embedder.Dimension()); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
	}
	return nil
}

// IndexEntity 从关系库读取实体并写入索引；实体已不存在时删除对应向量点
func (x *Indexer) IndexEntity(ctx context.Context, kind events.EntityKind, id string) error {
	points, err := x.load(ctx, kind, []string{id})
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return x.DeleteEntity(ctx, kind, id)
	}
	_, err = x.write(ctx, kind, points)
	return err
}

// DeleteEntity 删除向量点（幂等）
func (x *Indexer) DeleteEntity(ctx context.Context, kind events.EntityKind, id string) error {
	collection, err := CollectionFor(kind)
	if err != nil {
		return err
	}
	if err := x.index.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("failed to delete %s %s from index: %w", kind, id, err)
	}
	return nil
}

// Reindex 全量重写指定类型（为空表示全部）的向量点
func (x *Indexer) Reindex(ctx context.Context, kinds ...events.EntityKind) ([]IndexStats, error) {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	if err := x.EnsureCollections(ctx); err != nil {
		return nil, err
	}

	stats := make([]IndexStats, 0, len(kinds))
	for _, kind := range kinds {
		collection, err := CollectionFor(kind)
		if err != nil {
			return stats, err
		}
		ids, err := x.storeIDs(ctx, kind)
		if err != nil {
			return stats, err
		}
		points, err := x.load(ctx, kind, ids)
		if err != nil {
			return stats, err
		}
		n, err := x.write(ctx, kind, points)
		if err != nil {
			return stats, err
		}
		x.logger.Info("Reindexed collection", "kind", kind, "collection", collection, "points", n)
		stats = append(stats, IndexStats{Kind: kind, Collection: collection, Indexed: n})
	}
	return stats, nil
}

// Reconcile 对账：关系库有而索引缺失的重新向量化，索引有而关系库已删除的清理
func (x *Indexer) Reconcile(ctx context.Context, kinds ...events.EntityKind) ([]IndexStats, error) {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	if err := x.EnsureCollections(ctx); err != nil {
		return nil, err
	}

	stats := make([]IndexStats, 0, len(kinds))
	for _, kind := range kinds {
		collection, err := CollectionFor(kind)
		if err != nil {
			return stats, err
		}

		storeIDs, err := x.storeIDs(ctx, kind)
		if err != nil {
			return stats, err
		}
		indexIDs, err := x.index.ListIDs(ctx, collection)
		if err != nil {
			return stats, fmt.Errorf("failed to list %s ids: %w", collection, err)
		}

		inStore := make(map[string]struct{}, len(storeIDs))
		for _, id := range storeIDs {
			inStore[id] = struct{}{}
		}
		inIndex := make(map[string]struct{}, len(indexIDs))
		var stale []string
		for _, id := range indexIDs {
			inIndex[id] = struct{}{}
			if _, ok := inStore[id]; !ok {
				stale = append(stale, id)
			}
		}
		var missing []string
		for _, id := range storeIDs {
			if _, ok := inIndex[id]; !ok {
				missing = append(missing, id)
			}
		}

		st := IndexStats{Kind: kind, Collection: collection}
		if len(stale) > 0 {
			if err := x.index.Delete(ctx, collection, stale...); err != nil {
				return stats, fmt.Errorf("failed to delete stale points from %s: %w", collection, err)
			}
			st.Deleted = len(stale)
		}
		if len(missing) > 0 {
			points, err := x.load(ctx, kind, missing)
			if err != nil {
				return stats, err
			}
			if st.Indexed, err = x.write(ctx, kind, points); err != nil {
				return stats, err
			}
		}

		if st.Indexed > 0 || st.Deleted > 0 {
			x.logger.Info("Reconciled collection",
				"collection", collection,
				"indexed", st.Indexed,
				"deleted", st.Deleted,
			)
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// Subscribe 订阅实体变更与会话关闭事件
func (x *Indexer) Subscribe(bus events.Subscriber) func() {
	return bus.SubscribeMultiple([]events.EventType{
		events.EntityUpserted,
		events.EntityDeleted,
		events.ChatClosed,
	}, x)
}

// HandleEvent 实现 events.Handler
func (x *Indexer) HandleEvent(event events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var err error
	switch e := event.(type) {
	case *events.EntityEvent:
		if e.EventType == events.EntityDeleted {
			err = x.DeleteEntity(ctx, e.Kind, e.ID)
		} else {
			err = x.IndexEntity(ctx, e.Kind, e.ID)
		}
	case *events.ChatClosedEvent:
		err = x.IndexEntity(ctx, events.EntityChat, e.ChatID)
	default:
		return nil
	}
	if err != nil {
		x.logger.Warn("Failed to sync index from event",
			"event", event.Type(),
			"error", err,
		)
	}
	return err
}

// write 批量向量化并写入
func (x *Indexer) write(ctx context.Context, kind events.EntityKind, points []vector.Point) (int, error) {
	collection, err := CollectionFor(kind)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(points); start += indexBatchSize {
		end := min(start+indexBatchSize, len(points))
		batch := points[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i], _ = p.Payload[vector.PayloadTextContent].(string)
		}
		vectors, err := x.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return start, fmt.Errorf("failed to embed %s batch: %w", kind, err)
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}
		if err := x.index.Upsert(ctx, collection, batch...); err != nil {
			return start, fmt.Errorf("failed to upsert %s batch: %w", kind, err)
		}
	}
	return len(points), nil
}

// storeIDs 关系库中应被索引的实体 ID
func (x *Indexer) storeIDs(ctx context.Context, kind events.EntityKind) ([]string, error) {
	var ids []string
	switch kind {
	case events.EntityProduct:
		nums, err := x.repos.Products.IDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range nums {
			ids = append(ids, strconv.FormatInt(n, 10))
		}
	case events.EntityCategory:
		cats, err := x.repos.Categories.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range cats {
			ids = append(ids, c.ID)
		}
	case events.EntityFAQ:
		faqs, err := x.repos.FAQs.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range faqs {
			ids = append(ids, strconv.FormatInt(f.ID, 10))
		}
	case events.EntityReview:
		reviews, err := x.repos.Reviews.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range reviews {
			ids = append(ids, strconv.FormatInt(r.ID, 10))
		}
	case events.EntityChat:
		summaries, err := x.repos.Chats.List(ctx, chat.ListFilter{Status: chat.StatusClosed, Limit: maxIndexedChats})
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			ids = append(ids, s.Chat.ID)
		}
	case events.EntitySearchLog:
		logs, err := x.repos.SearchLogs.List(ctx, maxIndexedSearchLogs)
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			ids = append(ids, strconv.FormatInt(l.ID, 10))
		}
	default:
		return nil, apperr.NewValidationError("kind", fmt.Sprintf("unknown entity kind %q", kind))
	}
	return ids, nil
}

// load 读取实体并构造向量点，不存在的实体被跳过
func (x *Indexer) load(ctx context.Context, kind events.EntityKind, ids []string) ([]vector.Point, error) {
	points := make([]vector.Point, 0, len(ids))
	switch kind {
	case events.EntityProduct:
		nums, err := parseIDs(ids)
		if err != nil {
			return nil, err
		}
		for start := 0; start < len(nums); start += productPageSize {
			products, err := x.repos.Products.GetMany(ctx, nums[start:min(start+productPageSize, len(nums))])
			if err != nil {
				return nil, err
			}
			for _, p := range products {
				points = append(points, ProductPoint(p))
			}
		}
	case events.EntityCategory:
		for _, id := range ids {
			c, err := x.repos.Categories.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if c != nil {
				points = append(points, CategoryPoint(c))
			}
		}
	case events.EntityFAQ:
		err := x.eachID(ids, func(id int64) error {
			f, err := x.repos.FAQs.Get(ctx, id)
			if err == nil && f != nil {
				points = append(points, FAQPoint(f))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	case events.EntityReview:
		err := x.eachID(ids, func(id int64) error {
			r, err := x.repos.Reviews.Get(ctx, id)
			if err == nil && r != nil {
				points = append(points, ReviewPoint(r))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	case events.EntitySearchLog:
		err := x.eachID(ids, func(id int64) error {
			l, err := x.repos.SearchLogs.Get(ctx, id)
			if err == nil && l != nil {
				points = append(points, SearchLogPoint(l))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	case events.EntityChat:
		for _, id := range ids {
			c, err := x.repos.Chats.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			// 进行中的会话等关闭后再收录
			if c == nil || !c.IsClosed() {
				continue
			}
			messages, err := x.repos.Chats.History(ctx, id, 0)
			if err != nil {
				return nil, err
			}
			if p, ok := ChatPoint(c, messages); ok {
				points = append(points, p)
			}
		}
	default:
		return nil, apperr.NewValidationError("kind", fmt.Sprintf("unknown entity kind %q", kind))
	}
	return points, nil
}

func (x *Indexer) eachID(ids []string, fn func(id int64) error) error {
	nums, err := parseIDs(ids)
	if err != nil {
		return err
	}
	for _, n := range nums {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

func parseIDs(ids []string) ([]int64, error) {
	nums := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalidInput, errors.New("non-numeric entity id "+strconv.Quote(id)))
		}
		nums = append(nums, n)
	}
	return nums, nil
}

var _ events.Handler = (*Indexer)(nil)
