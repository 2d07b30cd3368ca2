package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
	"github.com/shopmind/backend/internal/interfaces/http/response"
)

// 检索默认值
const (
	defaultSearchK = 10
	maxSearchK     = 50
	defaultSimilar = 5
)

// knownCollections 允许直接查询的集合
var knownCollections = map[string]bool{
	vector.CollectionProducts:   true,
	vector.CollectionCategories: true,
	vector.CollectionFAQs:       true,
	vector.CollectionReviews:    true,
	vector.CollectionChats:      true,
	vector.CollectionSearchLogs: true,
}

// SearchHandler 语义检索与索引维护处理器
type SearchHandler struct {
	retrieval *retrieval.Service
	indexer   *retrieval.Indexer
	logger    *slog.Logger
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(svc *retrieval.Service, indexer *retrieval.Indexer) *SearchHandler {
	return &SearchHandler{
		retrieval: svc,
		indexer:   indexer,
		logger:    log.NewModuleLogger("http", "search"),
	}
}

// SearchRequest 语义检索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	// Collection 默认 product_embeddings
	Collection string         `json:"collection,omitempty"`
	K          int            `json:"k,omitempty"`
	Threshold  *float32       `json:"threshold,omitempty"`
	Filter     map[string]any `json:"filter,omitempty"`
}

// Search 语义检索
// @Summary 语义检索
// @Tags 检索
// @Accept json
// @Produce json
// @Param body body SearchRequest true "查询"
// @Success 200 {object} response.Response{data=[]vector.SearchResult}
// @Failure 400 {object} response.ErrorResponse
// @Router /search [post]
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, apperr.MsgInvalid)
		return
	}
	collection, err := resolveCollection(req.Collection)
	if err != nil {
		response.FromError(c, err)
		return
	}
	k := req.K
	if k == 0 {
		k = defaultSearchK
	}
	if k > maxSearchK {
		k = maxSearchK
	}

	results, err := h.retrieval.SemanticSearch(c.Request.Context(), req.Query, collection, k, vector.SearchOptions{
		Threshold: req.Threshold,
		Filter:    req.Filter,
	})
	if err != nil {
		h.logger.Warn("Semantic search failed", "collection", collection, "error", err)
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"results": results, "count": len(results)})
}

// Similar 与指定商品相似的商品
// @Summary 相似商品
// @Tags 检索
// @Produce json
// @Param id path int true "商品 ID"
// @Param k query int false "返回条数，默认 5"
// @Success 200 {object} response.Response{data=[]vector.SearchResult}
// @Router /products/{id}/similar [get]
func (h *SearchHandler) Similar(c *gin.Context) {
	k := queryInt(c, "k", defaultSimilar)
	if k > maxSearchK {
		k = maxSearchK
	}
	results, err := h.retrieval.SimilarToID(c.Request.Context(), vector.CollectionProducts, c.Param("id"), k)
	if err != nil {
		h.logger.Warn("Similar products lookup failed", "product_id", c.Param("id"), "error", err)
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"results": results, "count": len(results)})
}

// Reindex 全量重建向量索引并清理孤立向量点
// @Summary 重建索引
// @Tags 管理
// @Produce json
// @Success 200 {object} response.Response
// @Failure 500 {object} response.ErrorResponse
// @Router /admin/reindex [post]
func (h *SearchHandler) Reindex(c *gin.Context) {
	ctx := c.Request.Context()
	indexed, err := h.indexer.Reindex(ctx)
	if err != nil {
		h.logger.Error("Reindex failed", "error", err)
		response.FromError(c, err)
		return
	}
	reconciled, err := h.indexer.Reconcile(ctx)
	if err != nil {
		h.logger.Error("Reconcile failed", "error", err)
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"reindexed": indexed, "reconciled": reconciled})
}

func resolveCollection(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return vector.CollectionProducts, nil
	}
	if !knownCollections[name] {
		return "", apperr.NewValidationError("collection", "unknown collection "+name)
	}
	return name, nil
}
