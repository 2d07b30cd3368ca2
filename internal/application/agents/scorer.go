package agents

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/ml"
)

// 推荐特征下标
const (
	featUserCategory = iota
	featUserPriceMin
	featUserPriceMax
	featUserBrand
	featTotalPurchases
	featAvgPurchaseValue
	featDaysSinceLastPurchase
	featCandidateCategory
	featCandidatePrice
	featCandidateBrand
	featCandidateRating
	featCategoryMatch
	featBrandMatch
	numRecommendFeatures
)

const (
	recommendSeed    = 20240715
	recommendSamples = 2000
	recommendRounds  = 30
	// noPurchaseDays 从未购买时的距今天数
	noPurchaseDays = 365
)

// UserFeatures 推荐打分使用的用户画像
type UserFeatures struct {
	PreferredCategory     string  `json:"preferred_category,omitempty"`
	PriceMin              int64   `json:"price_min,omitempty"`
	PriceMax              int64   `json:"price_max,omitempty"`
	PreferredBrand        string  `json:"preferred_brand,omitempty"`
	TotalPurchases        int     `json:"total_purchases"`
	AvgPurchaseValue      float64 `json:"avg_purchase_value"`
	DaysSinceLastPurchase float64 `json:"days_since_last_purchase"`
}

// NewUserFeatures 由顾客资料与购买统计构造画像，customer 为 nil 表示匿名
func NewUserFeatures(customer *catalog.Customer, stats *catalog.PurchaseStats, now time.Time) UserFeatures {
	u := UserFeatures{DaysSinceLastPurchase: noPurchaseDays}
	if customer != nil {
		prefs := customer.Preferences
		if len(prefs.Categories) > 0 {
			u.PreferredCategory = prefs.Categories[0]
		}
		if len(prefs.Brands) > 0 {
			u.PreferredBrand = prefs.Brands[0]
		}
		u.PriceMin, u.PriceMax = prefs.PriceMin, prefs.PriceMax
	}
	if stats != nil {
		u.TotalPurchases = stats.TotalPurchases
		u.AvgPurchaseValue = stats.AvgPurchaseValue
		if stats.LastPurchaseAt != nil {
			u.DaysSinceLastPurchase = math.Max(0, now.Sub(*stats.LastPurchaseAt).Hours()/24)
		}
		if u.PreferredCategory == "" {
			u.PreferredCategory = stats.TopCategory
		}
		if u.PreferredBrand == "" {
			u.PreferredBrand = stats.TopBrand
		}
	}
	return u
}

// RecommendScorer 梯度提升树二分类相关度打分
// 模型在合成数据上训练，首次使用时加载或训练并持久化
type RecommendScorer struct {
	store  *ml.ArtifactStore
	model  atomic.Pointer[ml.Model]
	mu     sync.Mutex
	logger *slog.Logger
}

// NewRecommendScorer 创建打分器
func NewRecommendScorer(store *ml.ArtifactStore) *RecommendScorer {
	return &RecommendScorer{
		store:  store,
		logger: log.NewModuleLogger("agents", "recommend_scorer"),
	}
}

// WarmStart 加载或训练模型
func (s *RecommendScorer) WarmStart(ctx context.Context) error {
	_, err := s.ensure(ctx)
	return err
}

// Score 计算每个候选的相关概率
func (s *RecommendScorer) Score(ctx context.Context, user UserFeatures, candidates []*catalog.Product) ([]float64, error) {
	m, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(candidates))
	for i, p := range candidates {
		probs, err := m.PredictProba(ml.DenseRow(featureRow(user, p)))
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrModelUnavailable, err)
		}
		scores[i] = probs[1]
	}
	return scores, nil
}

// Train 重新训练并持久化
func (s *RecommendScorer) Train(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := trainRecommendModel(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Save(ml.ArtifactRecommendModel, m); err != nil {
		return err
	}
	s.model.Store(m)
	return nil
}

func (s *RecommendScorer) ensure(ctx context.Context) (*ml.Model, error) {
	if m := s.model.Load(); m != nil {
		return m, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.model.Load(); m != nil {
		return m, nil
	}

	if s.store.Exists(ml.ArtifactRecommendModel) {
		m, err := s.store.LoadModel(ml.ArtifactRecommendModel)
		if err == nil && m.Objective == ml.ObjectiveBinary && m.NumFeatures == numRecommendFeatures {
			s.model.Store(m)
			return m, nil
		}
		s.logger.Warn("Persisted recommendation model is unusable, retraining", "error", err)
	}

	startTime := time.Now()
	m, err := trainRecommendModel(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrModelUnavailable, err)
	}
	if err := s.store.Save(ml.ArtifactRecommendModel, m); err != nil {
		s.logger.Error("Failed to persist recommendation model", "error", err)
	}
	s.model.Store(m)
	s.logger.Info("Recommendation model trained on synthetic data",
		"samples", recommendSamples,
		"duration", time.Since(startTime),
	)
	return m, nil
}

// featureRow 金额以百万为单位，类别型特征取稳定哈希
func featureRow(u UserFeatures, p *catalog.Product) []float64 {
	row := make([]float64, numRecommendFeatures)
	row[featUserCategory] = code(u.PreferredCategory)
	row[featUserPriceMin] = millions(float64(u.PriceMin))
	row[featUserPriceMax] = millions(float64(u.PriceMax))
	row[featUserBrand] = code(intent.Fold(u.PreferredBrand))
	row[featTotalPurchases] = float64(u.TotalPurchases)
	row[featAvgPurchaseValue] = millions(u.AvgPurchaseValue)
	row[featDaysSinceLastPurchase] = u.DaysSinceLastPurchase
	row[featCandidateCategory] = code(p.CategoryID)
	row[featCandidatePrice] = millions(float64(p.Price))
	row[featCandidateBrand] = code(intent.Fold(p.BrandName))
	row[featCandidateRating] = p.RatingAverage
	if u.PreferredCategory != "" && inCategory(p.CategoryID, u.PreferredCategory) {
		row[featCategoryMatch] = 1
	}
	if u.PreferredBrand != "" && intent.Fold(u.PreferredBrand) == intent.Fold(p.BrandName) {
		row[featBrandMatch] = 1
	}
	return row
}

// code 类别值映射到 (0, 1]，空值为 0
func code(s string) float64 {
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()%997+1) / 997
}

func millions(v float64) float64 {
	return v / 1_000_000
}

// trainRecommendModel 合成样本：分类匹配、品牌匹配、价格落在偏好区间与评分共同决定相关性
func trainRecommendModel(ctx context.Context) (*ml.Model, error) {
	rng := rand.New(rand.NewSource(recommendSeed))
	categories := []string{"dien-tu/dien-thoai", "dien-tu/laptop", "dien-tu/tai-nghe", "thoi-trang", "gia-dung", "the-thao"}
	brands := []string{"samsung", "apple", "xiaomi", "dell", "sony", "nike"}

	rows := make([]ml.Row, 0, recommendSamples)
	labels := make([]float64, 0, recommendSamples)
	for i := 0; i < recommendSamples; i++ {
		u := UserFeatures{
			PreferredCategory:     categories[rng.Intn(len(categories))],
			PreferredBrand:        brands[rng.Intn(len(brands))],
			PriceMin:              int64(rng.Intn(10)) * 1_000_000,
			TotalPurchases:        rng.Intn(30),
			AvgPurchaseValue:      float64(rng.Intn(20_000)) * 1_000,
			DaysSinceLastPurchase: float64(rng.Intn(noPurchaseDays + 1)),
		}
		u.PriceMax = u.PriceMin + int64(5+rng.Intn(20))*1_000_000
		if rng.Float64() < 0.15 {
			u = UserFeatures{DaysSinceLastPurchase: noPurchaseDays}
		}

		p := &catalog.Product{
			CategoryID:    categories[rng.Intn(len(categories))],
			BrandName:     brands[rng.Intn(len(brands))],
			Price:         int64(rng.Intn(40_000)) * 1_000,
			RatingAverage: 3 + 2*rng.Float64(),
		}
		if u.PreferredCategory != "" && rng.Float64() < 0.5 {
			p.CategoryID = u.PreferredCategory
		}
		if u.PreferredBrand != "" && rng.Float64() < 0.4 {
			p.BrandName = u.PreferredBrand
		}

		row := featureRow(u, p)
		fit := 0.0
		if u.PriceMax > 0 && p.Price >= u.PriceMin && p.Price <= u.PriceMax {
			fit = 1
		}
		relevance := 0.4*row[featCategoryMatch] + 0.25*row[featBrandMatch] + 0.2*fit +
			0.15*(p.RatingAverage-3)/2 + rng.NormFloat64()*0.05
		// 匿名用户只看评分
		if u.PreferredCategory == "" {
			relevance = (p.RatingAverage-3)/2 + rng.NormFloat64()*0.1
		}

		label := 0.0
		if relevance > 0.5 {
			label = 1
		}
		rows = append(rows, ml.DenseRow(row))
		labels = append(labels, label)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := ml.DefaultParams(ml.ObjectiveBinary, 2)
	params.Rounds = recommendRounds
	m, err := ml.Train(rows, labels, numRecommendFeatures, params)
	if err != nil {
		return nil, fmt.Errorf("failed to train recommendation model: %w", err)
	}
	return m, nil
}
