// Package intent ML 意图分类：tf-idf 特征 + 多分类梯度提升树，作为 LLM 分类前的廉价先验
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	domainIntent "github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/ml"
)

// MaxFeatures tf-idf 词表上限
const MaxFeatures = 1000

// trainingRounds 意图模型的提升轮数
const trainingRounds = 30

// bundle 一次加载的完整产物，整体替换
type bundle struct {
	vectorizer *ml.Vectorizer
	model      *ml.Model
	labels     []domainIntent.Label
}

// TrainReport 训练结果
type TrainReport struct {
	Documents int           `json:"documents"`
	Features  int           `json:"features"`
	Accuracy  float64       `json:"accuracy"`
	Duration  time.Duration `json:"duration"`
}

// Classifier ML 意图分类器
// 产物只读共享，热加载时整体替换指针
type Classifier struct {
	store   *ml.ArtifactStore
	current atomic.Pointer[bundle]
	mu      sync.Mutex
	watcher *ml.ArtifactWatcher
	logger  *slog.Logger
}

// NewClassifier 创建分类器，产物在首次使用时加载
func NewClassifier(store *ml.ArtifactStore) *Classifier {
	return &Classifier{
		store:  store,
		logger: log.NewModuleLogger("intent", "classifier"),
	}
}

// Predict 预测意图，任何推理错误都返回 general_inquiry / 0.5
func (c *Classifier) Predict(ctx context.Context, text string) *domainIntent.Prediction {
	b, err := c.ensure(ctx)
	if err != nil {
		c.logger.Warn("Intent model unavailable, using fallback prediction", "error", err)
		return domainIntent.FallbackPrediction()
	}

	probs, err := b.model.PredictProba(b.vectorizer.Transform(text))
	if err != nil || len(probs) != len(b.labels) {
		c.logger.Warn("Intent inference failed, using fallback prediction", "error", err)
		return domainIntent.FallbackPrediction()
	}

	pred := &domainIntent.Prediction{Probabilities: make(map[domainIntent.Label]float64, len(probs))}
	best := 0
	for i, p := range probs {
		pred.Probabilities[b.labels[i]] = p
		if p > probs[best] {
			best = i
		}
	}
	pred.Label = b.labels[best]
	pred.Confidence = probs[best]
	return pred
}

// WarmStart 加载产物；产物不存在时用合成语料训练并持久化
func (c *Classifier) WarmStart(ctx context.Context) error {
	_, err := c.ensure(ctx)
	return err
}

// ensure 返回当前产物，必要时加载或训练
func (c *Classifier) ensure(ctx context.Context) (*bundle, error) {
	if b := c.current.Load(); b != nil {
		return b, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.current.Load(); b != nil {
		return b, nil
	}

	if c.store.Exists(ml.ArtifactIntentVectorizer, ml.ArtifactIntentModel, ml.ArtifactIntentLabels) {
		b, err := c.load()
		if err == nil {
			c.current.Store(b)
			c.logger.Info("Intent model loaded", "dir", c.store.Dir(), "features", b.vectorizer.NumFeatures())
			return b, nil
		}
		c.logger.Warn("Persisted intent model is unusable, retraining", "error", err)
	}

	b, report, err := c.train(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.persist(b); err != nil {
		// 持久化失败不影响本进程使用
		c.logger.Error("Failed to persist intent model", "error", err)
	}
	c.current.Store(b)
	c.logger.Info("Intent model trained on synthetic corpus",
		"documents", report.Documents,
		"features", report.Features,
		"accuracy", report.Accuracy,
		"duration", report.Duration,
	)
	return b, nil
}

// Train 重新训练、持久化并替换当前模型
func (c *Classifier) Train(ctx context.Context) (*TrainReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, report, err := c.train(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.persist(b); err != nil {
		return nil, err
	}
	c.current.Store(b)
	return report, nil
}

// Reload 从产物目录重新加载
func (c *Classifier) Reload() error {
	b, err := c.load()
	if err != nil {
		return err
	}
	c.current.Store(b)
	c.logger.Info("Intent model reloaded", "features", b.vectorizer.NumFeatures())
	return nil
}

// StartWatching 监听产物目录，模型文件被替换时热加载
func (c *Classifier) StartWatching() error {
	if err := os.MkdirAll(c.store.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	w, err := ml.NewArtifactWatcher(c.store.Dir(), []string{ml.ArtifactIntentModel}, 0, func(string) {
		if err := c.Reload(); err != nil {
			c.logger.Warn("Failed to reload intent model", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create artifact watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start artifact watcher: %w", err)
	}
	c.watcher = w
	return nil
}

// Close 停止监听
func (c *Classifier) Close() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
}

// train 在合成语料上训练，返回训练集准确率
func (c *Classifier) train(ctx context.Context) (*bundle, *TrainReport, error) {
	startTime := time.Now()
	docs, labels := SyntheticCorpus()

	vectorizer := ml.NewVectorizer(MaxFeatures, StopWords)
	if err := vectorizer.Fit(docs); err != nil {
		return nil, nil, fmt.Errorf("failed to fit vectorizer: %w", err)
	}

	index := make(map[domainIntent.Label]int, len(domainIntent.Labels))
	for i, l := range domainIntent.Labels {
		index[l] = i
	}
	rows := make([]ml.Row, len(docs))
	targets := make([]float64, len(docs))
	for i, doc := range docs {
		rows[i] = vectorizer.Transform(doc)
		targets[i] = float64(index[labels[i]])
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	params := ml.DefaultParams(ml.ObjectiveSoftprob, len(domainIntent.Labels))
	params.Rounds = trainingRounds
	model, err := ml.Train(rows, targets, vectorizer.NumFeatures(), params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to train intent model: %w", err)
	}

	b := &bundle{
		vectorizer: vectorizer,
		model:      model,
		labels:     append([]domainIntent.Label(nil), domainIntent.Labels...),
	}

	correct := 0
	for i, row := range rows {
		probs, err := model.PredictProba(row)
		if err != nil {
			return nil, nil, err
		}
		if argmax(probs) == int(targets[i]) {
			correct++
		}
	}

	return b, &TrainReport{
		Documents: len(docs),
		Features:  vectorizer.NumFeatures(),
		Accuracy:  float64(correct) / float64(len(docs)),
		Duration:  time.Since(startTime),
	}, nil
}

// persist 模型文件最后写入，监听方以它为准
func (c *Classifier) persist(b *bundle) error {
	labels := make([]string, len(b.labels))
	for i, l := range b.labels {
		labels[i] = string(l)
	}
	if err := c.store.Save(ml.ArtifactIntentVectorizer, b.vectorizer); err != nil {
		return err
	}
	if err := c.store.Save(ml.ArtifactIntentLabels, labels); err != nil {
		return err
	}
	return c.store.Save(ml.ArtifactIntentModel, b.model)
}

func (c *Classifier) load() (*bundle, error) {
	vectorizer := &ml.Vectorizer{}
	if err := c.store.Load(ml.ArtifactIntentVectorizer, vectorizer); err != nil {
		return nil, err
	}
	var raw []string
	if err := c.store.Load(ml.ArtifactIntentLabels, &raw); err != nil {
		return nil, err
	}
	model, err := c.store.LoadModel(ml.ArtifactIntentModel)
	if err != nil {
		return nil, err
	}

	labels := make([]domainIntent.Label, 0, len(raw))
	for _, s := range raw {
		l, ok := domainIntent.ParseLabel(s)
		if !ok {
			return nil, fmt.Errorf("unknown intent label %q in artifacts", s)
		}
		labels = append(labels, l)
	}
	if model.NumClass != len(labels) {
		return nil, fmt.Errorf("model has %d classes but %d labels", model.NumClass, len(labels))
	}
	if model.NumFeatures != vectorizer.NumFeatures() {
		return nil, errors.New("model and vectorizer feature counts differ")
	}
	return &bundle{vectorizer: vectorizer, model: model, labels: labels}, nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
