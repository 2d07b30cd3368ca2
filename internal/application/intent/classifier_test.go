package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainIntent "github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/ml"
)

func TestSyntheticCorpus(t *testing.T) {
	docs, labels := SyntheticCorpus()
	require.Equal(t, len(docs), len(labels))

	again, _ := SyntheticCorpus()
	assert.Equal(t, docs, again, "corpus must be deterministic")

	perLabel := map[domainIntent.Label]map[string]bool{}
	for i, doc := range docs {
		assert.NotEmpty(t, doc)
		assert.NotContains(t, doc, "{")
		if perLabel[labels[i]] == nil {
			perLabel[labels[i]] = map[string]bool{}
		}
		assert.False(t, perLabel[labels[i]][doc], "duplicate sample %q", doc)
		perLabel[labels[i]][doc] = true
	}
	for _, l := range domainIntent.Labels {
		assert.GreaterOrEqual(t, len(perLabel[l]), len(seedTemplates[l]), "label %s", l)
	}
}

func TestClassifier_WarmStart(t *testing.T) {
	store := ml.NewArtifactStore(t.TempDir())
	c := NewClassifier(store)
	ctx := context.Background()

	require.NoError(t, c.WarmStart(ctx))
	assert.True(t, store.Exists(ml.ArtifactIntentVectorizer, ml.ArtifactIntentModel, ml.ArtifactIntentLabels))

	tests := []struct {
		text string
		want domainIntent.Label
	}{
		{"Tìm điện thoại Samsung dưới 10 triệu", domainIntent.ProductSearch},
		{"so sánh iPhone 13 và Galaxy S22", domainIntent.CompareProducts},
		{"bảo hành bao lâu", domainIntent.PolicyQuestion},
		{"đơn hàng của tôi đang ở đâu", domainIntent.OrderTracking},
		{"thêm iPhone 13 vào giỏ hàng", domainIntent.CartManagement},
		{"xin chào", domainIntent.GeneralInquiry},
		{"gợi ý cho tôi laptop", domainIntent.Recommendation},
		{"tư vấn giúp tôi điện thoại tầm 10 triệu", domainIntent.Recommendation},
		{"tôi muốn khiếu nại", domainIntent.SupportRequest},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			pred := c.Predict(ctx, tt.text)
			assert.Equal(t, tt.want, pred.Label)
			assert.True(t, pred.Label.Valid())

			var sum float64
			for _, p := range pred.Probabilities {
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-6)
			assert.Len(t, pred.Probabilities, len(domainIntent.Labels))
			assert.Equal(t, pred.Probabilities[pred.Label], pred.Confidence)
		})
	}

	t.Run("persisted artifacts are reused", func(t *testing.T) {
		other := NewClassifier(store)
		text := "Tìm điện thoại Samsung dưới 10 triệu"
		assert.Equal(t, c.Predict(ctx, text), other.Predict(ctx, text))
	})

	t.Run("unknown words still give a distribution", func(t *testing.T) {
		pred := c.Predict(ctx, "qwerty zxcv")
		assert.True(t, pred.Label.Valid())
		assert.Greater(t, pred.Confidence, 0.0)
	})
}

func TestClassifier_CorruptArtifactsRetrain(t *testing.T) {
	store := ml.NewArtifactStore(t.TempDir())
	require.NoError(t, store.Save(ml.ArtifactIntentVectorizer, map[string]any{}))
	require.NoError(t, store.Save(ml.ArtifactIntentLabels, []string{"not_a_label"}))
	require.NoError(t, store.Save(ml.ArtifactIntentModel, map[string]any{"objective": "bogus"}))

	c := NewClassifier(store)
	pred := c.Predict(context.Background(), "bảo hành bao lâu")
	assert.Equal(t, domainIntent.PolicyQuestion, pred.Label)

	// 重新训练后的产物可被加载
	require.NoError(t, NewClassifier(store).Reload())
}

func TestClassifier_InferenceErrorFallsBack(t *testing.T) {
	store := ml.NewArtifactStore(t.TempDir())
	c := NewClassifier(store)
	require.NoError(t, c.WarmStart(context.Background()))

	// 标签数与模型输出不一致
	b := c.current.Load()
	c.current.Store(&bundle{vectorizer: b.vectorizer, model: b.model, labels: b.labels[:2]})

	pred := c.Predict(context.Background(), "tìm laptop")
	assert.Equal(t, domainIntent.FallbackPrediction(), pred)
}

func TestClassifier_HotReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	trainer := NewClassifier(ml.NewArtifactStore(dir))
	require.NoError(t, trainer.WarmStart(ctx))

	watcher := NewClassifier(ml.NewArtifactStore(dir))
	require.NoError(t, watcher.WarmStart(ctx))
	require.NoError(t, watcher.StartWatching())
	defer watcher.Close()

	before := watcher.current.Load()
	_, err := trainer.Train(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return watcher.current.Load() != before
	}, 5*time.Second, 50*time.Millisecond)
}
