package ml

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/apperr"
)

func TestVectorizer(t *testing.T) {
	v := NewVectorizer(100, []string{"tôi", "muốn"})
	docs := []string{
		"Tôi muốn tìm điện thoại Samsung",
		"tìm laptop giá rẻ",
		"chính sách bảo hành",
	}
	require.NoError(t, v.Fit(docs))

	t.Run("folds diacritics and drops stop words", func(t *testing.T) {
		terms := v.Terms("Tôi muốn Điện Thoại")
		assert.Equal(t, []string{"dien", "thoai", "dien thoai"}, terms)
	})

	t.Run("vocabulary includes bigrams", func(t *testing.T) {
		assert.Contains(t, v.Vocabulary, "bao hanh")
		assert.Contains(t, v.Vocabulary, "tim")
		assert.NotContains(t, v.Vocabulary, "toi")
	})

	t.Run("transform is l2 normalized and sorted", func(t *testing.T) {
		row := v.Transform("tìm điện thoại Samsung")
		require.NotEmpty(t, row)
		var norm float64
		for i, e := range row {
			norm += e.Value * e.Value
			if i > 0 {
				assert.Less(t, row[i-1].Index, e.Index)
			}
		}
		assert.InDelta(t, 1.0, norm, 1e-9)
	})

	t.Run("unknown words produce empty row", func(t *testing.T) {
		assert.Empty(t, v.Transform("xyz qwerty"))
	})

	t.Run("max features caps vocabulary", func(t *testing.T) {
		small := NewVectorizer(3, nil)
		require.NoError(t, small.Fit(docs))
		assert.Len(t, small.Vocabulary, 3)
		assert.Equal(t, 3, small.NumFeatures())
	})

	t.Run("empty corpus", func(t *testing.T) {
		assert.Error(t, NewVectorizer(10, nil).Fit(nil))
	})
}

func TestRow(t *testing.T) {
	row := DenseRow([]float64{0, 1.5, 0, 2})
	assert.Equal(t, Row{{Index: 1, Value: 1.5}, {Index: 3, Value: 2}}, row)
	assert.Equal(t, 1.5, row.At(1))
	assert.Equal(t, 0.0, row.At(0))
	assert.Equal(t, 0.0, row.At(10))
}

func TestTrain_Softprob(t *testing.T) {
	// 三类，各由一个特征决定
	var (
		rows   []Row
		labels []float64
	)
	for i := 0; i < 30; i++ {
		c := i % 3
		values := make([]float64, 4)
		values[c] = 1 + float64(i%5)/10
		values[3] = float64(i%2) * 0.3
		rows = append(rows, DenseRow(values))
		labels = append(labels, float64(c))
	}

	p := DefaultParams(ObjectiveSoftprob, 3)
	p.Rounds = 15
	m, err := Train(rows, labels, 4, p)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	for c := 0; c < 3; c++ {
		values := make([]float64, 4)
		values[c] = 1.2
		probs, err := m.PredictProba(DenseRow(values))
		require.NoError(t, err)
		require.Len(t, probs, 3)

		var sum float64
		best := 0
		for k, pr := range probs {
			sum += pr
			if pr > probs[best] {
				best = k
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
		assert.Equal(t, c, best)
		assert.Greater(t, probs[c], 0.8)
	}
}

func TestTrain_Binary(t *testing.T) {
	var (
		rows   []Row
		labels []float64
	)
	for i := 0; i < 40; i++ {
		x := float64(i) / 40
		rows = append(rows, DenseRow([]float64{x, 0.5}))
		if x > 0.5 {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	p := DefaultParams(ObjectiveBinary, 2)
	p.Rounds = 20
	m, err := Train(rows, labels, 2, p)
	require.NoError(t, err)

	high, err := m.PredictProba(DenseRow([]float64{0.9, 0.5}))
	require.NoError(t, err)
	low, err := m.PredictProba(DenseRow([]float64{0.1, 0.5}))
	require.NoError(t, err)

	assert.Greater(t, high[1], 0.8)
	assert.Less(t, low[1], 0.2)
	assert.InDelta(t, 1.0, high[0]+high[1], 1e-9)
}

func TestTrain_InvalidInput(t *testing.T) {
	rows := []Row{DenseRow([]float64{1})}

	_, err := Train(nil, nil, 1, DefaultParams(ObjectiveBinary, 2))
	assert.Error(t, err)

	_, err = Train(rows, []float64{2}, 1, DefaultParams(ObjectiveBinary, 2))
	assert.Error(t, err)

	_, err = Train(rows, []float64{5}, 1, DefaultParams(ObjectiveSoftprob, 3))
	assert.Error(t, err)

	_, err = Train(rows, []float64{0, 1}, 1, DefaultParams(ObjectiveSoftprob, 3))
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	out := softmax([]float64{1000, 1000, 1000})
	for _, v := range out {
		assert.False(t, math.IsNaN(v))
		assert.InDelta(t, 1.0/3, v, 1e-9)
	}
}

func TestArtifactStore(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	assert.False(t, store.Exists(ArtifactIntentModel))
	var m Model
	err := store.Load(ArtifactIntentModel, &m)
	assert.ErrorIs(t, err, apperr.ErrModelUnavailable)

	p := DefaultParams(ObjectiveBinary, 2)
	p.Rounds = 2
	trained, err := Train([]Row{DenseRow([]float64{1}), DenseRow([]float64{0})}, []float64{1, 0}, 1, p)
	require.NoError(t, err)
	require.NoError(t, store.Save(ArtifactRecommendModel, trained))
	assert.True(t, store.Exists(ArtifactRecommendModel))

	loaded, err := store.LoadModel(ArtifactRecommendModel)
	require.NoError(t, err)
	assert.Equal(t, trained.BaseScore, loaded.BaseScore)
	assert.Equal(t, len(trained.Trees), len(loaded.Trees))

	row := DenseRow([]float64{1})
	want, _ := trained.PredictProba(row)
	got, _ := loaded.PredictProba(row)
	assert.InDeltaSlice(t, want, got, 1e-12)

	require.NoError(t, store.Save(ArtifactIntentModel, map[string]any{"objective": "nope"}))
	_, err = store.LoadModel(ArtifactIntentModel)
	assert.ErrorIs(t, err, apperr.ErrModelUnavailable)
}

func TestArtifactWatcher(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(dir)

	var changes atomic.Int32
	w, err := NewArtifactWatcher(dir, []string{ArtifactIntentModel}, 50*time.Millisecond, func(name string) {
		assert.Equal(t, ArtifactIntentModel, name)
		changes.Add(1)
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// 连续写入合并为一次回调
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ArtifactIntentModel, map[string]int{"v": i}))
	}
	// 不关心的文件不触发
	require.NoError(t, store.Save("other.json", map[string]int{"v": 1}))

	assert.Eventually(t, func() bool { return changes.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load())
}
