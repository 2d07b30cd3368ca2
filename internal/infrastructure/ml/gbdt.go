package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Entry 稀疏向量的一个非零分量
type Entry struct {
	Index int     `json:"i"`
	Value float64 `json:"v"`
}

// Row 按 Index 升序的稀疏向量，缺失分量视为 0
type Row []Entry

// At 读取第 f 维
func (r Row) At(f int) float64 {
	i := sort.Search(len(r), func(i int) bool { return r[i].Index >= f })
	if i < len(r) && r[i].Index == f {
		return r[i].Value
	}
	return 0
}

// DenseRow 由稠密向量构造稀疏行
func DenseRow(values []float64) Row {
	row := make(Row, 0, len(values))
	for i, v := range values {
		if v != 0 {
			row = append(row, Entry{Index: i, Value: v})
		}
	}
	return row
}

// Objective 训练目标
type Objective string

const (
	// ObjectiveSoftprob 多分类，输出每类概率
	ObjectiveSoftprob Objective = "multi:softprob"
	// ObjectiveBinary 二分类，输出正类概率
	ObjectiveBinary Objective = "binary:logistic"
)

// Params 训练参数
type Params struct {
	Objective      Objective
	NumClass       int
	Rounds         int
	MaxDepth       int
	LearningRate   float64
	Lambda         float64
	MinChildWeight float64
	Gamma          float64
	MaxBins        int
}

// DefaultParams 默认参数
func DefaultParams(objective Objective, numClass int) Params {
	return Params{
		Objective:      objective,
		NumClass:       numClass,
		Rounds:         40,
		MaxDepth:       4,
		LearningRate:   0.3,
		Lambda:         1,
		MinChildWeight: 0.5,
		MaxBins:        32,
	}
}

// Node 树节点，Leaf 为 false 时 At(Feature) <= Threshold 走 Left
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

// Tree 回归树，Nodes[0] 为根
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict 返回叶子值
func (t *Tree) Predict(row Row) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if row.At(n.Feature) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// Model 梯度提升树模型，叶子值已乘学习率
type Model struct {
	Objective   Objective   `json:"objective"`
	NumClass    int         `json:"num_class"`
	NumFeatures int         `json:"num_features"`
	BaseScore   []float64   `json:"base_score"`
	Trees       [][]Tree    `json:"trees"`
	Params      ModelParams `json:"params"`
}

// ModelParams 记录训练参数
type ModelParams struct {
	Rounds       int     `json:"rounds"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
}

// outputs 每轮树的数量
func (m *Model) outputs() int {
	if m.Objective == ObjectiveBinary {
		return 1
	}
	return m.NumClass
}

// Margin 原始得分
func (m *Model) Margin(row Row) []float64 {
	out := append([]float64(nil), m.BaseScore...)
	for _, round := range m.Trees {
		for k := range round {
			out[k] += round[k].Predict(row)
		}
	}
	return out
}

// PredictProba 预测概率
// softprob 返回 NumClass 个概率，和为 1；binary 返回 [负类, 正类]
func (m *Model) PredictProba(row Row) ([]float64, error) {
	if len(m.BaseScore) != m.outputs() {
		return nil, fmt.Errorf("model base score has %d outputs, expected %d", len(m.BaseScore), m.outputs())
	}
	margin := m.Margin(row)
	if m.Objective == ObjectiveBinary {
		p := sigmoid(margin[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(margin), nil
}

// Validate 检查反序列化后的模型结构
func (m *Model) Validate() error {
	switch m.Objective {
	case ObjectiveSoftprob:
		if m.NumClass < 2 {
			return fmt.Errorf("softprob model needs at least 2 classes, got %d", m.NumClass)
		}
	case ObjectiveBinary:
	default:
		return fmt.Errorf("unknown objective %q", m.Objective)
	}
	if len(m.BaseScore) != m.outputs() {
		return fmt.Errorf("base score has %d outputs, expected %d", len(m.BaseScore), m.outputs())
	}
	for r, round := range m.Trees {
		if len(round) != m.outputs() {
			return fmt.Errorf("round %d has %d trees, expected %d", r, len(round), m.outputs())
		}
		for k := range round {
			for i, n := range round[k].Nodes {
				if n.Leaf {
					continue
				}
				if n.Left <= i || n.Right <= i || n.Left >= len(round[k].Nodes) || n.Right >= len(round[k].Nodes) {
					return fmt.Errorf("round %d tree %d node %d has invalid children", r, k, i)
				}
			}
		}
	}
	return nil
}

// Train 训练模型
// softprob 的 labels 为类别下标；binary 的 labels 为 0 或 1
func Train(rows []Row, labels []float64, numFeatures int, p Params) (*Model, error) {
	if len(rows) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("rows and labels differ in length: %d vs %d", len(rows), len(labels))
	}

	m := &Model{
		Objective:   p.Objective,
		NumClass:    p.NumClass,
		NumFeatures: numFeatures,
		Params: ModelParams{
			Rounds:       p.Rounds,
			MaxDepth:     p.MaxDepth,
			LearningRate: p.LearningRate,
		},
	}
	if p.Objective == ObjectiveBinary {
		m.NumClass = 2
	}
	if err := m.initBaseScore(labels); err != nil {
		return nil, err
	}

	b := newBuilder(rows, numFeatures, p)
	k := m.outputs()
	n := len(rows)

	margins := make([][]float64, n)
	for i := range margins {
		margins[i] = append([]float64(nil), m.BaseScore...)
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for round := 0; round < p.Rounds; round++ {
		probs := make([][]float64, n)
		for i := range rows {
			if m.Objective == ObjectiveBinary {
				probs[i] = []float64{sigmoid(margins[i][0])}
			} else {
				probs[i] = softmax(margins[i])
			}
		}

		trees := make([]Tree, k)
		for c := 0; c < k; c++ {
			for i := range rows {
				y := 0.0
				if m.Objective == ObjectiveBinary {
					y = labels[i]
				} else if int(labels[i]) == c {
					y = 1
				}
				pr := probs[i][c]
				grad[i] = pr - y
				hess[i] = math.Max(pr*(1-pr), 1e-6)
			}
			trees[c] = b.build(all, grad, hess)
		}
		for i, row := range rows {
			for c := 0; c < k; c++ {
				margins[i][c] += trees[c].Predict(row)
			}
		}
		m.Trees = append(m.Trees, trees)
	}
	return m, nil
}

func (m *Model) initBaseScore(labels []float64) error {
	switch m.Objective {
	case ObjectiveBinary:
		var pos float64
		for _, y := range labels {
			if y != 0 && y != 1 {
				return fmt.Errorf("binary label must be 0 or 1, got %v", y)
			}
			pos += y
		}
		mean := clamp(pos/float64(len(labels)), 1e-3, 1-1e-3)
		m.BaseScore = []float64{math.Log(mean / (1 - mean))}

	case ObjectiveSoftprob:
		if m.NumClass < 2 {
			return fmt.Errorf("softprob needs at least 2 classes, got %d", m.NumClass)
		}
		counts := make([]float64, m.NumClass)
		for _, y := range labels {
			c := int(y)
			if float64(c) != y || c < 0 || c >= m.NumClass {
				return fmt.Errorf("class label %v out of range [0,%d)", y, m.NumClass)
			}
			counts[c]++
		}
		m.BaseScore = make([]float64, m.NumClass)
		for c := range counts {
			m.BaseScore[c] = math.Log((counts[c] + 1) / (float64(len(labels)) + float64(m.NumClass)))
		}

	default:
		return fmt.Errorf("unknown objective %q", m.Objective)
	}
	return nil
}

// builder 基于直方图的树构建器
type builder struct {
	rows       []Row
	params     Params
	thresholds [][]float64
	zeroBin    []int
	offsets    []int
	totalBins  int
	// binned 每行非零分量所在的 (特征, 分桶)
	binned [][]binEntry
}

type binEntry struct {
	feature int
	bin     int
}

func newBuilder(rows []Row, numFeatures int, p Params) *builder {
	if p.MaxBins <= 1 {
		p.MaxBins = 32
	}
	b := &builder{
		rows:       rows,
		params:     p,
		thresholds: make([][]float64, numFeatures),
		zeroBin:    make([]int, numFeatures),
		offsets:    make([]int, numFeatures),
		binned:     make([][]binEntry, len(rows)),
	}

	values := make([][]float64, numFeatures)
	nonzero := make([]int, numFeatures)
	for _, row := range rows {
		for _, e := range row {
			if e.Index < 0 || e.Index >= numFeatures || e.Value == 0 {
				continue
			}
			values[e.Index] = append(values[e.Index], e.Value)
			nonzero[e.Index]++
		}
	}

	for f := 0; f < numFeatures; f++ {
		vals := values[f]
		if nonzero[f] < len(rows) {
			vals = append(vals, 0)
		}
		b.thresholds[f] = candidateThresholds(vals, p.MaxBins)
		b.zeroBin[f] = binOf(b.thresholds[f], 0)
		b.offsets[f] = b.totalBins
		b.totalBins += len(b.thresholds[f]) + 1
	}

	for i, row := range rows {
		entries := make([]binEntry, 0, len(row))
		for _, e := range row {
			if e.Index < 0 || e.Index >= numFeatures || e.Value == 0 {
				continue
			}
			entries = append(entries, binEntry{feature: e.Index, bin: binOf(b.thresholds[e.Index], e.Value)})
		}
		b.binned[i] = entries
	}
	return b
}

// candidateThresholds 去重排序后按分位数取至多 maxBins 个阈值
func candidateThresholds(vals []float64, maxBins int) []float64 {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	uniq := sorted[:1]
	for _, v := range sorted[1:] {
		if v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= maxBins {
		return uniq
	}
	out := make([]float64, 0, maxBins)
	for i := 0; i < maxBins; i++ {
		v := uniq[i*len(uniq)/maxBins]
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// binOf 第一个满足 v <= t 的阈值下标，大于全部阈值时为 len(thresholds)
func binOf(thresholds []float64, v float64) int {
	return sort.SearchFloat64s(thresholds, v)
}

type split struct {
	gain      float64
	feature   int
	threshold float64
}

func (b *builder) build(idx []int, grad, hess []float64) Tree {
	t := Tree{}
	b.grow(&t, idx, grad, hess, 0)
	return t
}

func (b *builder) grow(t *Tree, idx []int, grad, hess []float64, depth int) int {
	var g, h float64
	for _, i := range idx {
		g += grad[i]
		h += hess[i]
	}

	nodeIdx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Leaf:  true,
		Value: -g / (h + b.params.Lambda) * b.params.LearningRate,
	})
	if depth >= b.params.MaxDepth || len(idx) < 2 {
		return nodeIdx
	}

	best, ok := b.bestSplit(idx, grad, hess, g, h)
	if !ok {
		return nodeIdx
	}

	var left, right []int
	for _, i := range idx {
		if b.rows[i].At(best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}

	l := b.grow(t, left, grad, hess, depth+1)
	r := b.grow(t, right, grad, hess, depth+1)
	t.Nodes[nodeIdx] = Node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      l,
		Right:     r,
	}
	return nodeIdx
}

func (b *builder) bestSplit(idx []int, grad, hess []float64, g, h float64) (split, bool) {
	histG := make([]float64, b.totalBins)
	histH := make([]float64, b.totalBins)
	nzG := make([]float64, len(b.thresholds))
	nzH := make([]float64, len(b.thresholds))

	for _, i := range idx {
		for _, e := range b.binned[i] {
			pos := b.offsets[e.feature] + e.bin
			histG[pos] += grad[i]
			histH[pos] += hess[i]
			nzG[e.feature] += grad[i]
			nzH[e.feature] += hess[i]
		}
	}

	lambda := b.params.Lambda
	parent := g * g / (h + lambda)
	best := split{gain: b.params.Gamma + 1e-9}
	found := false

	for f, thresholds := range b.thresholds {
		if len(thresholds) < 2 {
			continue
		}
		off := b.offsets[f]
		histG[off+b.zeroBin[f]] += g - nzG[f]
		histH[off+b.zeroBin[f]] += h - nzH[f]

		var gl, hl float64
		for bin := 0; bin < len(thresholds); bin++ {
			gl += histG[off+bin]
			hl += histH[off+bin]
			gr, hr := g-gl, h-hl
			if hl < b.params.MinChildWeight || hr < b.params.MinChildWeight {
				continue
			}
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > best.gain {
				best = split{gain: gain, feature: f, threshold: thresholds[bin]}
				found = true
			}
		}
	}
	return best, found
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(x []float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range x {
		maxV = math.Max(maxV, v)
	}
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
