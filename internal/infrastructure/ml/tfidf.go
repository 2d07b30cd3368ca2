// Package ml 轻量机器学习组件：tf-idf 向量化、梯度提升树（softprob 多分类与二分类）、模型产物读写与热加载
package ml

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/shopmind/backend/internal/domain/intent"
)

// Vectorizer tf-idf 向量化器
// 文本先去声调再切词，特征为一元词与相邻二元词
type Vectorizer struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	MaxFeatures int            `json:"max_features"`
	StopWords   []string       `json:"stop_words"`

	once sync.Once
	stop map[string]struct{}
}

// NewVectorizer 创建向量化器
func NewVectorizer(maxFeatures int, stopWords []string) *Vectorizer {
	return &Vectorizer{
		MaxFeatures: maxFeatures,
		StopWords:   stopWords,
	}
}

// NumFeatures 特征维度
func (v *Vectorizer) NumFeatures() int {
	return len(v.IDF)
}

// Fit 在语料上统计词表与 IDF
// 词表按文档频率降序截取 MaxFeatures 个
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.New("cannot fit vectorizer on empty corpus")
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range v.Terms(doc) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}
	if len(df) == 0 {
		return errors.New("corpus produced no terms")
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.Vocabulary = make(map[string]int, len(terms))
	v.IDF = make([]float64, len(terms))
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return nil
}

// Transform 将文本转换为 L2 归一化的稀疏 tf-idf 向量
func (v *Vectorizer) Transform(doc string) Row {
	counts := make(map[int]float64)
	for _, term := range v.Terms(doc) {
		if idx, ok := v.Vocabulary[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	row := make(Row, 0, len(counts))
	var norm float64
	for idx, tf := range counts {
		w := tf * v.IDF[idx]
		norm += w * w
		row = append(row, Entry{Index: idx, Value: w})
	}
	norm = math.Sqrt(norm)
	for i := range row {
		row[i].Value /= norm
	}
	sort.Slice(row, func(i, j int) bool { return row[i].Index < row[j].Index })
	return row
}

// Terms 切词并生成一元与二元特征
func (v *Vectorizer) Terms(doc string) []string {
	v.once.Do(func() {
		v.stop = make(map[string]struct{}, len(v.StopWords))
		for _, w := range v.StopWords {
			v.stop[intent.Fold(w)] = struct{}{}
		}
	})

	words := strings.FieldsFunc(intent.Fold(doc), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := words[:0]
	for _, w := range words {
		if _, ok := v.stop[w]; ok {
			continue
		}
		kept = append(kept, w)
	}

	terms := make([]string, 0, len(kept)*2)
	terms = append(terms, kept...)
	for i := 0; i+1 < len(kept); i++ {
		terms = append(terms, kept[i]+" "+kept[i+1])
	}
	return terms
}
