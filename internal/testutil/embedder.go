// Package testutil 测试辅助：确定性向量化、脚本化 LLM 与预置数据的存储
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/embedding"
)

// HashEmbedder 词袋哈希向量化，相同文本总得到相同向量，词重叠越多余弦越高
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder 创建指定维度的哈希向量化器
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// Dimension 实现 embedding.Embedder
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// EmbedDocument 实现 embedding.Embedder
func (e *HashEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// EmbedQuery 实现 embedding.Embedder
func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// EmbedDocuments 实现 embedding.Embedder
func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	words := strings.FieldsFunc(intent.Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(e.dim))] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

var _ embedding.Embedder = (*HashEmbedder)(nil)
