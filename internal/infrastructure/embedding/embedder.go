// Package embedding 向量化网关：凭证池轮换、窗口限流、指数退避重试与查询向量缓存
package embedding

import "context"

// Mode 向量化模式，上游可据此区分任务类型
type Mode string

const (
	// ModeDocument 写入索引的文档向量
	ModeDocument Mode = "document"
	// ModeQuery 检索用的查询向量
	ModeQuery Mode = "query"
)

// taskType 发送给上游的任务类型提示
func (m Mode) taskType() string {
	if m == ModeQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Embedder 文本向量化接口
// 空文本返回维度为 Dimension() 的零向量，不访问上游
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments 批量向量化文档，结果与输入一一对应
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
