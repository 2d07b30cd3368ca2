// Package llm 大模型补全：OpenAI 兼容接口直连、langchaingo 适配、JSON 容错解析与 Token 预算
package llm

import "context"

// Request 补全请求
type Request struct {
	// Task 调用用途，仅用于日志
	Task   string
	System string
	User   string
	// Temperature 为 nil 时使用配置默认值
	Temperature *float64
	// MaxTokens 0 表示不限制
	MaxTokens int
	// JSON 要求模型输出 JSON 对象（提供方支持时生效）
	JSON bool
}

// Temperature 便于构造 Request.Temperature
func Temperature(v float64) *float64 {
	return &v
}

// Completer 文本补全
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
}

// CompleterFunc 函数适配器
type CompleterFunc func(ctx context.Context, req *Request) (string, error)

// Complete 实现 Completer
func (f CompleterFunc) Complete(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}
