package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// 在包初始化时设置离线加载器
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// approxCharsPerToken 编码不可用时的估算比例
const approxCharsPerToken = 4

// TokenCounter 使用 tiktoken 计算与截断提示词
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	counterInstance *TokenCounter
	counterOnce     sync.Once
)

// NewTokenCounter 获取 TokenCounter 单例
// cl100k_base 加载失败时退化为按字符估算
func NewTokenCounter() *TokenCounter {
	counterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			counterInstance = &TokenCounter{}
			return
		}
		counterInstance = &TokenCounter{encoding: enc}
	})
	return counterInstance
}

// Count 计算文本的 Token 数量
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding == nil {
		return (utf8.RuneCountInString(text) + approxCharsPerToken - 1) / approxCharsPerToken
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate 将文本截断到 maxTokens 以内，maxTokens <= 0 时原样返回
func (c *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	if c.encoding == nil {
		runes := []rune(text)
		limit := maxTokens * approxCharsPerToken
		if len(runes) <= limit {
			return text
		}
		return string(runes[:limit])
	}

	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	out := c.encoding.Decode(tokens[:maxTokens])
	// 截断点可能落在多字节字符中间
	for !utf8.ValidString(out) && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out
}

// TruncateRunes 按字符数截断
func TruncateRunes(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars])
}
