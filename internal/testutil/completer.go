package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/shopmind/backend/internal/infrastructure/llm"
)

// ErrScriptedFailure 脚本化补全的默认失败
var ErrScriptedFailure = errors.New("scripted completer failure")

// Completer 按 Request.Task 返回预置回复的 LLM
// 未配置的 Task 返回 ErrScriptedFailure
type Completer struct {
	mu       sync.Mutex
	handlers map[string]func(*llm.Request) (string, error)
	calls    []llm.Request
}

// NewCompleter 创建脚本化补全
func NewCompleter() *Completer {
	return &Completer{handlers: make(map[string]func(*llm.Request) (string, error))}
}

// Reply 为 task 设置固定回复
func (c *Completer) Reply(task, content string) *Completer {
	return c.Handle(task, func(*llm.Request) (string, error) { return content, nil })
}

// Fail 让 task 返回指定错误
func (c *Completer) Fail(task string, err error) *Completer {
	return c.Handle(task, func(*llm.Request) (string, error) { return "", err })
}

// Handle 为 task 设置回调
func (c *Completer) Handle(task string, fn func(*llm.Request) (string, error)) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[task] = fn
	return c
}

// Complete 实现 llm.Completer
func (c *Completer) Complete(ctx context.Context, req *llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.calls = append(c.calls, *req)
	fn, ok := c.handlers[req.Task]
	c.mu.Unlock()

	if !ok {
		return "", ErrScriptedFailure
	}
	return fn(req)
}

// Calls 返回 task 的全部请求，task 为空返回所有请求
func (c *Completer) Calls(task string) []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []llm.Request
	for _, r := range c.calls {
		if task == "" || r.Task == task {
			out = append(out, r)
		}
	}
	return out
}

var _ llm.Completer = (*Completer)(nil)
