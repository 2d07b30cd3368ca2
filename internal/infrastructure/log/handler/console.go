// Package handler 提供开发时使用的彩色控制台 slog 处理器
package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ANSI 颜色代码
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

// ConsoleHandler 控制台日志处理器（彩色单行输出）
type ConsoleHandler struct {
	opts   *slog.HandlerOptions
	mu     *sync.Mutex
	out    io.Writer
	attrs  []slog.Attr
	groups []string
}

// NewConsoleHandler 创建控制台处理器
func NewConsoleHandler(out io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ConsoleHandler{
		out:  out,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

// Enabled 检查日志级别是否启用
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.opts.Level.Level()
}

// Handle 处理日志记录
// 格式：LEVEL time [module/component] chat=… req=… message key=value ...
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var module, component, chatID, requestID string
	fields := make([]string, 0, len(h.attrs)+r.NumAttrs())

	collect := func(a slog.Attr) {
		switch a.Key {
		case "module":
			module = a.Value.String()
		case "component":
			component = a.Value.String()
		case "chat_id":
			chatID = a.Value.String()
		case "request_id":
			requestID = shortID(a.Value.String())
		case "service":
			// 控制台只有一个服务，不重复输出
		default:
			key := a.Key
			if len(h.groups) > 0 {
				key = strings.Join(h.groups, ".") + "." + key
			}
			fields = append(fields, fmt.Sprintf("%s=%v", key, a.Value.Any()))
		}
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	prefix := ""
	switch {
	case module != "" && component != "":
		prefix = fmt.Sprintf(" [%s/%s]", module, component)
	case module != "":
		prefix = fmt.Sprintf(" [%s]", module)
	}
	if chatID != "" {
		prefix += " chat=" + chatID
	}
	if requestID != "" {
		prefix += " req=" + requestID
	}

	line := fmt.Sprintf("%s%-5s%s %s%s %s",
		levelColor(r.Level), r.Level.String(), colorReset,
		r.Time.Format("2006-01-02T15:04:05.000"),
		prefix,
		r.Message,
	)
	if len(fields) > 0 {
		line += " " + strings.Join(fields, " ")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.out, line)
	return err
}

// WithAttrs 返回带有额外属性的处理器
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup 返回带有分组的处理器
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

// shortID UUID 形式的请求 ID 只保留前 8 位
func shortID(id string) string {
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}

// levelColor 返回日志级别对应的颜色
func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorGreen
	default:
		return colorBlue
	}
}
