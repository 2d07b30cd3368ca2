package llm

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON 从模型输出中解析 JSON 对象到 v
// 依次尝试：整体严格解析、代码块内容、第一个括号配平的 {...} 子串；全部失败返回 false，v 保持不变
func ExtractJSON(content string, v any) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	if decodeStrict(content, v) {
		return true
	}
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		if decodeStrict(strings.TrimSpace(m[1]), v) {
			return true
		}
	}
	if obj, ok := firstObject(content); ok && decodeStrict(obj, v) {
		return true
	}
	return false
}

// ExtractObject 解析为 map，失败返回 nil, false
// 数字保留为 json.Number，调用方自行转换
func ExtractObject(content string) (map[string]any, bool) {
	var out map[string]any
	if !ExtractJSON(content, &out) || out == nil {
		return nil, false
	}
	return out, true
}

// decodeStrict 只接受单个 JSON 对象
func decodeStrict(s string, v any) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	// 先解到临时值，避免部分写入 v
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return false
	}
	if dec.More() {
		return false
	}
	inner := json.NewDecoder(bytes.NewReader(raw))
	inner.UseNumber()
	return inner.Decode(v) == nil
}

// firstObject 查找第一个括号配平的对象子串，忽略字符串内的括号
func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(s)
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}
