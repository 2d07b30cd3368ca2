package middleware

import (
	"bytes"
	"io"
	"mime"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxDecodeBody 超过该大小的请求体不做转码
const maxDecodeBody = 1 << 20

// EnsureUTF8Body 请求体统一为 NFC 形式的 UTF-8
// 旧版 Windows 客户端以 Windows-1258（越南语代码页）发送请求体，声调是独立的组合符号，
// 解码后再做 NFC 组合，否则与库中预组合的文字无法匹配
func EnsureUTF8Body() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 || c.Request.ContentLength > maxDecodeBody || !textual(c.ContentType()) {
			c.Next()
			return
		}

		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDecodeBody+1))
		_ = c.Request.Body.Close()
		if err != nil || len(raw) > maxDecodeBody {
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			c.Next()
			return
		}

		body := raw
		if !utf8.Valid(raw) {
			if decoded, err := decodeWindows1258(raw); err == nil && utf8.Valid(decoded) {
				body = decoded
			}
		}
		if utf8.Valid(body) && !norm.NFC.IsNormal(body) {
			body = norm.NFC.Bytes(body)
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}

// textual 只转码 JSON 与表单请求
func textual(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType == ""
	}
	switch mediaType {
	case "application/json", "application/x-www-form-urlencoded", "text/plain":
		return true
	}
	return false
}

func decodeWindows1258(raw []byte) ([]byte, error) {
	return io.ReadAll(transform.NewReader(bytes.NewReader(raw), charmap.Windows1258.NewDecoder()))
}
