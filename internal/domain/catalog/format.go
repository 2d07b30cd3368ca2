package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var vndPrinter = message.NewPrinter(language.Vietnamese)

// FormatPrice 按越南语习惯分组显示金额，例如 "15.000.000đ"
func FormatPrice(amount int64) string {
	return vndPrinter.Sprintf("%d", amount) + "đ"
}

// ProductURL 前端商品链接，baseURL 为空时返回空串
func ProductURL(baseURL string, id int64) string {
	if baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/products/%d", strings.TrimRight(baseURL, "/"), id)
}
