package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold 去掉越南语声调与变音符号并转小写，"Điện thoại" → "dien thoai"
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.NewReplacer("đ", "d", "Đ", "d").Replace(out)
	return strings.ToLower(out)
}

// AmountPattern 金额短语（已 Fold 的文本），分组：数字、单位
const AmountPattern = `(\d+(?:[.,]\d+)*)\s*(trieu|tr|cu|nghin|ngan|k|million|ty|ti|billion|vnd|dong|d)?\b`

var amountExact = regexp.MustCompile(`^\s*` + AmountPattern + `\s*$`)

// ParseAmount 解析越南盾金额
// 支持 "10 triệu"、"1,5tr"、"500k"、"10.000.000đ"、"2 tỷ"
func ParseAmount(s string) (int64, bool) {
	m := amountExact.FindStringSubmatch(Fold(s))
	if m == nil {
		return 0, false
	}
	return AmountFromParts(m[1], m[2])
}

// AmountFromParts 由数字与单位计算金额
func AmountFromParts(number, unit string) (int64, bool) {
	multiplier := unitMultiplier(unit)
	if multiplier == 1 {
		n, err := strconv.ParseInt(stripSeparators(number), 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}

	// 带量级单位时单个分隔符视为小数点
	value := number
	if strings.Count(number, ".")+strings.Count(number, ",") > 1 {
		value = stripSeparators(number)
	} else {
		value = strings.ReplaceAll(value, ",", ".")
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int64(math.Round(f * float64(multiplier))), true
}

func unitMultiplier(unit string) int64 {
	switch unit {
	case "trieu", "tr", "cu", "million":
		return 1_000_000
	case "nghin", "ngan", "k":
		return 1_000
	case "ty", "ti", "billion":
		return 1_000_000_000
	default:
		return 1
	}
}

func stripSeparators(s string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(s)
}

// 确认类答复短语（已 Fold）
var (
	refusalPhrases   = []string{"khong dong y", "huy", "cancel"}
	agreementPhrases = []string{"dong y", "xac nhan", "chac chan", "dung roi", "i agree", "agree", "yes", "ok", "oke", "okay"}

	// bareRefusals 同时是疑问语气词或代词，只有出现在句首且后面全是客套词时才算拒绝
	bareRefusals = map[string]bool{"khong": true, "no": true, "thoi": true}
	fillerWords  = map[string]bool{
		"a": true, "nhe": true, "dau": true, "can": true, "cam": true, "on": true, "thanks": true,
		"thank": true, "shop": true, "ban": true, "minh": true, "toi": true, "em": true, "anh": true,
		"chi": true, "roi": true, "nua": true, "thoi": true, "vay": true, "khong": true, "di": true,
	}
)

// isBareRefusal "không"、"không cần đâu"、"thôi" 之类的整句拒绝
func isBareRefusal(words []string) bool {
	if !bareRefusals[words[0]] {
		return false
	}
	for _, w := range words[1:] {
		if !fillerWords[w] {
			return false
		}
	}
	return true
}

// maxConfirmationWords 超过该词数的消息不视为确认答复
const maxConfirmationWords = 8

// ParseConfirmation 识别同意或拒绝的简短答复，matched 为 false 表示两者都不是
func ParseConfirmation(text string) (confirmed, matched bool) {
	words := strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 || len(words) > maxConfirmationWords {
		return false, false
	}
	if isBareRefusal(words) {
		return false, true
	}
	joined := " " + strings.Join(words, " ") + " "
	for _, p := range refusalPhrases {
		if strings.Contains(joined, " "+p+" ") {
			return false, true
		}
	}
	for _, p := range agreementPhrases {
		if strings.Contains(joined, " "+p+" ") {
			return true, true
		}
	}
	// 单独的 "có" 视为同意
	if len(words) <= 2 && words[0] == "co" {
		return true, true
	}
	return false, false
}
