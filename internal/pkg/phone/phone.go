// Package phone 规范化 WhatsApp 手机号为 62... 格式（不带 +）
package phone

import (
	"strings"
	"unicode"
)

const minDigits = 8

// Normalize 去掉非数字字符后转换为 62 开头的格式。
// 返回 false 表示号码无效（过短，或形似内部 ID 的长串）。
func Normalize(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, raw)

	if len(digits) < minDigits {
		return "", false
	}

	// 12 位以上且不是 62/0/8 开头，视为 LID 之类的内部 ID
	if len(digits) >= 12 &&
		!strings.HasPrefix(digits, "62") &&
		!strings.HasPrefix(digits, "0") &&
		!strings.HasPrefix(digits, "8") {
		return "", false
	}

	switch {
	case strings.HasPrefix(digits, "62"):
		return digits, true
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:], true
	case strings.HasPrefix(digits, "8"):
		return "62" + digits, true
	}
	return digits, true
}
