package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"
)

// 与存储层 varchar(512) 保持一致
const maxHeadlineRunes = 512

// NormalizeHeadline 清理抓取到的标题：合法 UTF-8、折叠空白、按 rune 截断。
// 去重键基于该结果，因此同一标题在不同轮次中必须得到相同的值。
func NormalizeHeadline(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	return truncateRunes(s, maxHeadlineRunes)
}

// HeadlineKey 标题的短哈希，用作缓存键
func HeadlineKey(headline string) string {
	h := sha1.New()
	h.Write([]byte(headline))
	return hex.EncodeToString(h.Sum(nil))
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
