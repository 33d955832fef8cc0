// Package utils 提供通用文本处理工具
package utils

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// ExtractJSON 尝试从模型输出中截取第一个完整的 JSON 对象或数组。
// 模型可能会在 JSON 前后夹杂说明文字或代码围栏。
func ExtractJSON(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return raw
	}

	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	start, end := -1, -1
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		end = strings.LastIndex(raw, "}")
	case arrStart >= 0:
		start = arrStart
		end = strings.LastIndex(raw, "]")
	}
	if start < 0 || end <= start {
		return raw
	}
	raw = raw[start : end+1]

	dec := json.NewDecoder(strings.NewReader(raw))
	for {
		if _, err := dec.Token(); err != nil {
			if errors.Is(err, io.EOF) {
				return raw
			}
			return strings.TrimSpace(s)
		}
	}
}

// TruncateRunes 按字符数截断，不会切断多字节字符
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// CountWords 按空白切分统计词数
func CountWords(s string) int {
	return len(strings.Fields(s))
}
