// Package chunker 把归一化后的文本切成有界长度、有序的文本块。
package chunker

import (
	"errors"
	"strings"
)

// DefaultMaxChars 是每个分块的默认最大字符数。
const DefaultMaxChars = 1500

// ErrInvalidMaxChars 表示 maxChars 小于 1，属于配置错误。
var ErrInvalidMaxChars = errors.New("chunker: maxChars must be >= 1")

// Split 使用贪心前向扫描切分文本。
//
// 每一步取窗口 [start, start+maxChars)，若窗口未到文本末尾，则在窗口内从后向前
// 寻找最后一个换行符，找不到再找最后一个空格，切点位于分隔符之后；
// 两者都没有时在窗口末尾硬切。分块两端空白会被去掉，空块丢弃但游标照常前进。
// 长度按 rune 计算，切点不会落在 UTF-8 编码中间。
func Split(text string, maxChars int) ([]string, error) {
	if maxChars < 1 {
		return nil, ErrInvalidMaxChars
	}

	runes := []rune(strings.TrimSpace(text))
	length := len(runes)
	if length == 0 {
		return []string{}, nil
	}

	chunks := make([]string, 0, length/maxChars+1)
	start := 0
	for start < length {
		end := start + maxChars
		if end > length {
			end = length
		}

		cut := end
		if end < length {
			if i := lastIndex(runes[start:end], '\n'); i >= 0 {
				cut = start + i + 1
			} else if i := lastIndex(runes[start:end], ' '); i >= 0 {
				cut = start + i + 1
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		// cut > start 恒成立：分隔符下标 >= 0，所以切点至少前进一个字符。
		start = cut
	}
	return chunks, nil
}

func lastIndex(window []rune, r rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == r {
			return i
		}
	}
	return -1
}
