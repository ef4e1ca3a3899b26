package matching

import (
	"bytes"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxCVTextRunes 限制交给评分后端的 CV 文本长度。
const maxCVTextRunes = 12000

var errEmptyDocument = errors.New("cv document is empty")

// PlainTextExtractor 是尽力而为的文本提取器：
// 纯文本直接归一化空白；二进制文档（PDF/DOC/DOCX）提取其中可打印的片段。
// 对相同输入的输出是确定的，只有空输入会返回错误。
type PlainTextExtractor struct {
	// MinRunLength 为二进制文档中被保留的最短可打印片段，默认 4。
	MinRunLength int
}

// Extract 实现 TextExtractor。
func (e PlainTextExtractor) Extract(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", errEmptyDocument
	}

	var text string
	if looksLikeText(data) {
		text = string(data)
	} else {
		text = printableRuns(data, e.minRun())
	}

	return truncateRunes(strings.Join(strings.Fields(text), " "), maxCVTextRunes), nil
}

func (e PlainTextExtractor) minRun() int {
	if e.MinRunLength <= 0 {
		return 4
	}
	return e.MinRunLength
}

func looksLikeText(data []byte) bool {
	if bytes.HasPrefix(data, []byte("%PDF")) || bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return false
	}
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if r == 0 || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return false
		}
	}
	return true
}

// printableRuns 类似 strings(1)：保留足够长的可打印字符片段。
func printableRuns(data []byte, minRun int) string {
	var (
		out     strings.Builder
		current []rune
	)
	flush := func() {
		if len(current) >= minRun {
			if out.Len() > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(string(current))
		}
		current = current[:0]
	}

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || r == ' ') {
			current = append(current, r)
			continue
		}
		flush()
	}
	flush()

	return out.String()
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
