package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

var sentenceEnd = regexp.MustCompile(`[.!?…]["')\]]?\s`)

// SplitMessage cuts text into chunks of at most limit UTF-16 code units (the
// unit Telegram counts), preferring a paragraph break, then a sentence end,
// then a word boundary.
func SplitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf16Len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for utf16Len(text) > limit {
		window := prefixWithin(text, limit)
		cut := splitPoint(window)
		if chunk := strings.TrimSpace(text[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// splitPoint returns a byte offset into window. Boundaries in the first
// third are ignored so chunks do not degenerate into fragments.
func splitPoint(window string) int {
	floor := len(window) / 3
	if i := strings.LastIndex(window, "\n\n"); i > floor {
		return i
	}
	if m := sentenceEnd.FindAllStringIndex(window, -1); len(m) > 0 {
		if end := m[len(m)-1][1] - 1; end > floor {
			return end
		}
	}
	if i := strings.LastIndexFunc(window, unicode.IsSpace); i > 0 {
		return i
	}
	return len(window)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16Units(r)
	}
	return n
}

func utf16Units(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// prefixWithin returns the longest prefix of s that fits in limit code units.
// It always holds at least one rune so a split makes progress.
func prefixWithin(s string, limit int) string {
	used := 0
	for i, r := range s {
		used += utf16Units(r)
		if used > limit {
			if i == 0 {
				_, size := utf8.DecodeRuneInString(s)
				return s[:size]
			}
			return s[:i]
		}
	}
	return s
}
