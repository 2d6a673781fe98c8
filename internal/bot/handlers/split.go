package handlers

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// MaxMessageLength is Telegram's limit on message text. Telegram counts it in
// UTF-16 code units, so characters outside the BMP such as emoji count twice.
const MaxMessageLength = 4096

// SplitMessage cuts text into chunks of at most limit UTF-16 code units. Cuts
// prefer the last newline, then the last space, inside each window.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf16Len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	rest := text
	for utf16Len(rest) > limit {
		window := utf16Prefix(rest, limit)

		cut := strings.LastIndex(window, "\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, " ")
		}
		if cut <= 0 {
			cut = len(window)
		}

		chunk := strings.TrimRight(rest[:cut], " \n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = strings.TrimLeft(rest[cut:], " \n")
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// utf16Prefix returns the longest prefix of s that fits in n UTF-16 code
// units. It always holds at least one rune so that splitting makes progress.
func utf16Prefix(s string, n int) string {
	used := 0
	for pos, r := range s {
		w := runeUnits(r)
		if used+w > n {
			if pos == 0 {
				_, size := utf8.DecodeRuneInString(s)
				return s[:size]
			}
			return s[:pos]
		}
		used += w
	}
	return s
}

func runeUnits(r rune) int {
	if w := utf16.RuneLen(r); w > 0 {
		return w
	}
	return 1
}
