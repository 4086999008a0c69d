// Package util holds small helpers shared by the HTTP clients.
package util

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultLogMaxLen bounds upstream response bodies quoted in errors and logs.
const DefaultLogMaxLen = 200

// TruncateLog cuts s to at most maxLen bytes, on a rune boundary, and notes the original length.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return cutAtRune(s, maxLen) + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog with DefaultLogMaxLen for raw bodies.
func TruncateBytes(b []byte) string {
	return TruncateLog(strings.TrimSpace(string(b)), DefaultLogMaxLen)
}

// BodySnippet reads at most DefaultLogMaxLen+1 bytes of r for an error message.
func BodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, DefaultLogMaxLen+1))
	if len(b) <= DefaultLogMaxLen {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(cutAtRune(string(b), DefaultLogMaxLen)) + "..."
}

// cutAtRune returns the longest prefix of s no longer than n bytes that does not split a rune.
func cutAtRune(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n < 0 {
		n = 0
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
