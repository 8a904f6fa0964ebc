package taxonomy

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Normalize folds a subject or knowledge-point name to its comparison key:
// full-width forms become half-width, whitespace runs collapse to a single
// space, and the result is trimmed and lower-cased.
func Normalize(name string) string {
	name = width.Narrow.String(name)
	var b strings.Builder
	b.Grow(len(name))
	space := false
	for _, r := range name {
		if unicode.IsSpace(r) || r == '\u200b' || r == '\ufeff' {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// pointKey is the knowledge-point lookup key "subject:point".
func pointKey(subject, point string) string {
	return Normalize(subject) + ":" + Normalize(point)
}

// SplitPoints splits a raw knowledge-point field into names.
func SplitPoints(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', '，', '、', ';', '；', '/', '／', '|', '｜', '\n', '\r':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
