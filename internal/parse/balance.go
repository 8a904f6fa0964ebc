package parse

import "unicode/utf8"

// Delimiter pairs the extractor balances. Mixed-width pairs such as "(" with
// "）" are deliberately not matched.
var closers = map[rune]rune{
	'(': ')',
	'（': '）',
	'{': '}',
	'｛': '｝',
}

// MatchClose scans text from byte offset start, which must sit just after an
// opening delimiter, and returns the byte offset of the closing delimiter
// that brings the nesting depth back to zero. It returns -1 when the text
// ends first.
func MatchClose(text string, open, closing rune, start int) int {
	if start < 0 || start > len(text) {
		return -1
	}
	depth := 1
	for i, r := range text[start:] {
		switch r {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return start + i
			}
		}
	}
	return -1
}

// Balanced resolves the delimiter pair from the rune at openIdx and returns
// the enclosed text plus the byte offset just past the closing delimiter.
func Balanced(text string, openIdx int) (inner string, end int, ok bool) {
	if openIdx < 0 || openIdx >= len(text) {
		return "", -1, false
	}
	open, size := utf8.DecodeRuneInString(text[openIdx:])
	closing, known := closers[open]
	if !known {
		return "", -1, false
	}
	c := MatchClose(text, open, closing, openIdx+size)
	if c < 0 {
		return "", -1, false
	}
	return text[openIdx+size : c], c + utf8.RuneLen(closing), true
}
