package parse

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// match is one located field: Start is where its marker (or delimiter)
// begins, End is just past it, Text is the extracted content.
type match struct {
	Start, End int
	Text       string
}

// matcher looks for a field in block at or after byte offset from.
type matcher struct {
	name string
	find func(block string, from int) (match, bool)
}

// firstMatch tries ms in priority order.
func firstMatch(ms []matcher, block string, from int) (match, string, bool) {
	for _, m := range ms {
		if got, ok := m.find(block, from); ok {
			return got, m.name, true
		}
	}
	return match{}, "", false
}

var (
	answerParenRe  = regexp.MustCompile(`答案\s*[:：]\s*[（(]`)
	answerLineRe   = regexp.MustCompile(`答案\s*[:：][ \t\x{3000}]*([^\n]*)`)
	standaloneRe   = regexp.MustCompile(`(?m)^[ \t\x{3000}]*[（(]`)
	optionLetterRe = regexp.MustCompile(`[A-Z][.．]\s`)
	explainBraceRe = regexp.MustCompile(`答案解析\s*[:：]\s*[{｛]`)
	braceLineRe    = regexp.MustCompile(`(?m)^[ \t\x{3000}]*[{｛]`)
	explainFreeRe  = regexp.MustCompile(`(?:解析|详解)\s*[:：][ \t\x{3000}]*([^\n]*)`)
	optionLookBack = 50
)

// answerMatchers: the parenthesised value after 答案：, then a standalone
// parenthesised line, then bare text after 答案：.
var answerMatchers = []matcher{
	{name: "marker", find: markerParen},
	{name: "standalone", find: standaloneParen},
	{name: "marker-line", find: markerLine},
}

// explanationMatchers: the braced value after 答案解析：, then the last
// standalone brace pair, then a one-line 解析：/详解： note.
var explanationMatchers = []matcher{
	{name: "marker", find: explanationBrace},
	{name: "standalone", find: lastStandaloneBrace},
	{name: "free-text", find: freeTextExplanation},
}

func markerParen(block string, from int) (match, bool) {
	loc := answerParenRe.FindStringIndex(block[from:])
	if loc == nil {
		return match{}, false
	}
	open := from + loc[1] - lastRuneLen(block[from+loc[0]:from+loc[1]])
	inner, end, ok := Balanced(block, open)
	if !ok {
		return match{}, false
	}
	return match{Start: from + loc[0], End: end, Text: inner}, true
}

// standaloneParen takes the first parenthesised group that sits on its own
// line. A group with an option marker ("B. ") in the preceding 50 runes is
// assumed to continue an option body and is skipped; this is a heuristic.
func standaloneParen(block string, from int) (match, bool) {
	for _, loc := range standaloneRe.FindAllStringIndex(block[from:], -1) {
		open := from + loc[1] - lastRuneLen(block[from+loc[0]:from+loc[1]])
		inner, end, ok := Balanced(block, open)
		if !ok || !restOfLineBlank(block, end) {
			continue
		}
		if optionLetterRe.MatchString(lookBack(block, open, optionLookBack)) {
			continue
		}
		return match{Start: from + loc[0], End: end, Text: inner}, true
	}
	return match{}, false
}

func markerLine(block string, from int) (match, bool) {
	m := answerLineRe.FindStringSubmatchIndex(block[from:])
	if m == nil {
		return match{}, false
	}
	text := strings.TrimSpace(block[from+m[2] : from+m[3]])
	if text == "" {
		return match{}, false
	}
	return match{Start: from + m[0], End: from + m[1], Text: text}, true
}

func explanationBrace(block string, from int) (match, bool) {
	loc := explainBraceRe.FindStringIndex(block[from:])
	if loc == nil {
		return match{}, false
	}
	open := from + loc[1] - lastRuneLen(block[from+loc[0]:from+loc[1]])
	inner, end, ok := Balanced(block, open)
	if !ok {
		return match{}, false
	}
	return match{Start: from + loc[0], End: end, Text: inner}, true
}

func lastStandaloneBrace(block string, from int) (match, bool) {
	locs := braceLineRe.FindAllStringIndex(block[from:], -1)
	for i := len(locs) - 1; i >= 0; i-- {
		loc := locs[i]
		open := from + loc[1] - lastRuneLen(block[from+loc[0]:from+loc[1]])
		inner, end, ok := Balanced(block, open)
		if !ok {
			continue
		}
		return match{Start: from + loc[0], End: end, Text: inner}, true
	}
	return match{}, false
}

func freeTextExplanation(block string, from int) (match, bool) {
	m := explainFreeRe.FindStringSubmatchIndex(block[from:])
	if m == nil {
		return match{}, false
	}
	text := strings.TrimSpace(block[from+m[2] : from+m[3]])
	if text == "" {
		return match{}, false
	}
	return match{Start: from + m[0], End: from + m[1], Text: text}, true
}

func lastRuneLen(s string) int {
	_, size := utf8.DecodeLastRuneInString(s)
	return size
}

func restOfLineBlank(s string, from int) bool {
	rest := s[from:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest) == ""
}

// lookBack returns up to n runes of s that precede byte offset at.
func lookBack(s string, at, n int) string {
	start := at
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:start])
		start -= size
	}
	return s[start:at]
}
