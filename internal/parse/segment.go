package parse

import (
	"regexp"
	"strings"
)

// A block starts at a line carrying an ordinal ("12." "12、" "12．") and at
// least one 【 tag.
var blockStartRe = regexp.MustCompile(`(?m)^[ \t\x{3000}]*\d+[.、．][^\n]*?【`)

// Segment splits exported document text into question blocks in document
// order. Text before the first block is dropped.
func Segment(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	locs := blockStartRe.FindAllStringIndex(text, -1)
	blocks := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if b := strings.TrimSpace(text[loc[0]:end]); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}
