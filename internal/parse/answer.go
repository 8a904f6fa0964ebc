package parse

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/width"
)

// EncodeChoiceAnswer reduces a raw choice answer such as "（ABD）" or
// "A, C" to upper-case option letters joined by commas. Letters that do not
// index one of optionCount options are dropped and logged.
func EncodeChoiceAnswer(raw string, optionCount int, log logrus.FieldLogger) string {
	seen := map[rune]bool{}
	var letters []string
	for _, r := range strings.ToUpper(width.Narrow.String(raw)) {
		if r < 'A' || r > 'Z' || seen[r] {
			continue
		}
		seen[r] = true
		if int(r-'A') >= optionCount {
			log.WithFields(logrus.Fields{"letter": string(r), "options": optionCount}).
				Warn("answer letter has no matching option; dropped")
			continue
		}
		letters = append(letters, string(r))
	}
	return strings.Join(letters, ",")
}

var trueFalseValues = map[string]string{
	"√":     "true",
	"true":  "true",
	"正确":    "true",
	"×":     "false",
	"✗":     "false",
	"false": "false",
	"错误":    "false",
}

// NormalizeTrueFalse maps the accepted spellings to "true" or "false".
// Anything else yields "".
func NormalizeTrueFalse(raw string) string {
	return trueFalseValues[strings.ToLower(strings.TrimSpace(raw))]
}

var blankRunRe = regexp.MustCompile(`[_＿]+`)

// BlankAnnotation returns the note written after the first run of
// underscores on the first line of title, e.g. "入口方法是____（main）"
// gives "main".
func BlankAnnotation(title string) string {
	line := title
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	loc := blankRunRe.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	rest := strings.TrimSpace(line[loc[1]:])
	if rest == "" {
		return ""
	}
	if inner, end, ok := Balanced(rest, 0); ok && strings.TrimSpace(rest[end:]) == "" {
		return strings.TrimSpace(inner)
	}
	return rest
}

// trimBlock drops blank leading and trailing lines but keeps the
// indentation inside a multi-line answer.
func trimBlock(s string) string {
	if !strings.Contains(s, "\n") {
		return strings.TrimSpace(s)
	}
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}
	return strings.Join(lines, "\n")
}
