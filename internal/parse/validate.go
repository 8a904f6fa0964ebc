package parse

import (
	"fmt"
	"strings"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
)

// Validate partitions qs into importable questions and one diagnostic per
// rejected question. len(valid)+len(invalid) == len(qs) always holds.
func Validate(qs []question.ParsedQuestion) (valid []question.ParsedQuestion, invalid []string) {
	for i, q := range qs {
		missing := missingFields(q)
		if len(missing) == 0 {
			valid = append(valid, q)
			continue
		}
		label := fmt.Sprintf("question %d", i+1)
		if t := strings.TrimSpace(q.Title); t != "" {
			label += fmt.Sprintf(" %q", t)
		}
		invalid = append(invalid, fmt.Sprintf("%s: missing %s", label, strings.Join(missing, ", ")))
	}
	return valid, invalid
}

func missingFields(q question.ParsedQuestion) []string {
	var missing []string
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	if blank(q.Title) {
		missing = append(missing, "title")
	}
	if q.Type == "" {
		missing = append(missing, "type")
	}
	if q.Difficulty == "" {
		missing = append(missing, "difficulty")
	}
	if blank(q.Subject) {
		missing = append(missing, "subject")
	}
	if blank(q.KnowledgePoint) {
		missing = append(missing, "knowledge point")
	}
	if blank(q.CorrectAnswer) {
		missing = append(missing, "correct answer")
	}
	if q.Type.IsChoice() && len(q.Options) == 0 {
		missing = append(missing, "options")
	}
	return missing
}
