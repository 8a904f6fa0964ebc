package parse

import (
	"strings"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
)

// Spreadsheet template columns.
const (
	colTitle = iota
	colType
	colDifficulty
	colSubject
	colKnowledgePoint
	colAnswer
	colExplanation
	colOptions
	colTags
)

// ExtractRow parses one data row of the import template. ok is false when
// the title or the answer cell is empty.
func (e *Extractor) ExtractRow(row []string) (question.ParsedQuestion, bool) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	title, raw := cell(colTitle), cell(colAnswer)
	if title == "" || raw == "" {
		return question.ParsedQuestion{}, false
	}
	q := question.ParsedQuestion{
		Title:          title,
		Type:           question.ParseType(cell(colType)),
		Difficulty:     question.ParseDifficulty(cell(colDifficulty)),
		Subject:        cell(colSubject),
		KnowledgePoint: cell(colKnowledgePoint),
		Explanation:    cell(colExplanation),
	}
	if q.Type.IsChoice() {
		for _, o := range strings.Split(cell(colOptions), "|") {
			if o = strings.TrimSpace(o); o != "" {
				q.Options = append(q.Options, o)
			}
		}
	}
	for _, t := range strings.FieldsFunc(cell(colTags), func(r rune) bool { return r == ',' || r == '，' }) {
		q.AddTag(t)
	}

	switch q.Type {
	case question.SingleChoice, question.MultipleChoice:
		q.CorrectAnswer = EncodeChoiceAnswer(raw, len(q.Options), e.log.WithField("title", title))
	case question.TrueFalse:
		q.CorrectAnswer = NormalizeTrueFalse(raw)
	default:
		q.CorrectAnswer = raw
	}
	return q, true
}

// ExtractRows parses data rows (header already removed).
func (e *Extractor) ExtractRows(rows [][]string) []question.ParsedQuestion {
	out := make([]question.ParsedQuestion, 0, len(rows))
	for _, r := range rows {
		if q, ok := e.ExtractRow(r); ok {
			out = append(out, q)
		}
	}
	return out
}
