package parse

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
)

var (
	headerRe = regexp.MustCompile(`^[ \t\x{3000}]*\d+[.、．]\s*([^【]*)【`)
	optionRe = regexp.MustCompile(`(?m)^[ \t\x{3000}]*([A-Z])[.．、][ \t\x{3000}]*`)
)

// Extractor turns exported documents and spreadsheet rows into
// ParsedQuestions.
type Extractor struct {
	log logrus.FieldLogger
}

func NewExtractor(log logrus.FieldLogger) *Extractor {
	return &Extractor{log: log}
}

// ParseText segments text and extracts every well-formed block. Blocks
// without the minimal shape are dropped silently.
func (e *Extractor) ParseText(text string) []question.ParsedQuestion {
	blocks := Segment(text)
	out := make([]question.ParsedQuestion, 0, len(blocks))
	for _, b := range blocks {
		if q, ok := e.Extract(b); ok {
			out = append(out, q)
		}
	}
	e.log.WithFields(logrus.Fields{"blocks": len(blocks), "questions": len(out)}).Debug("document parsed")
	return out
}

// Extract parses one block. ok is false when the block lacks an ordinal
// title or the four positional tags.
func (e *Extractor) Extract(block string) (question.ParsedQuestion, bool) {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	h := headerRe.FindStringSubmatchIndex(block)
	if h == nil {
		return question.ParsedQuestion{}, false
	}
	title := strings.TrimSpace(block[h[2]:h[3]])
	tags, tagEnd := tagRun(block, h[1]-len("【"))
	if len(tags) < 4 {
		return question.ParsedQuestion{}, false
	}

	q := question.ParsedQuestion{
		Title:          title,
		Type:           question.ParseType(tags[0]),
		Difficulty:     question.ParseDifficulty(tags[1]),
		Subject:        tags[2],
		KnowledgePoint: tags[3],
	}
	for _, t := range tags[4:] {
		q.AddTag(t)
	}
	log := e.log.WithField("title", title)

	ans, ansKind, hasAns := firstMatch(answerMatchers, block, tagEnd)
	explFrom := tagEnd
	if hasAns {
		explFrom = ans.End
	}
	expl, _, hasExpl := firstMatch(explanationMatchers, block, explFrom)
	if hasExpl {
		q.Explanation = trimBlock(expl.Text)
	}

	if q.Type.IsChoice() {
		optEnd := len(block)
		if hasAns {
			optEnd = ans.Start
		} else if hasExpl {
			optEnd = expl.Start
		}
		q.Options = options(block[tagEnd:optEnd])
	}

	raw := ""
	if hasAns {
		raw = ans.Text
		log.WithField("matcher", ansKind).Debug("answer located")
	}
	switch q.Type {
	case question.SingleChoice, question.MultipleChoice:
		q.CorrectAnswer = EncodeChoiceAnswer(raw, len(q.Options), log)
	case question.TrueFalse:
		q.CorrectAnswer = NormalizeTrueFalse(raw)
		if q.CorrectAnswer == "" && strings.TrimSpace(raw) != "" {
			log.WithField("answer", raw).Warn("unrecognised true/false answer")
		}
	case question.FillBlank:
		q.CorrectAnswer = strings.TrimSpace(raw)
		if q.CorrectAnswer == "" {
			q.CorrectAnswer = BlankAnnotation(title)
		}
	default:
		q.CorrectAnswer = trimBlock(raw)
	}
	return q, true
}

// tagRun reads consecutive 【...】 tokens starting at byte offset at and
// returns their trimmed contents and the offset just past the last one.
func tagRun(block string, at int) ([]string, int) {
	var tags []string
	pos := at
	for {
		rest := block[pos:]
		trimmed := strings.TrimLeft(rest, " \t\n\u3000")
		if !strings.HasPrefix(trimmed, "【") {
			return tags, pos
		}
		open := pos + len(rest) - len(trimmed)
		body := block[open+len("【"):]
		end := strings.Index(body, "】")
		if end < 0 {
			return tags, pos
		}
		tags = append(tags, strings.TrimSpace(body[:end]))
		pos = open + len("【") + end + len("】")
	}
}

// options splits the option area into bodies in display order. A body runs
// until the next option line and keeps its own line breaks.
func options(area string) []string {
	locs := optionRe.FindAllStringIndex(area, -1)
	out := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(area)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, trimBlock(area[loc[1]:end]))
	}
	return out
}
