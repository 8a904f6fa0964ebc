package question

import "strings"

type Type string

const (
	SingleChoice   Type = "SINGLE_CHOICE"
	MultipleChoice Type = "MULTIPLE_CHOICE"
	FillBlank      Type = "FILL_BLANK"
	TrueFalse      Type = "TRUE_FALSE"
	ShortAnswer    Type = "SHORT_ANSWER"
)

// IsChoice reports whether answers are encoded as option letters.
func (t Type) IsChoice() bool { return t == SingleChoice || t == MultipleChoice }

type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

// Display labels used by word exports and spreadsheet templates.
var typeLabels = map[string]Type{
	"单选题": SingleChoice,
	"单选":  SingleChoice,
	"多选题": MultipleChoice,
	"多选":  MultipleChoice,
	"填空题": FillBlank,
	"填空":  FillBlank,
	"判断题": TrueFalse,
	"判断":  TrueFalse,
	"简答题": ShortAnswer,
	"简答":  ShortAnswer,
}

var difficultyLabels = map[string]Difficulty{
	"简单": Easy,
	"中等": Medium,
	"困难": Hard,
}

// ParseType maps a display label (单选题 ...) or an enum code to a Type.
// Unknown labels yield "".
func ParseType(label string) Type {
	label = strings.TrimSpace(label)
	if t, ok := typeLabels[label]; ok {
		return t
	}
	switch t := Type(strings.ToUpper(label)); t {
	case SingleChoice, MultipleChoice, FillBlank, TrueFalse, ShortAnswer:
		return t
	}
	return ""
}

func ParseDifficulty(label string) Difficulty {
	label = strings.TrimSpace(label)
	if d, ok := difficultyLabels[label]; ok {
		return d
	}
	switch d := Difficulty(strings.ToUpper(label)); d {
	case Easy, Medium, Hard:
		return d
	}
	return ""
}

// ParsedQuestion is one extracted question before persistence. Subject and
// KnowledgePoint hold raw display names; KnowledgePoint may list several.
type ParsedQuestion struct {
	Title          string     `json:"title"`
	Type           Type       `json:"type"`
	Difficulty     Difficulty `json:"difficulty"`
	Subject        string     `json:"subject"`
	KnowledgePoint string     `json:"knowledge_point"`
	Options        []string   `json:"options,omitempty"`
	CorrectAnswer  string     `json:"correct_answer"`
	Explanation    string     `json:"explanation,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
}

// Payload is what the Question Repository persists.
type Payload struct {
	Title             string     `json:"title"`
	Type              Type       `json:"type"`
	Difficulty        Difficulty `json:"difficulty"`
	SubjectID         string     `json:"subjectId"`
	KnowledgePointIDs []string   `json:"knowledgePointIds"`
	Options           []string   `json:"options,omitempty"`
	CorrectAnswer     string     `json:"correctAnswer"`
	Explanation       string     `json:"explanation,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
}

// AddTag adds t to the tag set.
func (q *ParsedQuestion) AddTag(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	for _, have := range q.Tags {
		if have == t {
			return
		}
	}
	q.Tags = append(q.Tags, t)
}
