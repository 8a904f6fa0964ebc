package taxonomy

import "context"

type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type KnowledgePoint struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type NewSubject struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	SortOrder   int    `json:"sortOrder"`
	IsActive    bool   `json:"isActive"`
}

type NewKnowledgePoint struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Subject         string `json:"subject"`
	SubjectID       string `json:"subjectId"`
	DifficultyLevel string `json:"difficultyLevel"`
	Status          string `json:"status"`
	SortOrder       int    `json:"sortOrder"`
	IsSystem        bool   `json:"isSystem"`
}

// Catalog is the backend taxonomy the importer reconciles against.
type Catalog interface {
	ListSubjects(ctx context.Context, includeInactive bool) ([]Subject, error)
	CreateSubject(ctx context.Context, s NewSubject) (Subject, error)
	ListKnowledgePoints(ctx context.Context, subjectName string) ([]KnowledgePoint, error)
	CreateKnowledgePoint(ctx context.Context, kp NewKnowledgePoint) (KnowledgePoint, error)
}
