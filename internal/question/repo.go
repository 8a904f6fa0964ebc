package question

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("question not found")

// Repository is the persistence side of the import pipeline.
type Repository interface {
	// CheckDuplicateTitles returns the subset of titles that already exist.
	CheckDuplicateTitles(ctx context.Context, titles []string) (map[string]bool, error)
	Create(ctx context.Context, p Payload) (string, error)
}
