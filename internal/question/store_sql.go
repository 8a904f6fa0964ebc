package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) CheckDuplicateTitles(ctx context.Context, titles []string) (map[string]bool, error) {
	out := map[string]bool{}
	if len(titles) == 0 {
		return out, nil
	}
	ph := make([]string, len(titles))
	args := make([]any, len(titles))
	for i, t := range titles {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = t
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT title FROM questions WHERE title IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out[t] = true
	}
	return out, rows.Err()
}

func (s *SQLStore) Create(ctx context.Context, p Payload) (string, error) {
	if p.SubjectID == "" {
		return "", errors.New("subject id required")
	}
	kj, err := json.Marshal(nonNil(p.KnowledgePointIDs))
	if err != nil {
		return "", err
	}
	oj, err := json.Marshal(nonNil(p.Options))
	if err != nil {
		return "", err
	}
	tj, err := json.Marshal(nonNil(p.Tags))
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions
		(id,title,type,difficulty,subject_id,knowledge_point_ids_json,options_json,correct_answer,explanation,tags_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		id, p.Title, string(p.Type), string(p.Difficulty), p.SubjectID, string(kj), string(oj),
		p.CorrectAnswer, p.Explanation, string(tj), time.Now().Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get loads a stored question back as a payload.
func (s *SQLStore) Get(ctx context.Context, id string) (Payload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT title,type,difficulty,subject_id,knowledge_point_ids_json,
		options_json,correct_answer,explanation,tags_json FROM questions WHERE id=$1`, id)
	var (
		p          Payload
		typ, diff  string
		kj, oj, tj string
	)
	if err := row.Scan(&p.Title, &typ, &diff, &p.SubjectID, &kj, &oj, &p.CorrectAnswer, &p.Explanation, &tj); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Payload{}, ErrNotFound
		}
		return Payload{}, err
	}
	p.Type, p.Difficulty = Type(typ), Difficulty(diff)
	if err := json.Unmarshal([]byte(kj), &p.KnowledgePointIDs); err != nil {
		return Payload{}, err
	}
	if err := json.Unmarshal([]byte(oj), &p.Options); err != nil {
		return Payload{}, err
	}
	if err := json.Unmarshal([]byte(tj), &p.Tags); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
