package taxonomy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLCatalog is the in-process Catalog backed by the subjects and
// knowledge_points tables.
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog { return &SQLCatalog{db: db} }

func (c *SQLCatalog) ListSubjects(ctx context.Context, includeInactive bool) ([]Subject, error) {
	q := `SELECT id,name FROM subjects`
	if !includeInactive {
		q += ` WHERE is_active=$1`
	}
	q += ` ORDER BY sort_order, created_at`
	var (
		rows *sql.Rows
		err  error
	)
	if includeInactive {
		rows, err = c.db.QueryContext(ctx, q)
	} else {
		rows, err = c.db.QueryContext(ctx, q, true)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *SQLCatalog) CreateSubject(ctx context.Context, s NewSubject) (Subject, error) {
	if s.Name == "" {
		return Subject{}, errors.New("subject name required")
	}
	id := uuid.NewString()
	_, err := c.db.ExecContext(ctx, `INSERT INTO subjects (id,name,code,description,sort_order,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, s.Name, s.Code, s.Description, s.SortOrder, s.IsActive, time.Now().UnixNano())
	if err != nil {
		return Subject{}, err
	}
	return Subject{ID: id, Name: s.Name}, nil
}

func (c *SQLCatalog) ListKnowledgePoints(ctx context.Context, subjectName string) ([]KnowledgePoint, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT k.id, k.name FROM knowledge_points k
		JOIN subjects s ON s.id = k.subject_id
		WHERE s.name=$1
		ORDER BY k.sort_order, k.created_at`, subjectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KnowledgePoint
	for rows.Next() {
		var kp KnowledgePoint
		if err := rows.Scan(&kp.ID, &kp.Name); err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	return out, rows.Err()
}

func (c *SQLCatalog) CreateKnowledgePoint(ctx context.Context, kp NewKnowledgePoint) (KnowledgePoint, error) {
	if kp.Name == "" {
		return KnowledgePoint{}, errors.New("knowledge point name required")
	}
	sid := kp.SubjectID
	if sid == "" {
		err := c.db.QueryRowContext(ctx, `SELECT id FROM subjects WHERE name=$1`, kp.Subject).Scan(&sid)
		if errors.Is(err, sql.ErrNoRows) {
			return KnowledgePoint{}, fmt.Errorf("subject %q not found", kp.Subject)
		}
		if err != nil {
			return KnowledgePoint{}, err
		}
	}
	id := uuid.NewString()
	_, err := c.db.ExecContext(ctx, `INSERT INTO knowledge_points
		(id,subject_id,name,description,difficulty_level,status,sort_order,is_system,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id, sid, kp.Name, kp.Description, kp.DifficultyLevel, kp.Status, kp.SortOrder, kp.IsSystem, time.Now().UnixNano())
	if err != nil {
		return KnowledgePoint{}, err
	}
	return KnowledgePoint{ID: id, Name: kp.Name}, nil
}
