package taxonomy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/db"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/logging"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

func openCatalog(t *testing.T) *taxonomy.SQLCatalog {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return taxonomy.NewSQLCatalog(conn)
}

func TestSQLCatalog(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	java, err := c.CreateSubject(ctx, taxonomy.NewSubject{Name: "Java", Code: "JAVA", IsActive: true})
	require.NoError(t, err)
	_, err = c.CreateSubject(ctx, taxonomy.NewSubject{Name: "Retired", IsActive: false})
	require.NoError(t, err)
	_, err = c.CreateSubject(ctx, taxonomy.NewSubject{Name: "Java", IsActive: true})
	assert.Error(t, err, "names are unique")

	all, err := c.ListSubjects(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := c.ListSubjects(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []taxonomy.Subject{java}, active)

	kp, err := c.CreateKnowledgePoint(ctx, taxonomy.NewKnowledgePoint{Name: "集合", SubjectID: java.ID, Status: "ACTIVE", DifficultyLevel: "MEDIUM"})
	require.NoError(t, err)
	byName, err := c.CreateKnowledgePoint(ctx, taxonomy.NewKnowledgePoint{Name: "泛型", Subject: "Java", Status: "ACTIVE", DifficultyLevel: "MEDIUM", SortOrder: 1})
	require.NoError(t, err)
	_, err = c.CreateKnowledgePoint(ctx, taxonomy.NewKnowledgePoint{Name: "x", Subject: "Nope"})
	assert.Error(t, err)

	kps, err := c.ListKnowledgePoints(ctx, "Java")
	require.NoError(t, err)
	assert.Equal(t, []taxonomy.KnowledgePoint{kp, byName}, kps)
}

func TestReconcilerOverSQLCatalog(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)
	r := taxonomy.NewReconciler(c, logging.Discard(), "")
	qs := []question.ParsedQuestion{
		{Title: "HashMap 的底层结构", Subject: "Ｊａｖａ", KnowledgePoint: "集合"},
		{Title: "goroutine 调度", Subject: "Go", KnowledgePoint: "并发、调度"},
	}

	snap, err := r.ComputeMissing(ctx, qs)
	require.NoError(t, err)
	assert.Len(t, snap.MissingSubjects, 2)
	_, err = r.ProvisionMissing(ctx, snap)
	require.NoError(t, err)

	again, err := r.ComputeMissing(ctx, qs)
	require.NoError(t, err)
	assert.False(t, again.HasMissing())
	ids, err := r.ResolveKnowledgePoints(ctx, qs[1], again)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	subjects, err := c.ListSubjects(ctx, true)
	require.NoError(t, err)
	assert.Len(t, subjects, 2)
}
