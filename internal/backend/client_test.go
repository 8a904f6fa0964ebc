package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/backend"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/logging"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

func newServer(t *testing.T, mux *http.ServeMux) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return backend.NewWithHTTP(srv.URL, srv.Client(), 2, logging.Discard())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/subjects", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "true", r.URL.Query().Get("includeInactive"))
			writeJSON(w, map[string]any{"code": 200, "message": "ok", "data": []map[string]any{{"id": 7, "name": "Java"}}})
		case http.MethodPost:
			var in taxonomy.NewSubject
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "Go", in.Name)
			assert.True(t, in.IsActive)
			writeJSON(w, map[string]any{"id": "s-9", "name": in.Name})
		}
	})
	mux.HandleFunc("/api/knowledge-points", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "数据 结构", r.URL.Query().Get("subject"))
			writeJSON(w, []map[string]any{{"id": 1, "name": "链表"}, {"id": 2, "name": "树"}})
		case http.MethodPost:
			var in taxonomy.NewKnowledgePoint
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "s-9", in.SubjectID)
			assert.Equal(t, "ACTIVE", in.Status)
			writeJSON(w, map[string]any{"success": true, "data": map[string]any{"id": 33, "name": in.Name}})
		}
	})
	c := newServer(t, mux)
	ctx := context.Background()

	subjects, err := c.ListSubjects(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []taxonomy.Subject{{ID: "7", Name: "Java"}}, subjects)

	s, err := c.CreateSubject(ctx, taxonomy.NewSubject{Name: "Go", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, taxonomy.Subject{ID: "s-9", Name: "Go"}, s)

	kps, err := c.ListKnowledgePoints(ctx, "数据 结构")
	require.NoError(t, err)
	assert.Equal(t, []taxonomy.KnowledgePoint{{ID: "1", Name: "链表"}, {ID: "2", Name: "树"}}, kps)

	kp, err := c.CreateKnowledgePoint(ctx, taxonomy.NewKnowledgePoint{Name: "并发", SubjectID: "s-9", Status: "ACTIVE"})
	require.NoError(t, err)
	assert.Equal(t, "33", kp.ID)
}

func TestRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/questions/duplicates", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Titles []string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"a", "b"}, in.Titles)
		writeJSON(w, []string{"b"})
	})
	mux.HandleFunc("/api/questions", func(w http.ResponseWriter, r *http.Request) {
		var p question.Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		if p.Title == "bad" {
			http.Error(w, "title rejected", http.StatusBadRequest)
			return
		}
		assert.Equal(t, []string{"k1", "k2"}, p.KnowledgePointIDs)
		writeJSON(w, map[string]any{"code": 200, "data": map[string]any{"id": 1001}})
	})
	c := newServer(t, mux)
	ctx := context.Background()

	dups, err := c.CheckDuplicateTitles(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b": true}, dups)

	id, err := c.Create(ctx, question.Payload{Title: "ok", SubjectID: "7", KnowledgePointIDs: []string{"k1", "k2"}})
	require.NoError(t, err)
	assert.Equal(t, "1001", id)

	_, err = c.Create(ctx, question.Payload{Title: "bad"})
	require.ErrorIs(t, err, backend.ErrStatus)
	code, ok := backend.StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, err.Error(), "title rejected")
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/subjects", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, []map[string]any{})
	})
	c := newServer(t, mux)
	_, err := c.ListSubjects(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreatesAreNotRetried(t *testing.T) {
	var subjects, points, questions atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/subjects", func(w http.ResponseWriter, r *http.Request) {
		subjects.Add(1)
		http.Error(w, "upstream timeout", http.StatusBadGateway)
	})
	mux.HandleFunc("/api/knowledge-points", func(w http.ResponseWriter, r *http.Request) {
		points.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/questions", func(w http.ResponseWriter, r *http.Request) {
		questions.Add(1)
		http.Error(w, "busy", http.StatusTooManyRequests)
	})
	c := newServer(t, mux)
	ctx := context.Background()

	_, err := c.CreateSubject(ctx, taxonomy.NewSubject{Name: "Java"})
	require.ErrorIs(t, err, backend.ErrStatus)
	code, _ := backend.StatusCode(err)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, int32(1), subjects.Load())

	_, err = c.CreateKnowledgePoint(ctx, taxonomy.NewKnowledgePoint{SubjectID: "1", Name: "IO"})
	require.Error(t, err)
	assert.Equal(t, int32(1), points.Load())

	_, err = c.Create(ctx, question.Payload{Title: "t"})
	require.Error(t, err)
	assert.Equal(t, int32(1), questions.Load())
}

func TestEnvelopeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/subjects", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 500, "message": "name exists"})
	})
	c := newServer(t, mux)
	_, err := c.CreateSubject(context.Background(), taxonomy.NewSubject{Name: "Java"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name exists")
}

func TestUpload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/files/images", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "1700000000000-deadbeef.png", hdr.Filename)
		assert.Equal(t, []byte{1, 2, 3}, b)
		writeJSON(w, map[string]any{"url": "https://cdn.test/" + hdr.Filename})
	})
	c := newServer(t, mux)
	u, err := c.Upload(context.Background(), []byte{1, 2, 3}, "1700000000000-deadbeef.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/1700000000000-deadbeef.png", u)
}
